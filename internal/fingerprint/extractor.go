// Package fingerprint turns face crops into embeddings and talks to the
// external vision service for detection and liveness.
package fingerprint

import (
	"context"
	"image"
	"log"
	"time"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

// Extractor turns a face crop into a fixed-length embedding. A nil vector with
// a nil error means the crop held no usable face region.
type Extractor interface {
	Extract(ctx context.Context, crop image.Image) ([]float32, error)
	Name() string
}

// Detector locates faces in an encoded frame.
type Detector interface {
	Detect(ctx context.Context, frame []byte) ([]facematch.Detection, error)
}

// Liveness is the anti-spoofing verdict for one face.
type Liveness struct {
	IsLive bool    `json:"is_live"`
	Score  float64 `json:"liveness_score"`
}

// LivenessChecker scores whether a face crop shows a live subject.
type LivenessChecker interface {
	CheckLiveness(ctx context.Context, crop image.Image) (Liveness, error)
}

const probeTimeout = 3 * time.Second

// SelectExtractor probes the vision service once and returns it when it
// answers, otherwise the gradient descriptor.
func SelectExtractor(ctx context.Context, client *VisionClient) Extractor {
	if client == nil {
		log.Printf("No vision service configured, using %s features", GradientExtractorName)
		return NewGradientExtractor()
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := client.Ping(probeCtx); err != nil {
		log.Printf("Vision service unavailable (%v), falling back to %s features", err, GradientExtractorName)
		return NewGradientExtractor()
	}

	log.Printf("Using vision service encoder at %s", client.baseURL)
	return client
}
