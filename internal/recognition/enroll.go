package recognition

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/fingerprint"
)

// ErrNoFace is returned when an enrollment image has no usable face.
var ErrNoFace = errors.New("no usable face found in image")

// Enroller adds new reference samples to the engine's store.
type Enroller struct {
	engine            *Engine
	detector          fingerprint.Detector // nil treats the whole image as the face
	index             *database.IdentityIndex
	duplicateDistance float64
	cropPadding       int
}

// EnrollerConfig configures an Enroller.
type EnrollerConfig struct {
	Detector          fingerprint.Detector
	DuplicateDistance float64 // cosine distance under which two students count as near duplicates
	CropPadding       int
}

// NewEnroller creates an enroller and indexes the current store contents.
func NewEnroller(ctx context.Context, engine *Engine, cfg EnrollerConfig) *Enroller {
	index := database.NewIdentityIndex()
	index.Build(engine.Store(ctx).ToStored())
	return &Enroller{
		engine:            engine,
		detector:          cfg.Detector,
		index:             index,
		duplicateDistance: cfg.DuplicateDistance,
		cropPadding:       cfg.CropPadding,
	}
}

// EnrollResult describes a stored sample.
type EnrollResult struct {
	StudentID string             `json:"student_id"`
	Name      string             `json:"name"`
	Dim       int                `json:"dim"`
	Extractor string             `json:"extractor"`
	Box       facematch.Box      `json:"bounding_box"`
	Duplicate *database.Neighbor `json:"near_duplicate,omitempty"`
}

// Enroll detects the largest face in imageData, extracts its embedding and
// appends it to the store. The store is not saved; call Save when done.
func (en *Enroller) Enroll(ctx context.Context, studentID, name string, imageData []byte, source string) (*EnrollResult, error) {
	if studentID == "" || name == "" {
		return nil, errors.New("student ID and name are required")
	}

	img, err := fingerprint.DecodeImage(imageData)
	if err != nil {
		return nil, err
	}

	box, err := en.locateFace(ctx, img, imageData)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	crop := fingerprint.CropFace(img, facematch.PadBox(box, en.cropPadding, b.Dx(), b.Dy()))
	extractor := en.engine.Extractor(ctx)
	embedding, err := extractor.Extract(ctx, crop)
	if err != nil {
		return nil, fmt.Errorf("extracting features: %w", err)
	}
	if embedding == nil {
		return nil, ErrNoFace
	}

	result := &EnrollResult{
		StudentID: studentID,
		Name:      name,
		Dim:       len(embedding),
		Extractor: extractor.Name(),
		Box:       box,
	}
	if n, ok := en.index.NearestOther(studentID, embedding, en.duplicateDistance); ok {
		log.Printf("Warning: sample for %s (%s) is within %.3f of %s (%s)",
			name, studentID, n.Distance, n.Name, n.StudentID)
		result.Duplicate = &n
	}

	ident := Identity{
		ID:        studentID,
		Name:      name,
		Embedding: embedding,
		Metadata: map[string]string{
			"extractor":   extractor.Name(),
			"source":      source,
			"enrolled_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	if err := en.engine.Store(ctx).Add(ident); err != nil {
		return nil, err
	}
	en.index.Add(studentID, name, embedding)
	return result, nil
}

func (en *Enroller) locateFace(ctx context.Context, img image.Image, imageData []byte) (facematch.Box, error) {
	b := img.Bounds()
	whole := facematch.Box{0, 0, float64(b.Dx()), float64(b.Dy())}
	if en.detector == nil {
		return whole, nil
	}

	detections, err := en.detector.Detect(ctx, imageData)
	if err != nil {
		return facematch.Box{}, fmt.Errorf("detecting faces: %w", err)
	}
	i := facematch.Largest(detections)
	if i < 0 {
		return facematch.Box{}, ErrNoFace
	}
	return detections[i].Box, nil
}

// Remove drops every sample of a student and reindexes the rest. It returns
// how many samples were removed.
func (en *Enroller) Remove(ctx context.Context, studentID string) int {
	store := en.engine.Store(ctx)
	n := store.Remove(studentID)
	if n > 0 {
		en.index.Build(store.ToStored())
	}
	return n
}

// Discard drops the sample added by the latest Enroll of studentID, for
// callers that could not persist it. Older samples of the student stay.
func (en *Enroller) Discard(ctx context.Context, studentID string) bool {
	store := en.engine.Store(ctx)
	if !store.RemoveLatest(studentID) {
		return false
	}
	en.index.Build(store.ToStored())
	return true
}

// Save persists the store.
func (en *Enroller) Save(ctx context.Context) error {
	return en.engine.Store(ctx).Save()
}

// DuplicatePair is a sample that lies close to a sample of another student.
type DuplicatePair struct {
	StudentID string
	Name      string
	Other     database.Neighbor
}

// FindDuplicates lists, for every student, samples that are within maxDistance
// of a different student. Each unordered pair of students is reported once.
func FindDuplicates(store *Store, maxDistance float64) []DuplicatePair {
	stored := store.ToStored()
	index := database.NewIdentityIndex()
	index.Build(stored)

	seen := make(map[[2]string]bool)
	var pairs []DuplicatePair
	for _, st := range stored {
		n, ok := index.NearestOther(st.StudentID, st.Embedding, maxDistance)
		if !ok {
			continue
		}
		key := [2]string{st.StudentID, n.StudentID}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		pairs = append(pairs, DuplicatePair{StudentID: st.StudentID, Name: st.Name, Other: n})
	}
	return pairs
}
