package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/rollcall/internal/facematch"
)

const defaultVisionTimeout = 10 * time.Second

// VisionClient calls the external vision service that hosts the face
// detector, the 128-d biometric encoder and the liveness model.
type VisionClient struct {
	baseURL string
	client  *http.Client
}

var (
	_ Extractor       = (*VisionClient)(nil)
	_ Detector        = (*VisionClient)(nil)
	_ LivenessChecker = (*VisionClient)(nil)
)

// NewVisionClient creates a new vision service client
func NewVisionClient(baseURL string) *VisionClient {
	return &VisionClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultVisionTimeout},
	}
}

// Name identifies the encoder in logs and identity metadata
func (c *VisionClient) Name() string {
	return "vision"
}

type detectResponse struct {
	Faces []struct {
		BBox     []float64 `json:"bbox"` // [x1, y1, x2, y2]
		DetScore float64   `json:"det_score"`
	} `json:"faces"`
}

type encodeResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
}

// postMultipartImage posts the image as the "file" form field and returns the
// response body. Status 422 means the service found no face and yields (nil, nil).
func (c *VisionClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// Ping checks that the service is reachable
func (c *VisionClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Detect returns the faces the service finds in an encoded frame. Boxes that
// are not well formed are dropped.
func (c *VisionClient) Detect(ctx context.Context, frame []byte) ([]facematch.Detection, error) {
	body, err := c.postMultipartImage(ctx, "/detect", frame)
	if err != nil || body == nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	detections := make([]facematch.Detection, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if len(f.BBox) != 4 {
			continue
		}
		box := facematch.Box{f.BBox[0], f.BBox[1], f.BBox[2], f.BBox[3]}
		if !box.Valid() {
			continue
		}
		detections = append(detections, facematch.Detection{Box: box, Confidence: f.DetScore})
	}
	return detections, nil
}

// Extract encodes a face crop with the biometric encoder.
func (c *VisionClient) Extract(ctx context.Context, crop image.Image) ([]float32, error) {
	data, err := EncodeJPEG(crop)
	if err != nil {
		return nil, err
	}

	body, err := c.postMultipartImage(ctx, "/encode", data)
	if err != nil || body == nil {
		return nil, err
	}

	var resp encodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, nil
	}
	if resp.Dim != 0 && resp.Dim != len(resp.Embedding) {
		return nil, fmt.Errorf("embedding length %d does not match reported dim %d", len(resp.Embedding), resp.Dim)
	}
	return resp.Embedding, nil
}

// CheckLiveness asks the liveness model about a face crop
func (c *VisionClient) CheckLiveness(ctx context.Context, crop image.Image) (Liveness, error) {
	data, err := EncodeJPEG(crop)
	if err != nil {
		return Liveness{}, err
	}

	body, err := c.postMultipartImage(ctx, "/liveness", data)
	if err != nil {
		return Liveness{}, err
	}
	if body == nil {
		return Liveness{}, nil
	}

	var resp Liveness
	if err := json.Unmarshal(body, &resp); err != nil {
		return Liveness{}, fmt.Errorf("failed to parse response: %w", err)
	}
	resp.Score = min(max(resp.Score, 0), 1)
	return resp, nil
}
