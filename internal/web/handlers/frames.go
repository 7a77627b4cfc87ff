package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/pipeline"
)

// FramesHandler accepts camera frames for recognition
type FramesHandler struct {
	pipeline *pipeline.Pipeline
}

// NewFramesHandler creates a new frames handler
func NewFramesHandler(p *pipeline.Pipeline) *FramesHandler {
	return &FramesHandler{pipeline: p}
}

// detectionInput is a face box found by the caller's own detector.
type detectionInput struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence" validate:"gte=0,lte=1"`
}

type detectionsInput struct {
	Detections []detectionInput `json:"detections" validate:"dive"`
}

// parseDetections reads the optional "detections" form field. A missing
// field returns nil so the server-side detector is used.
func parseDetections(r *http.Request) ([]facematch.Detection, error) {
	raw, ok := r.MultipartForm.Value["detections"]
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	var in detectionsInput
	if err := json.Unmarshal([]byte(raw[0]), &in.Detections); err != nil {
		return nil, errors.New("invalid detections")
	}
	if err := validateStruct(&in); err != nil {
		return nil, err
	}
	out := make([]facematch.Detection, 0, len(in.Detections))
	for _, d := range in.Detections {
		box := facematch.Box(d.BBox)
		if !box.Valid() {
			return nil, errors.New("invalid detections: each bbox needs x1 < x2 and y1 < y2")
		}
		out = append(out, facematch.Detection{Box: box, Confidence: d.Confidence})
	}
	return out, nil
}

// Process runs one frame through the recognition pipeline.
func (h *FramesHandler) Process(w http.ResponseWriter, r *http.Request) {
	sessionID, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxFrameSize)
	if err := r.ParseMultipartForm(constants.MaxFrameSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, _, err := r.FormFile("frame")
	if err != nil {
		respondError(w, http.StatusBadRequest, "frame is required")
		return
	}
	defer file.Close()
	frame, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read frame")
		return
	}

	detections, err := parseDetections(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.pipeline.ProcessFrame(r.Context(), sessionID, frame, detections)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, result)
	case errors.Is(err, attendance.ErrSessionCompleted):
		respondError(w, http.StatusConflict, "session is completed")
	case errors.Is(err, pipeline.ErrInvalidFrame):
		respondError(w, http.StatusBadRequest, "frame is not a supported image")
	case errors.Is(err, pipeline.ErrNoDetector):
		respondError(w, http.StatusUnprocessableEntity, "detections are required when no detector is configured")
	case errors.Is(err, pipeline.ErrDetection):
		log.Printf("Frame for session %d: %v", sessionID, err)
		respondError(w, http.StatusBadGateway, "face detection failed")
	default:
		log.Printf("Frame for session %d failed: %v", sessionID, err)
		respondError(w, http.StatusInternalServerError, "frame processing failed")
	}
}
