package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/web/middleware"
)

// RecordsHandler handles attendance record endpoints
type RecordsHandler struct {
	sessions *attendance.Sessions
	recorder *attendance.Recorder
	records  database.RecordReader
}

// NewRecordsHandler creates a new records handler
func NewRecordsHandler(sessions *attendance.Sessions, recorder *attendance.Recorder, records database.RecordReader) *RecordsHandler {
	return &RecordsHandler{
		sessions: sessions,
		recorder: recorder,
		records:  records,
	}
}

// RecordResponse represents an attendance record in API responses
type RecordResponse struct {
	SessionID       int64     `json:"session_id"`
	StudentID       string    `json:"student_id"`
	Status          string    `json:"status"`
	DetectedAt      time.Time `json:"detected_at"`
	ConfidenceScore float64   `json:"confidence_score"`
	LivenessScore   float64   `json:"liveness_score"`
	ManualOverride  bool      `json:"manual_override"`
	OverrideBy      string    `json:"override_by,omitempty"`
	OverrideReason  string    `json:"override_reason,omitempty"`
}

func recordResponse(r *database.Record) RecordResponse {
	return RecordResponse{
		SessionID:       r.SessionID,
		StudentID:       r.StudentID,
		Status:          string(r.Status),
		DetectedAt:      r.DetectedAt,
		ConfidenceScore: r.ConfidenceScore,
		LivenessScore:   r.LivenessScore,
		ManualOverride:  r.ManualOverride,
		OverrideBy:      r.OverrideBy,
		OverrideReason:  r.OverrideReason,
	}
}

type overrideRequest struct {
	Status     string `json:"status" validate:"required,attendance_status"`
	OverrideBy string `json:"override_by" validate:"max=128"`
	Reason     string `json:"reason" validate:"max=512"`
}

// List returns the records of a session.
func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := h.sessions.Get(r.Context(), id); err != nil {
		respondSessionError(w, err)
		return
	}

	records, err := h.records.ListRecords(r.Context(), id)
	if err != nil {
		log.Printf("Failed to list records of session %d: %v", id, err)
		respondError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	out := make([]RecordResponse, len(records))
	for i := range records {
		out[i] = recordResponse(&records[i])
	}
	respondJSON(w, http.StatusOK, out)
}

// Override sets a student's status by hand. Completed sessions may still be
// corrected this way.
func (h *RecordsHandler) Override(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	studentID := strings.TrimSpace(chi.URLParam(r, "studentID"))
	if studentID == "" {
		respondError(w, http.StatusBadRequest, "invalid student id")
		return
	}

	var req overrideRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	by := strings.TrimSpace(req.OverrideBy)
	if by == "" {
		by = middleware.GetClientFromContext(r.Context())
	}
	if by == "" {
		respondError(w, http.StatusBadRequest, "override_by is required")
		return
	}

	if _, err := h.sessions.Get(r.Context(), id); err != nil {
		respondSessionError(w, err)
		return
	}

	rec, err := h.recorder.Override(r.Context(), id, studentID, database.AttendanceStatus(req.Status), by, req.Reason)
	if errors.Is(err, attendance.ErrInvalidStatus) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Printf("Override of %s in session %d failed: %v", sanitizeForLog(studentID), id, err)
		respondError(w, http.StatusInternalServerError, "failed to write override")
		return
	}
	log.Printf("Manual override: %s set to %s in session %d by %s",
		sanitizeForLog(studentID), rec.Status, id, sanitizeForLog(by))
	respondJSON(w, http.StatusOK, recordResponse(rec))
}
