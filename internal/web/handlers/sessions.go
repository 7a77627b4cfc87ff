package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/database"
)

// SessionsHandler handles attendance session endpoints
type SessionsHandler struct {
	sessions *attendance.Sessions
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(sessions *attendance.Sessions) *SessionsHandler {
	return &SessionsHandler{sessions: sessions}
}

// SessionResponse represents a session in API responses
type SessionResponse struct {
	ID                   int64      `json:"id"`
	ClassID              string     `json:"class_id"`
	SessionDate          string     `json:"session_date"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	Status               string     `json:"status"`
	PresentWindowMinutes int        `json:"present_window_minutes"`
	LateWindowMinutes    int        `json:"late_window_minutes"`
}

func sessionResponse(s *database.Session) SessionResponse {
	return SessionResponse{
		ID:                   s.ID,
		ClassID:              s.ClassID,
		SessionDate:          s.SessionDate.Format(time.DateOnly),
		StartTime:            s.StartTime,
		EndTime:              s.EndTime,
		Status:               string(s.Status),
		PresentWindowMinutes: s.PresentWindowMinutes,
		LateWindowMinutes:    s.LateWindowMinutes,
	}
}

type createSessionRequest struct {
	ClassID              string     `json:"class_id" validate:"notblank,max=64"`
	PresentWindowMinutes int        `json:"present_window_minutes" validate:"gte=0,lte=240"`
	LateWindowMinutes    int        `json:"late_window_minutes" validate:"gte=0,lte=480"`
	StartAt              *time.Time `json:"start_at"` // schedules the session instead of starting it now
}

// respondSessionError maps session service errors to HTTP responses.
func respondSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, attendance.ErrSessionCompleted):
		respondError(w, http.StatusConflict, "session is completed")
	case errors.Is(err, attendance.ErrInvalidWindows):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("Session request failed: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// Create starts a new session, or schedules one when start_at is given.
func (h *SessionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		session *database.Session
		err     error
	)
	if req.StartAt != nil {
		session, err = h.sessions.Schedule(r.Context(), req.ClassID, *req.StartAt, req.PresentWindowMinutes, req.LateWindowMinutes)
	} else {
		session, err = h.sessions.Start(r.Context(), req.ClassID, req.PresentWindowMinutes, req.LateWindowMinutes)
	}
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sessionResponse(session))
}

// List returns the most recent sessions.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := database.DefaultSessionListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, constants.MaxSessionPageSize)
	}

	sessions, err := h.sessions.List(r.Context(), limit)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	out := make([]SessionResponse, len(sessions))
	for i := range sessions {
		out[i] = sessionResponse(&sessions[i])
	}
	respondJSON(w, http.StatusOK, out)
}

// Get returns a single session.
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(session))
}

// Activate starts a scheduled session now.
func (h *SessionsHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := h.sessions.Activate(r.Context(), id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(session))
}

// Stop completes a session.
func (h *SessionsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := h.sessions.Stop(r.Context(), id)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sessionResponse(session))
}
