package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/rollcall/internal/constants"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/recognition"
)

// IdentitiesHandler handles the known face database endpoints
type IdentitiesHandler struct {
	engine   *recognition.Engine
	enroller *recognition.Enroller
	mu       sync.Mutex // serializes store changes with their save
}

// NewIdentitiesHandler creates a new identities handler
func NewIdentitiesHandler(engine *recognition.Engine, enroller *recognition.Enroller) *IdentitiesHandler {
	return &IdentitiesHandler{
		engine:   engine,
		enroller: enroller,
	}
}

type enrollRequest struct {
	StudentID string `form:"student_id" validate:"notblank,max=64"`
	Name      string `form:"name" validate:"notblank,max=128"`
}

// List returns the enrolled students.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	students := h.engine.Store(r.Context()).Students()
	if students == nil {
		students = []recognition.Student{}
	}
	respondJSON(w, http.StatusOK, students)
}

// Enroll adds a reference sample from an uploaded image.
func (h *IdentitiesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxEnrollUploadSize)
	if err := r.ParseMultipartForm(constants.MaxEnrollUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	req := enrollRequest{
		StudentID: strings.TrimSpace(r.FormValue("student_id")),
		Name:      facematch.CleanStudentName(r.FormValue("name")),
	}
	if err := validateStruct(&req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := h.enroller.Enroll(r.Context(), req.StudentID, req.Name, data, header.Filename)
	if errors.Is(err, recognition.ErrNoFace) {
		respondError(w, http.StatusUnprocessableEntity, "no usable face found in image")
		return
	}
	if err != nil {
		log.Printf("Enrollment of %s failed: %v", sanitizeForLog(req.StudentID), err)
		respondError(w, http.StatusBadRequest, "failed to enroll image")
		return
	}
	if err := h.enroller.Save(r.Context()); err != nil {
		// Unsaved samples are not used for matching.
		h.enroller.Discard(r.Context(), req.StudentID)
		log.Printf("Failed to save face database: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to save face database")
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// Delete removes every sample of a student.
func (h *IdentitiesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	studentID := strings.TrimSpace(chi.URLParam(r, "studentID"))

	h.mu.Lock()
	defer h.mu.Unlock()

	removed := h.enroller.Remove(r.Context(), studentID)
	if removed == 0 {
		respondError(w, http.StatusNotFound, "student not found")
		return
	}
	if err := h.enroller.Save(r.Context()); err != nil {
		log.Printf("Failed to save face database: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to save face database")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"student_id": studentID,
		"removed":    removed,
	})
}
