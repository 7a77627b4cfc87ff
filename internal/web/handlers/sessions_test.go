package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

func TestSessionsHandler_Create(t *testing.T) {
	env := newTestEnv(t)
	handler := NewSessionsHandler(env.sessions)

	req := jsonRequest(t, "POST", "/api/v1/sessions", map[string]any{
		"class_id":               "math-7",
		"present_window_minutes": 10,
		"late_window_minutes":    20,
	})
	recorder := httptest.NewRecorder()
	handler.Create(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)
	var resp SessionResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.ID == 0 || resp.ClassID != "math-7" || resp.Status != "ACTIVE" {
		t.Errorf("unexpected session %+v", resp)
	}
	if resp.PresentWindowMinutes != 10 || resp.LateWindowMinutes != 20 {
		t.Errorf("unexpected windows %d/%d", resp.PresentWindowMinutes, resp.LateWindowMinutes)
	}
}

func TestSessionsHandler_CreateScheduled(t *testing.T) {
	env := newTestEnv(t)
	handler := NewSessionsHandler(env.sessions)

	startAt := time.Date(2026, 9, 3, 9, 0, 0, 0, time.UTC)
	req := jsonRequest(t, "POST", "/api/v1/sessions", map[string]any{
		"class_id": "math-7",
		"start_at": startAt,
	})
	recorder := httptest.NewRecorder()
	handler.Create(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)
	var resp SessionResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Status != "SCHEDULED" || resp.SessionDate != "2026-09-03" || !resp.StartTime.Equal(startAt) {
		t.Errorf("unexpected scheduled session %+v", resp)
	}
}

func TestSessionsHandler_CreateInvalid(t *testing.T) {
	env := newTestEnv(t)
	handler := NewSessionsHandler(env.sessions)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing class", map[string]any{"present_window_minutes": 5}},
		{"windows misordered", map[string]any{"class_id": "c", "present_window_minutes": 15, "late_window_minutes": 5}},
		{"window too long", map[string]any{"class_id": "c", "late_window_minutes": 1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.Create(recorder, jsonRequest(t, "POST", "/api/v1/sessions", tt.body))
			assertStatusCode(t, recorder, http.StatusBadRequest)
		})
	}
}

func TestSessionsHandler_CreateStorageError(t *testing.T) {
	env := newTestEnv(t)
	env.repo.CreateSessionErr = errors.New("disk full")
	handler := NewSessionsHandler(env.sessions)

	recorder := httptest.NewRecorder()
	handler.Create(recorder, jsonRequest(t, "POST", "/api/v1/sessions", map[string]any{"class_id": "c"}))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "internal error")
}

func TestSessionsHandler_GetAndStop(t *testing.T) {
	env := newTestEnv(t)
	handler := NewSessionsHandler(env.sessions)
	id := env.activeSession()
	params := map[string]string{"id": strconv.FormatInt(id, 10)}

	recorder := httptest.NewRecorder()
	handler.Get(recorder, requestWithChiParams(httptest.NewRequest("GET", "/", nil), params))
	assertStatusCode(t, recorder, http.StatusOK)

	recorder = httptest.NewRecorder()
	handler.Stop(recorder, requestWithChiParams(httptest.NewRequest("POST", "/", nil), params))
	assertStatusCode(t, recorder, http.StatusOK)
	var resp SessionResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Status != "COMPLETED" || resp.EndTime == nil {
		t.Errorf("expected completed session, got %+v", resp)
	}

	recorder = httptest.NewRecorder()
	handler.Stop(recorder, requestWithChiParams(httptest.NewRequest("POST", "/", nil), params))
	assertStatusCode(t, recorder, http.StatusConflict)
	assertJSONError(t, recorder, "session is completed")
}

func TestSessionsHandler_NotFound(t *testing.T) {
	env := newTestEnv(t)
	handler := NewSessionsHandler(env.sessions)
	params := map[string]string{"id": "999"}

	for name, fn := range map[string]func(http.ResponseWriter, *http.Request){
		"get":      handler.Get,
		"stop":     handler.Stop,
		"activate": handler.Activate,
	} {
		t.Run(name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			fn(recorder, requestWithChiParams(httptest.NewRequest("POST", "/", nil), params))
			assertStatusCode(t, recorder, http.StatusNotFound)
			assertJSONError(t, recorder, "session not found")
		})
	}

	recorder := httptest.NewRecorder()
	handler.Get(recorder, requestWithChiParams(httptest.NewRequest("GET", "/", nil), map[string]string{"id": "x"}))
	assertStatusCode(t, recorder, http.StatusBadRequest)
}

func TestSessionsHandler_Activate(t *testing.T) {
	env := newTestEnv(t)
	handler := NewSessionsHandler(env.sessions)
	id := env.repo.AddSession(database.Session{
		ClassID:              "c",
		StartTime:            time.Now().Add(time.Hour),
		Status:               database.SessionScheduled,
		PresentWindowMinutes: 5,
		LateWindowMinutes:    15,
	})

	recorder := httptest.NewRecorder()
	handler.Activate(recorder, requestWithChiParams(httptest.NewRequest("POST", "/", nil),
		map[string]string{"id": strconv.FormatInt(id, 10)}))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp SessionResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Status != "ACTIVE" || resp.StartTime.After(time.Now()) {
		t.Errorf("expected session active from now, got %+v", resp)
	}
}

func TestSessionsHandler_List(t *testing.T) {
	env := newTestEnv(t)
	handler := NewSessionsHandler(env.sessions)
	for range 3 {
		env.activeSession()
	}

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest("GET", "/api/v1/sessions?limit=2", nil))
	assertStatusCode(t, recorder, http.StatusOK)
	var resp []SessionResponse
	parseJSONResponse(t, recorder, &resp)
	if len(resp) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(resp))
	}

	recorder = httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest("GET", "/api/v1/sessions?limit=zero", nil))
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "invalid limit")
}
