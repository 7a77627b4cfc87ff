package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/rollcall/internal/recognition"
)

func TestIdentitiesHandler_List(t *testing.T) {
	env := newTestEnv(t)
	handler := NewIdentitiesHandler(env.engine, env.enroller)

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest("GET", "/api/v1/identities", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp []recognition.Student
	parseJSONResponse(t, recorder, &resp)
	if len(resp) != 1 || resp[0].ID != "s1" || resp[0].Samples != 1 {
		t.Errorf("unexpected students %+v", resp)
	}
}

func TestIdentitiesHandler_Enroll(t *testing.T) {
	env := newTestEnv(t)
	handler := NewIdentitiesHandler(env.engine, env.enroller)

	req := multipartRequest(t, "/api/v1/identities", "image", "bob.png", testImage(t, 96, 96),
		map[string]string{"student_id": "s2", "name": "Bob"})
	recorder := httptest.NewRecorder()
	handler.Enroll(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)
	var resp recognition.EnrollResult
	parseJSONResponse(t, recorder, &resp)
	if resp.StudentID != "s2" || resp.Extractor != "const" || resp.Dim != 4 {
		t.Errorf("unexpected enroll result %+v", resp)
	}
	// The stub extractor gives every face Alice's embedding.
	if resp.Duplicate == nil || resp.Duplicate.StudentID != "s1" {
		t.Errorf("expected near duplicate of s1, got %+v", resp.Duplicate)
	}
	if env.store.Len() != 2 {
		t.Errorf("expected 2 samples, got %d", env.store.Len())
	}
	if recognition.OpenStore(env.store.Path()).Len() != 2 {
		t.Error("expected the face database to be saved")
	}
}

func TestIdentitiesHandler_EnrollInvalid(t *testing.T) {
	env := newTestEnv(t)
	handler := NewIdentitiesHandler(env.engine, env.enroller)
	img := testImage(t, 32, 32)

	tests := []struct {
		name      string
		req       *http.Request
		wantError string
	}{
		{
			"missing name",
			multipartRequest(t, "/", "image", "a.png", img, map[string]string{"student_id": "s2"}),
			"name cannot be blank",
		},
		{
			"missing image",
			multipartRequest(t, "/", "", "", nil, map[string]string{"student_id": "s2", "name": "Bob"}),
			"image is required",
		},
		{
			"not an image",
			multipartRequest(t, "/", "image", "a.txt", []byte("hello"), map[string]string{"student_id": "s2", "name": "Bob"}),
			"failed to enroll image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.Enroll(recorder, tt.req)
			assertStatusCode(t, recorder, http.StatusBadRequest)
			assertJSONError(t, recorder, tt.wantError)
		})
	}
	if env.store.Len() != 1 {
		t.Errorf("expected store unchanged, got %d samples", env.store.Len())
	}
}

func TestIdentitiesHandler_Delete(t *testing.T) {
	env := newTestEnv(t)
	handler := NewIdentitiesHandler(env.engine, env.enroller)

	recorder := httptest.NewRecorder()
	handler.Delete(recorder, requestWithChiParams(httptest.NewRequest("DELETE", "/", nil),
		map[string]string{"studentID": "s1"}))
	assertStatusCode(t, recorder, http.StatusOK)
	if env.store.Len() != 0 {
		t.Errorf("expected empty store, got %d", env.store.Len())
	}

	recorder = httptest.NewRecorder()
	handler.Delete(recorder, requestWithChiParams(httptest.NewRequest("DELETE", "/", nil),
		map[string]string{"studentID": "s1"}))
	assertStatusCode(t, recorder, http.StatusNotFound)
	assertJSONError(t, recorder, "student not found")
}

func TestIdentitiesHandler_EnrollSaveFailureRollsBack(t *testing.T) {
	// The face database directory is a regular file, so every save fails.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	embedding := []float32{0.2, 0.4, 0.4, 0.8}
	store := recognition.NewStore(filepath.Join(blocker, "faces.gob"))
	if err := store.Add(recognition.Identity{ID: "s1", Name: "Alice", Embedding: embedding}); err != nil {
		t.Fatal(err)
	}
	engine := recognition.NewEngineWith(store, constExtractor{embedding: embedding},
		recognition.Thresholds{Euclidean: 0.6, Cosine: 0.3})
	handler := NewIdentitiesHandler(engine,
		recognition.NewEnroller(context.Background(), engine, recognition.EnrollerConfig{}))

	req := multipartRequest(t, "/api/v1/identities", "image", "alice.png", testImage(t, 64, 64),
		map[string]string{"student_id": "s1", "name": "Alice"})
	recorder := httptest.NewRecorder()
	handler.Enroll(recorder, req)

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	assertJSONError(t, recorder, "failed to save face database")
	if store.Len() != 1 {
		t.Errorf("expected the unsaved sample rolled back, got %d samples", store.Len())
	}
}
