package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/memory"
	"github.com/kozaktomas/rollcall/internal/pipeline"
	"github.com/kozaktomas/rollcall/internal/recognition"
	"github.com/kozaktomas/rollcall/internal/tracking"
)

// constExtractor returns the same embedding for every crop
type constExtractor struct {
	embedding []float32
}

func (e constExtractor) Name() string { return "const" }

func (e constExtractor) Extract(context.Context, image.Image) ([]float32, error) {
	return e.embedding, nil
}

// testEnv wires the real services on an in-memory backend
type testEnv struct {
	repo     *memory.Backend
	store    *recognition.Store
	sessions *attendance.Sessions
	recorder *attendance.Recorder
	pipeline *pipeline.Pipeline
	engine   *recognition.Engine
	enroller *recognition.Enroller
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	embedding := []float32{0.2, 0.4, 0.4, 0.8}

	store := recognition.NewStore(filepath.Join(t.TempDir(), "faces.gob"))
	if err := store.Add(recognition.Identity{ID: "s1", Name: "Alice", Embedding: embedding}); err != nil {
		t.Fatal(err)
	}
	engine := recognition.NewEngineWith(store, constExtractor{embedding: embedding},
		recognition.Thresholds{Euclidean: 0.6, Cosine: 0.3})

	repo := memory.New()
	tracker := tracking.NewRegistry(500*time.Millisecond, 0.6, time.Minute)
	recorder := attendance.NewRecorder(repo)
	sessions := attendance.NewSessions(repo, tracker, recorder, 5, 15)

	return &testEnv{
		repo:     repo,
		store:    store,
		sessions: sessions,
		recorder: recorder,
		engine:   engine,
		pipeline: pipeline.New(engine, sessions, recorder, tracker, pipeline.Options{MinConfidence: 0.6}),
		enroller: recognition.NewEnroller(context.Background(), engine, recognition.EnrollerConfig{DuplicateDistance: 0.05}),
	}
}

// activeSession stores a session that started just now
func (e *testEnv) activeSession() int64 {
	return e.repo.AddSession(database.Session{
		ClassID:              "class-a",
		StartTime:            time.Now(),
		Status:               database.SessionActive,
		PresentWindowMinutes: 5,
		LateWindowMinutes:    15,
	})
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest creates a request with a JSON body
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest creates a multipart request with one file and extra fields
func multipartRequest(t *testing.T, path, fileField, fileName string, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(file)
	}
	mw.Close()

	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// testImage encodes a textured PNG
func testImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		for y := range h {
			c := color.RGBA{30, 30, 30, 255}
			if ((x+y)/5)%2 == 0 {
				c = color.RGBA{220, 200, 180, 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
