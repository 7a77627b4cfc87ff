package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/pipeline"
)

func frameRequest(t *testing.T, sessionID int64, frame []byte, detections string) *http.Request {
	t.Helper()
	fields := map[string]string{}
	if detections != "" {
		fields["detections"] = detections
	}
	req := multipartRequest(t, "/api/v1/sessions/"+strconv.FormatInt(sessionID, 10)+"/frames",
		"frame", "frame.png", frame, fields)
	return requestWithChiParams(req, map[string]string{"id": strconv.FormatInt(sessionID, 10)})
}

func TestFramesHandler_Process(t *testing.T) {
	env := newTestEnv(t)
	handler := NewFramesHandler(env.pipeline)
	id := env.activeSession()

	recorder := httptest.NewRecorder()
	handler.Process(recorder, frameRequest(t, id, testImage(t, 160, 120),
		`[{"bbox":[20,20,100,100],"confidence":0.97}]`))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp pipeline.FrameResult
	parseJSONResponse(t, recorder, &resp)
	if resp.SessionStatus != pipeline.SessionActive || resp.FrameWidth != 160 || resp.FrameHeight != 120 {
		t.Errorf("unexpected frame result %+v", resp)
	}
	if len(resp.Faces) != 1 {
		t.Fatalf("expected 1 face, got %d", len(resp.Faces))
	}
	face := resp.Faces[0]
	if face.StudentID != "s1" || face.Status != pipeline.StatusPresent || face.Confidence != 100 {
		t.Errorf("unexpected face %+v", face)
	}
	if face.BoundingBox != [4]int{20, 20, 100, 100} {
		t.Errorf("unexpected box %v", face.BoundingBox)
	}

	rec, _ := env.repo.GetRecord(context.Background(), id, "s1")
	if rec == nil || rec.Status != database.StatusPresent {
		t.Errorf("expected PRESENT record, got %+v", rec)
	}
}

func TestFramesHandler_Errors(t *testing.T) {
	env := newTestEnv(t)
	handler := NewFramesHandler(env.pipeline)
	active := env.activeSession()
	completed := env.repo.AddSession(database.Session{Status: database.SessionCompleted, PresentWindowMinutes: 5, LateWindowMinutes: 15})
	img := testImage(t, 64, 64)

	tests := []struct {
		name       string
		req        func() *http.Request
		wantStatus int
		wantError  string
	}{
		{
			"completed session",
			func() *http.Request { return frameRequest(t, completed, img, `[]`) },
			http.StatusConflict, "session is completed",
		},
		{
			"no detector",
			func() *http.Request { return frameRequest(t, active, img, "") },
			http.StatusUnprocessableEntity, "detections are required when no detector is configured",
		},
		{
			"not an image",
			func() *http.Request { return frameRequest(t, active, []byte("garbage"), `[]`) },
			http.StatusBadRequest, "frame is not a supported image",
		},
		{
			"bad detections json",
			func() *http.Request { return frameRequest(t, active, img, `{"bbox":1}`) },
			http.StatusBadRequest, "invalid detections",
		},
		{
			"inverted box",
			func() *http.Request { return frameRequest(t, active, img, `[{"bbox":[50,50,10,10],"confidence":0.9}]`) },
			http.StatusBadRequest, "invalid detections: each bbox needs x1 < x2 and y1 < y2",
		},
		{
			"confidence out of range",
			func() *http.Request { return frameRequest(t, active, img, `[{"bbox":[1,1,10,10],"confidence":4}]`) },
			http.StatusBadRequest, "confidence must be 1 or less",
		},
		{
			"missing frame",
			func() *http.Request {
				req := multipartRequest(t, "/", "", "", nil, map[string]string{"detections": "[]"})
				return requestWithChiParams(req, map[string]string{"id": strconv.FormatInt(active, 10)})
			},
			http.StatusBadRequest, "frame is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			handler.Process(recorder, tt.req())
			assertStatusCode(t, recorder, tt.wantStatus)
			assertJSONError(t, recorder, tt.wantError)
		})
	}

	if env.repo.RecordCount() != 0 {
		t.Errorf("expected no records, got %d", env.repo.RecordCount())
	}
}

func TestFramesHandler_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	handler := NewFramesHandler(env.pipeline)

	recorder := httptest.NewRecorder()
	handler.Process(recorder, frameRequest(t, 77, testImage(t, 64, 64), `[{"bbox":[0,0,64,64],"confidence":0.9}]`))

	assertStatusCode(t, recorder, http.StatusOK)
	var resp pipeline.FrameResult
	parseJSONResponse(t, recorder, &resp)
	if resp.SessionStatus != pipeline.SessionNotFound {
		t.Errorf("expected not_found, got %s", resp.SessionStatus)
	}
	if len(resp.Faces) != 1 || resp.Faces[0].StudentID != "s1" || resp.Faces[0].Status != pipeline.StatusAbsent {
		t.Errorf("expected recognized but unrecorded face, got %+v", resp.Faces)
	}
}
