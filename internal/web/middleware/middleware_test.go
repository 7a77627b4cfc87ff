package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(GetClientFromContext(r.Context())))
}

func TestRequireToken(t *testing.T) {
	handler := RequireToken("s3cret")(http.HandlerFunc(okHandler))

	tests := []struct {
		name       string
		header     string
		client     string
		wantStatus int
		wantBody   string
	}{
		{"missing header", "", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic s3cret", "", http.StatusUnauthorized, ""},
		{"wrong token", "Bearer nope", "", http.StatusUnauthorized, ""},
		{"empty token", "Bearer ", "", http.StatusUnauthorized, ""},
		{"valid", "Bearer s3cret", "", http.StatusOK, "api"},
		{"valid lowercase scheme", "bearer s3cret", "", http.StatusOK, "api"},
		{"named client", "Bearer s3cret", "gate-cam-2", http.StatusOK, "gate-cam-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/sessions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.client != "" {
				req.Header.Set("X-Client-ID", tt.client)
			}
			recorder := httptest.NewRecorder()

			handler.ServeHTTP(recorder, req)

			if recorder.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, recorder.Code)
			}
			if tt.wantStatus == http.StatusOK && recorder.Body.String() != tt.wantBody {
				t.Errorf("expected client %q, got %q", tt.wantBody, recorder.Body.String())
			}
		})
	}
}

func TestRequireToken_Disabled(t *testing.T) {
	handler := RequireToken("")(http.HandlerFunc(okHandler))
	req := httptest.NewRequest("GET", "/", nil)
	recorder := httptest.NewRecorder()

	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("expected 200 with auth disabled, got %d", recorder.Code)
	}
	if recorder.Body.String() != "" {
		t.Errorf("expected no client name, got %q", recorder.Body.String())
	}
}

func TestCORS(t *testing.T) {
	handler := CORS([]string{"https://school.example/"})(http.HandlerFunc(okHandler))

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://school.example", true},
		{"http://localhost:5173", true},
		{"http://localhost", true},
		{"http://127.0.0.1:8080", true},
		{"http://localhost.evil.example", false},
		{"https://evil.example", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			recorder := httptest.NewRecorder()

			handler.ServeHTTP(recorder, req)

			got := recorder.Header().Get("Access-Control-Allow-Origin")
			if tt.allowed && got != tt.origin {
				t.Errorf("expected origin echoed, got %q", got)
			}
			if !tt.allowed && got != "" {
				t.Errorf("expected no CORS origin, got %q", got)
			}
		})
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	handler := CORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	recorder := httptest.NewRecorder()

	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK || called {
		t.Errorf("expected preflight answered without calling next, status=%d called=%v", recorder.Code, called)
	}
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(http.HandlerFunc(okHandler))
	recorder := httptest.NewRecorder()

	handler.ServeHTTP(recorder, httptest.NewRequest("GET", "/", nil))

	if recorder.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff header")
	}
	if recorder.Header().Get("Cache-Control") != "no-store" {
		t.Error("expected no-store header")
	}
}
