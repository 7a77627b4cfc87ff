package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type contextKey string

const clientContextKey contextKey = "client"

// RequireToken is middleware that requires "Authorization: Bearer <token>".
// An empty token disables the check.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}
			// The client is named by its X-Client-ID header, defaulting to "api".
			client := strings.TrimSpace(r.Header.Get("X-Client-ID"))
			if client == "" {
				client = "api"
			}
			ctx := context.WithValue(r.Context(), clientContextKey, client)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetClientFromContext returns the authenticated client name, or "" when
// authentication is disabled.
func GetClientFromContext(ctx context.Context) string {
	client, _ := ctx.Value(clientContextKey).(string)
	return client
}

// SetClientInContext adds a client name to the context.
// This is primarily for testing - use RequireToken middleware in production.
func SetClientInContext(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientContextKey, client)
}
