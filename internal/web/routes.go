package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/rollcall/internal/web/handlers"
	"github.com/kozaktomas/rollcall/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	sessionsHandler := handlers.NewSessionsHandler(s.services.Sessions)
	framesHandler := handlers.NewFramesHandler(s.services.Pipeline)
	recordsHandler := handlers.NewRecordsHandler(s.services.Sessions, s.services.Recorder, s.services.Records)
	identitiesHandler := handlers.NewIdentitiesHandler(s.services.Engine, s.services.Enroller)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.APIToken))

		// Sessions
		r.Get("/sessions", sessionsHandler.List)
		r.Post("/sessions", sessionsHandler.Create)
		r.Get("/sessions/{id}", sessionsHandler.Get)
		r.Post("/sessions/{id}/activate", sessionsHandler.Activate)
		r.Post("/sessions/{id}/stop", sessionsHandler.Stop)

		// Frames
		r.Post("/sessions/{id}/frames", framesHandler.Process)

		// Records
		r.Get("/sessions/{id}/records", recordsHandler.List)
		r.Put("/sessions/{id}/records/{studentID}", recordsHandler.Override)

		// Known faces
		r.Get("/identities", identitiesHandler.List)
		r.Post("/identities", identitiesHandler.Enroll)
		r.Delete("/identities/{studentID}", identitiesHandler.Delete)
	})
}
