package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/turnwire/turnwire/internal/metrics"
)

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.createSession)
			r.Get("/", s.listSessions)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Delete("/", s.deleteSession)
				r.Post("/send", s.sendTurn)
				r.Post("/reset", s.resetSession)
				r.Get("/events", s.sessionEvents)
			})
		})

		r.Get("/events", s.allEvents)
		r.Get("/events/ws", s.eventsWebSocket)
	})
}
