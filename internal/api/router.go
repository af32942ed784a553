package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		r.Route("/instances", func(r chi.Router) {
			r.Get("/", s.handleListInstances)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetInstance)

				r.Group(func(r chi.Router) {
					r.Use(s.authMiddleware)
					r.Post("/start", s.handleStartInstance)
					r.Post("/stop", s.handleStopInstance)
				})
			})
		})

		r.Get("/history", s.handleListHistory)

		// Token is checked in the handler; browsers cannot set headers here.
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	running := 0
	for _, f := range s.fixtures {
		if f.Stats().Running {
			running++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"instances": len(s.fixtures),
		"running":   running,
	})
}
