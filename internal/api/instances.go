package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/natsfixture/internal/supervisor"
)

// handleListInstances returns the stats of every instance in start order.
func (s *Server) handleListInstances(w http.ResponseWriter, _ *http.Request) {
	stats := make([]supervisor.Stats, 0, len(s.order))
	for _, name := range s.order {
		stats = append(stats, s.fixtures[name].Stats())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instances": stats,
		"count":     len(stats),
	})
}

// handleGetInstance returns the stats of one instance.
func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, f.Stats())
}

// handleStartInstance starts an instance and waits until it serves.
// Starting a running instance is a no-op.
func (s *Server) handleStartInstance(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookup(w, r)
	if !ok {
		return
	}

	if err := f.Start(r.Context()); err != nil {
		status, code := startErrorStatus(err)
		s.logger.Warn("start via API failed", "instance", f.Name(), "error", err)
		writeError(w, status, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, f.Stats())
}

// handleStopInstance stops an instance and waits until its port is released.
func (s *Server) handleStopInstance(w http.ResponseWriter, r *http.Request) {
	f, ok := s.lookup(w, r)
	if !ok {
		return
	}
	f.Stop()
	writeJSON(w, http.StatusOK, f.Stats())
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (Fixture, bool) {
	name := chi.URLParam(r, "name")
	f, ok := s.fixtures[name]
	if !ok {
		writeNotFound(w, "instance not found: "+name)
		return nil, false
	}
	return f, true
}
