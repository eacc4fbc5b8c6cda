// Package http exposes the service's HTTP surface: health, readiness,
// metrics, the incident read API, and the manual refresh trigger.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/hotspot-ingest-service/internal/domain"
	"github.com/couchcryptid/hotspot-ingest-service/internal/pipeline"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// RunTrigger starts a manual ingestion run unless one is already in flight.
type RunTrigger interface {
	StartManual(ctx context.Context) error
}

// IncidentQuerier serves the read side of the store.
type IncidentQuerier interface {
	QueryIncidents(ctx context.Context, from, to time.Time, locality string) ([]domain.Incident, error)
}

// Pipeline is the subset of the ingestion pipeline the server needs.
type Pipeline interface {
	ReadinessChecker
	RunTrigger
}

// Server exposes the HTTP endpoints.
type Server struct {
	httpServer *http.Server
	pipe       Pipeline
	store      IncidentQuerier
	logger     *slog.Logger
}

// NewServer creates the HTTP server and wires its routes.
func NewServer(addr string, pipe Pipeline, store IncidentQuerier, logger *slog.Logger) *Server {
	s := &Server{
		pipe:   pipe,
		store:  store,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/incidents", s.handleIncidents)
		r.Post("/refresh", s.handleRefresh)
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.pipe.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleIncidents serves incidents in a time range, optionally filtered by
// locality, newest first. Bounds accept RFC 3339 or plain dates; the
// default range is the last 24 hours.
func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	from, to := now.Add(-24*time.Hour), now

	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = parseTimeParam(v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from parameter"})
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = parseTimeParam(v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to parameter"})
			return
		}
	}

	incidents, err := s.store.QueryIncidents(r.Context(), from, to, r.URL.Query().Get("locality"))
	if err != nil {
		s.logger.Error("incident query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	if incidents == nil {
		incidents = []domain.Incident{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

// handleRefresh triggers a manual run. Responds 202 when accepted, 409
// when a run is already in flight.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.pipe.StartManual(r.Context()); err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		s.logger.Error("manual run trigger failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "trigger failed"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}

func parseTimeParam(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
