// Package httpadapter exposes the service's HTTP surface: health, readiness,
// Prometheus metrics and the flood update trigger endpoint.
package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DevenJnando/flood-notifications-producer/internal/domain"
)

// UpdateProcessor runs one flood update batch through the pipeline.
type UpdateProcessor interface {
	Process(ctx context.Context, update domain.FloodUpdate) ([]domain.FloodWithPostcodes, []domain.ResolveError)
	CheckReadiness(ctx context.Context) error
}

// Server exposes the HTTP endpoints.
type Server struct {
	httpServer *http.Server
	processor  UpdateProcessor
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// /latestfloods routes.
func NewServer(addr string, processor UpdateProcessor, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute, // a large flood batch can run long
			IdleTimeout:  60 * time.Second,
		},
		processor: processor,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /latestfloods", s.handleLatestFloods)

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

	if err := s.processor.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// floodResult is the per-flood element of a trigger response.
type floodResult struct {
	FloodAreaID string   `json:"floodAreaID"`
	Postcodes   []string `json:"postcodesInRange"`
}

// floodError is the per-item error element of a trigger response.
type floodError struct {
	FloodAreaID string `json:"floodAreaID,omitempty"`
	Stage       string `json:"stage"`
	Error       string `json:"error"`
}

func (s *Server) handleLatestFloods(w http.ResponseWriter, r *http.Request) {
	var update domain.FloodUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "could not decode flood update: " + err.Error(),
		})
		return
	}

	results, errs := s.processor.Process(r.Context(), update)

	resp := struct {
		Results []floodResult `json:"results"`
		Errors  []floodError  `json:"errors,omitempty"`
	}{
		Results: make([]floodResult, 0, len(results)),
	}
	for _, result := range results {
		resp.Results = append(resp.Results, floodResult{
			FloodAreaID: result.Flood.FloodAreaID,
			Postcodes:   result.Postcodes,
		})
	}
	for _, itemErr := range errs {
		resp.Errors = append(resp.Errors, floodError{
			FloodAreaID: itemErr.FloodAreaID,
			Stage:       itemErr.Stage,
			Error:       itemErr.Err.Error(),
		})
	}

	// Partial failure still returns the result list; callers inspect the
	// error records rather than the status code.
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
