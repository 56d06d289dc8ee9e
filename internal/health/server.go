package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/faultline/internal/core/domain"
)

// AuditReader returns recent processed entries, newest first.
type AuditReader interface {
	Recent(ctx context.Context, n int) ([]domain.AuditEntry, error)
}

// Server provides HTTP endpoints for health monitoring.
type Server struct {
	monitor *Monitor
	audit   AuditReader
	server  *http.Server
}

// NewServer creates a new health server. audit may be nil.
func NewServer(monitor *Monitor, audit AuditReader, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		audit:   audit,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.HandleFunc("GET /health/circuits", s.handleCircuits)
	mux.HandleFunc("POST /health/circuits/{key}/reset", s.handleReset)
	mux.HandleFunc("GET /health/errors", s.handleErrors)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	status := http.StatusOK
	if report.SystemStatus == StatusCritical {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": string(report.SystemStatus)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

func (s *Server) handleCircuits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Circuits())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	s.monitor.Reset(key)
	slog.Info("Circuit reset via API", "resource", key)
	writeJSON(w, http.StatusOK, map[string]string{"resource": key, "phase": domain.PhaseClosed.String()})
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no audit sink configured"})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}
	entries, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to read audit entries", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}
