package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voxcall/voxcall/internal/call"
	"github.com/voxcall/voxcall/internal/history"
	"github.com/voxcall/voxcall/internal/observability"
)

// Server exposes local diagnostics for a running client: health, metrics,
// call status, round-trip latency and persisted history.
type Server struct {
	orch    *call.Orchestrator
	store   history.Store
	metrics *observability.Metrics
	userID  string
}

func New(orch *call.Orchestrator, store history.Store, metrics *observability.Metrics, userID string) *Server {
	return &Server{orch: orch, store: store, metrics: metrics, userID: userID}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/call/status", s.handleCallStatus)
	r.Get("/v1/call/latency", s.handleCallLatency)
	r.Post("/v1/call/latency/reset", s.handleLatencyReset)
	r.Get("/v1/history/recent", s.handleRecentHistory)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"connection_state": s.orch.Status().Connection,
	})
}

func (s *Server) handleCallStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.orch.Status())
}

func (s *Server) handleCallLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.SnapshotLatency())
}

func (s *Server) handleLatencyReset(w http.ResponseWriter, _ *http.Request) {
	if s.metrics != nil {
		s.metrics.ResetLatency()
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

func (s *Server) handleRecentHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondJSON(w, http.StatusOK, []any{})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	entries, err := s.store.RecentEntries(ctx, s.userID, 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history_unavailable", err.Error())
		return
	}
	if entries == nil {
		entries = []history.EntryRecord{}
	}
	respondJSON(w, http.StatusOK, entries)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
