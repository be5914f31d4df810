// Package api exposes the orchestrator engine over HTTP: message evaluation
// for the platform, escalation queue operations for agent owners, and
// analytics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aveelabs/orchestrator/pkg/engine"
	"github.com/aveelabs/orchestrator/pkg/logx"
	"github.com/aveelabs/orchestrator/pkg/metrics"
	"github.com/aveelabs/orchestrator/pkg/persistence"
	"github.com/aveelabs/orchestrator/pkg/version"
)

// Server is the orchestrator HTTP server.
type Server struct {
	engine   *engine.Engine
	activity *metrics.QueryService
	logger   *logx.Logger
}

// NewServer creates an HTTP server around the engine. The activity service
// may be nil when no Prometheus server is configured; the activity endpoint
// then reports unavailable.
func NewServer(eng *engine.Engine, activity *metrics.QueryService) *Server {
	return &Server{
		engine:   eng,
		activity: activity,
		logger:   logx.NewLogger("api"),
	}
}

// RegisterRoutes sets up HTTP routes for the API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/agents/", s.handleAgentSubtree)
	mux.HandleFunc("/v1/escalations/", s.handleEscalationSubtree)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
}

// Start runs the server until ctx is cancelled, then shuts down gracefully
// within the given timeout.
func (s *Server) Start(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	//nolint:contextcheck // Parent context is cancelled; shutdown needs a fresh one
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return <-errCh
}

// handleAgentSubtree routes /v1/agents/{id}/{resource}.
func (s *Server) handleAgentSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/agents/")
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		http.Error(w, "Agent ID required", http.StatusBadRequest)
		return
	}
	agentID := parts[0]
	resource := ""
	if len(parts) == 2 {
		resource = parts[1]
	}

	switch resource {
	case "messages":
		s.handleEvaluate(w, r, agentID)
	case "config":
		s.handleConfig(w, r, agentID)
	case "escalations":
		s.handleListEscalations(w, r, agentID)
	case "metrics":
		s.handleMetrics(w, r, agentID)
	case "activity":
		s.handleActivity(w, r, agentID)
	case "decisions":
		s.handleDecisions(w, r, agentID)
	default:
		http.NotFound(w, r)
	}
}

// handleEvaluate implements POST /v1/agents/{id}/messages.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request, agentID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req engine.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	req.AgentID = agentID

	result, err := s.engine.EvaluateMessage(r.Context(), &req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
	s.logger.Debug("evaluated message for agent %s: path %s", agentID, result.Path)
}

// handleConfig implements GET and PUT /v1/agents/{id}/config.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request, agentID string) {
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.engine.GetAgentConfig(agentID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, cfg)
	case http.MethodPut:
		var cfg persistence.AgentConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		cfg.AgentID = agentID
		if err := s.engine.UpdateAgentConfig(&cfg); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, &cfg)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleListEscalations implements GET /v1/agents/{id}/escalations.
func (s *Server) handleListEscalations(w http.ResponseWriter, r *http.Request, agentID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := &persistence.EscalationFilter{}
	if status := r.URL.Query().Get("status"); status != "" {
		if !persistence.IsValidStatus(status) {
			http.Error(w, "Invalid status filter", http.StatusBadRequest)
			return
		}
		filter.Status = &status
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	escalations, err := s.engine.ListEscalations(agentID, filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, escalations)
}

// handleMetrics implements GET /v1/agents/{id}/metrics?window_hours=N.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request, agentID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	windowHours := 24 * 7
	if windowStr := r.URL.Query().Get("window_hours"); windowStr != "" {
		parsed, err := strconv.Atoi(windowStr)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid window_hours", http.StatusBadRequest)
			return
		}
		windowHours = parsed
	}

	since := time.Now().Add(-time.Duration(windowHours) * time.Hour)
	metrics, err := s.engine.Metrics(agentID, since)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, metrics)
}

// handleActivity implements GET /v1/agents/{id}/activity?window_hours=N,
// backed by the Prometheus query service. The sqlite metrics endpoint remains
// the source of truth; this view reflects whatever the scrape retained.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request, agentID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.activity == nil {
		http.Error(w, "Activity queries are not configured", http.StatusServiceUnavailable)
		return
	}

	windowHours := 24 * 7
	if windowStr := r.URL.Query().Get("window_hours"); windowStr != "" {
		parsed, err := strconv.Atoi(windowStr)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid window_hours", http.StatusBadRequest)
			return
		}
		windowHours = parsed
	}

	activity, err := s.activity.GetAgentActivity(r.Context(), agentID, time.Duration(windowHours)*time.Hour)
	if err != nil {
		s.logger.Error("activity query failed for agent %s: %v", agentID, err)
		http.Error(w, "Activity query failed", http.StatusBadGateway)
		return
	}
	s.writeJSON(w, http.StatusOK, activity)
}

// handleDecisions implements GET /v1/agents/{id}/decisions?limit=N.
func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request, agentID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	decisions, err := s.engine.RecentDecisions(agentID, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, decisions)
}

// handleEscalationSubtree routes /v1/escalations/{id}[/{action}].
func (s *Server) handleEscalationSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/escalations/")
	parts := strings.SplitN(rest, "/", 2)
	if parts[0] == "" {
		http.Error(w, "Escalation ID required", http.StatusBadRequest)
		return
	}
	escalationID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		esc, err := s.engine.GetEscalation(escalationID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, esc)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch parts[1] {
	case "accept":
		if err := s.engine.AcceptEscalation(escalationID); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": persistence.StatusAccepted})
	case "answer":
		s.handleAnswer(w, r, escalationID)
	case "decline":
		if err := s.engine.DeclineEscalation(escalationID); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": persistence.StatusDeclined})
	default:
		http.NotFound(w, r)
	}
}

// handleAnswer implements POST /v1/escalations/{id}/answer.
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request, escalationID string) {
	var req struct {
		Answer string `json:"answer"`
		Layer  string `json:"layer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Answer == "" {
		http.Error(w, "Answer text is required", http.StatusBadRequest)
		return
	}
	if req.Layer == "" {
		req.Layer = persistence.LayerPublic
	}
	if !persistence.IsValidLayer(req.Layer) {
		http.Error(w, "Invalid layer", http.StatusBadRequest)
		return
	}

	ca, err := s.engine.AnswerEscalation(r.Context(), escalationID, req.Answer, req.Layer)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ca)
	s.logger.Debug("escalation %s answered, canonical answer %s", escalationID, ca.ID)
}

// handleHealth implements GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response: %v", err)
	}
}

// writeError maps storage sentinels to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, persistence.ErrNotFound), errors.Is(err, persistence.ErrConfigMissing):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, persistence.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, persistence.ErrQuotaExceeded):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, engine.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.logger.Error("request failed: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
