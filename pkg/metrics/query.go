package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// AgentActivity represents aggregated routing activity for one agent,
// queried back from Prometheus over a trailing window.
type AgentActivity struct {
	AgentID            string           `json:"agent_id"`
	DecisionsByPath    map[string]int64 `json:"decisions_by_path"`
	TotalDecisions     int64            `json:"total_decisions"`
	CanonicalReuses    int64            `json:"canonical_reuses"`
	EscalationsOffered int64            `json:"escalations_offered"`
}

// QueryService provides methods to query routing metrics from Prometheus.
// It serves dashboard-style aggregate views; the decision log in sqlite
// remains the source of truth.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetAgentActivity retrieves per-path decision counts and escalation volume
// for one agent over the trailing window.
func (q *QueryService) GetAgentActivity(ctx context.Context, agentID string, window time.Duration) (*AgentActivity, error) {
	activity := &AgentActivity{
		AgentID:         agentID,
		DecisionsByPath: make(map[string]int64),
	}
	rangeSelector := model.Duration(window).String()

	pathQuery := fmt.Sprintf(
		`sum by (path) (increase(orchestrator_decisions_total{agent_id=%q}[%s]))`,
		agentID, rangeSelector)
	pathResult, _, err := q.queryAPI.Query(ctx, pathQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions by path: %w", err)
	}

	if vector, ok := pathResult.(model.Vector); ok {
		for _, sample := range vector {
			path := string(sample.Metric["path"])
			count := int64(sample.Value)
			activity.DecisionsByPath[path] = count
			activity.TotalDecisions += count
		}
	}

	reuseQuery := fmt.Sprintf(
		`sum(increase(orchestrator_canonical_reuse_total{agent_id=%q}[%s]))`,
		agentID, rangeSelector)
	reuseResult, _, err := q.queryAPI.Query(ctx, reuseQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query canonical reuse: %w", err)
	}

	if vector, ok := reuseResult.(model.Vector); ok && len(vector) > 0 {
		activity.CanonicalReuses = int64(vector[0].Value)
	}

	offeredQuery := fmt.Sprintf(
		`sum(increase(orchestrator_escalation_events_total{agent_id=%q, event="offered"}[%s]))`,
		agentID, rangeSelector)
	offeredResult, _, err := q.queryAPI.Query(ctx, offeredQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query offered escalations: %w", err)
	}

	if vector, ok := offeredResult.(model.Vector); ok && len(vector) > 0 {
		activity.EscalationsOffered = int64(vector[0].Value)
	}

	return activity, nil
}
