package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus
// metrics registered on the default registry.
type PrometheusRecorder struct {
	decisionsTotal      *prometheus.CounterVec
	scoringDuration     *prometheus.HistogramVec
	escalationEvents    *prometheus.CounterVec
	canonicalReuseTotal *prometheus.CounterVec
}

// NewPrometheusRecorder creates a new Prometheus-based metrics recorder.
// Call it at most once per process; promauto panics on duplicate
// registration.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		decisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_decisions_total",
				Help: "Total number of routed messages by agent and decision path",
			},
			[]string{"agent_id", "path"},
		),
		scoringDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_scoring_duration_seconds",
				Help:    "Duration of message scoring passes in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "degraded"},
		),
		escalationEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_escalation_events_total",
				Help: "Total number of escalation lifecycle events by agent",
			},
			[]string{"agent_id", "event"},
		),
		canonicalReuseTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_canonical_reuse_total",
				Help: "Total number of canonical answers served",
			},
			[]string{"agent_id"},
		),
	}
}

// ObserveDecision records one routed message.
func (p *PrometheusRecorder) ObserveDecision(agentID, path string) {
	p.decisionsTotal.WithLabelValues(agentID, path).Inc()
}

// ObserveScoring records the duration and outcome of a scoring pass.
func (p *PrometheusRecorder) ObserveScoring(provider string, degraded bool, duration time.Duration) {
	degradedLabel := "false"
	if degraded {
		degradedLabel = "true"
	}
	p.scoringDuration.WithLabelValues(provider, degradedLabel).Observe(duration.Seconds())
}

// IncEscalationEvent counts an escalation lifecycle event.
func (p *PrometheusRecorder) IncEscalationEvent(agentID, event string) {
	p.escalationEvents.WithLabelValues(agentID, event).Inc()
}

// IncCanonicalReuse counts a canonical answer served on path C.
func (p *PrometheusRecorder) IncCanonicalReuse(agentID string) {
	p.canonicalReuseTotal.WithLabelValues(agentID).Inc()
}
