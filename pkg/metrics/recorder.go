// Package metrics provides Prometheus-based recording and querying of
// routing activity.
package metrics

import "time"

// Recorder defines the interface for recording routing metrics.
type Recorder interface {
	// ObserveDecision records one routed message by agent and decision path.
	ObserveDecision(agentID, path string)

	// ObserveScoring records the duration and outcome of a scoring pass.
	ObserveScoring(provider string, degraded bool, duration time.Duration)

	// IncEscalationEvent counts escalation lifecycle events
	// (offered, accepted, answered, declined, expired).
	IncEscalationEvent(agentID, event string)

	// IncCanonicalReuse counts canonical answers served on path C.
	IncCanonicalReuse(agentID string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are
// disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveDecision does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveDecision(_, _ string) {
	// No-op
}

// ObserveScoring does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveScoring(_ string, _ bool, _ time.Duration) {
	// No-op
}

// IncEscalationEvent does nothing in the no-op recorder.
func (n *NoopRecorder) IncEscalationEvent(_, _ string) {
	// No-op
}

// IncCanonicalReuse does nothing in the no-op recorder.
func (n *NoopRecorder) IncCanonicalReuse(_ string) {
	// No-op
}
