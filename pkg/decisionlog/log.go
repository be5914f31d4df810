// Package decisionlog records one append-only routing record per evaluated
// message, across three sinks: sqlite (queryable source of truth), Prometheus
// counters, and an optional JSONL audit trail.
package decisionlog

import (
	"fmt"
	"time"

	"github.com/aveelabs/orchestrator/pkg/logx"
	"github.com/aveelabs/orchestrator/pkg/metrics"
	"github.com/aveelabs/orchestrator/pkg/persistence"
)

// Log writes decision records and serves aggregate views over them.
type Log struct {
	ops      *persistence.DatabaseOperations
	recorder metrics.Recorder
	audit    *AuditWriter
	logger   *logx.Logger
}

// NewLog creates a decision log. The audit writer is optional; pass nil to
// disable the JSONL trail.
func NewLog(ops *persistence.DatabaseOperations, recorder metrics.Recorder, audit *AuditWriter) *Log {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Log{
		ops:      ops,
		recorder: recorder,
		audit:    audit,
		logger:   logx.NewLogger("decisionlog"),
	}
}

// Record persists one decision. The sqlite insert is the durability boundary;
// a failed audit append is logged and does not fail the evaluation.
func (l *Log) Record(d *persistence.Decision) error {
	if d.ID == "" {
		d.ID = persistence.GenerateID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	if err := l.ops.InsertDecision(d); err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}

	l.recorder.ObserveDecision(d.AgentID, d.Path)

	if l.audit != nil {
		if err := l.audit.WriteDecision(d); err != nil {
			l.logger.Warn("audit append failed for decision %s: %v", d.ID, err)
		}
	}

	return nil
}

// Metrics aggregates the decision log for one agent since the given time.
func (l *Log) Metrics(agentID string, since time.Time) (*persistence.DecisionMetrics, error) {
	return l.ops.GetDecisionMetrics(agentID, since)
}

// Recent returns the newest decisions for one agent, most recent first.
func (l *Log) Recent(agentID string, limit int) ([]*persistence.Decision, error) {
	return l.ops.ListDecisions(agentID, limit)
}

// Close flushes and closes the audit trail if one is attached.
func (l *Log) Close() error {
	if l.audit != nil {
		return l.audit.Close()
	}
	return nil
}
