// Package escalation manages the lifecycle of questions routed to the human
// creator: quota-gated offer, accept, answer, decline, and stale expiry.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aveelabs/orchestrator/pkg/canonical"
	"github.com/aveelabs/orchestrator/pkg/logx"
	"github.com/aveelabs/orchestrator/pkg/metrics"
	"github.com/aveelabs/orchestrator/pkg/notify"
	"github.com/aveelabs/orchestrator/pkg/persistence"
)

// Manager coordinates escalation state transitions. All state lives in
// sqlite; the manager adds canonical ingestion and owner notifications on
// top of the guarded persistence operations.
type Manager struct {
	ops       *persistence.DatabaseOperations
	canonical *canonical.Store
	notifier  *notify.Notifier
	recorder  metrics.Recorder
	logger    *logx.Logger
}

// NewManager creates an escalation manager. The notifier may be nil when
// owner notifications are disabled.
func NewManager(ops *persistence.DatabaseOperations, store *canonical.Store, notifier *notify.Notifier, recorder metrics.Recorder) *Manager {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Manager{
		ops:       ops,
		canonical: store,
		notifier:  notifier,
		recorder:  recorder,
		logger:    logx.NewLogger("escalation"),
	}
}

// Offer creates a pending escalation if the agent's rolling quotas permit.
// The quota check and insert are a single guarded statement in the
// persistence layer, so concurrent offers cannot exceed the limits. Returns
// persistence.ErrQuotaExceeded when a slot is not available.
func (m *Manager) Offer(esc *persistence.Escalation, cfg *persistence.AgentConfig) error {
	err := m.ops.InsertEscalationIfUnderQuota(esc, cfg.MaxEscalationsPerDay, cfg.MaxEscalationsPerWeek)
	if err != nil {
		if errors.Is(err, persistence.ErrQuotaExceeded) {
			return err
		}
		return logx.Wrap(err, "failed to offer escalation")
	}

	m.recorder.IncEscalationEvent(esc.AgentID, "offered")
	m.logger.Info("escalation %s offered to agent %s (reason: %s)", esc.ID, esc.AgentID, esc.Reason)

	if m.notifier != nil {
		m.notifier.Publish(notify.Event{
			Type:         notify.EventEscalationOffered,
			AgentID:      esc.AgentID,
			EscalationID: esc.ID,
			Message:      esc.Message,
		}, cfg.AvailabilityWindows)
	}
	return nil
}

// Accept transitions a pending escalation to accepted.
func (m *Manager) Accept(escalationID string) error {
	if err := m.ops.AcceptEscalation(escalationID); err != nil {
		return err
	}
	m.recordEvent(escalationID, "accepted")
	return nil
}

// Answer records the creator's answer and ingests it as a canonical answer.
// The status transition and answer fields are written atomically; canonical
// ingestion is idempotent, so replaying a delivered answer is safe.
func (m *Manager) Answer(ctx context.Context, escalationID, answer, layer string) (*persistence.CanonicalAnswer, error) {
	if !persistence.IsValidLayer(layer) {
		return nil, fmt.Errorf("invalid answer layer %q", layer)
	}

	if err := m.ops.AnswerEscalation(escalationID, answer, layer); err != nil {
		// An already-answered escalation is a replay, not a failure, as long
		// as the canonical answer exists.
		if errors.Is(err, persistence.ErrInvalidTransition) {
			if existing, getErr := m.ops.GetCanonicalAnswerByEscalation(escalationID); getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	if esc, getErr := m.ops.GetEscalation(escalationID); getErr == nil {
		m.recorder.IncEscalationEvent(esc.AgentID, "answered")
		// Answer-ready goes to the waiting requester, so availability
		// windows do not apply.
		if m.notifier != nil {
			m.notifier.Publish(notify.Event{
				Type:         notify.EventAnswerReady,
				AgentID:      esc.AgentID,
				EscalationID: esc.ID,
				Message:      esc.Message,
			}, nil)
		}
	}

	ca, created, err := m.canonical.CreateFromEscalation(ctx, escalationID)
	if err != nil {
		// The answer is durably recorded; ingestion can be retried later.
		return nil, logx.Errorf("answer recorded but canonical ingestion failed for escalation %s: %v", escalationID, err)
	}
	if created {
		m.logger.Info("escalation %s answered, canonical answer %s created", escalationID, ca.ID)
	}
	return ca, nil
}

// Decline transitions a pending or accepted escalation to declined. Declined
// escalations do not count against quotas.
func (m *Manager) Decline(escalationID string) error {
	if err := m.ops.DeclineEscalation(escalationID); err != nil {
		return err
	}
	m.recordEvent(escalationID, "declined")
	return nil
}

// Get returns one escalation by ID.
func (m *Manager) Get(escalationID string) (*persistence.Escalation, error) {
	return m.ops.GetEscalation(escalationID)
}

// List returns an agent's escalations, newest first, optionally filtered.
func (m *Manager) List(agentID string, filter *persistence.EscalationFilter) ([]*persistence.Escalation, error) {
	return m.ops.ListEscalations(agentID, filter)
}

// ExpireStale transitions pending escalations older than ttl to expired and
// returns how many were expired. Accepted escalations are exempt: the
// creator has signaled intent to answer.
func (m *Manager) ExpireStale(ttl time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-ttl)
	expired, err := m.ops.ExpireStaleEscalations(cutoff)
	if err != nil {
		return 0, logx.Wrap(err, "failed to expire stale escalations")
	}
	if len(expired) > 0 {
		m.logger.Info("expired %d stale escalations older than %s", len(expired), ttl)
	}
	for _, esc := range expired {
		m.recorder.IncEscalationEvent(esc.AgentID, "expired")
		// Expiry notices are informational and not window-gated.
		if m.notifier != nil {
			m.notifier.Publish(notify.Event{
				Type:         notify.EventEscalationExpired,
				AgentID:      esc.AgentID,
				EscalationID: esc.ID,
				Message:      esc.Message,
			}, nil)
		}
	}
	return int64(len(expired)), nil
}

func (m *Manager) recordEvent(escalationID, event string) {
	esc, err := m.ops.GetEscalation(escalationID)
	if err != nil {
		return
	}
	m.recorder.IncEscalationEvent(esc.AgentID, event)
}
