// Package router maps scores, agent config, and quota state to one of six
// decision paths. Route is a pure function: no I/O, no side effects,
// deterministic for identical inputs.
package router

import (
	"strings"

	"github.com/aveelabs/orchestrator/pkg/persistence"
	"github.com/aveelabs/orchestrator/pkg/scoring"
)

// Decline cause constants, surfaced to the caller for paths E and F.
const (
	CauseTopicBlocked       = "topic_blocked"
	CauseTierNotAllowed     = "tier_not_allowed"
	CauseQuotaExhausted     = "quota_exhausted"
	CauseEscalationDisabled = "escalation_disabled"
)

// QuotaState is the agent's current rolling escalation usage, read before
// routing. The storage layer re-checks atomically on insert; this read-side
// check only picks between paths D and E.
type QuotaState struct {
	DayCount  int
	WeekCount int
}

// Input bundles everything a single routing decision depends on.
//
//nolint:govet // struct alignment optimization not critical for this type
type Input struct {
	Message       string
	RequesterTier string
	Scores        scoring.Scores
	// Degraded marks conservative fallback scores from a failed or timed-out
	// scoring pass. Degraded evaluations never auto-answer.
	Degraded bool
	// HasCanonicalMatch is true when a canonical answer sits at or above the
	// reuse similarity threshold for this message and requester layer.
	HasCanonicalMatch bool
	Config            *persistence.AgentConfig
	Quota             QuotaState
	// ClarifyBandWidth defines path B's band below the auto-answer threshold.
	ClarifyBandWidth float64
}

// Outcome is the routing verdict for one message.
type Outcome struct {
	Path string
	// Reason is set for path D: which score dominated the escalation.
	Reason string
	// DeclineCause is set for paths E and F.
	DeclineCause string
}

// Strategic topics route escalations as "strategic" rather than by score.
// These mirror the question categories creators flag as commercially
// sensitive.
//
//nolint:gochecknoglobals // Static keyword table
var strategicMarkers = []string{
	"pricing", "price", "partnership", "sponsorship", "contract",
	"deal", "collab", "business plan", "investment",
}

// Route evaluates a message. The evaluation order is fixed:
//
//	F (policy)  hard precedence over everything else
//	C (reuse)   a canonical match wins over fresh generation
//	A (auto)    confidence at or above the agent's threshold
//	B (clarify) ambiguous mid-band just below the threshold
//	D/E         escalate if quota allows, decline otherwise
func Route(in *Input) Outcome {
	cfg := in.Config

	// F: policy block, regardless of scores.
	if cause := policyBlock(in); cause != "" {
		return Outcome{Path: persistence.PathPolicyBlock, DeclineCause: cause}
	}

	// C: canonical reuse wins over auto-answer even when confidence alone
	// would qualify for A.
	if in.HasCanonicalMatch {
		return Outcome{Path: persistence.PathCanonicalReuse}
	}

	// A: auto-answer. Degraded scores never qualify; a defaulted confidence
	// must not masquerade as a real one.
	if !in.Degraded && in.Scores.Confidence >= cfg.AutoAnswerThreshold {
		return Outcome{Path: persistence.PathAutoAnswer}
	}

	// B: ambiguous mid-band just below the threshold.
	if cfg.ClarificationEnabled && !in.Degraded &&
		in.Scores.Confidence >= cfg.AutoAnswerThreshold-in.ClarifyBandWidth &&
		in.Scores.Confidence < cfg.AutoAnswerThreshold {
		return Outcome{Path: persistence.PathClarify}
	}

	// D/E: escalation, gated on the enable flag and rolling quotas.
	if !cfg.EscalationEnabled {
		return Outcome{Path: persistence.PathDecline, DeclineCause: CauseEscalationDisabled}
	}
	if in.Quota.DayCount >= cfg.MaxEscalationsPerDay || in.Quota.WeekCount >= cfg.MaxEscalationsPerWeek {
		return Outcome{Path: persistence.PathDecline, DeclineCause: CauseQuotaExhausted}
	}

	return Outcome{Path: persistence.PathEscalate, Reason: EscalationReason(in)}
}

// policyBlock returns a decline cause when the requester tier is disallowed
// or the message touches a blocked topic, empty string otherwise.
func policyBlock(in *Input) string {
	cfg := in.Config

	// An empty allowed list means all tiers are welcome.
	if len(cfg.AllowedTiers) > 0 {
		allowed := false
		for _, tier := range cfg.AllowedTiers {
			if tier == in.RequesterTier {
				allowed = true
				break
			}
		}
		if !allowed {
			return CauseTierNotAllowed
		}
	}

	lower := strings.ToLower(in.Message)
	for _, topic := range cfg.BlockedTopics {
		if topic != "" && strings.Contains(lower, strings.ToLower(topic)) {
			return CauseTopicBlocked
		}
	}
	return ""
}

// EscalationReason derives why a message escalates from which signal
// dominated: strategic topics first, then novelty vs complexity.
func EscalationReason(in *Input) string {
	lower := strings.ToLower(in.Message)
	for _, marker := range strategicMarkers {
		if strings.Contains(lower, marker) {
			return persistence.ReasonStrategic
		}
	}
	if in.Scores.Complexity > in.Scores.Novelty {
		return persistence.ReasonComplex
	}
	return persistence.ReasonNovel
}
