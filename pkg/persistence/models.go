package persistence

import (
	"time"

	"github.com/google/uuid"
)

// Access layer constants. Answers are scoped to graduated trust tiers.
const (
	LayerPublic   = "public"
	LayerFriends  = "friends"
	LayerIntimate = "intimate"
)

// ValidLayers returns all valid access layers.
func ValidLayers() []string {
	return []string{LayerPublic, LayerFriends, LayerIntimate}
}

// IsValidLayer checks if a layer string is valid.
func IsValidLayer(layer string) bool {
	for _, l := range ValidLayers() {
		if layer == l {
			return true
		}
	}
	return false
}

// Requester tier constants.
const (
	TierFree     = "free"
	TierFollower = "follower"
	TierPaying   = "paying"
)

// Escalation status constants. Transitions are one-directional:
// pending -> {accepted, declined, expired}, {pending, accepted} -> answered.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusAnswered = "answered"
	StatusDeclined = "declined"
	StatusExpired  = "expired"
)

// ValidStatuses returns all valid escalation statuses.
func ValidStatuses() []string {
	return []string{StatusPending, StatusAccepted, StatusAnswered, StatusDeclined, StatusExpired}
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if status == s {
			return true
		}
	}
	return false
}

// CanTransition reports whether the escalation lifecycle permits from -> to.
func CanTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusAccepted || to == StatusDeclined || to == StatusExpired || to == StatusAnswered
	case StatusAccepted:
		return to == StatusAnswered || to == StatusDeclined
	default:
		// answered, declined, expired are terminal
		return false
	}
}

// Escalation reason constants.
const (
	ReasonNovel     = "novel"
	ReasonStrategic = "strategic"
	ReasonComplex   = "complex"
)

// Decision path constants. Each evaluated message resolves to exactly one.
const (
	PathAutoAnswer     = "A" // confidence above threshold, answered directly
	PathClarify        = "B" // ambiguous mid-band, ask a follow-up
	PathCanonicalReuse = "C" // near-duplicate canonical answer served
	PathEscalate       = "D" // offered to the human creator
	PathDecline        = "E" // escalation quota exhausted
	PathPolicyBlock    = "F" // blocked topic or disallowed tier
)

// AgentConfig is the per-agent orchestrator configuration row.
// One row per agent; created with defaults on first use and mutated only by
// the agent owner.
//
//nolint:govet // struct alignment optimization not critical for this type
type AgentConfig struct {
	AgentID               string               `json:"agent_id"`
	EscalationEnabled     bool                 `json:"escalation_enabled"`
	MaxEscalationsPerDay  int                  `json:"max_escalations_per_day"`
	MaxEscalationsPerWeek int                  `json:"max_escalations_per_week"`
	AutoAnswerThreshold   float64              `json:"auto_answer_threshold"` // [0,1]
	ClarificationEnabled  bool                 `json:"clarification_enabled"`
	BlockedTopics         []string             `json:"blocked_topics"`
	AllowedTiers          []string             `json:"allowed_tiers"`
	AvailabilityWindows   []AvailabilityWindow `json:"availability_windows"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

// AvailabilityWindow is a daily window (UTC, "HH:MM") during which the agent
// owner wants to receive escalation notifications.
type AvailabilityWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Covers reports whether t falls inside the window (UTC clock time).
func (w AvailabilityWindow) Covers(t time.Time) bool {
	clock := t.UTC().Format("15:04")
	if w.Start <= w.End {
		return clock >= w.Start && clock < w.End
	}
	// Window wraps midnight.
	return clock >= w.Start || clock < w.End
}

// Escalation is a question routed to the human creator for an answer.
//
//nolint:govet // struct alignment optimization not critical for this type
type Escalation struct {
	ID             string     `json:"id"`
	AgentID        string     `json:"agent_id"`
	ConversationID string     `json:"conversation_id"`
	UserID         string     `json:"user_id"`
	Message        string     `json:"message"`
	ContextSummary string     `json:"context_summary,omitempty"`
	Reason         string     `json:"reason"` // novel | strategic | complex
	Status         string     `json:"status"`
	OfferedAt      time.Time  `json:"offered_at"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	AnsweredAt     *time.Time `json:"answered_at,omitempty"`
	CreatorAnswer  *string    `json:"creator_answer,omitempty"`
	AnswerLayer    *string    `json:"answer_layer,omitempty"`
}

// Decision is one append-only routing record per evaluated message.
//
//nolint:govet // struct alignment optimization not critical for this type
type Decision struct {
	ID                string    `json:"id"`
	AgentID           string    `json:"agent_id"`
	ConversationID    string    `json:"conversation_id"`
	UserID            string    `json:"user_id"`
	Message           string    `json:"message"`
	Path              string    `json:"path"` // A..F
	Confidence        float64   `json:"confidence"`
	Novelty           float64   `json:"novelty"`
	Complexity        float64   `json:"complexity"`
	CanonicalAnswerID *string   `json:"canonical_answer_id,omitempty"` // set for path C
	CreatedAt         time.Time `json:"created_at"`
}

// CanonicalAnswer is a creator-authored answer saved for reuse against
// similar future questions. At most one exists per source escalation.
//
//nolint:govet // struct alignment optimization not critical for this type
type CanonicalAnswer struct {
	ID              string    `json:"id"`
	AgentID         string    `json:"agent_id"`
	EscalationID    *string   `json:"escalation_id,omitempty"`
	QuestionPattern string    `json:"question_pattern"`
	Answer          string    `json:"answer"`
	Layer           string    `json:"layer"`
	ReuseCount      int64     `json:"reuse_count"`
	Embedding       []float32 `json:"-"` // similarity vector, stored as BLOB
	CreatedAt       time.Time `json:"created_at"`
}

// EscalationFilter represents criteria for querying escalations.
type EscalationFilter struct {
	Status   *string  `json:"status,omitempty"`
	Statuses []string `json:"statuses,omitempty"` // for IN queries
	Limit    int      `json:"limit,omitempty"`
}

// DecisionMetrics aggregates the decision log over a trailing window.
type DecisionMetrics struct {
	TotalMessages       int64   `json:"total_messages"`
	AutoAnsweredCount   int64   `json:"auto_answered_count"`
	EscalationsOffered  int64   `json:"escalations_offered"`
	EscalationsAnswered int64   `json:"escalations_answered"`
	CanonicalReuseCount int64   `json:"canonical_reuse_count"`
	AvgConfidence       float64 `json:"avg_confidence"`
	AvgNovelty          float64 `json:"avg_novelty"`
	AutoAnswerRate      float64 `json:"auto_answer_rate"`
}

// GenerateID generates a new UUID for escalations, decisions, and canonical
// answers.
func GenerateID() string {
	return uuid.New().String()
}
