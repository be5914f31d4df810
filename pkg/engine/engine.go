// Package engine is the orchestrator façade: one EvaluateMessage call per
// inbound user message, plus the owner-facing escalation and analytics
// operations the API layer exposes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aveelabs/orchestrator/pkg/answer"
	"github.com/aveelabs/orchestrator/pkg/canonical"
	"github.com/aveelabs/orchestrator/pkg/config"
	"github.com/aveelabs/orchestrator/pkg/decisionlog"
	"github.com/aveelabs/orchestrator/pkg/escalation"
	"github.com/aveelabs/orchestrator/pkg/logx"
	"github.com/aveelabs/orchestrator/pkg/metrics"
	"github.com/aveelabs/orchestrator/pkg/persistence"
	"github.com/aveelabs/orchestrator/pkg/router"
	"github.com/aveelabs/orchestrator/pkg/scoring"
)

// MessageRequest is one inbound user message to evaluate.
//
//nolint:govet // struct alignment optimization not critical for this type
type MessageRequest struct {
	AgentID        string `json:"agent_id"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
	// RequesterTier defaults to free when empty.
	RequesterTier string `json:"requester_tier,omitempty"`
	// RequesterLayer bounds canonical answer visibility; defaults to public.
	RequesterLayer string `json:"requester_layer,omitempty"`
	// Persona is the agent's voice description for generated replies.
	Persona string `json:"persona,omitempty"`
	// ContextSummary is optional recent-conversation context, carried into
	// escalations so the creator sees what led up to the question.
	ContextSummary string `json:"context_summary,omitempty"`
}

// DecisionResult is the outcome of one evaluation.
//
//nolint:govet // struct alignment optimization not critical for this type
type DecisionResult struct {
	DecisionID string         `json:"decision_id"`
	Path       string         `json:"path"`
	Scores     scoring.Scores `json:"scores"`
	Degraded   bool           `json:"degraded,omitempty"`
	// Reply is the user-facing text for every path except D, where the user
	// gets a holding reply while the creator is asked.
	Reply string `json:"reply"`
	// EscalationID is set on path D.
	EscalationID string `json:"escalation_id,omitempty"`
	// Reason is set on path D: novel, strategic, or complex.
	Reason string `json:"reason,omitempty"`
	// DeclineCause is set on paths E and F.
	DeclineCause string `json:"decline_cause,omitempty"`
	// CanonicalAnswerID is set on path C.
	CanonicalAnswerID string `json:"canonical_answer_id,omitempty"`
}

// ErrInvalidArgument marks caller mistakes (missing fields, out-of-range
// values) so the API layer can answer 400 instead of 500.
var ErrInvalidArgument = errors.New("invalid argument")

const holdingReply = "That's one I'd like to answer personally. Give me a little time and I'll get back to you."

const declineReply = "I can't give that the attention it deserves right now, but keep the questions coming."

const blockedReply = "That's not something I talk about here. Happy to chat about anything else though!"

// Engine wires scoring, routing, escalation, and the decision log together.
type Engine struct {
	cfg         *config.Config
	ops         *persistence.DatabaseOperations
	scorer      *scoring.Scorer
	canonical   *canonical.Store
	escalations *escalation.Manager
	decisions   *decisionlog.Log
	responder   answer.Responder
	fallback    answer.Responder
	recorder    metrics.Recorder
	logger      *logx.Logger

	// Per-agent locks serialize the quota-read/route/offer sequence so the
	// read-side D/E pick stays consistent under concurrent messages. The
	// guarded insert in persistence remains the hard quota boundary.
	agentLocks sync.Map // agentID -> *sync.Mutex
}

// New creates an engine. The responder may be nil, in which case all replies
// come from the static template responder.
func New(
	cfg *config.Config,
	ops *persistence.DatabaseOperations,
	scorer *scoring.Scorer,
	store *canonical.Store,
	manager *escalation.Manager,
	decisions *decisionlog.Log,
	responder answer.Responder,
	recorder metrics.Recorder,
) *Engine {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	fallback := answer.NewTemplateResponder()
	if responder == nil {
		responder = fallback
	}
	return &Engine{
		cfg:         cfg,
		ops:         ops,
		scorer:      scorer,
		canonical:   store,
		escalations: manager,
		decisions:   decisions,
		responder:   responder,
		fallback:    fallback,
		recorder:    recorder,
		logger:      logx.NewLogger("engine"),
	}
}

// EvaluateMessage routes one user message through scoring and the decision
// paths. Exactly one decision record is written per successful evaluation.
func (e *Engine) EvaluateMessage(ctx context.Context, req *MessageRequest) (*DecisionResult, error) {
	if req.AgentID == "" || req.Message == "" {
		return nil, fmt.Errorf("agent_id and message are required: %w", ErrInvalidArgument)
	}
	if req.RequesterTier == "" {
		req.RequesterTier = persistence.TierFree
	}
	if req.RequesterLayer == "" {
		req.RequesterLayer = persistence.LayerPublic
	}
	if !persistence.IsValidLayer(req.RequesterLayer) {
		return nil, fmt.Errorf("invalid requester layer %q: %w", req.RequesterLayer, ErrInvalidArgument)
	}

	agentCfg, err := e.effectiveConfig(req.AgentID)
	if err != nil {
		return nil, err
	}

	scoreResult := e.score(ctx, req)

	match, err := e.canonical.FindSimilar(req.AgentID, scoreResult.Embedding,
		req.RequesterLayer, e.cfg.Router.ReuseSimilarityThreshold)
	if err != nil {
		// Reuse lookup failure falls through to normal routing.
		e.logger.Warn("canonical lookup failed for agent %s: %v", req.AgentID, err)
		match = nil
	}

	outcome, esc, err := e.route(req, agentCfg, scoreResult, match)
	if err != nil {
		return nil, err
	}

	result := &DecisionResult{
		Path:     outcome.Path,
		Scores:   scoreResult.Scores,
		Degraded: scoreResult.Degraded,
		Reason:   outcome.Reason,
	}

	switch outcome.Path {
	case persistence.PathAutoAnswer:
		result.Reply = e.respond(ctx, req, answer.ModeAnswer)
	case persistence.PathClarify:
		result.Reply = e.respond(ctx, req, answer.ModeClarify)
	case persistence.PathCanonicalReuse:
		result.Reply = match.Answer.Answer
		result.CanonicalAnswerID = match.Answer.ID
		if err := e.canonical.IncrementReuse(match.Answer.ID); err != nil {
			e.logger.Warn("failed to bump reuse count for %s: %v", match.Answer.ID, err)
		}
		e.recorder.IncCanonicalReuse(req.AgentID)
	case persistence.PathEscalate:
		result.EscalationID = esc.ID
		result.Reply = holdingReply
	case persistence.PathDecline:
		result.Reply = declineReply
		result.DeclineCause = outcome.DeclineCause
	case persistence.PathPolicyBlock:
		result.Reply = blockedReply
		result.DeclineCause = outcome.DeclineCause
	}

	decision := &persistence.Decision{
		AgentID:        req.AgentID,
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Message:        req.Message,
		Path:           outcome.Path,
		Confidence:     scoreResult.Scores.Confidence,
		Novelty:        scoreResult.Scores.Novelty,
		Complexity:     scoreResult.Scores.Complexity,
	}
	if result.CanonicalAnswerID != "" {
		decision.CanonicalAnswerID = &result.CanonicalAnswerID
	}
	if err := e.decisions.Record(decision); err != nil {
		return nil, err
	}
	result.DecisionID = decision.ID

	e.logger.Debug("agent %s routed path %s (conf=%.2f nov=%.2f cplx=%.2f degraded=%v)",
		req.AgentID, outcome.Path, scoreResult.Scores.Confidence,
		scoreResult.Scores.Novelty, scoreResult.Scores.Complexity, scoreResult.Degraded)
	return result, nil
}

// effectiveConfig returns the agent's stored config, or service defaults with
// escalation disabled when no row exists. A missing config must never grant
// escalation capacity the owner did not ask for.
func (e *Engine) effectiveConfig(agentID string) (*persistence.AgentConfig, error) {
	cfg, err := e.ops.GetAgentConfig(agentID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, persistence.ErrConfigMissing) {
		return nil, err
	}
	return &persistence.AgentConfig{
		AgentID:               agentID,
		EscalationEnabled:     false,
		MaxEscalationsPerDay:  e.cfg.Router.DefaultMaxEscalationsDay,
		MaxEscalationsPerWeek: e.cfg.Router.DefaultMaxEscalationsWeek,
		AutoAnswerThreshold:   e.cfg.Router.DefaultConfidenceThreshold,
		ClarificationEnabled:  true,
	}, nil
}

// score runs the scoring pass under the configured deadline.
func (e *Engine) score(ctx context.Context, req *MessageRequest) scoring.Result {
	scoreCtx, cancel := context.WithTimeout(ctx, e.cfg.ScoringTimeout())
	defer cancel()

	corpus, err := e.canonical.CorpusEmbeddings(req.AgentID, req.RequesterLayer)
	if err != nil {
		e.logger.Warn("corpus load failed for agent %s, scoring against empty corpus: %v", req.AgentID, err)
		corpus = nil
	}

	start := time.Now()
	result := e.scorer.Score(scoreCtx, req.Message, corpus)
	e.recorder.ObserveScoring(e.cfg.Scoring.Provider, result.Degraded, time.Since(start))
	return result
}

// route holds the per-agent lock across the quota read, the routing decision,
// and the escalation offer. On a lost quota race the guarded insert downgrades
// the outcome from D to E.
func (e *Engine) route(req *MessageRequest, agentCfg *persistence.AgentConfig, scoreResult scoring.Result, match *canonical.Match) (router.Outcome, *persistence.Escalation, error) {
	mu := e.lockFor(req.AgentID)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UTC()
	dayCount, err := e.ops.CountActiveEscalations(req.AgentID, now.Add(-24*time.Hour))
	if err != nil {
		return router.Outcome{}, nil, err
	}
	weekCount, err := e.ops.CountActiveEscalations(req.AgentID, now.Add(-7*24*time.Hour))
	if err != nil {
		return router.Outcome{}, nil, err
	}

	outcome := router.Route(&router.Input{
		Message:           req.Message,
		RequesterTier:     req.RequesterTier,
		Scores:            scoreResult.Scores,
		Degraded:          scoreResult.Degraded,
		HasCanonicalMatch: match != nil,
		Config:            agentCfg,
		Quota:             router.QuotaState{DayCount: dayCount, WeekCount: weekCount},
		ClarifyBandWidth:  e.cfg.Router.ClarifyBandWidth,
	})

	if outcome.Path != persistence.PathEscalate {
		return outcome, nil, nil
	}

	esc := &persistence.Escalation{
		AgentID:        req.AgentID,
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Message:        req.Message,
		ContextSummary: req.ContextSummary,
		Reason:         outcome.Reason,
	}
	if err := e.escalations.Offer(esc, agentCfg); err != nil {
		if errors.Is(err, persistence.ErrQuotaExceeded) {
			return router.Outcome{
				Path:         persistence.PathDecline,
				DeclineCause: router.CauseQuotaExhausted,
			}, nil, nil
		}
		return router.Outcome{}, nil, err
	}
	return outcome, esc, nil
}

// respond generates user-facing text, falling back to the template responder
// so a provider outage never turns into a routing failure.
func (e *Engine) respond(ctx context.Context, req *MessageRequest, mode answer.Mode) string {
	areq := &answer.Request{
		Mode:           mode,
		AgentID:        req.AgentID,
		Persona:        req.Persona,
		Message:        req.Message,
		ContextSummary: req.ContextSummary,
	}
	reply, err := e.responder.Respond(ctx, areq)
	if err == nil {
		return reply
	}
	e.logger.Warn("responder failed for agent %s, using template fallback: %v", req.AgentID, err)
	reply, _ = e.fallback.Respond(ctx, areq)
	return reply
}

func (e *Engine) lockFor(agentID string) *sync.Mutex {
	if mu, ok := e.agentLocks.Load(agentID); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := e.agentLocks.LoadOrStore(agentID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// --- Owner operations ---

// AcceptEscalation marks a pending escalation accepted by the creator.
func (e *Engine) AcceptEscalation(escalationID string) error {
	return e.escalations.Accept(escalationID)
}

// AnswerEscalation records the creator's answer and returns the canonical
// answer ingested from it.
func (e *Engine) AnswerEscalation(ctx context.Context, escalationID, answerText, layer string) (*persistence.CanonicalAnswer, error) {
	return e.escalations.Answer(ctx, escalationID, answerText, layer)
}

// DeclineEscalation marks an escalation declined, freeing its quota slot.
func (e *Engine) DeclineEscalation(escalationID string) error {
	return e.escalations.Decline(escalationID)
}

// GetEscalation returns one escalation by ID.
func (e *Engine) GetEscalation(escalationID string) (*persistence.Escalation, error) {
	return e.escalations.Get(escalationID)
}

// ListEscalations returns an agent's escalation queue, newest first.
func (e *Engine) ListEscalations(agentID string, filter *persistence.EscalationFilter) ([]*persistence.Escalation, error) {
	return e.escalations.List(agentID, filter)
}

// GetAgentConfig returns the stored config for an agent.
func (e *Engine) GetAgentConfig(agentID string) (*persistence.AgentConfig, error) {
	return e.ops.GetAgentConfig(agentID)
}

// UpdateAgentConfig validates and stores an agent's config.
func (e *Engine) UpdateAgentConfig(cfg *persistence.AgentConfig) error {
	if cfg.AgentID == "" {
		return fmt.Errorf("agent_id is required: %w", ErrInvalidArgument)
	}
	if cfg.AutoAnswerThreshold < 0 || cfg.AutoAnswerThreshold > 1 {
		return fmt.Errorf("auto_answer_threshold must be in [0,1], got %f: %w", cfg.AutoAnswerThreshold, ErrInvalidArgument)
	}
	if cfg.MaxEscalationsPerDay < 0 || cfg.MaxEscalationsPerWeek < 0 {
		return fmt.Errorf("escalation quotas must be non-negative: %w", ErrInvalidArgument)
	}
	if cfg.MaxEscalationsPerWeek < cfg.MaxEscalationsPerDay {
		return fmt.Errorf("weekly quota %d below daily quota %d: %w", cfg.MaxEscalationsPerWeek, cfg.MaxEscalationsPerDay, ErrInvalidArgument)
	}
	for _, tier := range cfg.AllowedTiers {
		switch tier {
		case persistence.TierFree, persistence.TierFollower, persistence.TierPaying:
		default:
			return fmt.Errorf("unknown tier %q: %w", tier, ErrInvalidArgument)
		}
	}
	return e.ops.UpsertAgentConfig(cfg)
}

// Metrics aggregates the decision log for one agent since the given time.
func (e *Engine) Metrics(agentID string, since time.Time) (*persistence.DecisionMetrics, error) {
	return e.decisions.Metrics(agentID, since)
}

// RecentDecisions returns the newest decisions for one agent.
func (e *Engine) RecentDecisions(agentID string, limit int) ([]*persistence.Decision, error) {
	return e.decisions.Recent(agentID, limit)
}

// ExpireStale expires pending escalations older than the configured TTL.
// The daemon calls this on a ticker.
func (e *Engine) ExpireStale() (int64, error) {
	return e.escalations.ExpireStale(e.cfg.PendingTTL())
}
