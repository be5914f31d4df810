// Package canonical maintains the per-agent bank of creator-authored answers
// reusable against similar future questions.
package canonical

import (
	"context"
	"fmt"
	"strings"

	"github.com/aveelabs/orchestrator/pkg/logx"
	"github.com/aveelabs/orchestrator/pkg/persistence"
	"github.com/aveelabs/orchestrator/pkg/scoring"
)

// Store provides similarity lookup and ingestion over the canonical answer
// bank. All persistence goes through DatabaseOperations; the embedder is only
// used when ingesting a new answer.
type Store struct {
	ops      *persistence.DatabaseOperations
	embedder scoring.Embedder
	logger   *logx.Logger
}

// Match is a canonical answer found above the reuse threshold.
type Match struct {
	Answer     *persistence.CanonicalAnswer
	Similarity float64
}

// NewStore creates a canonical answer store.
func NewStore(ops *persistence.DatabaseOperations, embedder scoring.Embedder) *Store {
	return &Store{
		ops:      ops,
		embedder: embedder,
		logger:   logx.NewLogger("canonical"),
	}
}

// FindSimilar returns the best canonical answer visible at the requester's
// layer with cosine similarity at or above the threshold, or nil when none
// qualifies. Answers without a stored embedding are skipped.
func (s *Store) FindSimilar(agentID string, questionEmbedding []float32, layer string, threshold float64) (*Match, error) {
	if len(questionEmbedding) == 0 {
		return nil, nil
	}

	answers, err := s.ops.GetCanonicalAnswersForLayer(agentID, layer)
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical answers: %w", err)
	}

	var best *Match
	for _, ca := range answers {
		if len(ca.Embedding) == 0 {
			continue
		}
		sim := scoring.Cosine(questionEmbedding, ca.Embedding)
		if sim < threshold {
			continue
		}
		if best == nil || sim > best.Similarity {
			best = &Match{Answer: ca, Similarity: sim}
		}
	}
	return best, nil
}

// CorpusEmbeddings returns the embeddings of every canonical answer visible
// at the given layer. The scorer uses this as "everything previously seen".
func (s *Store) CorpusEmbeddings(agentID, layer string) ([][]float32, error) {
	answers, err := s.ops.GetCanonicalAnswersForLayer(agentID, layer)
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical corpus: %w", err)
	}

	corpus := make([][]float32, 0, len(answers))
	for _, ca := range answers {
		if len(ca.Embedding) > 0 {
			corpus = append(corpus, ca.Embedding)
		}
	}
	return corpus, nil
}

// CreateFromEscalation ingests the creator's answer to an escalation as a
// canonical answer. Idempotent: at most one canonical answer exists per
// escalation, replays report created=false and are not an error.
//
// The question pattern is the normalized original message; pattern
// generalization is a future refinement. An embedding failure does not block
// ingestion: the row is stored without a vector and logged, it just will not
// match until re-embedded.
func (s *Store) CreateFromEscalation(ctx context.Context, escalationID string) (*persistence.CanonicalAnswer, bool, error) {
	esc, err := s.ops.GetEscalation(escalationID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load escalation %s: %w", escalationID, err)
	}
	if esc.Status != persistence.StatusAnswered || esc.CreatorAnswer == nil || esc.AnswerLayer == nil {
		return nil, false, fmt.Errorf("escalation %s is not answered", escalationID)
	}

	pattern := NormalizePattern(esc.Message)

	var embedding []float32
	if vec, embedErr := s.embedder.Embed(ctx, pattern); embedErr != nil {
		s.logger.Warn("embedding unavailable, storing canonical answer for escalation %s without vector: %v",
			escalationID, embedErr)
	} else {
		embedding = vec
	}

	ca := &persistence.CanonicalAnswer{
		AgentID:         esc.AgentID,
		EscalationID:    &esc.ID,
		QuestionPattern: pattern,
		Answer:          *esc.CreatorAnswer,
		Layer:           *esc.AnswerLayer,
		Embedding:       embedding,
	}

	created, err := s.ops.InsertCanonicalAnswer(ca)
	if err != nil {
		return nil, false, fmt.Errorf("failed to store canonical answer: %w", err)
	}
	if !created {
		// Already ingested: return the existing row.
		existing, getErr := s.ops.GetCanonicalAnswerByEscalation(escalationID)
		if getErr != nil {
			return nil, false, fmt.Errorf("failed to load existing canonical answer: %w", getErr)
		}
		return existing, false, nil
	}

	s.logger.Info("canonical answer %s created from escalation %s (agent %s, layer %s)",
		ca.ID, escalationID, ca.AgentID, ca.Layer)
	return ca, true, nil
}

// IncrementReuse atomically bumps the reuse counter for a served answer.
func (s *Store) IncrementReuse(canonicalAnswerID string) error {
	return s.ops.IncrementCanonicalReuse(canonicalAnswerID)
}

// NormalizePattern produces the stored question pattern: lowercased,
// whitespace-collapsed, trailing punctuation stripped.
func NormalizePattern(message string) string {
	pattern := strings.ToLower(strings.TrimSpace(message))
	pattern = strings.Join(strings.Fields(pattern), " ")
	return strings.TrimRight(pattern, " ?!.")
}
