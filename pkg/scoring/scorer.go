// Package scoring computes confidence, novelty, and complexity scores for an
// inbound message against an agent's existing knowledge.
package scoring

import (
	"context"
	"math"
	"strings"

	"github.com/tiktoken-go/tokenizer"
	"github.com/viterin/vek/vek32"

	"github.com/aveelabs/orchestrator/pkg/logx"
)

// Embedder generates an embedding vector for a text. Implementations wrap a
// remote or local embedding backend and are the only source of I/O latency in
// this package.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Scores are the three routing inputs, each in [0,1].
type Scores struct {
	Confidence float64 `json:"confidence"`
	Novelty    float64 `json:"novelty"`
	Complexity float64 `json:"complexity"`
}

// Result carries the scores plus the message embedding so callers can reuse
// it for canonical-answer similarity search without a second backend call.
type Result struct {
	Scores    Scores
	Embedding []float32 // nil when the backend was unavailable
	Degraded  bool      // true when conservative defaults were applied
}

// Judgment markers push complexity up: questions asking for opinion or
// strategy rather than fact lookup.
//
//nolint:gochecknoglobals // Static keyword table
var judgmentMarkers = []string{
	"think", "opinion", "feel", "believe", "should i", "would you",
	"recommend", "advice", "best way", "why do you", "strategy",
}

// Complexity heuristic weights. Tuned so a short factual question lands well
// under 0.5 and a long multi-part judgment question lands above 0.7.
const (
	lengthWeight    = 0.4
	multipartWeight = 0.3
	judgmentWeight  = 0.3

	// Token count at which the length component saturates.
	lengthSaturationTokens = 200
)

// Scorer computes Scores. Pure given identical inputs: the same message and
// corpus always produce the same scores (embedding backends are expected to
// be deterministic for identical input).
type Scorer struct {
	embedder Embedder
	codec    tokenizer.Codec
	logger   *logx.Logger
}

// NewScorer creates a scorer over the given embedding backend.
func NewScorer(embedder Embedder) (*Scorer, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, logx.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &Scorer{
		embedder: embedder,
		codec:    codec,
		logger:   logx.NewLogger("scoring"),
	}, nil
}

// Score evaluates a message against the embeddings of everything the agent
// has previously seen (canonical answers and indexed knowledge).
//
// Failure mode: if the embedding backend errors or the context deadline
// expires, Score returns conservative defaults (confidence=0, novelty=1)
// with Degraded=true instead of an error, so the router fails safe toward
// escalation. Complexity is text-local and survives backend loss.
func (s *Scorer) Score(ctx context.Context, message string, corpus [][]float32) Result {
	complexity := s.complexity(message)

	embedding, err := s.embedder.Embed(ctx, message)
	if err != nil {
		s.logger.Warn("embedding backend unavailable, using conservative scores: %v", err)
		return Result{
			Scores:   Scores{Confidence: 0, Novelty: 1, Complexity: complexity},
			Degraded: true,
		}
	}

	maxSim := 0.0
	for _, prior := range corpus {
		if sim := Cosine(embedding, prior); sim > maxSim {
			maxSim = sim
		}
	}

	return Result{
		Scores: Scores{
			Confidence: clamp01(maxSim),
			Novelty:    clamp01(1 - maxSim),
			Complexity: complexity,
		},
		Embedding: embedding,
	}
}

// complexity is a deterministic text-local heuristic over message length,
// multi-part structure, and judgment markers.
func (s *Scorer) complexity(message string) float64 {
	tokens := s.countTokens(message)
	lengthScore := math.Min(float64(tokens)/lengthSaturationTokens, 1)

	multipartScore := 0.0
	questionMarks := strings.Count(message, "?")
	if questionMarks > 1 {
		multipartScore = math.Min(float64(questionMarks-1)/2, 1)
	}

	judgmentScore := 0.0
	lower := strings.ToLower(message)
	for _, marker := range judgmentMarkers {
		if strings.Contains(lower, marker) {
			judgmentScore = 1
			break
		}
	}

	return clamp01(lengthWeight*lengthScore + multipartWeight*multipartScore + judgmentWeight*judgmentScore)
}

func (s *Scorer) countTokens(text string) int {
	if s.codec == nil {
		return len(text) / 4 // 4 chars ≈ 1 token
	}
	count, err := s.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// empty or dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	normA := math.Sqrt(float64(vek32.Dot(a, a)))
	normB := math.Sqrt(float64(vek32.Dot(b, b)))
	if normA == 0 || normB == 0 {
		return 0
	}
	return float64(vek32.Dot(a, b)) / (normA * normB)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
