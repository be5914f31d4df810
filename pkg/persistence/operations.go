package persistence

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Storage-level sentinel errors. Callers match with errors.Is.
var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConfigMissing is returned when an agent has no stored config row.
	ErrConfigMissing = errors.New("agent config missing")
	// ErrQuotaExceeded is returned when a conditional escalation insert is
	// rejected by the rolling day/week quota.
	ErrQuotaExceeded = errors.New("escalation quota exceeded")
	// ErrInvalidTransition is returned when a status change violates the
	// one-directional escalation lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// activeStatuses are the escalation states counted toward quota.
// Declined and expired requests do not consume quota.
const activeStatuses = "'pending','accepted','answered'"

// DatabaseOperations provides methods for all orchestrator database operations.
type DatabaseOperations struct {
	db *sql.DB
}

// NewDatabaseOperations creates a new DatabaseOperations instance.
func NewDatabaseOperations(db *sql.DB) *DatabaseOperations {
	return &DatabaseOperations{db: db}
}

// DB exposes the underlying handle for callers that need raw queries (tests).
func (ops *DatabaseOperations) DB() *sql.DB {
	return ops.db
}

// --- Agent config ---

// GetAgentConfig returns the stored config for an agent, or ErrConfigMissing.
func (ops *DatabaseOperations) GetAgentConfig(agentID string) (*AgentConfig, error) {
	row := ops.db.QueryRow(`
		SELECT agent_id, escalation_enabled, max_escalations_per_day, max_escalations_per_week,
		       auto_answer_threshold, clarification_enabled, blocked_topics, allowed_tiers,
		       availability_windows, created_at, updated_at
		FROM agent_configs WHERE agent_id = ?
	`, agentID)

	cfg := &AgentConfig{}
	var blockedJSON, tiersJSON, windowsJSON string
	err := row.Scan(
		&cfg.AgentID, &cfg.EscalationEnabled, &cfg.MaxEscalationsPerDay, &cfg.MaxEscalationsPerWeek,
		&cfg.AutoAnswerThreshold, &cfg.ClarificationEnabled, &blockedJSON, &tiersJSON,
		&windowsJSON, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", agentID, ErrConfigMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config for agent %s: %w", agentID, err)
	}

	if err := json.Unmarshal([]byte(blockedJSON), &cfg.BlockedTopics); err != nil {
		return nil, fmt.Errorf("failed to decode blocked_topics for agent %s: %w", agentID, err)
	}
	if err := json.Unmarshal([]byte(tiersJSON), &cfg.AllowedTiers); err != nil {
		return nil, fmt.Errorf("failed to decode allowed_tiers for agent %s: %w", agentID, err)
	}
	if err := json.Unmarshal([]byte(windowsJSON), &cfg.AvailabilityWindows); err != nil {
		return nil, fmt.Errorf("failed to decode availability_windows for agent %s: %w", agentID, err)
	}
	return cfg, nil
}

// UpsertAgentConfig inserts or updates an agent's config row.
func (ops *DatabaseOperations) UpsertAgentConfig(cfg *AgentConfig) error {
	blockedJSON, err := json.Marshal(emptyIfNil(cfg.BlockedTopics))
	if err != nil {
		return fmt.Errorf("failed to encode blocked_topics: %w", err)
	}
	tiersJSON, err := json.Marshal(emptyIfNil(cfg.AllowedTiers))
	if err != nil {
		return fmt.Errorf("failed to encode allowed_tiers: %w", err)
	}
	windows := cfg.AvailabilityWindows
	if windows == nil {
		windows = []AvailabilityWindow{}
	}
	windowsJSON, err := json.Marshal(windows)
	if err != nil {
		return fmt.Errorf("failed to encode availability_windows: %w", err)
	}

	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	_, err = ops.db.Exec(`
		INSERT INTO agent_configs (
			agent_id, escalation_enabled, max_escalations_per_day, max_escalations_per_week,
			auto_answer_threshold, clarification_enabled, blocked_topics, allowed_tiers,
			availability_windows, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			escalation_enabled = excluded.escalation_enabled,
			max_escalations_per_day = excluded.max_escalations_per_day,
			max_escalations_per_week = excluded.max_escalations_per_week,
			auto_answer_threshold = excluded.auto_answer_threshold,
			clarification_enabled = excluded.clarification_enabled,
			blocked_topics = excluded.blocked_topics,
			allowed_tiers = excluded.allowed_tiers,
			availability_windows = excluded.availability_windows,
			updated_at = excluded.updated_at
	`, cfg.AgentID, cfg.EscalationEnabled, cfg.MaxEscalationsPerDay, cfg.MaxEscalationsPerWeek,
		cfg.AutoAnswerThreshold, cfg.ClarificationEnabled, string(blockedJSON), string(tiersJSON),
		string(windowsJSON), cfg.CreatedAt, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert config for agent %s: %w", cfg.AgentID, err)
	}
	return nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// --- Escalations ---

// CountActiveEscalations returns the number of quota-consuming escalations
// offered for the agent since the given time.
func (ops *DatabaseOperations) CountActiveEscalations(agentID string, since time.Time) (int, error) {
	var count int
	err := ops.db.QueryRow(fmt.Sprintf(`
		SELECT COUNT(*) FROM escalations
		WHERE agent_id = ? AND status IN (%s) AND offered_at > ?
	`, activeStatuses), agentID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count escalations for agent %s: %w", agentID, err)
	}
	return count, nil
}

// InsertEscalationIfUnderQuota atomically inserts a pending escalation only if
// the agent's rolling 24h and 7d quotas still have room. The quota check and
// insert are a single statement, so two concurrent offers cannot both pass a
// quota that only admits one of them.
func (ops *DatabaseOperations) InsertEscalationIfUnderQuota(esc *Escalation, maxPerDay, maxPerWeek int) error {
	if esc.ID == "" {
		esc.ID = GenerateID()
	}
	if esc.OfferedAt.IsZero() {
		esc.OfferedAt = time.Now().UTC()
	}
	esc.Status = StatusPending

	dayCutoff := esc.OfferedAt.Add(-24 * time.Hour)
	weekCutoff := esc.OfferedAt.Add(-7 * 24 * time.Hour)

	query := fmt.Sprintf(`
		INSERT INTO escalations (
			id, agent_id, conversation_id, user_id, message, context_summary,
			reason, status, offered_at
		)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE (SELECT COUNT(*) FROM escalations
		       WHERE agent_id = ? AND status IN (%s) AND offered_at > ?) < ?
		  AND (SELECT COUNT(*) FROM escalations
		       WHERE agent_id = ? AND status IN (%s) AND offered_at > ?) < ?
	`, activeStatuses, activeStatuses)

	result, err := ops.db.Exec(query,
		esc.ID, esc.AgentID, esc.ConversationID, esc.UserID, esc.Message, esc.ContextSummary,
		esc.Reason, esc.Status, esc.OfferedAt,
		esc.AgentID, dayCutoff, maxPerDay,
		esc.AgentID, weekCutoff, maxPerWeek,
	)
	if err != nil {
		return fmt.Errorf("failed to insert escalation for agent %s: %w", esc.AgentID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("agent %s: %w", esc.AgentID, ErrQuotaExceeded)
	}
	return nil
}

// GetEscalation returns one escalation by ID, or ErrNotFound.
func (ops *DatabaseOperations) GetEscalation(id string) (*Escalation, error) {
	row := ops.db.QueryRow(`
		SELECT id, agent_id, conversation_id, user_id, message, context_summary,
		       reason, status, offered_at, accepted_at, answered_at, creator_answer, answer_layer
		FROM escalations WHERE id = ?
	`, id)
	return scanEscalation(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEscalation(row rowScanner) (*Escalation, error) {
	esc := &Escalation{}
	err := row.Scan(
		&esc.ID, &esc.AgentID, &esc.ConversationID, &esc.UserID, &esc.Message, &esc.ContextSummary,
		&esc.Reason, &esc.Status, &esc.OfferedAt, &esc.AcceptedAt, &esc.AnsweredAt,
		&esc.CreatorAnswer, &esc.AnswerLayer,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan escalation: %w", err)
	}
	return esc, nil
}

// ListEscalations returns escalations for an agent, newest first.
func (ops *DatabaseOperations) ListEscalations(agentID string, filter *EscalationFilter) ([]*Escalation, error) {
	query := `
		SELECT id, agent_id, conversation_id, user_id, message, context_summary,
		       reason, status, offered_at, accepted_at, answered_at, creator_answer, answer_layer
		FROM escalations WHERE agent_id = ?
	`
	args := []any{agentID}

	if filter != nil {
		if filter.Status != nil {
			query += " AND status = ?"
			args = append(args, *filter.Status)
		}
		if len(filter.Statuses) > 0 {
			placeholders := strings.Repeat("?,", len(filter.Statuses))
			query += fmt.Sprintf(" AND status IN (%s)", placeholders[:len(placeholders)-1])
			for _, s := range filter.Statuses {
				args = append(args, s)
			}
		}
	}

	query += " ORDER BY offered_at DESC"
	if filter != nil && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := ops.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list escalations for agent %s: %w", agentID, err)
	}
	defer rows.Close() //nolint:errcheck // Close in defer is safe

	var escalations []*Escalation
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		escalations = append(escalations, esc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("escalation rows error: %w", err)
	}
	return escalations, nil
}

// AcceptEscalation transitions pending -> accepted.
func (ops *DatabaseOperations) AcceptEscalation(id string) error {
	now := time.Now().UTC()
	result, err := ops.db.Exec(`
		UPDATE escalations SET status = ?, accepted_at = ?
		WHERE id = ? AND status = ?
	`, StatusAccepted, now, id, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to accept escalation %s: %w", id, err)
	}
	return ops.checkTransition(result, id)
}

// AnswerEscalation transitions pending|accepted -> answered, setting the
// creator's answer, its layer, and answered_at in the same atomic update.
func (ops *DatabaseOperations) AnswerEscalation(id, answer, layer string) error {
	if !IsValidLayer(layer) {
		return fmt.Errorf("invalid answer layer %q", layer)
	}
	now := time.Now().UTC()
	result, err := ops.db.Exec(`
		UPDATE escalations SET status = ?, answered_at = ?, creator_answer = ?, answer_layer = ?
		WHERE id = ? AND status IN (?, ?)
	`, StatusAnswered, now, answer, layer, id, StatusPending, StatusAccepted)
	if err != nil {
		return fmt.Errorf("failed to answer escalation %s: %w", id, err)
	}
	return ops.checkTransition(result, id)
}

// DeclineEscalation transitions pending|accepted -> declined.
func (ops *DatabaseOperations) DeclineEscalation(id string) error {
	result, err := ops.db.Exec(`
		UPDATE escalations SET status = ?
		WHERE id = ? AND status IN (?, ?)
	`, StatusDeclined, id, StatusPending, StatusAccepted)
	if err != nil {
		return fmt.Errorf("failed to decline escalation %s: %w", id, err)
	}
	return ops.checkTransition(result, id)
}

// checkTransition distinguishes a missing row from a lifecycle violation when
// a guarded update matched nothing.
func (ops *DatabaseOperations) checkTransition(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var status string
	err = ops.db.QueryRow("SELECT status FROM escalations WHERE id = ?", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("escalation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check escalation %s status: %w", id, err)
	}
	return fmt.Errorf("escalation %s in status %s: %w", id, status, ErrInvalidTransition)
}

// ExpireStaleEscalations batch-transitions pending escalations offered before
// the cutoff to expired. Returns the expired rows (id, agent, message) so the
// caller can emit per-escalation events; the RETURNING clause keeps the
// transition and the read a single statement, so a row accepted concurrently
// is neither expired nor reported.
func (ops *DatabaseOperations) ExpireStaleEscalations(olderThan time.Time) ([]*Escalation, error) {
	rows, err := ops.db.Query(`
		UPDATE escalations SET status = ?
		WHERE status = ? AND offered_at < ?
		RETURNING id, agent_id, message
	`, StatusExpired, StatusPending, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to expire stale escalations: %w", err)
	}
	defer rows.Close()

	var expired []*Escalation
	for rows.Next() {
		esc := &Escalation{Status: StatusExpired}
		if err := rows.Scan(&esc.ID, &esc.AgentID, &esc.Message); err != nil {
			return nil, fmt.Errorf("failed to scan expired escalation: %w", err)
		}
		expired = append(expired, esc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read expired escalations: %w", err)
	}
	return expired, nil
}

// --- Decisions ---

// InsertDecision appends one routing decision. Decisions are immutable after
// insert; there are no update or delete operations.
func (ops *DatabaseOperations) InsertDecision(d *Decision) error {
	if d.ID == "" {
		d.ID = GenerateID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	_, err := ops.db.Exec(`
		INSERT INTO decisions (
			id, agent_id, conversation_id, user_id, message, path,
			confidence, novelty, complexity, canonical_answer_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.AgentID, d.ConversationID, d.UserID, d.Message, d.Path,
		d.Confidence, d.Novelty, d.Complexity, d.CanonicalAnswerID, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert decision for agent %s: %w", d.AgentID, err)
	}
	return nil
}

// GetDecisionMetrics aggregates decisions for an agent since the cutoff.
// Escalation answer counts come from the escalations table since the decision
// log only records the offer.
func (ops *DatabaseOperations) GetDecisionMetrics(agentID string, since time.Time) (*DecisionMetrics, error) {
	m := &DecisionMetrics{}
	err := ops.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN path = 'A' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN path = 'D' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN path = 'C' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(confidence), 0),
			COALESCE(AVG(novelty), 0)
		FROM decisions
		WHERE agent_id = ? AND created_at > ?
	`, agentID, since).Scan(
		&m.TotalMessages, &m.AutoAnsweredCount, &m.EscalationsOffered,
		&m.CanonicalReuseCount, &m.AvgConfidence, &m.AvgNovelty,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate decisions for agent %s: %w", agentID, err)
	}

	err = ops.db.QueryRow(`
		SELECT COUNT(*) FROM escalations
		WHERE agent_id = ? AND status = ? AND answered_at > ?
	`, agentID, StatusAnswered, since).Scan(&m.EscalationsAnswered)
	if err != nil {
		return nil, fmt.Errorf("failed to count answered escalations for agent %s: %w", agentID, err)
	}

	if m.TotalMessages > 0 {
		m.AutoAnswerRate = float64(m.AutoAnsweredCount) / float64(m.TotalMessages)
	}
	return m, nil
}

// ListDecisions returns the most recent decisions for an agent.
func (ops *DatabaseOperations) ListDecisions(agentID string, limit int) ([]*Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := ops.db.Query(`
		SELECT id, agent_id, conversation_id, user_id, message, path,
		       confidence, novelty, complexity, canonical_answer_id, created_at
		FROM decisions WHERE agent_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions for agent %s: %w", agentID, err)
	}
	defer rows.Close() //nolint:errcheck // Close in defer is safe

	var decisions []*Decision
	for rows.Next() {
		d := &Decision{}
		if err := rows.Scan(
			&d.ID, &d.AgentID, &d.ConversationID, &d.UserID, &d.Message, &d.Path,
			&d.Confidence, &d.Novelty, &d.Complexity, &d.CanonicalAnswerID, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("decision rows error: %w", err)
	}
	return decisions, nil
}

// --- Canonical answers ---

// InsertCanonicalAnswer inserts a canonical answer. When the row derives from
// an escalation, the UNIQUE constraint on escalation_id makes the insert
// idempotent: a second attempt for the same escalation is ignored and
// reported via the returned bool.
func (ops *DatabaseOperations) InsertCanonicalAnswer(ca *CanonicalAnswer) (bool, error) {
	if ca.ID == "" {
		ca.ID = GenerateID()
	}
	if ca.CreatedAt.IsZero() {
		ca.CreatedAt = time.Now().UTC()
	}
	if !IsValidLayer(ca.Layer) {
		return false, fmt.Errorf("invalid canonical answer layer %q", ca.Layer)
	}

	result, err := ops.db.Exec(`
		INSERT OR IGNORE INTO canonical_answers (
			id, agent_id, escalation_id, question_pattern, answer, layer,
			reuse_count, embedding, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ca.ID, ca.AgentID, ca.EscalationID, ca.QuestionPattern, ca.Answer, ca.Layer,
		ca.ReuseCount, encodeEmbedding(ca.Embedding), ca.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert canonical answer for agent %s: %w", ca.AgentID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetCanonicalAnswerByEscalation returns the canonical answer derived from an
// escalation, or ErrNotFound.
func (ops *DatabaseOperations) GetCanonicalAnswerByEscalation(escalationID string) (*CanonicalAnswer, error) {
	row := ops.db.QueryRow(`
		SELECT id, agent_id, escalation_id, question_pattern, answer, layer, reuse_count, embedding, created_at
		FROM canonical_answers WHERE escalation_id = ?
	`, escalationID)
	return scanCanonicalAnswer(row)
}

// GetCanonicalAnswerByID returns one canonical answer, or ErrNotFound.
func (ops *DatabaseOperations) GetCanonicalAnswerByID(id string) (*CanonicalAnswer, error) {
	row := ops.db.QueryRow(`
		SELECT id, agent_id, escalation_id, question_pattern, answer, layer, reuse_count, embedding, created_at
		FROM canonical_answers WHERE id = ?
	`, id)
	return scanCanonicalAnswer(row)
}

func scanCanonicalAnswer(row rowScanner) (*CanonicalAnswer, error) {
	ca := &CanonicalAnswer{}
	var blob []byte
	err := row.Scan(
		&ca.ID, &ca.AgentID, &ca.EscalationID, &ca.QuestionPattern, &ca.Answer,
		&ca.Layer, &ca.ReuseCount, &blob, &ca.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan canonical answer: %w", err)
	}
	ca.Embedding = decodeEmbedding(blob)
	return ca, nil
}

// layerVisibility maps a requester layer to the answer layers it may see.
// Intimate requesters see everything; public requesters only public answers.
//
//nolint:gochecknoglobals // Static lookup table
var layerVisibility = map[string][]string{
	LayerPublic:   {LayerPublic},
	LayerFriends:  {LayerPublic, LayerFriends},
	LayerIntimate: {LayerPublic, LayerFriends, LayerIntimate},
}

// GetCanonicalAnswersForLayer returns all canonical answers for an agent
// visible at the given requester layer, embeddings included.
func (ops *DatabaseOperations) GetCanonicalAnswersForLayer(agentID, layer string) ([]*CanonicalAnswer, error) {
	visible, ok := layerVisibility[layer]
	if !ok {
		return nil, fmt.Errorf("invalid layer %q", layer)
	}

	placeholders := strings.Repeat("?,", len(visible))
	query := fmt.Sprintf(`
		SELECT id, agent_id, escalation_id, question_pattern, answer, layer, reuse_count, embedding, created_at
		FROM canonical_answers
		WHERE agent_id = ? AND layer IN (%s)
	`, placeholders[:len(placeholders)-1])

	args := []any{agentID}
	for _, l := range visible {
		args = append(args, l)
	}

	rows, err := ops.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list canonical answers for agent %s: %w", agentID, err)
	}
	defer rows.Close() //nolint:errcheck // Close in defer is safe

	var answers []*CanonicalAnswer
	for rows.Next() {
		ca, err := scanCanonicalAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, ca)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("canonical answer rows error: %w", err)
	}
	return answers, nil
}

// IncrementCanonicalReuse atomically bumps the reuse counter.
func (ops *DatabaseOperations) IncrementCanonicalReuse(id string) error {
	result, err := ops.db.Exec(`
		UPDATE canonical_answers SET reuse_count = reuse_count + 1 WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to increment reuse for canonical answer %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("canonical answer %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Embedding encoding ---

// encodeEmbedding serializes a vector as little-endian float32 bytes.
func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding reverses encodeEmbedding. Truncated blobs yield nil.
func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
