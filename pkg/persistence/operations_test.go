package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// Helper function to create a new database for each test.
func createTestDB(t *testing.T) (*DatabaseOperations, func()) {
	tempDir, err := os.MkdirTemp("", "persistence_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tempDir, "test.db")

	db, err := InitializeDatabase(dbPath)
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tempDir)
	}

	return NewDatabaseOperations(db), cleanup
}

func testConfig(agentID string) *AgentConfig {
	return &AgentConfig{
		AgentID:               agentID,
		EscalationEnabled:     true,
		MaxEscalationsPerDay:  2,
		MaxEscalationsPerWeek: 10,
		AutoAnswerThreshold:   0.75,
		ClarificationEnabled:  true,
		BlockedTopics:         []string{"politics"},
		AllowedTiers:          []string{TierFree, TierFollower, TierPaying},
	}
}

func testEscalation(agentID string) *Escalation {
	return &Escalation{
		AgentID:        agentID,
		ConversationID: "conv-1",
		UserID:         "user-1",
		Message:        "What do you think about quantum computing?",
		Reason:         ReasonNovel,
	}
}

func TestAgentConfigRoundTrip(t *testing.T) {
	ops, cleanup := createTestDB(t)
	defer cleanup()

	cfg := testConfig("agent-1")
	if err := ops.UpsertAgentConfig(cfg); err != nil {
		t.Fatalf("Failed to upsert config: %v", err)
	}

	got, err := ops.GetAgentConfig("agent-1")
	if err != nil {
		t.Fatalf("Failed to get config: %v", err)
	}
	if got.AutoAnswerThreshold != 0.75 {
		t.Errorf("Expected threshold 0.75, got %f", got.AutoAnswerThreshold)
	}
	if len(got.BlockedTopics) != 1 || got.BlockedTopics[0] != "politics" {
		t.Errorf("Unexpected blocked topics: %v", got.BlockedTopics)
	}
	if len(got.AllowedTiers) != 3 {
		t.Errorf("Unexpected allowed tiers: %v", got.AllowedTiers)
	}

	// Update path.
	cfg.MaxEscalationsPerDay = 7
	if err := ops.UpsertAgentConfig(cfg); err != nil {
		t.Fatalf("Failed to update config: %v", err)
	}
	got, err = ops.GetAgentConfig("agent-1")
	if err != nil {
		t.Fatalf("Failed to re-get config: %v", err)
	}
	if got.MaxEscalationsPerDay != 7 {
		t.Errorf("Expected updated quota 7, got %d", got.MaxEscalationsPerDay)
	}
}

func TestGetAgentConfigMissing(t *testing.T) {
	ops, cleanup := createTestDB(t)
	defer cleanup()

	_, err := ops.GetAgentConfig("nobody")
	if !errors.Is(err, ErrConfigMissing) {
		t.Errorf("Expected ErrConfigMissing, got %v", err)
	}
}

func TestEscalationQuotaEnforcement(t *testing.T) {
	ops, cleanup := createTestDB(t)
	defer cleanup()

	// Daily quota of 2: the third insert must be rejected atomically.
	for i := 0; i < 2; i++ {
		esc := testEscalation("agent-1")
		if err := ops.InsertEscalationIfUnderQuota(esc, 2, 10); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}

	esc := testEscalation("agent-1")
	err := ops.InsertEscalationIfUnderQuota(esc, 2, 10)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Expected ErrQuotaExceeded, got %v", err)
	}

	count, err := ops.CountActiveEscalations("agent-1", time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 active escalations, got %d", count)
	}
}

func TestEscalationQuotaExcludesDeclined(t *testing.T) {
	ops, cleanup := createTestDB(t)
	defer cleanup()

	first := testEscalation("agent-1")
	if err := ops.InsertEscalationIfUnderQuota(first, 1, 10); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	// Quota full. Declining the escalation must free the slot.
	if err := ops.DeclineEscalation(first.ID); err != nil {
		t.Fatalf("Decline failed: %v", err)
	}

	second := testEscalation("agent-1")
	if err := ops.InsertEscalationIfUnderQuota(second, 1, 10); err != nil {
		t.Errorf("Expected slot freed after decline, got %v", err)
	}
}

func TestEscalationQuotaPerAgent(t *testing.T) {
	ops, cleanup := createTestDB(t)
	defer cleanup()

	if err := ops.InsertEscalationIfUnderQuota(testEscalation("agent-1"), 1, 10); err != nil {
		t.Fatalf("Insert for agent-1 failed: %v", err)
	}

	// Another agent's quota is independent.
	if err := ops.InsertEscalationIfUnderQuota(testEscalation("agent-2"), 1, 10); err != nil {
		t.Errorf("Insert for agent-2 should not be limited by agent-1: %v", err)
	}
}

func TestEscalationLifecycle(t *testing.T) {
	ops, cleanup := createTestDB(t)
	defer cleanup()

	esc := testEscalation("agent-1")
	if err := ops.InsertEscalationIfUnderQuota(esc, 5, 10); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := ops.AcceptEscalation(esc.ID); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	got, err := ops.GetEscalation(esc.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusAccepted {
		t.Errorf("Expected accepted, got %s", got.Status)
	}
	if got.AcceptedAt == nil {
		t.Error("Expected accepted_at to be set")
	}

	if err := ops.AnswerEscalation(esc.ID, "Here is my take.", LayerFriends); err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	got, err = ops.GetEscalation(esc.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusAnswered {
		t.Errorf("Expected answered, got %s", got.Status)
	}
	// answered_at and creator_answer set together, atomically.
	if got.AnsweredAt == nil || got.CreatorAnswer == nil {
		t.Error("Expected answered_at and creator_answer both set")
	}
	if got.AnswerLayer == nil || *got.AnswerLayer != LayerFriends {
		t.Errorf("Unexpected answer layer: %v", got.AnswerLayer)
	}
}

func TestEscalationAnswerWithoutAccept(t *testing.T) {
	ops, cleanup := createTestDB(t)
	defer cleanup()

	// pending -> answered is allowed directly.
	esc := testEscalation("agent-1")
	if err := ops.InsertEscalationIfUnderQuota(esc, 5, 10); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := ops.AnswerEscalation(esc.ID, "Quick answer", LayerPublic); err != nil {
		t.Errorf("pending -> answered should succeed: %v", err)
	}
}

func TestEscalationInvalidTransitions(t *testing.T) {
	ops, cleanup := createTestDB(t)
	defer cleanup()

	esc := testEscalation("agent-1")
	if err := ops.InsertEscalationIfUnderQuota(esc, 5, 10); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := ops.DeclineEscalation(esc.ID); err != nil {
		t.Fatalf("Decline failed: %v", err)
	}

	// Terminal states reject further transitions.
	if err := ops.AcceptEscalation(esc.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition on accept after decline, got %v", err)
	}
	if err := ops.AnswerEscalation(esc.ID, "too late", LayerPublic); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition on answer after decline, got %v", err)
	}

	// Missing rows report ErrNotFound, not ErrInvalidTransition.
	if err := ops.AcceptEscalation("missing-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing escalation, got %v", err)
	}
}

func TestExpireStaleEscalations(t *testing.T) {
	ops, cleanup := createTestDB(t)
	defer cleanup()

	stale := testEscalation("agent-1")
	stale.OfferedAt = time.Now().UTC().Add(-100 * time.Hour)
	if err := ops.InsertEscalationIfUnderQuota(stale, 5, 10); err != nil {
		t.Fatalf("Insert stale failed: %v", err)
	}

	fresh := testEscalation("agent-1")
	if err := ops.InsertEscalationIfUnderQuota(fresh, 5, 10); err != nil {
		t.Fatalf("Insert fresh failed: %v", err)
	}

	// Accepted rows never expire, regardless of age.
	acceptedStale := testEscalation("agent-1")
	acceptedStale.OfferedAt = time.Now().UTC().Add(-100 * time.Hour)
	if err := ops.InsertEscalationIfUnderQuota(acceptedStale, 5, 10); err != nil {
		t.Fatalf("Insert accepted-stale failed: %v", err)
	}
	if err := ops.AcceptEscalation(acceptedStale.ID); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	expired, err := ops.ExpireStaleEscalations(time.Now().UTC().Add(-72 * time.Hour))
	if err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("Expected 1 expired, got %d", len(expired))
	}
	if expired[0].ID != stale.ID {
		t.Errorf("Expected expired row %s, got %s", stale.ID, expired[0].ID)
	}
	if expired[0].AgentID != "agent-1" {
		t.Errorf("Expected agent-1, got %s", expired[0].AgentID)
	}

	got, err := ops.GetEscalation(stale.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != StatusExpired {
		t.Errorf("Expected expired, got %s", got.Status)
	}
}

func TestDecisionInsertAndMetrics(t *testing.T) {
	ops, cleanup := createTestDB(t)
	defer cleanup()

	paths := []string{PathAutoAnswer, PathAutoAnswer, PathCanonicalReuse, PathEscalate}
	for _, path := range paths {
		d := &Decision{
			AgentID:        "agent-1",
			ConversationID: "conv-1",
			UserID:         "user-1",
			Message:        "question",
			Path:           path,
			Confidence:     0.8,
			Novelty:        0.3,
			Complexity:     0.2,
		}
		if err := ops.InsertDecision(d); err != nil {
			t.Fatalf("Insert decision failed: %v", err)
		}
	}

	m, err := ops.GetDecisionMetrics("agent-1", time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}
	if m.TotalMessages != 4 {
		t.Errorf("Expected 4 messages, got %d", m.TotalMessages)
	}
	if m.AutoAnsweredCount != 2 {
		t.Errorf("Expected 2 auto-answered, got %d", m.AutoAnsweredCount)
	}
	if m.EscalationsOffered != 1 {
		t.Errorf("Expected 1 escalation offered, got %d", m.EscalationsOffered)
	}
	if m.CanonicalReuseCount != 1 {
		t.Errorf("Expected 1 canonical reuse, got %d", m.CanonicalReuseCount)
	}
	if m.AutoAnswerRate != 0.5 {
		t.Errorf("Expected auto-answer rate 0.5, got %f", m.AutoAnswerRate)
	}
	if m.AvgConfidence < 0.79 || m.AvgConfidence > 0.81 {
		t.Errorf("Expected avg confidence ~0.8, got %f", m.AvgConfidence)
	}
}

func TestCanonicalAnswerIdempotentInsert(t *testing.T) {
	ops, cleanup := createTestDB(t)
	defer cleanup()

	esc := testEscalation("agent-1")
	if err := ops.InsertEscalationIfUnderQuota(esc, 5, 10); err != nil {
		t.Fatalf("Insert escalation failed: %v", err)
	}

	ca := &CanonicalAnswer{
		AgentID:         "agent-1",
		EscalationID:    &esc.ID,
		QuestionPattern: esc.Message,
		Answer:          "Creator answer",
		Layer:           LayerPublic,
		Embedding:       []float32{0.1, 0.2, 0.3},
	}
	created, err := ops.InsertCanonicalAnswer(ca)
	if err != nil {
		t.Fatalf("Insert canonical failed: %v", err)
	}
	if !created {
		t.Fatal("Expected first insert to create a row")
	}

	// Replay: same escalation, must be a no-op.
	dup := &CanonicalAnswer{
		AgentID:         "agent-1",
		EscalationID:    &esc.ID,
		QuestionPattern: esc.Message,
		Answer:          "Different text",
		Layer:           LayerPublic,
	}
	created, err = ops.InsertCanonicalAnswer(dup)
	if err != nil {
		t.Fatalf("Duplicate insert errored: %v", err)
	}
	if created {
		t.Error("Expected duplicate insert to be ignored")
	}

	got, err := ops.GetCanonicalAnswerByEscalation(esc.ID)
	if err != nil {
		t.Fatalf("Get by escalation failed: %v", err)
	}
	if got.Answer != "Creator answer" {
		t.Errorf("Original answer should win, got %q", got.Answer)
	}
	if len(got.Embedding) != 3 {
		t.Errorf("Expected embedding round-trip, got %v", got.Embedding)
	}
}

func TestCanonicalReuseCounter(t *testing.T) {
	ops, cleanup := createTestDB(t)
	defer cleanup()

	ca := &CanonicalAnswer{
		AgentID:         "agent-1",
		QuestionPattern: "favorite color?",
		Answer:          "Blue.",
		Layer:           LayerPublic,
	}
	if _, err := ops.InsertCanonicalAnswer(ca); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := ops.IncrementCanonicalReuse(ca.ID); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	got, err := ops.GetCanonicalAnswerByID(ca.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ReuseCount != 1 {
		t.Errorf("Expected reuse_count 1, got %d", got.ReuseCount)
	}

	if err := ops.IncrementCanonicalReuse("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCanonicalLayerVisibility(t *testing.T) {
	ops, cleanup := createTestDB(t)
	defer cleanup()

	for _, layer := range ValidLayers() {
		ca := &CanonicalAnswer{
			AgentID:         "agent-1",
			QuestionPattern: "q-" + layer,
			Answer:          "a-" + layer,
			Layer:           layer,
		}
		if _, err := ops.InsertCanonicalAnswer(ca); err != nil {
			t.Fatalf("Insert for layer %s failed: %v", layer, err)
		}
	}

	public, err := ops.GetCanonicalAnswersForLayer("agent-1", LayerPublic)
	if err != nil {
		t.Fatalf("List public failed: %v", err)
	}
	if len(public) != 1 {
		t.Errorf("Public requester should see 1 answer, got %d", len(public))
	}

	friends, err := ops.GetCanonicalAnswersForLayer("agent-1", LayerFriends)
	if err != nil {
		t.Fatalf("List friends failed: %v", err)
	}
	if len(friends) != 2 {
		t.Errorf("Friends requester should see 2 answers, got %d", len(friends))
	}

	intimate, err := ops.GetCanonicalAnswersForLayer("agent-1", LayerIntimate)
	if err != nil {
		t.Fatalf("List intimate failed: %v", err)
	}
	if len(intimate) != 3 {
		t.Errorf("Intimate requester should see 3 answers, got %d", len(intimate))
	}
}

func TestCanTransition(t *testing.T) {
	allowed := [][2]string{
		{StatusPending, StatusAccepted},
		{StatusPending, StatusDeclined},
		{StatusPending, StatusExpired},
		{StatusPending, StatusAnswered},
		{StatusAccepted, StatusAnswered},
		{StatusAccepted, StatusDeclined},
	}
	for _, pair := range allowed {
		if !CanTransition(pair[0], pair[1]) {
			t.Errorf("Expected %s -> %s to be allowed", pair[0], pair[1])
		}
	}

	denied := [][2]string{
		{StatusAccepted, StatusPending},
		{StatusAnswered, StatusDeclined},
		{StatusDeclined, StatusAnswered},
		{StatusExpired, StatusPending},
		{StatusAnswered, StatusPending},
	}
	for _, pair := range denied {
		if CanTransition(pair[0], pair[1]) {
			t.Errorf("Expected %s -> %s to be rejected", pair[0], pair[1])
		}
	}
}

func TestSchemaVersion(t *testing.T) {
	ops, cleanup := createTestDB(t)
	defer cleanup()

	version, err := GetSchemaVersion(ops.DB())
	if err != nil {
		t.Fatalf("GetSchemaVersion failed: %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", CurrentSchemaVersion, version)
	}
}
