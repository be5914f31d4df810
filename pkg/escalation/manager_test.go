package escalation

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aveelabs/orchestrator/pkg/canonical"
	"github.com/aveelabs/orchestrator/pkg/metrics"
	"github.com/aveelabs/orchestrator/pkg/notify"
	"github.com/aveelabs/orchestrator/pkg/persistence"
)

type stubEmbedder struct{}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func newTestManager(t *testing.T) (*Manager, *persistence.DatabaseOperations) {
	t.Helper()
	return newTestManagerWithNotifier(t, nil)
}

func newTestManagerWithNotifier(t *testing.T, notifier *notify.Notifier) (*Manager, *persistence.DatabaseOperations) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := persistence.InitializeDatabase(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ops := persistence.NewDatabaseOperations(db)
	store := canonical.NewStore(ops, &stubEmbedder{})
	return NewManager(ops, store, notifier, metrics.Nop()), ops
}

// captureSink records delivered events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *captureSink) Deliver(event notify.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	types := make([]string, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.Type)
	}
	return types
}

func testConfig() *persistence.AgentConfig {
	return &persistence.AgentConfig{
		AgentID:               "agent-1",
		EscalationEnabled:     true,
		MaxEscalationsPerDay:  2,
		MaxEscalationsPerWeek: 10,
		AutoAnswerThreshold:   0.75,
	}
}

func newEscalation(message string) *persistence.Escalation {
	return &persistence.Escalation{
		AgentID:        "agent-1",
		ConversationID: "conv-1",
		UserID:         "user-1",
		Message:        message,
		Reason:         persistence.ReasonNovel,
	}
}

func TestOfferRespectsQuota(t *testing.T) {
	mgr, _ := newTestManager(t)
	cfg := testConfig()

	require.NoError(t, mgr.Offer(newEscalation("question one"), cfg))
	require.NoError(t, mgr.Offer(newEscalation("question two"), cfg))

	err := mgr.Offer(newEscalation("question three"), cfg)
	assert.ErrorIs(t, err, persistence.ErrQuotaExceeded)
}

func TestAnswerCreatesCanonical(t *testing.T) {
	mgr, ops := newTestManager(t)
	esc := newEscalation("What's your morning routine?")
	require.NoError(t, mgr.Offer(esc, testConfig()))
	require.NoError(t, mgr.Accept(esc.ID))

	ca, err := mgr.Answer(context.Background(), esc.ID, "I start at 6am with coffee.", persistence.LayerPublic)
	require.NoError(t, err)
	require.NotNil(t, ca)
	assert.Equal(t, "I start at 6am with coffee.", ca.Answer)
	assert.Equal(t, persistence.LayerPublic, ca.Layer)

	stored, err := ops.GetEscalation(esc.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.StatusAnswered, stored.Status)
	require.NotNil(t, stored.CreatorAnswer)
	assert.Equal(t, "I start at 6am with coffee.", *stored.CreatorAnswer)
}

func TestAnswerWithoutAcceptIsAllowed(t *testing.T) {
	mgr, _ := newTestManager(t)
	esc := newEscalation("Quick one")
	require.NoError(t, mgr.Offer(esc, testConfig()))

	// Answering straight from pending skips the accept step.
	ca, err := mgr.Answer(context.Background(), esc.ID, "sure", persistence.LayerPublic)
	require.NoError(t, err)
	assert.NotNil(t, ca)
}

func TestAnswerReplayReturnsExistingCanonical(t *testing.T) {
	mgr, _ := newTestManager(t)
	esc := newEscalation("replayed question")
	require.NoError(t, mgr.Offer(esc, testConfig()))

	first, err := mgr.Answer(context.Background(), esc.ID, "the answer", persistence.LayerFriends)
	require.NoError(t, err)

	// A redelivered answer must not fail or duplicate.
	second, err := mgr.Answer(context.Background(), esc.ID, "the answer", persistence.LayerFriends)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestAnswerRejectsInvalidLayer(t *testing.T) {
	mgr, _ := newTestManager(t)
	esc := newEscalation("question")
	require.NoError(t, mgr.Offer(esc, testConfig()))

	_, err := mgr.Answer(context.Background(), esc.ID, "answer", "everyone")
	assert.Error(t, err)
}

func TestDeclineFreesQuotaSlot(t *testing.T) {
	mgr, _ := newTestManager(t)
	cfg := testConfig()

	first := newEscalation("one")
	second := newEscalation("two")
	require.NoError(t, mgr.Offer(first, cfg))
	require.NoError(t, mgr.Offer(second, cfg))
	require.NoError(t, mgr.Decline(first.ID))

	// Declined escalations do not count against the quota.
	assert.NoError(t, mgr.Offer(newEscalation("three"), cfg))
}

func TestDeclineAfterAnswerFails(t *testing.T) {
	mgr, _ := newTestManager(t)
	esc := newEscalation("question")
	require.NoError(t, mgr.Offer(esc, testConfig()))

	_, err := mgr.Answer(context.Background(), esc.ID, "done", persistence.LayerPublic)
	require.NoError(t, err)

	err = mgr.Decline(esc.ID)
	assert.True(t, errors.Is(err, persistence.ErrInvalidTransition))
}

func TestExpireStaleSkipsAccepted(t *testing.T) {
	mgr, ops := newTestManager(t)
	cfg := testConfig()

	stale := newEscalation("stale pending")
	accepted := newEscalation("accepted")
	require.NoError(t, mgr.Offer(stale, cfg))
	require.NoError(t, mgr.Offer(accepted, cfg))
	require.NoError(t, mgr.Accept(accepted.ID))

	// Everything offered so far is older than a zero TTL cutoff.
	time.Sleep(10 * time.Millisecond)
	expired, err := mgr.ExpireStale(time.Nanosecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	staleRow, err := ops.GetEscalation(stale.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.StatusExpired, staleRow.Status)

	acceptedRow, err := ops.GetEscalation(accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, persistence.StatusAccepted, acceptedRow.Status)
}

func TestAnswerNotifiesAnswerReady(t *testing.T) {
	sink := &captureSink{}
	notifier := notify.NewNotifier(sink, 16)
	mgr, _ := newTestManagerWithNotifier(t, notifier)

	esc := newEscalation("What's the story behind your name?")
	require.NoError(t, mgr.Offer(esc, testConfig()))
	_, err := mgr.Answer(context.Background(), esc.ID, "a long one", persistence.LayerPublic)
	require.NoError(t, err)

	// Close drains the queue, so every published event has been delivered.
	notifier.Close()
	types := sink.types()
	assert.Contains(t, types, notify.EventEscalationOffered)
	assert.Contains(t, types, notify.EventAnswerReady)
}

func TestExpireStaleNotifiesExpired(t *testing.T) {
	sink := &captureSink{}
	notifier := notify.NewNotifier(sink, 16)
	mgr, _ := newTestManagerWithNotifier(t, notifier)

	stale := newEscalation("left hanging")
	require.NoError(t, mgr.Offer(stale, testConfig()))

	time.Sleep(10 * time.Millisecond)
	expired, err := mgr.ExpireStale(time.Nanosecond)
	require.NoError(t, err)
	require.Equal(t, int64(1), expired)

	notifier.Close()
	found := false
	for _, e := range sink.events {
		if e.Type == notify.EventEscalationExpired && e.EscalationID == stale.ID {
			found = true
		}
	}
	assert.True(t, found, "expected an expired event for %s, got %v", stale.ID, sink.types())
}

func TestGetMissingEscalation(t *testing.T) {
	mgr, _ := newTestManager(t)

	_, err := mgr.Get("no-such-id")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}
