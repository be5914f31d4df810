package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aveelabs/orchestrator/pkg/persistence"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureSink) Deliver(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureSink) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestPublishDelivers(t *testing.T) {
	sink := &captureSink{}
	notifier := NewNotifier(sink, 8)

	notifier.Publish(Event{
		Type:         EventEscalationOffered,
		AgentID:      "agent-1",
		EscalationID: "esc-1",
	}, nil)
	notifier.Close()

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, EventEscalationOffered, events[0].Type)
	assert.False(t, events[0].OccurredAt.IsZero())
}

func TestPublishSuppressedOutsideWindow(t *testing.T) {
	sink := &captureSink{}
	notifier := NewNotifier(sink, 8)

	occurred := time.Date(2026, 8, 23, 3, 0, 0, 0, time.UTC)
	windows := []persistence.AvailabilityWindow{{Start: "09:00", End: "17:00"}}

	notifier.Publish(Event{
		Type:       EventEscalationOffered,
		AgentID:    "agent-1",
		OccurredAt: occurred,
	}, windows)
	notifier.Close()

	assert.Empty(t, sink.all())
}

func TestPublishInsideWindow(t *testing.T) {
	sink := &captureSink{}
	notifier := NewNotifier(sink, 8)

	occurred := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	windows := []persistence.AvailabilityWindow{{Start: "09:00", End: "17:00"}}

	notifier.Publish(Event{Type: EventAnswerReady, OccurredAt: occurred}, windows)
	notifier.Close()

	require.Len(t, sink.all(), 1)
}

func TestPublishMidnightWrapWindow(t *testing.T) {
	windows := []persistence.AvailabilityWindow{{Start: "22:00", End: "02:00"}}

	assert.True(t, windowsPermit(windows, time.Date(2026, 8, 23, 23, 30, 0, 0, time.UTC)))
	assert.True(t, windowsPermit(windows, time.Date(2026, 8, 23, 1, 0, 0, 0, time.UTC)))
	assert.False(t, windowsPermit(windows, time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)))
}

func TestPublishAfterCloseIsSafe(t *testing.T) {
	sink := &captureSink{}
	notifier := NewNotifier(sink, 8)
	notifier.Close()

	// Must not panic or block.
	notifier.Publish(Event{Type: EventEscalationExpired}, nil)
	assert.Empty(t, sink.all())
}

func TestQueueOverflowDropsInsteadOfBlocking(t *testing.T) {
	block := make(chan struct{})
	sink := &blockingSink{release: block}
	notifier := NewNotifier(sink, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			notifier.Publish(Event{Type: EventEscalationOffered}, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	close(block)
	notifier.Close()
}

type blockingSink struct {
	release chan struct{}
	once    sync.Once
}

func (b *blockingSink) Deliver(_ Event) {
	b.once.Do(func() { <-b.release })
}
