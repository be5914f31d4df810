// Package notify delivers escalation lifecycle events to agent owners.
// Delivery is fire-and-forget: routing never blocks on a notification
// channel, and a full queue drops rather than stalls.
package notify

import (
	"sync"
	"time"

	"github.com/aveelabs/orchestrator/pkg/logx"
	"github.com/aveelabs/orchestrator/pkg/persistence"
)

// Event type constants.
const (
	EventEscalationOffered = "escalation_offered"
	EventEscalationExpired = "escalation_expired"
	EventAnswerReady       = "answer_ready"
)

// Event is one notification to an agent owner.
//
//nolint:govet // struct alignment optimization not critical for this type
type Event struct {
	Type         string    `json:"type"`
	AgentID      string    `json:"agent_id"`
	EscalationID string    `json:"escalation_id"`
	Message      string    `json:"message"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Deliver(event Event)
}

// LogSink writes events to the structured log. It is the default sink when
// no push channel is configured.
type LogSink struct {
	logger *logx.Logger
}

// NewLogSink creates a sink that logs each event.
func NewLogSink() *LogSink {
	return &LogSink{logger: logx.NewLogger("notify")}
}

// Deliver logs the event.
func (s *LogSink) Deliver(event Event) {
	s.logger.Info("%s: agent=%s escalation=%s %s",
		event.Type, event.AgentID, event.EscalationID, event.Message)
}

// Notifier fans events out to a sink through a buffered queue. Events for
// owners outside all of their availability windows are suppressed; the
// escalation itself still exists and appears in the owner's queue.
type Notifier struct {
	sink    Sink
	queue   chan Event
	done    chan struct{}
	logger  *logx.Logger
	dropped int64
	mu      sync.Mutex
	closed  bool
}

// NewNotifier starts a notifier draining into the given sink. A nil sink
// falls back to logging.
func NewNotifier(sink Sink, queueSize int) *Notifier {
	if sink == nil {
		sink = NewLogSink()
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	n := &Notifier{
		sink:   sink,
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
		logger: logx.NewLogger("notify"),
	}
	go n.drain()
	return n
}

// Publish enqueues an event if the owner's availability windows permit.
// Windows only gate delivery; an empty window list means always notify.
func (n *Notifier) Publish(event Event, windows []persistence.AvailabilityWindow) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if !windowsPermit(windows, event.OccurredAt) {
		n.logger.Debug("suppressed %s for agent %s outside availability windows",
			event.Type, event.AgentID)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	select {
	case n.queue <- event:
	default:
		n.dropped++
		n.logger.Warn("notification queue full, dropped %s for agent %s (total dropped: %d)",
			event.Type, event.AgentID, n.dropped)
	}
}

func (n *Notifier) drain() {
	defer close(n.done)
	for event := range n.queue {
		n.sink.Deliver(event)
	}
}

// Close stops accepting events, flushes the queue, and waits for the drain
// goroutine to finish.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	<-n.done
}

func windowsPermit(windows []persistence.AvailabilityWindow, t time.Time) bool {
	if len(windows) == 0 {
		return true
	}
	for _, w := range windows {
		if w.Covers(t) {
			return true
		}
	}
	return false
}
