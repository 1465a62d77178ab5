package batch

import (
	"sync"
	"time"

	"github.com/pkolbe/ontograph-go/internal/models"
)

// EventType labels batch progress events pushed to streaming subscribers.
type EventType string

const (
	EventItemProcessed  EventType = "item_processed"
	EventItemFailed     EventType = "item_failed"
	EventBatchSuspended EventType = "batch_suspended"
	EventBatchResumed   EventType = "batch_resumed"
	EventBatchCompleted EventType = "batch_completed"
)

// Event is one batch progress notification.
type Event struct {
	BatchID string            `json:"batch_id"`
	Type    EventType         `json:"type"`
	State   models.BatchState `json:"state"`
	Error   string            `json:"error,omitempty"`
	At      time.Time         `json:"at"`
}

// Broadcaster fans batch events out to streaming subscribers. Slow
// subscribers drop events rather than blocking the engine.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewBroadcaster creates an event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release the channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking.
func (b *Broadcaster) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Subscriber is not keeping up; drop rather than stall the engine.
		}
	}
}
