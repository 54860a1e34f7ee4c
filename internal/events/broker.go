// Package events provides per-session fan-out of pipeline progress events.
// Delivery is best-effort: a slow or disconnected subscriber never blocks the
// state machine.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/veritest/veritest/internal/model"
)

// Event is one progress notification emitted at a stage transition.
type Event struct {
	SessionID string      `json:"session_id"`
	Seq       int         `json:"seq"`
	Stage     model.Stage `json:"stage"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}

// DefaultBuffer is the subscriber channel capacity.
const DefaultBuffer = 64

type subscriber struct {
	id int
	ch chan Event
}

// Broker fans events out to per-session subscribers.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[string][]subscriber
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string][]subscriber),
	}
}

// Subscribe registers a listener for the session's events. The returned
// cancel func must be called to release the subscription; it closes the
// channel.
func (b *Broker) Subscribe(sessionID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscriber{id: b.nextID, ch: make(chan Event, DefaultBuffer)}
	b.subs[sessionID] = append(b.subs[sessionID], sub)

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[sessionID]
		for i, s := range list {
			if s.id == sub.id {
				b.subs[sessionID] = append(list[:i], list[i+1:]...)
				close(s.ch)
				break
			}
		}
		if len(b.subs[sessionID]) == 0 {
			delete(b.subs, sessionID)
		}
	}
	return sub.ch, cancel
}

// Publish delivers the event to all current subscribers of the session
// without blocking: events to a full subscriber buffer are dropped. The
// caller supplies the sequence number, typically the one assigned by the
// durable event log, so live and replayed events share one ordering.
func (b *Broker) Publish(sessionID string, seq int, stage model.Stage, message string) Event {
	ev := Event{
		SessionID: sessionID,
		Seq:       seq,
		Stage:     stage,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}

	// Sends happen under the lock: cancel closes subscriber channels under
	// the same lock, so a channel can never be closed between the snapshot
	// and the send. The sends never block, so the lock is held briefly.
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[sessionID] {
		select {
		case sub.ch <- ev:
		default:
			log.Debug().Str("session_id", sessionID).Int("seq", ev.Seq).Msg("dropped event for slow subscriber")
		}
	}
	return ev
}
