package eventlog

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
)

// subscriberBufferSize bounds each subscriber's backlog: the bus
// applies back-pressure rather than blocking the event log.
const subscriberBufferSize = 256

// dropTimeout is how long Publish waits for a slow subscriber's buffer
// to drain before dropping that subscriber. A
// var, not a const, so tests can shrink it instead of waiting 10s.
var dropTimeout = 10 * time.Second

// subscriber pairs a delivery channel with a done signal. done is closed
// when the subscriber goes away (Unsubscribe or drop), so a publisher
// blocked on a full buffer can bail out instead of sending into a
// channel that is about to be closed.
type subscriber struct {
	ch   chan models.Event
	done chan struct{}
}

// Bus is the in-process Event Bus: it fans persisted events out to
// subscribers (HTTP/SSE, TUI) with no ordering guarantee beyond what the
// Event Log already provides, and never blocks the log itself — a slow
// subscriber is dropped, not waited on indefinitely.
type Bus struct {
	mu          sync.Mutex
	subscribers map[int]*subscriber
	nextID      int

	// pubMu serializes publishers against each other and against channel
	// close, so a send never races a close.
	pubMu sync.Mutex
}

// NewBus constructs an empty Event Bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[int]*subscriber)}
}

// Subscription is a live handle to the bus; call Unsubscribe (or drain
// Close()'d Events) when the consumer goes away.
type Subscription struct {
	id     int
	bus    *Bus
	Events <-chan models.Event
}

// Subscribe registers a new subscriber and returns its channel. The
// channel is closed when Unsubscribe is called or the subscriber is
// dropped for falling behind.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{
		ch:   make(chan models.Event, subscriberBufferSize),
		done: make(chan struct{}),
	}
	b.subscribers[id] = sub
	return &Subscription{id: id, bus: b, Events: sub.ch}
}

// Unsubscribe removes the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	sub, ok := s.bus.subscribers[s.id]
	if ok {
		delete(s.bus.subscribers, s.id)
		close(sub.done)
	}
	s.bus.mu.Unlock()
	if !ok {
		return
	}

	// Excluding publishers here makes the close safe: any publisher
	// blocked on this buffer has already seen done and backed off.
	s.bus.pubMu.Lock()
	close(sub.ch)
	s.bus.pubMu.Unlock()
}

// Publish fans ev out to every subscriber. A subscriber whose buffer is
// full is given up to dropTimeout to drain before being dropped — the
// publishing goroutine (the event log's writer) is never blocked
// indefinitely by one slow reader.
func (b *Bus) Publish(ev models.Event) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	targets := make(map[int]*subscriber, len(b.subscribers))
	for id, sub := range b.subscribers {
		targets[id] = sub
	}
	b.mu.Unlock()

	for id, sub := range targets {
		select {
		case <-sub.done:
			continue
		case sub.ch <- ev:
		default:
			if !waitAndSend(sub, ev) {
				b.dropSubscriber(id)
			}
		}
	}
}

// waitAndSend retries a blocked send for up to dropTimeout. A subscriber
// that unsubscribes mid-wait counts as delivered — there is no one left
// to drop.
func waitAndSend(sub *subscriber, ev models.Event) bool {
	timer := time.NewTimer(dropTimeout)
	defer timer.Stop()
	select {
	case sub.ch <- ev:
		return true
	case <-sub.done:
		return true
	case <-timer.C:
		return false
	}
}

// dropSubscriber is only called from Publish, with pubMu held, so the
// close cannot race another publisher's send.
func (b *Bus) dropSubscriber(id int) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(sub.done)
	}
	b.mu.Unlock()
	if ok {
		close(sub.ch)
		slog.Warn("subscriber_dropped", "subscriber_id", id)
	}
}

// SubscriberCount reports the number of live subscribers (used by tests
// and health checks rather than polling internal state directly).
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
