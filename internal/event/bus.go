package event

import (
	"slices"
	"strconv"
	"sync"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/activitymonitor/internal/logging"
)

// Handler is a function that handles an event.
type Handler func(Event)

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"

type subscription struct {
	id      string
	handler Handler
}

// Bus is a synchronous pub-sub event bus.
//
// Handlers run on the publishing goroutine, so an event published by a
// monitor operation is fully handled before that operation returns. A
// panicking handler is logged and skipped; the remaining handlers still
// receive the event.
type Bus struct {
	mu     sync.RWMutex
	byType map[string][]subscription // copy-on-write per event type
	owner  map[string]string         // subscription id -> event type
	seq    uint64
	logger *logging.Logger
}

// NewBus creates a new event bus. A nil logger discards handler panics.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Bus{
		byType: make(map[string][]subscription),
		owner:  make(map[string]string),
		logger: logger.WithComponent("event.bus"),
	}
}

// Subscribe registers a handler for one event type and returns an id for
// Unsubscribe.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	id := "sub-" + strconv.FormatUint(b.seq, 10)
	subs := b.byType[eventType]
	b.byType[eventType] = append(subs[:len(subs):len(subs)], subscription{id: id, handler: handler})
	b.owner[id] = eventType
	return id
}

// SubscribeAll registers a handler for all event types.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(Wildcard, handler)
}

// Unsubscribe removes a subscription. It reports whether id was active.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	eventType, ok := b.owner[id]
	if !ok {
		return false
	}
	delete(b.owner, id)
	b.byType[eventType] = slices.DeleteFunc(slices.Clone(b.byType[eventType]),
		func(s subscription) bool { return s.id == id })
	return true
}

// Publish dispatches an event to the handlers of its type, then to the
// wildcard handlers, each group in registration order.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	specific := b.byType[e.EventType()]
	wildcard := b.byType[Wildcard]
	b.mu.RUnlock()

	// Subscription slices are replaced, never mutated, so the snapshots
	// stay valid without the lock.
	for _, sub := range specific {
		b.call(sub, e)
	}
	for _, sub := range wildcard {
		b.call(sub, e)
	}
}

func (b *Bus) call(sub subscription, e Event) {
	if r := panics.Try(func() { sub.handler(e) }); r != nil {
		b.logger.Error("event handler panicked",
			"event", e.EventType(),
			"subscription", sub.id,
			"panic", r.String())
	}
}

// Clear removes all subscriptions.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType = make(map[string][]subscription)
	b.owner = make(map[string]string)
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.owner)
}
