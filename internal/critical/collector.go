// Package critical collects errors that nothing else can handle, such as a
// client callback that panicked while a monitor was dispatching an event.
//
// Add never panics and never blocks on its subscribers' behalf for long:
// entries go to a bounded ring buffer, are published on an event bus and
// logged through the diagnostic logger.
package critical

import (
	"sync"
	"time"

	"github.com/Iron-Ham/activitymonitor/internal/event"
	"github.com/Iron-Ham/activitymonitor/internal/logging"
)

// DefaultCapacity is the number of entries kept when none is configured.
const DefaultCapacity = 128

// Entry is one collected error.
type Entry struct {
	Sequence uint64
	Time     time.Time
	Err      error
	Comment  string
}

// Collector is a bounded, concurrency-safe error sink.
type Collector struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	seq      uint64
	dropped  uint64

	bus    *event.Bus
	logger *logging.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithCapacity bounds the number of retained entries. Values below one are
// replaced with DefaultCapacity.
func WithCapacity(n int) Option {
	return func(c *Collector) { c.capacity = n }
}

// WithBus publishes every entry as an event.CriticalErrorEvent.
func WithBus(bus *event.Bus) Option {
	return func(c *Collector) { c.bus = bus }
}

// WithLogger reports every entry at ERROR level.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Collector) { c.logger = logger }
}

// New creates a Collector.
func New(opts ...Option) *Collector {
	c := &Collector{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(c)
	}
	if c.capacity < 1 {
		c.capacity = DefaultCapacity
	}
	if c.logger == nil {
		c.logger = logging.NopLogger()
	}
	c.logger = c.logger.WithComponent("critical")
	return c
}

// Add records err with a free-form comment. It is fire-and-forget: it never
// panics, even if a bus handler does.
func (c *Collector) Add(err error, comment string) {
	defer func() { _ = recover() }()

	c.mu.Lock()
	c.seq++
	e := Entry{Sequence: c.seq, Time: time.Now(), Err: err, Comment: comment}
	if len(c.entries) == c.capacity {
		copy(c.entries, c.entries[1:])
		c.entries = c.entries[:len(c.entries)-1]
		c.dropped++
	}
	c.entries = append(c.entries, e)
	c.mu.Unlock()

	errText := "<nil>"
	if err != nil {
		errText = err.Error()
	}
	c.logger.Error("critical error", "seq", e.Sequence, "error", errText, "comment", comment)
	if c.bus != nil {
		c.bus.Publish(event.NewCriticalErrorEvent(e.Sequence, err, comment))
	}
}

// Entries returns a copy of the retained entries, oldest first.
func (c *Collector) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Errors returns the retained errors, oldest first.
func (c *Collector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]error, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Err
	}
	return out
}

// Count returns the number of retained entries.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Dropped returns how many entries were evicted by the capacity bound.
func (c *Collector) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Clear drops every retained entry. Sequence numbers keep increasing.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}
