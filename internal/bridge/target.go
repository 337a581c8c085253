package bridge

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/activitymonitor/internal/errors"
	"github.com/Iron-Ham/activitymonitor/internal/event"
	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
	"github.com/Iron-Ham/activitymonitor/internal/logging"
	"github.com/Iron-Ham/activitymonitor/internal/monitor"
	"github.com/Iron-Ham/activitymonitor/internal/tags"
)

// Target receives bridged events on one monitor. Any number of bridges,
// on any number of source monitors, may point at the same Target.
//
// Without a queue, Deliver applies a message on the calling goroutine,
// which then briefly owns the target monitor; a busy monitor rejects it
// with a ConcurrentAccessError. With WithQueue, the target monitor's owner
// applies messages itself with Drain or Run.
//
// Groups a bridge leaves open on the target, because one of its closes
// never arrived, are closed when the bridge detaches. If that cannot happen
// right away the end is kept and applied by the next Deliver, Drain or Run.
type Target struct {
	monitor.NopClient

	monitor *monitor.Monitor
	honor   bool
	logger  *logging.Logger
	bus     *event.Bus
	queue   chan Message
	wake    chan struct{}

	finalDirty atomic.Bool
	final      atomic.Uint32
	nextSource atomic.Uint64

	mu      sync.Mutex
	bridges []*Bridge
	peers   []*controlWriter
	open    map[uint64][]*monitor.GroupHandle
	ends    []uint64 // sources whose end could not be delivered yet
}

// NewTarget creates a Target on m and registers it as m's client and
// filter listener.
func NewTarget(m *monitor.Monitor, opts ...TargetOption) *Target {
	if m == nil {
		panic("bridge: target monitor must not be nil")
	}
	cfg := &targetConfig{honorFilter: true}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}

	t := &Target{
		monitor: m,
		honor:   cfg.honorFilter,
		logger:  cfg.logger.WithComponent("bridge.target").WithMonitor(m.UniqueID().String()),
		bus:     cfg.bus,
		open:    make(map[uint64][]*monitor.GroupHandle),
	}
	if cfg.queueSize > 0 {
		t.queue = make(chan Message, cfg.queueSize)
		t.wake = make(chan struct{}, 1)
	}
	t.finalDirty.Store(true)
	// Sources allocated by Serve must not collide with bridge ids.
	t.nextSource.Store(1 << 63)
	_, _ = m.RegisterClient(t)
	m.SetFilterListener(t)
	return t
}

// Monitor returns the target monitor.
func (t *Target) Monitor() *monitor.Monitor { return t.monitor }

// FinalFilter returns the target monitor's actual filter with Undefined
// axes resolved by the default filter, or Undefined when the target does
// not honor its filter.
func (t *Target) FinalFilter() logfilter.LogFilter {
	if !t.honor {
		return logfilter.UndefinedFilter
	}
	for t.finalDirty.CompareAndSwap(true, false) {
		f := t.monitor.ActualFilter().CombineUndefinedOnly(t.monitor.Env().DefaultFilter)
		t.final.Store(f.Pack())
	}
	return logfilter.Unpack(t.final.Load())
}

// OnActualFilterChanged implements monitor.FilterListener.
func (t *Target) OnActualFilterChanged(*monitor.Monitor) {
	if !t.finalDirty.Swap(true) {
		for _, b := range t.Bridges() {
			b.markFilterDirty()
		}
	}
	peers := t.peerList()
	if len(peers) == 0 {
		return
	}
	final := t.FinalFilter()
	for _, p := range peers {
		p.sendFilter(final)
	}
}

// OnTopicChanged implements monitor.Client.
func (t *Target) OnTopicChanged(topic string, _ monitor.Location) {
	for _, b := range t.Bridges() {
		if b.cfg.pullTopic {
			b.pull(&topic, nil)
		}
	}
	for _, p := range t.peerList() {
		p.send(Message{Kind: KindTopic, Text: topic})
	}
}

// OnAutoTagsChanged implements monitor.Client.
func (t *Target) OnAutoTagsChanged(s *tags.Set) {
	text := s.String()
	for _, b := range t.Bridges() {
		if b.cfg.pullTags {
			b.pull(nil, &text)
		}
	}
	for _, p := range t.peerList() {
		p.send(Message{Kind: KindAutoTags, Tags: text})
	}
}

// addPeer starts sending filter, topic and auto tags changes to p, which
// first gets the current values.
func (t *Target) addPeer(p *controlWriter) {
	t.mu.Lock()
	t.peers = append(t.peers, p)
	t.mu.Unlock()
	p.sendFilter(t.FinalFilter())
	p.send(Message{Kind: KindTopic, Text: t.monitor.Topic()})
	p.send(Message{Kind: KindAutoTags, Tags: t.monitor.AutoTags().String()})
}

func (t *Target) removePeer(p *controlWriter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers = slices.DeleteFunc(slices.Clone(t.peers), func(x *controlWriter) bool { return x == p })
}

func (t *Target) peerList() []*controlWriter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peers
}

// Attach implements Endpoint.
func (t *Target) Attach(b *Bridge) error {
	t.mu.Lock()
	for _, x := range t.bridges {
		if x == b {
			t.mu.Unlock()
			return nil
		}
	}
	t.bridges = append(t.bridges, b)
	n := len(t.bridges)
	t.mu.Unlock()

	if b.cfg.pullTopic {
		topic := t.monitor.Topic()
		b.pull(&topic, nil)
	}
	if b.cfg.pullTags {
		text := t.monitor.AutoTags().String()
		b.pull(nil, &text)
	}
	t.logger.Debug("bridge attached", "bridge", b.id, "bridges", n)
	if t.bus != nil {
		t.bus.Publish(event.NewBridgeAttachedEvent(t.monitor.UniqueID().String(), n))
	}
	return nil
}

// Detach implements Endpoint.
func (t *Target) Detach(b *Bridge) {
	t.mu.Lock()
	removed := false
	for i, x := range t.bridges {
		if x == b {
			t.bridges = append(t.bridges[:i:i], t.bridges[i+1:]...)
			removed = true
			break
		}
	}
	n := len(t.bridges)
	t.mu.Unlock()

	if !removed {
		return
	}
	t.endSource(b.id)
	t.logger.Debug("bridge detached", "bridge", b.id, "bridges", n)
	if t.bus != nil {
		t.bus.Publish(event.NewBridgeDetachedEvent(t.monitor.UniqueID().String(), n))
	}
}

func endMessage(source uint64) Message {
	return Message{
		Kind:        KindEnd,
		Source:      source,
		Conclusions: []Conclusion{{Tag: monitor.TagClosedByBridgeRemoved, Text: ClosedByBridgeRemoved}},
	}
}

// endSource closes what source left open on the target. A queued end goes
// after the source's queued messages; an end that cannot be delivered now
// is kept for later.
func (t *Target) endSource(source uint64) {
	if err := t.Deliver(endMessage(source)); err == nil {
		return
	}
	t.mu.Lock()
	t.ends = append(t.ends, source)
	t.mu.Unlock()
	if t.wake != nil {
		select {
		case t.wake <- struct{}{}:
		default:
		}
	}
	t.logger.Debug("source end deferred", "source", source)
}

func busy(err error) bool {
	return errors.Is(err, errors.ErrConcurrentAccess) || errors.Is(err, errors.ErrReentrancy)
}

// applyEnds applies the kept ends. Queued targets call it only once the
// queue is empty, so no message of an ended source is still waiting.
func (t *Target) applyEnds() error {
	t.mu.Lock()
	ends := t.ends
	t.ends = nil
	t.mu.Unlock()

	var errs []error
	for i, source := range ends {
		err := t.apply(endMessage(source))
		if busy(err) {
			t.mu.Lock()
			t.ends = append(ends[i:len(ends):len(ends)], t.ends...)
			t.mu.Unlock()
			return err
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PendingEnds returns how many bridge ends wait to be applied.
func (t *Target) PendingEnds() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ends)
}

// Bridges returns the attached bridges.
func (t *Target) Bridges() []*Bridge {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Bridge, len(t.bridges))
	copy(out, t.bridges)
	return out
}

// Deliver applies msg, or enqueues it when the target has a queue.
func (t *Target) Deliver(msg Message) error {
	if t.queue == nil {
		if t.PendingEnds() > 0 {
			if err := t.applyEnds(); busy(err) {
				return err
			}
		}
		return t.apply(msg)
	}
	select {
	case t.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Drain applies every queued message without blocking and returns how
// many were applied. It must run on the target monitor's owner.
func (t *Target) Drain() (int, error) {
	var errs []error
	n := 0
	for {
		select {
		case msg := <-t.queue:
			n++
			if err := t.apply(msg); err != nil {
				errs = append(errs, err)
			}
		default:
			if err := t.applyEnds(); err != nil {
				errs = append(errs, err)
			}
			return n, errors.Join(errs...)
		}
	}
}

// Run applies queued messages until ctx is done. Failures are logged.
func (t *Target) Run(ctx context.Context) error {
	if t.queue == nil {
		return ErrNoQueue
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-t.queue:
			if err := t.apply(msg); err != nil {
				t.logger.Warn("failed to apply bridged message", "kind", msg.Kind.String(), "error", err)
			}
		case <-t.wake:
		}
		if len(t.queue) == 0 && t.PendingEnds() > 0 {
			if err := t.applyEnds(); err != nil {
				t.logger.Warn("failed to close groups of removed bridges", "error", err)
			}
		}
	}
}

// Close unregisters the target from its monitor.
func (t *Target) Close() error {
	t.monitor.SetFilterListener(nil)
	t.monitor.UnregisterClient(t)
	return nil
}

func (t *Target) newSource() uint64 {
	return t.nextSource.Add(1)
}

func (t *Target) apply(msg Message) error {
	m := t.monitor
	reg := m.Env().Tags
	switch msg.Kind {
	case KindLog:
		return m.UnfilteredLog(&monitor.LogData{
			Level:    msg.Level,
			Text:     msg.Text,
			Tags:     reg.Parse(msg.Tags),
			Time:     msg.Time,
			Err:      remoteError(msg.Err),
			Location: msg.Location,
		})
	case KindOpenGroup:
		h, err := m.UnfilteredOpenGroup(&monitor.GroupData{
			Level:    msg.Level,
			Text:     msg.Text,
			Tags:     reg.Parse(msg.Tags),
			Time:     msg.Time,
			Err:      remoteError(msg.Err),
			Location: msg.Location,
		})
		if err != nil {
			return err
		}
		t.pushHandle(msg.Source, h)
		return nil
	case KindCloseGroup:
		return t.closeTop(msg)
	case KindTopic:
		return m.SetTopic(msg.Text)
	case KindAutoTags:
		return m.SetAutoTags(reg.Parse(msg.Tags))
	case KindEnd:
		var errs []error
		for t.hasHandles(msg.Source) {
			err := t.closeTop(msg)
			if busy(err) {
				return err
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	default:
		return errors.NewArgumentError("message kind", msg.Kind.String(), nil)
	}
}

// closeTop closes the newest group of the message's source. A busy target
// monitor keeps the handle so the close can be tried again.
func (t *Target) closeTop(msg Message) error {
	h := t.popHandle(msg.Source)
	if h == nil {
		return nil
	}
	err := h.ConcludeAt(msg.Time, t.conclusions(msg.Conclusions))
	if busy(err) {
		t.pushHandle(msg.Source, h)
	}
	return err
}

func (t *Target) pushHandle(source uint64, h *monitor.GroupHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open[source] = append(t.open[source], h)
}

func (t *Target) hasHandles(source uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open[source]) > 0
}

func (t *Target) popHandle(source uint64) *monitor.GroupHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	stack := t.open[source]
	if len(stack) == 0 {
		return nil
	}
	h := stack[len(stack)-1]
	if len(stack) == 1 {
		delete(t.open, source)
	} else {
		t.open[source] = stack[:len(stack)-1]
	}
	return h
}

func (t *Target) conclusions(in []Conclusion) []monitor.Conclusion {
	if len(in) == 0 {
		return nil
	}
	reg := t.monitor.Env().Tags
	out := make([]monitor.Conclusion, len(in))
	for i, c := range in {
		out[i] = monitor.Conclusion{Tag: reg.Parse(c.Tag), Text: c.Text}
	}
	return out
}
