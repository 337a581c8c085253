package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/activitymonitor/internal/errors"
	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
	"github.com/Iron-Ham/activitymonitor/internal/logging"
	"github.com/Iron-Ham/activitymonitor/internal/monitor"
	"github.com/Iron-Ham/activitymonitor/internal/tags"
)

// ClosedByBridgeRemoved is the text of the conclusion added to forwarded
// groups that are still open when their bridge is removed.
const ClosedByBridgeRemoved = "Closed by bridge removed."

var lastBridgeID atomic.Uint64

// Bridge forwards the events its source monitor accepts to an Endpoint.
//
// It records, per depth, whether the opening of a group was forwarded, so
// only forwarded groups get a forwarded close. A close the endpoint rejects
// is kept and sent again before anything else, so the target never sees an
// entry land in a group the source already closed. Removing the bridge
// closes the forwarded groups that are still open on the target.
type Bridge struct {
	id     uint64
	target Endpoint
	cfg    config
	logger *logging.Logger

	source atomic.Pointer[monitor.Monitor]

	mu        sync.Mutex
	forwarded []uint64 // bit d set when the group at depth d was forwarded

	sendMu  sync.Mutex
	backlog []Message // closes the endpoint rejected, oldest first

	filterDirty atomic.Bool
	filter      atomic.Uint32

	syncMu       sync.Mutex
	pendingTopic *string
	pendingTags  *string
}

// New creates a Bridge to target. Register it on the source monitor with
// RegisterClient; unregister it to remove it.
func New(target Endpoint, opts ...Option) *Bridge {
	if target == nil {
		panic("bridge: target must not be nil")
	}
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	b := &Bridge{
		id:     lastBridgeID.Add(1),
		target: target,
		cfg:    cfg,
	}
	b.logger = cfg.logger.WithComponent("bridge").With("bridge", b.id)
	b.filterDirty.Store(true)
	return b
}

// ID returns the bridge's process-unique id.
func (b *Bridge) ID() uint64 { return b.id }

// Target returns the endpoint.
func (b *Bridge) Target() Endpoint { return b.target }

// Source returns the monitor the bridge is registered on, or nil.
func (b *Bridge) Source() *monitor.Monitor { return b.source.Load() }

// MinimalFilter implements monitor.BoundClient: the source must accept at
// least what the target wants.
func (b *Bridge) MinimalFilter() logfilter.LogFilter {
	for b.filterDirty.CompareAndSwap(true, false) {
		b.filter.Store(b.target.FinalFilter().Pack())
	}
	return logfilter.Unpack(b.filter.Load())
}

func (b *Bridge) markFilterDirty() {
	b.filterDirty.Store(true)
	if src := b.source.Load(); src != nil {
		src.SetClientMinimalFilterDirty()
	}
}

// SetMonitor implements monitor.BoundClient.
func (b *Bridge) SetMonitor(m *monitor.Monitor, forceDetach bool) error {
	if m != nil {
		if t, ok := b.target.(*Target); ok && t.monitor == m {
			return errors.NewArgumentError("monitor", "bridge target", nil)
		}
		if !b.source.CompareAndSwap(nil, m) {
			if b.source.Load() == m {
				return nil
			}
			return errors.ErrAlreadyBound
		}
		if err := b.target.Attach(b); err != nil {
			b.source.Store(nil)
			return err
		}
		b.filterDirty.Store(true)
		return nil
	}
	if b.source.Swap(nil) == nil {
		return nil
	}
	b.closeForwarded()
	b.target.Detach(b)
	if forceDetach {
		b.logger.Warn("bridge force-detached from its source")
	}
	return nil
}

// closeForwarded sends the closes still owed, then a close for every
// forwarded group, deepest first.
func (b *Bridge) closeForwarded() {
	b.mu.Lock()
	bits := b.forwarded
	b.forwarded = nil
	b.mu.Unlock()

	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	_ = b.flush()
	for depth := len(bits)*64 - 1; depth > 0; depth-- {
		if bits[depth/64]&(1<<(depth%64)) == 0 {
			continue
		}
		b.send(Message{
			Kind:        KindCloseGroup,
			Conclusions: []Conclusion{{Tag: monitor.TagClosedByBridgeRemoved, Text: ClosedByBridgeRemoved}},
		})
	}
	if n := len(b.backlog); n > 0 {
		b.logger.Warn("endpoint never accepted group closes", "closes", n)
		b.backlog = nil
	}
}

func (b *Bridge) setForwarded(depth int, on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	word := depth / 64
	if word >= len(b.forwarded) {
		if !on {
			return
		}
		grown := make([]uint64, word+1)
		copy(grown, b.forwarded)
		b.forwarded = grown
	}
	if on {
		b.forwarded[word] |= 1 << (depth % 64)
	} else {
		b.forwarded[word] &^= 1 << (depth % 64)
	}
}

// takeForwarded clears the bit for depth and returns its previous value.
func (b *Bridge) takeForwarded(depth int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	word := depth / 64
	if word >= len(b.forwarded) {
		return false
	}
	mask := uint64(1) << (depth % 64)
	was := b.forwarded[word]&mask != 0
	b.forwarded[word] &^= mask
	return was
}

// ForwardedDepths returns the depths whose groups are open on the target.
func (b *Bridge) ForwardedDepths() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []int
	for depth := 1; depth < len(b.forwarded)*64; depth++ {
		if b.forwarded[depth/64]&(1<<(depth%64)) != 0 {
			out = append(out, depth)
		}
	}
	return out
}

func (b *Bridge) accepts(level logfilter.LogLevel, group bool) bool {
	if !level.Filtered() && !b.cfg.applyTargetFilterToUnfiltered {
		return true
	}
	final := b.target.FinalFilter()
	if group {
		return final.AcceptsGroup(level)
	}
	return final.AcceptsLine(level)
}

func (b *Bridge) deliver(msg Message) bool {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	return b.send(msg)
}

// send delivers msg after the backlog. While the backlog cannot be sent,
// closes join it and everything else is dropped. The caller holds sendMu.
func (b *Bridge) send(msg Message) bool {
	msg.Source = b.id
	if err := b.flush(); err != nil {
		return b.reject(msg, err)
	}
	if err := b.target.Deliver(msg); err != nil {
		return b.reject(msg, err)
	}
	return true
}

func (b *Bridge) flush() error {
	for len(b.backlog) > 0 {
		if err := b.target.Deliver(b.backlog[0]); err != nil {
			return err
		}
		b.backlog = b.backlog[1:]
	}
	return nil
}

func (b *Bridge) reject(msg Message, err error) bool {
	if msg.Kind == KindCloseGroup {
		b.backlog = append(b.backlog, msg)
	}
	b.logger.Warn("failed to forward", "kind", msg.Kind.String(), "backlog", len(b.backlog), "error", err)
	return false
}

// Backlog returns how many group closes wait for the endpoint.
func (b *Bridge) Backlog() int {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	return len(b.backlog)
}

// OnUnfilteredLog implements monitor.Client.
func (b *Bridge) OnUnfilteredLog(d *monitor.LogData) {
	if !b.accepts(d.Level, false) {
		return
	}
	b.deliver(Message{
		Kind:     KindLog,
		Level:    d.Level,
		Text:     d.Text,
		Tags:     d.Tags.String(),
		Time:     d.Time,
		Err:      errorText(d.Err),
		Location: d.Location,
	})
}

// OnOpenGroup implements monitor.Client.
func (b *Bridge) OnOpenGroup(g *monitor.Group) {
	forwarded := b.accepts(g.Level, true) && b.deliver(Message{
		Kind:     KindOpenGroup,
		Level:    g.Level,
		Text:     g.Text,
		Tags:     g.Tags.String(),
		Time:     g.OpenTime,
		Err:      errorText(g.Err),
		Location: g.Location,
	})
	b.setForwarded(g.Depth(), forwarded)
}

// OnGroupClosing implements monitor.Client.
func (b *Bridge) OnGroupClosing(*monitor.Group, *[]monitor.Conclusion) {}

// OnGroupClosed implements monitor.Client.
func (b *Bridge) OnGroupClosed(g *monitor.Group, conclusions []monitor.Conclusion) {
	if !b.takeForwarded(g.Depth()) {
		return
	}
	out := make([]Conclusion, len(conclusions))
	for i, c := range conclusions {
		out[i] = Conclusion{Tag: c.Tag.String(), Text: c.Text}
	}
	b.deliver(Message{Kind: KindCloseGroup, Time: g.CloseTime, Conclusions: out})
}

// OnTopicChanged implements monitor.Client.
func (b *Bridge) OnTopicChanged(topic string, loc monitor.Location) {
	if b.cfg.pushTopic {
		b.deliver(Message{Kind: KindTopic, Text: topic, Location: loc})
	}
}

// OnAutoTagsChanged implements monitor.Client.
func (b *Bridge) OnAutoTagsChanged(t *tags.Set) {
	if b.cfg.pushTags {
		b.deliver(Message{Kind: KindAutoTags, Tags: t.String()})
	}
}

// pull records a topic or tags change to apply on the source and asks the
// source to apply it the next time its owner enters it.
func (b *Bridge) pull(topic, tagsText *string) {
	b.syncMu.Lock()
	if topic != nil {
		b.pendingTopic = topic
	}
	if tagsText != nil {
		b.pendingTags = tagsText
	}
	b.syncMu.Unlock()
	if src := b.source.Load(); src != nil {
		src.SignalChange()
	}
}

// TakeSync implements monitor.Syncer.
func (b *Bridge) TakeSync() (monitor.SyncRequest, bool) {
	b.syncMu.Lock()
	defer b.syncMu.Unlock()
	if b.pendingTopic == nil && b.pendingTags == nil {
		return monitor.SyncRequest{}, false
	}
	req := monitor.SyncRequest{Topic: b.pendingTopic, AutoTags: b.pendingTags}
	b.pendingTopic, b.pendingTags = nil, nil
	return req, true
}

// String identifies the bridge in diagnostics.
func (b *Bridge) String() string {
	return fmt.Sprintf("bridge#%d", b.id)
}
