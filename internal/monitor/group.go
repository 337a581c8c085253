package monitor

import (
	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
	"github.com/Iron-Ham/activitymonitor/internal/logtime"
	"github.com/Iron-Ham/activitymonitor/internal/tags"
)

// Group is one slot of a monitor's group stack. Slots are reused: a *Group
// seen by a client is only meaningful during the callback. Use the
// GroupHandle returned by OpenGroup to refer to a group later.
type Group struct {
	monitor *Monitor
	index   int
	gen     uint64
	open    bool

	Level     logfilter.LogLevel
	Text      string
	Tags      *tags.Set
	OpenTime  logtime.Timestamp
	CloseTime logtime.Timestamp
	Err       error
	Location  Location

	conclude    func() string
	placeholder bool
	savedFilter logfilter.LogFilter
	savedTags   *tags.Set
}

// Monitor returns the owning monitor.
func (g *Group) Monitor() *Monitor { return g.monitor }

// Depth returns the 1-based depth of the group in the stack.
func (g *Group) Depth() int { return g.index + 1 }

// MaskedLevel returns Level without the IsFiltered flag.
func (g *Group) MaskedLevel() logfilter.LogLevel { return g.Level.Mask() }

// Parent returns the enclosing group, nil at depth 1.
func (g *Group) Parent() *Group {
	if g.index == 0 {
		return nil
	}
	return g.monitor.groups[g.index-1]
}

// IsPlaceholder reports whether the group was filtered out when opened.
// Clients are never notified about placeholders.
func (g *Group) IsPlaceholder() bool { return g.placeholder }

func (g *Group) initialize(d *GroupData, t logtime.Timestamp, groupTags *tags.Set, filter logfilter.LogFilter, autoTags *tags.Set) {
	g.open = true
	g.Level = d.Level
	g.Text = d.Text
	g.Tags = groupTags
	g.OpenTime = t
	g.CloseTime = logtime.Timestamp{}
	g.Err = d.Err
	g.Location = d.Location
	g.conclude = d.Conclude
	g.placeholder = d.Level.IsNone()
	g.savedFilter = filter
	g.savedTags = autoTags
}

func (g *Group) clear() {
	g.open = false
	g.gen++
	g.Text = ""
	g.Tags = nil
	g.Err = nil
	g.conclude = nil
	g.savedTags = nil
}

// GroupHandle refers to one opening of a group. Closing a handle twice, or
// closing it after its group was closed another way, is a no-op.
type GroupHandle struct {
	g   *Group
	gen uint64
}

// Group returns the group while it is open, nil afterwards.
func (h *GroupHandle) Group() *Group {
	if !h.IsOpen() {
		return nil
	}
	return h.g
}

// IsOpen reports whether the group this handle refers to is still open.
// Only the monitor's owner may call it.
func (h *GroupHandle) IsOpen() bool {
	return h != nil && h.g != nil && h.g.gen == h.gen && h.g.open
}

// Close closes the group without a conclusion.
func (h *GroupHandle) Close() error {
	return h.Conclude(nil)
}

// Conclude closes the group with a conclusion. Groups opened after this one
// and still open are closed first, each with a premature close conclusion.
func (h *GroupHandle) Conclude(conclusion any) error {
	return h.ConcludeAt(logtime.Timestamp{}, conclusion)
}

// ConcludeAt is Conclude with an explicit close time. A zero t means now;
// a t not after the last entry is moved forward like any entry time.
func (h *GroupHandle) ConcludeAt(t logtime.Timestamp, conclusion any) error {
	if h == nil || h.g == nil {
		return nil
	}
	m := h.g.monitor
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()
	if !h.IsOpen() {
		return nil
	}
	if err := m.checkTime(t); err != nil {
		return err
	}
	for m.depth > h.g.index+1 {
		m.closeGroup(Conclusion{Tag: m.env.Known.PrematureClose, Text: "Prematurely closed by an outer group."}, t)
	}
	m.closeGroup(conclusion, t)
	return nil
}

// closeGroup pops the top slot. Real groups run their conclusion callback,
// then OnGroupClosing and OnGroupClosed; every slot restores the filter and
// auto tags saved when it was opened.
func (m *Monitor) closeGroup(conclusion any, t logtime.Timestamp) {
	if m.depth == 0 {
		return
	}
	g := m.groups[m.depth-1]
	if !g.placeholder {
		var computed string
		if g.conclude != nil {
			computed = g.conclude()
		}
		conclusions := m.normalizeConclusion(conclusion)
		if computed != "" {
			conclusions = append(conclusions, Conclusion{Tag: m.env.Known.GetTextConclusion, Text: computed})
		}
		m.dispatch("OnGroupClosing", func(c Client) { c.OnGroupClosing(g, &conclusions) })
		g.CloseTime = m.nextTime(t)
		m.dispatch("OnGroupClosed", func(c Client) { c.OnGroupClosed(g, conclusions) })
	}
	m.restore(g.savedFilter, g.savedTags)
	g.clear()
	m.depth--
}

// push returns the next free slot, growing the stack when exhausted.
func (m *Monitor) push() *Group {
	if m.depth == len(m.groups) {
		size := len(m.groups) * 2
		if size == 0 {
			size = initialStackSize
		}
		grown := make([]*Group, size)
		copy(grown, m.groups)
		for i := len(m.groups); i < size; i++ {
			grown[i] = &Group{monitor: m, index: i}
		}
		m.groups = grown
	}
	g := m.groups[m.depth]
	m.depth++
	return g
}
