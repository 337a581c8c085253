// Package monitor implements the activity monitor: a per-activity
// orchestrator that serializes log lines and nested groups, filters them
// with a two-axis LogFilter and dispatches what it accepts to clients.
//
// A monitor has a single logical owner at a time. Every mutating operation
// claims it with an atomic compare-and-swap on the caller's goroutine id and
// fails fast instead of interleaving: a ReentrancyError for a callback that
// calls back into its monitor, a ConcurrentAccessError for a second
// goroutine. Producers that really run concurrently use one monitor each and
// fan in through bridges.
//
// Registering and unregistering clients, reading the actual filter and
// signalling changes are safe from any goroutine.
package monitor

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Iron-Ham/activitymonitor/internal/errors"
	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
	"github.com/Iron-Ham/activitymonitor/internal/logging"
	"github.com/Iron-Ham/activitymonitor/internal/logtime"
	"github.com/Iron-Ham/activitymonitor/internal/tags"
)

const initialStackSize = 8

// Monitor is the activity monitor.
type Monitor struct {
	id       uuid.UUID
	idString string
	env      *Env
	logger   *logging.Logger

	entered     atomic.Int64
	syncPending atomic.Bool

	configured   atomic.Uint32
	clientFilter atomic.Uint32
	actual       atomic.Uint32
	clientDirty  atomic.Bool
	listener     atomic.Pointer[listenerRef]

	clients  atomic.Pointer[[]Client]
	topic    atomic.Pointer[string]
	autoTags atomic.Pointer[tags.Set]

	// Owned by the goroutine holding the guard.
	groups   []*Group
	depth    int
	lastTime logtime.Timestamp
	closed   bool
}

type listenerRef struct{ l FilterListener }

// Option configures a Monitor.
type Option func(*Monitor)

// WithEnv sets the environment. Monitors that bridge to each other do not
// need to share one.
func WithEnv(env *Env) Option {
	return func(m *Monitor) { m.env = env }
}

// WithID sets the monitor's unique id instead of a random one.
func WithID(id uuid.UUID) Option {
	return func(m *Monitor) { m.id = id }
}

// WithTopic sets the initial topic silently.
func WithTopic(topic string) Option {
	return func(m *Monitor) { m.topic.Store(&topic) }
}

// WithFilter sets the initial configured filter silently.
func WithFilter(f logfilter.LogFilter) Option {
	return func(m *Monitor) { m.configured.Store(f.Pack()) }
}

// WithAutoTags sets the initial auto tags silently. The set must come from
// the environment's registry.
func WithAutoTags(t *tags.Set) Option {
	return func(m *Monitor) { m.autoTags.Store(t) }
}

// New creates a monitor. Without WithEnv it gets a private environment.
func New(opts ...Option) *Monitor {
	m := &Monitor{id: uuid.New()}
	empty := ""
	m.topic.Store(&empty)
	for _, opt := range opts {
		opt(m)
	}
	if m.env == nil {
		m.env = NewEnv()
	}
	m.autoTags.Store(m.env.Tags.Import(m.autoTags.Load()))
	m.idString = m.id.String()
	m.logger = m.env.Logger.WithMonitor(m.idString)
	m.actual.Store(m.configured.Load())
	return m
}

// UniqueID returns the monitor's id.
func (m *Monitor) UniqueID() uuid.UUID { return m.id }

// Env returns the monitor's environment.
func (m *Monitor) Env() *Env { return m.env }

// Topic returns the current topic.
func (m *Monitor) Topic() string { return *m.topic.Load() }

// AutoTags returns the tags added to every entry.
func (m *Monitor) AutoTags() *tags.Set { return m.autoTags.Load() }

// MinimalFilter returns the configured filter.
func (m *Monitor) MinimalFilter() logfilter.LogFilter {
	return logfilter.Unpack(m.configured.Load())
}

// ActualFilter returns the configured filter combined with the minimal
// filters of bound clients. The client part is recomputed lazily after
// SetClientMinimalFilterDirty. Safe for concurrent use.
func (m *Monitor) ActualFilter() logfilter.LogFilter {
	for m.clientDirty.CompareAndSwap(true, false) {
		var f logfilter.LogFilter
		for _, c := range m.clientList() {
			if b, ok := c.(BoundClient); ok {
				f = f.Combine(b.MinimalFilter())
			}
		}
		m.clientFilter.Store(f.Pack())
		m.recomputeActual()
	}
	return logfilter.Unpack(m.actual.Load())
}

func (m *Monitor) computeActual() uint32 {
	return m.MinimalFilter().Combine(logfilter.Unpack(m.clientFilter.Load())).Pack()
}

func (m *Monitor) recomputeActual() {
	for {
		f := m.computeActual()
		old := m.actual.Swap(f)
		if m.computeActual() != f {
			continue
		}
		if old != f {
			m.notifyListener()
		}
		return
	}
}

// SetClientMinimalFilterDirty tells the monitor that a bound client's
// minimal filter changed. Safe for concurrent use.
func (m *Monitor) SetClientMinimalFilterDirty() {
	if !m.clientDirty.Swap(true) {
		m.notifyListener()
	}
}

// SetFilterListener installs the single listener told about actual filter
// changes. Pass nil to remove it.
func (m *Monitor) SetFilterListener(l FilterListener) {
	if l == nil {
		m.listener.Store(nil)
		return
	}
	m.listener.Store(&listenerRef{l: l})
}

func (m *Monitor) notifyListener() {
	if ref := m.listener.Load(); ref != nil {
		ref.l.OnActualFilterChanged(m)
	}
}

// EffectiveFilter resolves the filter that applies at loc: a source
// override when one matches, else the actual filter, with Undefined axes
// taken from the default filter.
func (m *Monitor) EffectiveFilter(loc Location) logfilter.LogFilter {
	actual := m.ActualFilter()
	if loc.File != "" && !m.env.Sources.IsEmpty() {
		if o, ok := m.env.Sources.Lookup(loc); ok {
			return o.Effective(actual, m.env.DefaultFilter)
		}
	}
	return actual.CombineUndefinedOnly(m.env.DefaultFilter)
}

// ShouldLogLine reports whether a line at level would be accepted at loc.
func (m *Monitor) ShouldLogLine(level logfilter.LogLevel, loc Location) bool {
	return m.EffectiveFilter(loc).AcceptsLine(level)
}

// ShouldOpenGroup reports whether a group at level would be accepted at loc.
func (m *Monitor) ShouldOpenGroup(level logfilter.LogLevel, loc Location) bool {
	return m.EffectiveFilter(loc).AcceptsGroup(level)
}

// callerLocation returns the call site frames above the monitor method
// that resolves the location.
func callerLocation(frames int) Location {
	_, file, line, ok := runtime.Caller(frames + 1)
	if !ok {
		return Location{}
	}
	return Location{File: file, Line: line}
}

// location returns given, or the caller's call site when source filters
// are configured. frames counts the monitor methods between location and
// the caller.
func (m *Monitor) location(given Location, frames int) Location {
	if given.File != "" || m.env.Sources.IsEmpty() {
		return given
	}
	return callerLocation(frames + 1)
}

// Log emits a line at level when the filters accept it. A level carrying
// IsFiltered skips filtering.
func (m *Monitor) Log(level logfilter.LogLevel, text string, opts ...EntryOption) error {
	return m.log(level, text, opts)
}

// Debug logs at Debug level.
func (m *Monitor) Debug(text string, opts ...EntryOption) error {
	return m.log(logfilter.Debug, text, opts)
}

// Trace logs at Trace level.
func (m *Monitor) Trace(text string, opts ...EntryOption) error {
	return m.log(logfilter.Trace, text, opts)
}

// Info logs at Info level.
func (m *Monitor) Info(text string, opts ...EntryOption) error {
	return m.log(logfilter.Info, text, opts)
}

// Warn logs at Warn level.
func (m *Monitor) Warn(text string, opts ...EntryOption) error {
	return m.log(logfilter.Warn, text, opts)
}

// Error logs at Error level.
func (m *Monitor) Error(text string, opts ...EntryOption) error {
	return m.log(logfilter.Error, text, opts)
}

// Fatal logs at Fatal level.
func (m *Monitor) Fatal(text string, opts ...EntryOption) error {
	return m.log(logfilter.Fatal, text, opts)
}

func (m *Monitor) log(level logfilter.LogLevel, text string, opts []EntryOption) error {
	e := buildEntry(opts)
	loc := m.location(e.location, 2)
	if !level.Filtered() {
		if !m.ShouldLogLine(level, loc) {
			return nil
		}
		level |= logfilter.IsFiltered
	}
	return m.UnfilteredLog(&LogData{
		Level:    level,
		Text:     text,
		Tags:     e.tags,
		Time:     e.time,
		Err:      e.err,
		Location: loc,
	})
}

// UnfilteredLog emits d without filtering. The level must not be None.
func (m *Monitor) UnfilteredLog(d *LogData) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()
	return m.unfilteredLog(d)
}

func (m *Monitor) checkTime(t logtime.Timestamp) error {
	if !t.IsZero() && !t.IsUTC() {
		return errors.NewArgumentError("time", t.Time, errors.ErrNonUTCTime)
	}
	return nil
}

func (m *Monitor) checkEntry(t logtime.Timestamp, s *tags.Set) error {
	if err := m.checkTime(t); err != nil {
		return err
	}
	if !m.env.Tags.Owns(s) {
		return errors.NewArgumentError("tags", s.String(), errors.ErrUnregisteredTag)
	}
	return nil
}

func (m *Monitor) unfilteredLog(d *LogData) error {
	if d == nil || d.Level.IsNone() {
		return errors.NewArgumentError("level", logfilter.None, errors.ErrFilteredLevel)
	}
	if err := m.checkEntry(d.Time, d.Tags); err != nil {
		return err
	}
	if d.Err != nil {
		_ = m.openGroup(&GroupData{
			Level:    d.Level,
			Text:     d.Text,
			Tags:     d.Tags,
			Time:     d.Time,
			Err:      d.Err,
			Location: d.Location,
		})
		m.closeGroup(nil, d.Time)
		return nil
	}
	data := *d
	data.Tags = m.env.Tags.Union(d.Tags, m.AutoTags())
	data.Time = m.nextTime(d.Time)
	data.Depth = m.depth
	m.dispatch("OnUnfilteredLog", func(c Client) { c.OnUnfilteredLog(&data) })
	return nil
}

// OpenGroup opens a group at level. When the filters reject it the group
// is a silent placeholder that still has to be closed.
func (m *Monitor) OpenGroup(level logfilter.LogLevel, text string, opts ...EntryOption) (*GroupHandle, error) {
	e := buildEntry(opts)
	loc := m.location(e.location, 1)
	if !level.Filtered() {
		if m.ShouldOpenGroup(level, loc) {
			level |= logfilter.IsFiltered
		} else {
			level = logfilter.None
		}
	}
	return m.UnfilteredOpenGroup(&GroupData{
		Level:    level,
		Text:     text,
		Tags:     e.tags,
		Time:     e.time,
		Err:      e.err,
		Location: loc,
		Conclude: e.conclude,
	})
}

// UnfilteredOpenGroup opens a group without filtering. A None level opens a
// placeholder: it takes a stack slot and saves and restores the filter and
// auto tags, but clients never hear about it.
func (m *Monitor) UnfilteredOpenGroup(d *GroupData) (*GroupHandle, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.leave()
	if d == nil {
		d = &GroupData{}
	}
	if err := m.checkEntry(d.Time, d.Tags); err != nil {
		return nil, err
	}
	g := m.openGroup(d)
	return &GroupHandle{g: g, gen: g.gen}, nil
}

func (m *Monitor) openGroup(d *GroupData) *Group {
	filter := m.MinimalFilter()
	autoTags := m.AutoTags()
	g := m.push()
	if d.Level.IsNone() {
		g.initialize(d, logtime.Timestamp{}, nil, filter, autoTags)
		return g
	}
	t := m.nextTime(d.Time)
	g.initialize(d, t, m.env.Tags.Union(d.Tags, autoTags), filter, autoTags)
	m.dispatch("OnOpenGroup", func(c Client) { c.OnOpenGroup(g) })
	return g
}

// CloseGroup closes the current group with an optional conclusion: a
// string, a Conclusion, a []Conclusion, a []string or any value rendered as
// text. Closing with nothing open does nothing.
func (m *Monitor) CloseGroup(conclusion any) error {
	return m.CloseGroupAt(logtime.Timestamp{}, conclusion)
}

// CloseGroupAt is CloseGroup with an explicit close time, which must be UTC.
// A zero t means now.
func (m *Monitor) CloseGroupAt(t logtime.Timestamp, conclusion any) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()
	if err := m.checkTime(t); err != nil {
		return err
	}
	m.closeGroup(conclusion, t)
	return nil
}

// restore reinstates the filter and auto tags saved by a closing group.
// It does not log; clients hear about auto tags changes.
func (m *Monitor) restore(filter logfilter.LogFilter, autoTags *tags.Set) {
	if m.MinimalFilter() != filter {
		m.configured.Store(filter.Pack())
		m.recomputeActual()
	}
	if m.AutoTags() != autoTags {
		m.autoTags.Store(autoTags)
		m.dispatch("OnAutoTagsChanged", func(c Client) { c.OnAutoTagsChanged(autoTags) })
	}
}

// SetMinimalFilter changes the configured filter and logs the change. The
// previous filter comes back when the current group closes.
func (m *Monitor) SetMinimalFilter(f logfilter.LogFilter) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()
	old := m.MinimalFilter()
	if old == f {
		return nil
	}
	m.configured.Store(f.Pack())
	m.recomputeActual()
	return m.unfilteredLog(&LogData{
		Level: logfilter.Info,
		Text:  fmt.Sprintf("Configured filter changed from %s to %s.", old, f),
		Tags:  m.env.Known.MonitorFilterChanged,
	})
}

// SetAutoTags changes the tags added to every entry and logs the change.
// The previous tags come back when the current group closes.
func (m *Monitor) SetAutoTags(t *tags.Set) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()
	if !m.env.Tags.Owns(t) {
		return errors.NewArgumentError("tags", t.String(), errors.ErrUnregisteredTag)
	}
	m.setAutoTags(t)
	return nil
}

func (m *Monitor) setAutoTags(t *tags.Set) {
	t = m.env.Tags.Import(t)
	if m.AutoTags() == t {
		return
	}
	m.autoTags.Store(t)
	m.dispatch("OnAutoTagsChanged", func(c Client) { c.OnAutoTagsChanged(t) })
	_ = m.unfilteredLog(&LogData{
		Level: logfilter.Info,
		Text:  "AutoTags: " + t.String() + ".",
		Tags:  m.env.Known.MonitorAutoTagsChanged,
	})
}

// SetTopic changes the topic when it differs, notifies clients and logs it.
func (m *Monitor) SetTopic(topic string) error {
	loc := m.location(Location{}, 1)
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()
	m.setTopic(topic, loc)
	return nil
}

func (m *Monitor) setTopic(topic string, loc Location) {
	if m.Topic() == topic {
		return
	}
	m.topic.Store(&topic)
	m.dispatch("OnTopicChanged", func(c Client) { c.OnTopicChanged(topic, loc) })
	_ = m.unfilteredLog(&LogData{
		Level:    logfilter.Info,
		Text:     "Topic: " + topic,
		Tags:     m.env.Known.MonitorTopicChanged,
		Location: loc,
	})
}

// nextTime returns t when it is after the last emitted time, otherwise the
// next unique time. A zero t means now.
func (m *Monitor) nextTime(t logtime.Timestamp) logtime.Timestamp {
	switch {
	case t.IsZero():
		t = logtime.Next(m.lastTime, m.env.now())
	case t.Compare(m.lastTime) <= 0:
		t = logtime.Next(m.lastTime, t.Time)
	}
	m.lastTime = t
	return t
}

// NextLogTime returns the time the next entry would get if logged now,
// without consuming it. Only the owner may call it.
func (m *Monitor) NextLogTime() logtime.Timestamp {
	return logtime.Next(m.lastTime, m.env.now())
}

// UnfilteredLogStamped logs an entry whose text depends on its own time.
// The time is taken under the guard, after any pending topic or filter
// change has been logged, and is returned with the entry.
func (m *Monitor) UnfilteredLogStamped(level logfilter.LogLevel, s *tags.Set, text func(logtime.Timestamp) string) (logtime.Timestamp, error) {
	if err := m.enter(); err != nil {
		return logtime.Timestamp{}, err
	}
	defer m.leave()
	t := m.NextLogTime()
	if err := m.unfilteredLog(&LogData{Level: level, Text: text(t), Tags: s, Time: t}); err != nil {
		return logtime.Timestamp{}, err
	}
	return t, nil
}

// Depth returns the number of open groups, placeholders included. Only the
// owner may call it.
func (m *Monitor) Depth() int { return m.depth }

// CurrentGroup returns the innermost open group or nil. Only the owner may
// call it.
func (m *Monitor) CurrentGroup() *Group {
	if m.depth == 0 {
		return nil
	}
	return m.groups[m.depth-1]
}

// Close ends the activity: it closes every open group, logs "Done." and
// detaches every client. Closing twice does nothing.
func (m *Monitor) Close() error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.leave()
	if m.closed {
		return nil
	}
	m.closed = true
	end := Conclusion{Tag: m.env.Known.MonitorEnd, Text: "Closed by monitor end."}
	for m.depth > 0 {
		m.closeGroup(end, logtime.Timestamp{})
	}
	_ = m.unfilteredLog(&LogData{
		Level: logfilter.Info,
		Text:  "Done.",
		Tags:  m.env.Known.MonitorEnd,
	})
	for _, c := range m.Clients() {
		m.UnregisterClient(c)
	}
	m.logger.Debug("monitor closed")
	return nil
}
