package monitor

import (
	"fmt"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/activitymonitor/internal/errors"
	"github.com/Iron-Ham/activitymonitor/internal/event"
	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
	"github.com/Iron-Ham/activitymonitor/internal/tags"
)

// Client observes a monitor. Callbacks run synchronously on the goroutine
// that owns the monitor at that moment; calling back into the same monitor
// from a callback returns a ReentrancyError.
//
// A callback that panics gets its client detached for good and reported to
// the environment's ErrorCollector. Other clients still receive the event.
type Client interface {
	OnUnfilteredLog(data *LogData)
	OnOpenGroup(g *Group)
	// OnGroupClosing may append conclusions.
	OnGroupClosing(g *Group, conclusions *[]Conclusion)
	OnGroupClosed(g *Group, conclusions []Conclusion)
	OnTopicChanged(topic string, loc Location)
	OnAutoTagsChanged(t *tags.Set)
}

// BoundClient is a client attached to at most one monitor that contributes
// its own minimal filter to the monitor's actual filter.
type BoundClient interface {
	Client
	MinimalFilter() logfilter.LogFilter
	// SetMonitor is called with the monitor on registration and with nil on
	// removal. forceDetach is true when the monitor drops the client after a
	// failure. Returning an error refuses the registration.
	SetMonitor(m *Monitor, forceDetach bool) error
}

// Syncer is implemented by clients that need to change the monitor from
// another goroutine. After the client calls Monitor.SignalChange, the
// monitor calls TakeSync the next time its owner enters it.
type Syncer interface {
	TakeSync() (SyncRequest, bool)
}

// SyncRequest carries changes a Syncer wants applied.
type SyncRequest struct {
	Topic    *string
	AutoTags *string
}

// FilterListener is told when a monitor's actual filter may have changed.
type FilterListener interface {
	OnActualFilterChanged(m *Monitor)
}

// NopClient implements Client with empty callbacks. Embed it to implement
// only what you need.
type NopClient struct{}

func (NopClient) OnUnfilteredLog(*LogData)             {}
func (NopClient) OnOpenGroup(*Group)                   {}
func (NopClient) OnGroupClosing(*Group, *[]Conclusion) {}
func (NopClient) OnGroupClosed(*Group, []Conclusion)   {}
func (NopClient) OnTopicChanged(string, Location)      {}
func (NopClient) OnAutoTagsChanged(*tags.Set)          {}

// Clients returns the registered clients.
func (m *Monitor) Clients() []Client {
	list := m.clientList()
	out := make([]Client, len(list))
	copy(out, list)
	return out
}

func (m *Monitor) clientList() []Client {
	if p := m.clients.Load(); p != nil {
		return *p
	}
	return nil
}

func indexOf(list []Client, c Client) int {
	for i, x := range list {
		if x == c {
			return i
		}
	}
	return -1
}

// RegisterClient adds c. Registering the same client twice is a no-op.
// Bound clients are attached first; if they refuse, a RegistrationError is
// returned and c is not added.
func (m *Monitor) RegisterClient(c Client) (Client, error) {
	if c == nil {
		return nil, errors.NewRegistrationError("cannot register client", errors.ErrNilClient)
	}
	if indexOf(m.clientList(), c) >= 0 {
		return c, nil
	}
	bound, isBound := c.(BoundClient)
	if isBound {
		if err := bound.SetMonitor(m, false); err != nil {
			return nil, errors.NewRegistrationError("client refused to attach", err).
				WithClientType(fmt.Sprintf("%T", c))
		}
	}
	for {
		old := m.clients.Load()
		var list []Client
		if old != nil {
			list = *old
		}
		if indexOf(list, c) >= 0 {
			return c, nil
		}
		next := make([]Client, len(list), len(list)+1)
		copy(next, list)
		next = append(next, c)
		if m.clients.CompareAndSwap(old, &next) {
			break
		}
	}
	if isBound {
		m.SetClientMinimalFilterDirty()
	}
	return c, nil
}

// UnregisterClient removes c and detaches it when bound. It reports whether
// c was registered.
func (m *Monitor) UnregisterClient(c Client) bool {
	if !m.removeClient(c) {
		return false
	}
	if bound, ok := c.(BoundClient); ok {
		m.safeDetach(bound, false)
		m.SetClientMinimalFilterDirty()
	}
	return true
}

func (m *Monitor) removeClient(c Client) bool {
	if c == nil {
		return false
	}
	for {
		old := m.clients.Load()
		if old == nil {
			return false
		}
		idx := indexOf(*old, c)
		if idx < 0 {
			return false
		}
		next := make([]Client, 0, len(*old)-1)
		next = append(next, (*old)[:idx]...)
		next = append(next, (*old)[idx+1:]...)
		if m.clients.CompareAndSwap(old, &next) {
			return true
		}
	}
}

func (m *Monitor) safeDetach(c BoundClient, force bool) {
	if r := panics.Try(func() { _ = c.SetMonitor(nil, force) }); r != nil {
		m.env.Collector.Add(
			errors.NewObserverFailure(fmt.Sprintf("%T", c), "SetMonitor", r.AsError()).WithStack(r.Stack),
			"detaching client from monitor "+m.idString)
	}
}

// dispatch calls fn for every registered client. A client that panics is
// reported, removed and skipped by every later dispatch.
func (m *Monitor) dispatch(callback string, fn func(Client)) {
	for _, c := range m.clientList() {
		r := panics.Try(func() { fn(c) })
		if r != nil {
			m.failClient(c, callback, r)
		}
	}
}

func (m *Monitor) failClient(c Client, callback string, r *panics.Recovered) {
	if !m.removeClient(c) {
		return
	}
	clientType := fmt.Sprintf("%T", c)
	failure := errors.NewObserverFailure(clientType, callback, r.AsError()).WithStack(r.Stack)
	m.env.Collector.Add(failure, fmt.Sprintf("client %s removed from monitor %s", clientType, m.idString))
	m.logger.Warn("client detached after failure", "client", clientType, "callback", callback)
	if bound, ok := c.(BoundClient); ok {
		m.safeDetach(bound, true)
		m.SetClientMinimalFilterDirty()
	}
	if m.env.Bus != nil {
		m.env.Bus.Publish(event.NewClientDetachedEvent(m.idString, clientType))
	}
}
