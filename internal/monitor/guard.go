package monitor

import (
	"fmt"

	"github.com/petermattis/goid"

	"github.com/Iron-Ham/activitymonitor/internal/errors"
)

// enter claims the monitor for the calling goroutine. It fails with a
// ReentrancyError when the caller already owns it and with a
// ConcurrentAccessError when another goroutine does.
func (m *Monitor) enter() error {
	id := goid.Get()
	if !m.entered.CompareAndSwap(0, id) {
		owner := m.entered.Load()
		if owner == id {
			return errors.NewReentrancyError(m.idString, id)
		}
		return errors.NewConcurrentAccessError(m.idString, owner, id)
	}
	if m.syncPending.Load() {
		m.applySync()
	}
	return nil
}

// leave releases the monitor. A mismatch means the guard is broken.
func (m *Monitor) leave() {
	id := goid.Get()
	if !m.entered.CompareAndSwap(id, 0) {
		panic(fmt.Sprintf("monitor %s: release by goroutine %d while owned by %d", m.idString, id, m.entered.Load()))
	}
}

// SignalChange asks the monitor to poll its Syncer clients the next time
// its owner enters it. Safe for concurrent use.
func (m *Monitor) SignalChange() {
	m.syncPending.Store(true)
}

func (m *Monitor) applySync() {
	for m.syncPending.CompareAndSwap(true, false) {
		for _, c := range m.clientList() {
			s, ok := c.(Syncer)
			if !ok {
				continue
			}
			req, ok := s.TakeSync()
			if !ok {
				continue
			}
			if req.Topic != nil {
				m.setTopic(*req.Topic, Location{})
			}
			if req.AutoTags != nil {
				m.setAutoTags(m.env.Tags.Parse(*req.AutoTags))
			}
		}
	}
}
