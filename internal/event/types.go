// Package event defines the notifications the activity monitor publishes
// about itself, outside of the activity stream.
package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "critical.error").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Event type identifiers.
const (
	TypeCriticalError     = "critical.error"
	TypeClientDetached    = "client.detached"
	TypeBridgeAttached    = "bridge.attached"
	TypeBridgeDetached    = "bridge.detached"
	TypeOverridesReloaded = "overrides.reloaded"
)

// CriticalErrorEvent is emitted when an otherwise unhandled error reaches
// the critical error collector.
type CriticalErrorEvent struct {
	baseEvent
	Sequence uint64
	Err      error
	Comment  string
}

// NewCriticalErrorEvent creates a CriticalErrorEvent.
func NewCriticalErrorEvent(seq uint64, err error, comment string) CriticalErrorEvent {
	return CriticalErrorEvent{
		baseEvent: newBaseEvent(TypeCriticalError),
		Sequence:  seq,
		Err:       err,
		Comment:   comment,
	}
}

// ClientDetachedEvent is emitted when a monitor force-detaches a failing client.
type ClientDetachedEvent struct {
	baseEvent
	MonitorID  string
	ClientType string
}

// NewClientDetachedEvent creates a ClientDetachedEvent.
func NewClientDetachedEvent(monitorID, clientType string) ClientDetachedEvent {
	return ClientDetachedEvent{
		baseEvent:  newBaseEvent(TypeClientDetached),
		MonitorID:  monitorID,
		ClientType: clientType,
	}
}

// BridgeEvent is emitted when a bridge is attached to or detached from a target.
type BridgeEvent struct {
	baseEvent
	TargetMonitorID string
	Bridges         int
}

// NewBridgeAttachedEvent creates a bridge.attached BridgeEvent.
func NewBridgeAttachedEvent(targetMonitorID string, bridges int) BridgeEvent {
	return BridgeEvent{
		baseEvent:       newBaseEvent(TypeBridgeAttached),
		TargetMonitorID: targetMonitorID,
		Bridges:         bridges,
	}
}

// NewBridgeDetachedEvent creates a bridge.detached BridgeEvent.
func NewBridgeDetachedEvent(targetMonitorID string, bridges int) BridgeEvent {
	return BridgeEvent{
		baseEvent:       newBaseEvent(TypeBridgeDetached),
		TargetMonitorID: targetMonitorID,
		Bridges:         bridges,
	}
}

// OverridesReloadedEvent is emitted after a source overrides file is re-read.
type OverridesReloadedEvent struct {
	baseEvent
	Path  string
	Rules int
	Err   error
}

// NewOverridesReloadedEvent creates an OverridesReloadedEvent.
func NewOverridesReloadedEvent(path string, rules int, err error) OverridesReloadedEvent {
	return OverridesReloadedEvent{
		baseEvent: newBaseEvent(TypeOverridesReloaded),
		Path:      path,
		Rules:     rules,
		Err:       err,
	}
}
