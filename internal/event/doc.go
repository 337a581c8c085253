// Package event provides a synchronous pub-sub bus for the monitor's own
// lifecycle notifications: critical errors, clients detached after a
// failure, bridges attached to or removed from a target, and reloads of the
// source overrides file.
//
// Activity (log lines and groups) never travels on this bus; it is
// delivered to monitor clients.
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publishing goroutine and protected against panics.
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypeCriticalError, func(e event.Event) {
//	    ce := e.(event.CriticalErrorEvent)
//	    fmt.Println(ce.Comment, ce.Err)
//	})
package event
