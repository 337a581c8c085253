package event

import (
	"errors"
	"sync"
	"testing"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus(nil)

	called := false
	id := bus.Subscribe(TypeCriticalError, func(e Event) {
		called = true
	})

	if id == "" {
		t.Error("Subscribe should return a non-empty ID")
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", bus.SubscriptionCount())
	}
	if called {
		t.Error("Handler should not be called until an event is published")
	}
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus(nil)

	var received Event
	bus.Subscribe(TypeCriticalError, func(e Event) {
		received = e
	})

	bus.Publish(NewCriticalErrorEvent(1, errors.New("boom"), "client *x"))

	if received == nil {
		t.Fatal("Handler should have received the event")
	}
	ce, ok := received.(CriticalErrorEvent)
	if !ok {
		t.Fatalf("received %T, want CriticalErrorEvent", received)
	}
	if ce.Comment != "client *x" || ce.Sequence != 1 {
		t.Errorf("event = %+v, want comment and sequence preserved", ce)
	}
}

func TestBus_PublishOrder(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	bus.SubscribeAll(func(e Event) { order = append(order, "wildcard") })
	bus.Subscribe(TypeBridgeAttached, func(e Event) { order = append(order, "first") })
	bus.Subscribe(TypeBridgeAttached, func(e Event) { order = append(order, "second") })
	bus.Subscribe(TypeBridgeDetached, func(e Event) { order = append(order, "other") })

	bus.Publish(NewBridgeAttachedEvent("m", 1))

	want := []string{"first", "second", "wildcard"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestBus_PanickingHandlerIsIsolated(t *testing.T) {
	bus := NewBus(nil)

	calls := 0
	bus.Subscribe(TypeClientDetached, func(e Event) { calls++ })
	bus.Subscribe(TypeClientDetached, func(e Event) { panic("handler bug") })
	bus.Subscribe(TypeClientDetached, func(e Event) { calls++ })

	bus.Publish(NewClientDetachedEvent("m", "*x"))

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(nil)

	calls := 0
	id := bus.Subscribe(TypeOverridesReloaded, func(e Event) { calls++ })

	if !bus.Unsubscribe(id) {
		t.Error("Unsubscribe should return true for an existing subscription")
	}
	if bus.Unsubscribe(id) {
		t.Error("Unsubscribe should return false the second time")
	}

	bus.Publish(NewOverridesReloadedEvent("x.yaml", 0, nil))
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe("a.b", func(Event) {})
	bus.SubscribeAll(func(Event) {})

	bus.Clear()

	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", bus.SubscriptionCount())
	}
}

func TestBus_ConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewBus(nil)

	var mu sync.Mutex
	total := 0
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Subscribe(TypeCriticalError, func(Event) {
				mu.Lock()
				total++
				mu.Unlock()
			})
		}()
		go func() {
			defer wg.Done()
			bus.Publish(NewCriticalErrorEvent(0, nil, ""))
		}()
	}
	wg.Wait()

	if bus.SubscriptionCount() != 10 {
		t.Errorf("SubscriptionCount() = %d, want 10", bus.SubscriptionCount())
	}
	mu.Lock()
	defer mu.Unlock()
	if total > 100 {
		t.Errorf("total = %d, want at most 100 deliveries", total)
	}
}
