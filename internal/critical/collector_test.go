package critical

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Iron-Ham/activitymonitor/internal/event"
	"github.com/Iron-Ham/activitymonitor/internal/logging"
)

func TestCollector_Add(t *testing.T) {
	c := New()

	c.Add(errors.New("first"), "client *a")
	c.Add(nil, "no error")

	entries := c.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(Entries()) = %d, want 2", len(entries))
	}
	if entries[0].Sequence != 1 || entries[1].Sequence != 2 {
		t.Errorf("sequences = %d, %d, want 1, 2", entries[0].Sequence, entries[1].Sequence)
	}
	if entries[0].Comment != "client *a" {
		t.Errorf("Comment = %q, want %q", entries[0].Comment, "client *a")
	}
}

func TestCollector_Capacity(t *testing.T) {
	c := New(WithCapacity(2))

	for i := 0; i < 5; i++ {
		c.Add(errors.New("e"), "")
	}

	if c.Count() != 2 {
		t.Errorf("Count() = %d, want 2", c.Count())
	}
	if c.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", c.Dropped())
	}
	if got := c.Entries()[0].Sequence; got != 4 {
		t.Errorf("oldest retained sequence = %d, want 4", got)
	}

	c.Clear()
	if c.Count() != 0 {
		t.Errorf("Count() after Clear = %d, want 0", c.Count())
	}
}

func TestCollector_PublishesAndLogs(t *testing.T) {
	var buf bytes.Buffer
	bus := event.NewBus(nil)
	var got []event.CriticalErrorEvent
	bus.Subscribe(event.TypeCriticalError, func(e event.Event) {
		got = append(got, e.(event.CriticalErrorEvent))
	})
	bus.Subscribe(event.TypeCriticalError, func(e event.Event) {
		panic("subscriber bug")
	})

	c := New(WithBus(bus), WithLogger(logging.NewLogger(&buf, logging.LevelDebug)))
	c.Add(errors.New("boom"), "client *x")

	if len(got) != 1 || got[0].Comment != "client *x" {
		t.Errorf("published events = %+v, want one with comment", got)
	}
	if !strings.Contains(buf.String(), `"error":"boom"`) {
		t.Errorf("log output = %q, want error entry", buf.String())
	}
}

func TestCollector_ConcurrentAdd(t *testing.T) {
	c := New(WithCapacity(1000))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				c.Add(errors.New("x"), "")
			}
		}()
	}
	wg.Wait()

	if c.Count() != 200 {
		t.Errorf("Count() = %d, want 200", c.Count())
	}
}
