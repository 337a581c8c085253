// Package testutil provides testing utilities for activity monitor tests.
package testutil

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/activitymonitor/internal/monitor"
	"github.com/Iron-Ham/activitymonitor/internal/tags"
)

// Recorder is a monitor client that records every callback as a line such
// as "log b", "open G1", "closing G1 [done]" or "closed G1 [done]".
type Recorder struct {
	mu     sync.Mutex
	events []string
	logs   []monitor.LogData
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

// OnUnfilteredLog implements monitor.Client.
func (r *Recorder) OnUnfilteredLog(d *monitor.LogData) {
	r.mu.Lock()
	r.logs = append(r.logs, *d)
	r.mu.Unlock()
	r.add("log %s", d.Text)
}

// OnOpenGroup implements monitor.Client.
func (r *Recorder) OnOpenGroup(g *monitor.Group) {
	r.add("open %s", g.Text)
}

// OnGroupClosing implements monitor.Client.
func (r *Recorder) OnGroupClosing(g *monitor.Group, conclusions *[]monitor.Conclusion) {
	r.add("closing %s %s", g.Text, FormatConclusions(*conclusions))
}

// OnGroupClosed implements monitor.Client.
func (r *Recorder) OnGroupClosed(g *monitor.Group, conclusions []monitor.Conclusion) {
	r.add("closed %s %s", g.Text, FormatConclusions(conclusions))
}

// OnTopicChanged implements monitor.Client.
func (r *Recorder) OnTopicChanged(topic string, _ monitor.Location) {
	r.add("topic %s", topic)
}

// OnAutoTagsChanged implements monitor.Client.
func (r *Recorder) OnAutoTagsChanged(t *tags.Set) {
	r.add("tags %s", t.String())
}

// Events returns a copy of the recorded lines.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

// Filter returns the recorded lines starting with prefix.
func (r *Recorder) Filter(prefix string) []string {
	var out []string
	for _, e := range r.Events() {
		if strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}

// Logs returns copies of the received log data.
func (r *Recorder) Logs() []monitor.LogData {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]monitor.LogData, len(r.logs))
	copy(out, r.logs)
	return out
}

// Reset forgets everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.logs = nil
}

// FormatConclusions renders conclusions as "[a, b]".
func FormatConclusions(conclusions []monitor.Conclusion) string {
	texts := make([]string, len(conclusions))
	for i, c := range conclusions {
		texts[i] = c.Text
	}
	return "[" + strings.Join(texts, ", ") + "]"
}

// AssertEvents fails the test when got differs from want.
func AssertEvents(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// Collector is an ErrorCollector that keeps everything it receives.
type Collector struct {
	mu       sync.Mutex
	errs     []error
	comments []string
}

// Add implements monitor.ErrorCollector.
func (c *Collector) Add(err error, comment string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
	c.comments = append(c.comments, comment)
}

// Errors returns the collected errors.
func (c *Collector) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]error, len(c.errs))
	copy(out, c.errs)
	return out
}

// Comments returns the collected comments.
func (c *Collector) Comments() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.comments))
	copy(out, c.comments)
	return out
}

// FixedClock returns a clock stuck at t, which forces the monitor to
// uniquify every timestamp.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
