package monitor

import (
	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
	"github.com/Iron-Ham/activitymonitor/internal/logtime"
	"github.com/Iron-Ham/activitymonitor/internal/tags"
)

// Location identifies the call site of a log or group.
type Location = logfilter.Location

// LogData describes one log line. The monitor fills Time (when zero), adds
// its AutoTags to Tags and sets Depth before clients see it.
type LogData struct {
	Level    logfilter.LogLevel
	Text     string
	Tags     *tags.Set
	Time     logtime.Timestamp
	Err      error
	Location Location

	// Depth is the number of groups open when the line was logged.
	Depth int
}

// MaskedLevel returns Level without the IsFiltered flag.
func (d *LogData) MaskedLevel() logfilter.LogLevel { return d.Level.Mask() }

// GroupData describes a group to open.
type GroupData struct {
	Level    logfilter.LogLevel
	Text     string
	Tags     *tags.Set
	Time     logtime.Timestamp
	Err      error
	Location Location

	// Conclude, when set, is called on close and its non-empty result is
	// added as a conclusion tagged c:GetText.
	Conclude func() string
}

// EntryOption customizes a log line or group built by the level helpers.
type EntryOption func(*entry)

type entry struct {
	tags     *tags.Set
	err      error
	time     logtime.Timestamp
	location Location
	conclude func() string
}

// WithTags attaches tags. The set must come from the monitor's registry.
func WithTags(t *tags.Set) EntryOption {
	return func(e *entry) { e.tags = t }
}

// WithErr attaches an error. A log line carrying an error is emitted as a
// group that is opened and closed immediately.
func WithErr(err error) EntryOption {
	return func(e *entry) { e.err = err }
}

// WithTime sets the entry time. It must be UTC.
func WithTime(t logtime.Timestamp) EntryOption {
	return func(e *entry) { e.time = t }
}

// WithLocation sets the call site instead of capturing it.
func WithLocation(loc Location) EntryOption {
	return func(e *entry) { e.location = loc }
}

// WithConclude registers a conclusion callback for a group.
func WithConclude(fn func() string) EntryOption {
	return func(e *entry) { e.conclude = fn }
}

func buildEntry(opts []EntryOption) entry {
	var e entry
	for _, opt := range opts {
		opt(&e)
	}
	return e
}
