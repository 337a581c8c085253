package bridge

import (
	"fmt"

	"github.com/Iron-Ham/activitymonitor/internal/errors"
	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
	"github.com/Iron-Ham/activitymonitor/internal/logtime"
)

// ErrQueueFull is returned by Deliver when a queued target cannot accept
// more messages.
var ErrQueueFull = errors.New("bridge: target queue is full")

// ErrNoQueue is returned by Run on a target created without WithQueue.
var ErrNoQueue = errors.New("bridge: target has no queue")

// Endpoint is the receiving side of a bridge: a Target on a local monitor
// or a StreamTarget writing to another process.
type Endpoint interface {
	// FinalFilter is the filter bridges forward against.
	FinalFilter() logfilter.LogFilter
	// Deliver applies or transports one message.
	Deliver(msg Message) error
	// Attach is called when a bridge is bound to a source monitor.
	Attach(b *Bridge) error
	// Detach is called after the bridge closed its forwarded groups.
	Detach(b *Bridge)
}

// Kind identifies what a Message carries.
type Kind uint8

const (
	KindLog Kind = iota + 1
	KindOpenGroup
	KindCloseGroup
	KindTopic
	KindAutoTags
	// KindEnd closes every group still open for the message's source.
	KindEnd
	// KindFilter carries a target's final filter back to a StreamTarget.
	KindFilter
)

var kindNames = [...]string{
	KindLog:        "log",
	KindOpenGroup:  "open",
	KindCloseGroup: "close",
	KindTopic:      "topic",
	KindAutoTags:   "autotags",
	KindEnd:        "end",
	KindFilter:     "filter",
}

func (k Kind) String() string {
	if k >= KindLog && k <= KindFilter {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Message is one forwarded event. Tags travel as text so the receiving
// monitor interns them in its own registry.
type Message struct {
	Kind        Kind
	Source      uint64
	Level       logfilter.LogLevel
	Text        string
	Tags        string
	Time        logtime.Timestamp
	Err         string
	Location    logfilter.Location
	Conclusions []Conclusion
	Filter      logfilter.LogFilter
}

// Conclusion is a group conclusion in transport form.
type Conclusion struct {
	Tag  string
	Text string
}

// RemoteError stands for an error attached to a forwarded entry.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

func remoteError(text string) error {
	if text == "" {
		return nil
	}
	return &RemoteError{Message: text}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
