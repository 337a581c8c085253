package bridge

import (
	"io"

	"github.com/Iron-Ham/activitymonitor/internal/event"
	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
	"github.com/Iron-Ham/activitymonitor/internal/logging"
)

// Option configures a Bridge.
type Option func(*config)

type config struct {
	pullTopic                     bool
	pullTags                      bool
	pushTopic                     bool
	pushTags                      bool
	applyTargetFilterToUnfiltered bool
	logger                        *logging.Logger
}

// PullTopic makes the source monitor follow the target's topic.
func PullTopic() Option {
	return func(c *config) { c.pullTopic = true }
}

// PullTags makes the source monitor follow the target's auto tags.
func PullTags() Option {
	return func(c *config) { c.pullTags = true }
}

// PushTopic sends the source's topic changes to the target.
func PushTopic() Option {
	return func(c *config) { c.pushTopic = true }
}

// PushTags sends the source's auto tags changes to the target.
func PushTags() Option {
	return func(c *config) { c.pushTags = true }
}

// ApplyTargetFilterToUnfiltered filters entries that reached the source
// without filtering (no IsFiltered flag) against the target's filter too.
// By default they are always forwarded.
func ApplyTargetFilterToUnfiltered() Option {
	return func(c *config) { c.applyTargetFilterToUnfiltered = true }
}

// WithLogger sets the logger for the bridge.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// TargetOption configures a Target.
type TargetOption func(*targetConfig)

type targetConfig struct {
	honorFilter bool
	queueSize   int
	logger      *logging.Logger
	bus         *event.Bus
}

// WithHonorFilter controls whether bridges see the target monitor's filter.
// When false the target's final filter is Undefined and bridges forward
// whatever their source accepts. Defaults to true.
func WithHonorFilter(honor bool) TargetOption {
	return func(c *targetConfig) { c.honorFilter = honor }
}

// WithQueue makes Deliver enqueue messages instead of applying them. The
// target monitor's owner applies them with Drain or Run. A size of zero or
// less disables queuing.
func WithQueue(size int) TargetOption {
	return func(c *targetConfig) { c.queueSize = size }
}

// WithTargetLogger sets the logger for the target.
func WithTargetLogger(logger *logging.Logger) TargetOption {
	return func(c *targetConfig) { c.logger = logger }
}

// WithBus publishes bridge attach and detach events on bus.
func WithBus(bus *event.Bus) TargetOption {
	return func(c *targetConfig) { c.bus = bus }
}

// StreamOption configures a StreamTarget or Serve.
type StreamOption func(*streamConfig)

type streamConfig struct {
	filter   logfilter.LogFilter
	compress bool
	maxConns int
	maxFrame int
	control  io.Writer
	logger   *logging.Logger
}

const defaultMaxFrame = 1 << 20

// WithStaticFilter sets the filter a StreamTarget reports to its bridges
// until a control frame replaces it.
func WithStaticFilter(f logfilter.LogFilter) StreamOption {
	return func(c *streamConfig) { c.filter = f }
}

// WithCompression compresses the frame stream with zstd. Both ends must
// agree.
func WithCompression() StreamOption {
	return func(c *streamConfig) { c.compress = true }
}

// WithMaxConnections bounds the connections ServeListener handles at once.
// Zero means unlimited.
func WithMaxConnections(n int) StreamOption {
	return func(c *streamConfig) { c.maxConns = n }
}

// WithMaxFrameSize bounds the size of one decoded frame.
func WithMaxFrameSize(n int) StreamOption {
	return func(c *streamConfig) { c.maxFrame = n }
}

// WithControl makes Serve send the target's final filter, topic and auto
// tags to w, now and on every change. The StreamTarget on the other end
// reads them with ReadControl. Control frames are never compressed.
func WithControl(w io.Writer) StreamOption {
	return func(c *streamConfig) { c.control = w }
}

// WithStreamLogger sets the logger for stream endpoints.
func WithStreamLogger(logger *logging.Logger) StreamOption {
	return func(c *streamConfig) { c.logger = logger }
}

func newStreamConfig(opts []StreamOption) *streamConfig {
	cfg := &streamConfig{maxFrame: defaultMaxFrame}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.maxFrame <= 0 {
		cfg.maxFrame = defaultMaxFrame
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	return cfg
}
