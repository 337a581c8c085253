package config

import (
	"fmt"

	"github.com/Iron-Ham/activitymonitor/internal/bridge"
	"github.com/Iron-Ham/activitymonitor/internal/critical"
	"github.com/Iron-Ham/activitymonitor/internal/event"
	"github.com/Iron-Ham/activitymonitor/internal/logging"
	"github.com/Iron-Ham/activitymonitor/internal/monitor"
)

// NewLogger builds the diagnostic logger described by the logging section.
// When logging is disabled it returns a logger that discards everything.
func (c *Config) NewLogger() (*logging.Logger, error) {
	if !c.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	if c.Logging.File != "" {
		return logging.NewFileLogger(c.Logging.File, c.Logging.Level)
	}
	return logging.NewLogger(nil, c.Logging.Level), nil
}

// NewEnv builds a monitor.Env from the configuration: the default filter,
// a critical.Collector sized by the critical section and a source filter
// holding the configured rules. The overrides file is not read here; see
// WatchOverrides. bus and logger may be nil.
func (c *Config) NewEnv(bus *event.Bus, logger *logging.Logger) (*monitor.Env, *critical.Collector, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	collector := critical.New(
		critical.WithCapacity(c.Critical.Capacity),
		critical.WithBus(bus),
		critical.WithLogger(logger),
	)
	env := monitor.NewEnv(
		monitor.WithDefaultFilter(c.Monitor.DefaultFilter),
		monitor.WithCollector(collector),
		monitor.WithBus(bus),
		monitor.WithLogger(logger),
	)
	if _, err := ApplyRules(env.Sources, c.Sources.Rules, nil); err != nil {
		return nil, nil, fmt.Errorf("failed to install source rules: %w", err)
	}
	return env, collector, nil
}

// MonitorOptions returns the options that give a new monitor in env the
// configured filter, topic and auto tags.
func (c *Config) MonitorOptions(env *monitor.Env) []monitor.Option {
	opts := []monitor.Option{
		monitor.WithEnv(env),
		monitor.WithFilter(c.Monitor.MinimalFilter),
	}
	if c.Monitor.Topic != "" {
		opts = append(opts, monitor.WithTopic(c.Monitor.Topic))
	}
	if len(c.Monitor.AutoTags) > 0 {
		opts = append(opts, monitor.WithAutoTags(env.Tags.Register(c.Monitor.AutoTags...)))
	}
	return opts
}

// BridgeOptions returns the bridge options selected by the bridge section.
func (c *Config) BridgeOptions(logger *logging.Logger) []bridge.Option {
	var opts []bridge.Option
	if c.Bridge.PullTopic {
		opts = append(opts, bridge.PullTopic())
	}
	if c.Bridge.PullTags {
		opts = append(opts, bridge.PullTags())
	}
	if c.Bridge.PushTopic {
		opts = append(opts, bridge.PushTopic())
	}
	if c.Bridge.PushTags {
		opts = append(opts, bridge.PushTags())
	}
	if c.Bridge.ApplyTargetFilter {
		opts = append(opts, bridge.ApplyTargetFilterToUnfiltered())
	}
	if logger != nil {
		opts = append(opts, bridge.WithLogger(logger))
	}
	return opts
}

// TargetOptions returns the bridge target options selected by the bridge
// section.
func (c *Config) TargetOptions(bus *event.Bus, logger *logging.Logger) []bridge.TargetOption {
	opts := []bridge.TargetOption{
		bridge.WithHonorFilter(c.Bridge.HonorTargetFilter),
		bridge.WithQueue(c.Bridge.QueueSize),
	}
	if bus != nil {
		opts = append(opts, bridge.WithBus(bus))
	}
	if logger != nil {
		opts = append(opts, bridge.WithTargetLogger(logger))
	}
	return opts
}

// StreamOptions returns the stream options selected by the bridge section.
// Both ends of a stream must be built from matching configurations.
func (c *Config) StreamOptions(logger *logging.Logger) []bridge.StreamOption {
	opts := []bridge.StreamOption{
		bridge.WithMaxConnections(c.Bridge.MaxConnections),
		bridge.WithMaxFrameSize(c.Bridge.MaxFrameBytes),
	}
	if c.Bridge.Compress {
		opts = append(opts, bridge.WithCompression())
	}
	if logger != nil {
		opts = append(opts, bridge.WithStreamLogger(logger))
	}
	return opts
}
