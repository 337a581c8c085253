package config

import (
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
)

// Config represents the complete activity monitor configuration
type Config struct {
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Critical CriticalConfig `mapstructure:"critical"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// MonitorConfig controls the monitors built from this configuration
type MonitorConfig struct {
	// DefaultFilter resolves the Undefined axes of every monitor's filter (default: "Trace")
	DefaultFilter logfilter.LogFilter `mapstructure:"default_filter"`
	// MinimalFilter is the initial configured filter of new monitors (default: "Undefined")
	MinimalFilter logfilter.LogFilter `mapstructure:"minimal_filter"`
	// Topic is the initial topic of new monitors
	Topic string `mapstructure:"topic"`
	// AutoTags are added to every entry of new monitors
	AutoTags []string `mapstructure:"auto_tags"`
}

// SourcesConfig controls call-site filter overrides
type SourcesConfig struct {
	// Rules are glob rules evaluated in order; the first match wins
	Rules []RuleConfig `mapstructure:"rules"`
	// OverridesFile is a YAML file of extra rules, applied after Rules
	OverridesFile string `mapstructure:"overrides_file"`
	// Watch reloads OverridesFile when it changes (default: false)
	Watch bool `mapstructure:"watch"`
}

// RuleConfig is one source rule. It is shared by the main configuration
// and the overrides file.
type RuleConfig struct {
	// Pattern is a glob over the call site's file path, "/" separated
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
	// Line restricts the rule to one line; 0 matches any line
	Line int `mapstructure:"line" yaml:"line"`
	// Override replaces the defined axes of the monitor's filter
	Override logfilter.LogFilter `mapstructure:"override" yaml:"override"`
	// Minimal is combined with the monitor's filter
	Minimal logfilter.LogFilter `mapstructure:"minimal" yaml:"minimal"`
}

// Rule converts the configuration form into a logfilter.Rule.
func (r RuleConfig) Rule() logfilter.Rule {
	return logfilter.Rule{
		Pattern: r.Pattern,
		Line:    r.Line,
		SourceOverride: logfilter.SourceOverride{
			Override: r.Override,
			Minimal:  r.Minimal,
		},
	}
}

// BridgeConfig controls bridges and bridge targets
type BridgeConfig struct {
	// HonorTargetFilter makes bridges forward against the target's filter (default: true)
	HonorTargetFilter bool `mapstructure:"honor_target_filter"`
	// QueueSize makes targets queue deliveries; 0 applies them directly
	QueueSize int `mapstructure:"queue_size"`
	// Pull and push flags select which of topic and auto tags bridges sync
	PullTopic bool `mapstructure:"pull_topic"`
	PullTags  bool `mapstructure:"pull_tags"`
	PushTopic bool `mapstructure:"push_topic"`
	PushTags  bool `mapstructure:"push_tags"`
	// ApplyTargetFilter filters unfiltered entries against the target too (default: false)
	ApplyTargetFilter bool `mapstructure:"apply_target_filter"`
	// Compress compresses stream bridges with zstd (default: false)
	Compress bool `mapstructure:"compress"`
	// Listen is the address stream bridges are served on, e.g. "127.0.0.1:7070"
	Listen string `mapstructure:"listen"`
	// MaxConnections bounds concurrently served streams; 0 = unlimited
	MaxConnections int `mapstructure:"max_connections"`
	// MaxFrameBytes bounds one stream frame (default: 1048576)
	MaxFrameBytes int `mapstructure:"max_frame_bytes"`
}

// CriticalConfig controls the critical error collector
type CriticalConfig struct {
	// Capacity is the number of errors kept (default: 128)
	Capacity int `mapstructure:"capacity"`
}

// LoggingConfig controls diagnostic logging of the library itself
type LoggingConfig struct {
	// Enabled controls whether diagnostics are written (default: false)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// File is the diagnostics file; empty writes to stderr
	File string `mapstructure:"file"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Monitor: MonitorConfig{
			DefaultFilter: logfilter.TraceFilter,
			MinimalFilter: logfilter.UndefinedFilter,
			Topic:         "",
			AutoTags:      []string{},
		},
		Sources: SourcesConfig{
			Rules:         []RuleConfig{},
			OverridesFile: "",
			Watch:         false,
		},
		Bridge: BridgeConfig{
			HonorTargetFilter: true,
			QueueSize:         0,
			MaxConnections:    0,
			MaxFrameBytes:     1 << 20,
		},
		Critical: CriticalConfig{
			Capacity: 128,
		},
		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values with v
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	// Monitor defaults
	v.SetDefault("monitor.default_filter", defaults.Monitor.DefaultFilter.String())
	v.SetDefault("monitor.minimal_filter", defaults.Monitor.MinimalFilter.String())
	v.SetDefault("monitor.topic", defaults.Monitor.Topic)
	v.SetDefault("monitor.auto_tags", defaults.Monitor.AutoTags)

	// Source defaults
	v.SetDefault("sources.rules", defaults.Sources.Rules)
	v.SetDefault("sources.overrides_file", defaults.Sources.OverridesFile)
	v.SetDefault("sources.watch", defaults.Sources.Watch)

	// Bridge defaults
	v.SetDefault("bridge.honor_target_filter", defaults.Bridge.HonorTargetFilter)
	v.SetDefault("bridge.queue_size", defaults.Bridge.QueueSize)
	v.SetDefault("bridge.pull_topic", defaults.Bridge.PullTopic)
	v.SetDefault("bridge.pull_tags", defaults.Bridge.PullTags)
	v.SetDefault("bridge.push_topic", defaults.Bridge.PushTopic)
	v.SetDefault("bridge.push_tags", defaults.Bridge.PushTags)
	v.SetDefault("bridge.apply_target_filter", defaults.Bridge.ApplyTargetFilter)
	v.SetDefault("bridge.compress", defaults.Bridge.Compress)
	v.SetDefault("bridge.listen", defaults.Bridge.Listen)
	v.SetDefault("bridge.max_connections", defaults.Bridge.MaxConnections)
	v.SetDefault("bridge.max_frame_bytes", defaults.Bridge.MaxFrameBytes)

	// Critical defaults
	v.SetDefault("critical.capacity", defaults.Critical.Capacity)

	// Logging defaults
	v.SetDefault("logging.enabled", defaults.Logging.Enabled)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.file", defaults.Logging.File)
}

// decodeHook turns filter text such as "Terse" or "{Warn,Info}" into a
// LogFilter and comma separated strings into slices.
func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads the configuration from v and validates it
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "activitymonitor")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".activitymonitor"
	}
	return filepath.Join(home, ".config", "activitymonitor")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
