package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/activitymonitor/internal/critical"
	"github.com/Iron-Ham/activitymonitor/internal/event"
	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
	"github.com/Iron-Ham/activitymonitor/internal/monitor"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default monitor config
	if cfg.Monitor.DefaultFilter != logfilter.TraceFilter {
		t.Errorf("Monitor.DefaultFilter = %v, want %v", cfg.Monitor.DefaultFilter, logfilter.TraceFilter)
	}
	if cfg.Monitor.MinimalFilter != logfilter.UndefinedFilter {
		t.Errorf("Monitor.MinimalFilter = %v, want %v", cfg.Monitor.MinimalFilter, logfilter.UndefinedFilter)
	}

	// Verify default bridge config
	if !cfg.Bridge.HonorTargetFilter {
		t.Error("Bridge.HonorTargetFilter should be true by default")
	}
	if cfg.Bridge.QueueSize != 0 {
		t.Errorf("Bridge.QueueSize = %d, want 0", cfg.Bridge.QueueSize)
	}
	if cfg.Bridge.Compress {
		t.Error("Bridge.Compress should be false by default")
	}
	if cfg.Bridge.MaxFrameBytes != 1<<20 {
		t.Errorf("Bridge.MaxFrameBytes = %d, want %d", cfg.Bridge.MaxFrameBytes, 1<<20)
	}

	// Verify default critical and logging config
	if cfg.Critical.Capacity != critical.DefaultCapacity {
		t.Errorf("Critical.Capacity = %d, want %d", cfg.Critical.Capacity, critical.DefaultCapacity)
	}
	if cfg.Logging.Enabled {
		t.Error("Logging.Enabled should be false by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		result := ConfigDir()
		expected := "/custom/config/activitymonitor"
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		result := ConfigDir()

		home, _ := os.UserHomeDir()
		expected := filepath.Join(home, ".config", "activitymonitor")
		if result != expected {
			t.Errorf("ConfigDir() = %q, want %q", result, expected)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	result := ConfigFile()
	expected := "/custom/config/activitymonitor/config.yaml"
	if result != expected {
		t.Errorf("ConfigFile() = %q, want %q", result, expected)
	}
}

func newViper(t *testing.T, yamlText string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaultsOn(v)
	if yamlText != "" {
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(yamlText)); err != nil {
			t.Fatalf("ReadConfig() error = %v", err)
		}
	}
	return v
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(newViper(t, ""))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	def := Default()
	if cfg.Monitor.DefaultFilter != def.Monitor.DefaultFilter {
		t.Errorf("Monitor.DefaultFilter = %v, want %v", cfg.Monitor.DefaultFilter, def.Monitor.DefaultFilter)
	}
	if cfg.Bridge.HonorTargetFilter != def.Bridge.HonorTargetFilter {
		t.Errorf("Bridge.HonorTargetFilter = %v, want %v", cfg.Bridge.HonorTargetFilter, def.Bridge.HonorTargetFilter)
	}
	if cfg.Critical.Capacity != def.Critical.Capacity {
		t.Errorf("Critical.Capacity = %d, want %d", cfg.Critical.Capacity, def.Critical.Capacity)
	}
}

func TestLoadFrom_YAML(t *testing.T) {
	v := newViper(t, `
monitor:
  default_filter: Verbose
  minimal_filter: "{Warn,Undefined}"
  topic: checkout
  auto_tags: [svc, eu]
sources:
  rules:
    - pattern: "internal/bridge/*.go"
      minimal: Debug
    - pattern: "cmd/**"
      line: 12
      override: "Off"
bridge:
  queue_size: 64
  pull_topic: true
  push_tags: true
  compress: true
  listen: "127.0.0.1:7070"
critical:
  capacity: 8
`)

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Monitor.DefaultFilter != logfilter.VerboseFilter {
		t.Errorf("Monitor.DefaultFilter = %v, want %v", cfg.Monitor.DefaultFilter, logfilter.VerboseFilter)
	}
	wantMinimal := logfilter.New(logfilter.FilterWarn, logfilter.Undefined)
	if cfg.Monitor.MinimalFilter != wantMinimal {
		t.Errorf("Monitor.MinimalFilter = %v, want %v", cfg.Monitor.MinimalFilter, wantMinimal)
	}
	if cfg.Monitor.Topic != "checkout" {
		t.Errorf("Monitor.Topic = %q, want %q", cfg.Monitor.Topic, "checkout")
	}
	if !slices.Equal(cfg.Monitor.AutoTags, []string{"svc", "eu"}) {
		t.Errorf("Monitor.AutoTags = %v, want [svc eu]", cfg.Monitor.AutoTags)
	}

	if len(cfg.Sources.Rules) != 2 {
		t.Fatalf("Sources.Rules = %d, want 2", len(cfg.Sources.Rules))
	}
	if cfg.Sources.Rules[0].Minimal != logfilter.DebugFilter {
		t.Errorf("Rules[0].Minimal = %v, want %v", cfg.Sources.Rules[0].Minimal, logfilter.DebugFilter)
	}
	if cfg.Sources.Rules[1].Override != logfilter.OffFilter || cfg.Sources.Rules[1].Line != 12 {
		t.Errorf("Rules[1] = %+v, want Off at line 12", cfg.Sources.Rules[1])
	}

	if cfg.Bridge.QueueSize != 64 || !cfg.Bridge.PullTopic || !cfg.Bridge.PushTags || !cfg.Bridge.Compress {
		t.Errorf("Bridge = %+v, want queue 64 with pull_topic, push_tags and compress", cfg.Bridge)
	}
	if cfg.Critical.Capacity != 8 {
		t.Errorf("Critical.Capacity = %d, want 8", cfg.Critical.Capacity)
	}
}

func TestLoadFrom_CommaSeparatedTags(t *testing.T) {
	v := newViper(t, "")
	v.Set("monitor.auto_tags", "a,b")

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if !slices.Equal(cfg.Monitor.AutoTags, []string{"a", "b"}) {
		t.Errorf("Monitor.AutoTags = %v, want [a b]", cfg.Monitor.AutoTags)
	}
}

func TestLoadFrom_Errors(t *testing.T) {
	t.Run("unparseable filter", func(t *testing.T) {
		v := newViper(t, "")
		v.Set("monitor.default_filter", "Loud")
		if _, err := LoadFrom(v); err == nil {
			t.Error("LoadFrom() error = nil, want decode error")
		}
	})

	t.Run("validation", func(t *testing.T) {
		v := newViper(t, "")
		v.Set("critical.capacity", 0)
		v.Set("bridge.queue_size", -1)
		_, err := LoadFrom(v)
		verrs, ok := err.(ValidationErrors)
		if !ok {
			t.Fatalf("LoadFrom() error = %T %v, want ValidationErrors", err, err)
		}
		if len(verrs) != 2 {
			t.Errorf("len(ValidationErrors) = %d, want 2: %v", len(verrs), verrs)
		}
	})
}

func TestGet(t *testing.T) {
	// Set defaults in viper first (normally done by cmd init)
	SetDefaults()

	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Monitor.DefaultFilter != logfilter.TraceFilter {
		t.Errorf("Get().Monitor.DefaultFilter = %v, want %v", cfg.Monitor.DefaultFilter, logfilter.TraceFilter)
	}
}

func TestRuleConfig_Rule(t *testing.T) {
	r := RuleConfig{Pattern: "a/*.go", Line: 7, Override: logfilter.OffFilter, Minimal: logfilter.DebugFilter}
	got := r.Rule()
	if got.Pattern != "a/*.go" || got.Line != 7 {
		t.Errorf("Rule() = %+v, want pattern a/*.go line 7", got)
	}
	if got.Override != logfilter.OffFilter || got.Minimal != logfilter.DebugFilter {
		t.Errorf("Rule() override = %v minimal = %v", got.Override, got.Minimal)
	}
}

func TestConfig_NewEnv(t *testing.T) {
	cfg := Default()
	cfg.Monitor.DefaultFilter = logfilter.MonitorFilter
	cfg.Critical.Capacity = 2
	cfg.Sources.Rules = []RuleConfig{{Pattern: "internal/**", Minimal: logfilter.DebugFilter}}

	bus := event.NewBus(nil)
	var published int
	bus.Subscribe(event.TypeCriticalError, func(event.Event) { published++ })

	env, collector, err := cfg.NewEnv(bus, nil)
	if err != nil {
		t.Fatalf("NewEnv() error = %v", err)
	}

	if env.DefaultFilter != logfilter.MonitorFilter {
		t.Errorf("DefaultFilter = %v, want %v", env.DefaultFilter, logfilter.MonitorFilter)
	}
	if env.Bus != bus {
		t.Error("Bus was not installed")
	}

	o, ok := env.Sources.Lookup(logfilter.Location{File: "internal/bridge/wire.go", Line: 3})
	if !ok {
		t.Fatal("Lookup() found no rule for internal/bridge/wire.go")
	}
	if o.Minimal != logfilter.DebugFilter {
		t.Errorf("Lookup().Minimal = %v, want %v", o.Minimal, logfilter.DebugFilter)
	}
	if _, ok := env.Sources.Lookup(logfilter.Location{File: "cmd/main.go", Line: 1}); ok {
		t.Error("Lookup() matched cmd/main.go, want no match")
	}

	for range 3 {
		env.Collector.Add(os.ErrClosed, "test")
	}
	if collector.Count() != 2 || collector.Dropped() != 1 {
		t.Errorf("collector Count() = %d Dropped() = %d, want 2 and 1", collector.Count(), collector.Dropped())
	}
	if published != 3 {
		t.Errorf("published = %d, want 3", published)
	}
}

func TestConfig_NewEnv_InvalidRule(t *testing.T) {
	cfg := Default()
	cfg.Sources.Rules = []RuleConfig{{Pattern: "[", Minimal: logfilter.DebugFilter}}
	if _, _, err := cfg.NewEnv(nil, nil); err == nil {
		t.Error("NewEnv() error = nil, want invalid pattern error")
	}
}

func TestConfig_MonitorOptions(t *testing.T) {
	cfg := Default()
	cfg.Monitor.MinimalFilter = logfilter.TerseFilter
	cfg.Monitor.Topic = "checkout"
	cfg.Monitor.AutoTags = []string{"svc", "eu"}

	env, _, err := cfg.NewEnv(nil, nil)
	if err != nil {
		t.Fatalf("NewEnv() error = %v", err)
	}
	m := monitor.New(cfg.MonitorOptions(env)...)

	if m.Env() != env {
		t.Error("monitor does not use the configured env")
	}
	if m.Topic() != "checkout" {
		t.Errorf("Topic() = %q, want %q", m.Topic(), "checkout")
	}
	if !m.AutoTags().Contains("svc") || !m.AutoTags().Contains("eu") {
		t.Errorf("AutoTags() = %v, want svc and eu", m.AutoTags())
	}
	if m.ActualFilter() != logfilter.TerseFilter {
		t.Errorf("ActualFilter() = %v, want %v", m.ActualFilter(), logfilter.TerseFilter)
	}
}

func TestConfig_BridgeOptions(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*BridgeConfig)
		want   int
	}{
		{"none", func(*BridgeConfig) {}, 0},
		{"pull both", func(b *BridgeConfig) { b.PullTopic, b.PullTags = true, true }, 2},
		{"push topic and filter", func(b *BridgeConfig) { b.PushTopic, b.ApplyTargetFilter = true, true }, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg.Bridge)
			if got := len(cfg.BridgeOptions(nil)); got != tt.want {
				t.Errorf("len(BridgeOptions()) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	cfg := Default()
	logger, err := cfg.NewLogger()
	if err != nil || logger == nil {
		t.Fatalf("NewLogger() = %v, %v", logger, err)
	}

	cfg.Logging.Enabled = true
	cfg.Logging.File = filepath.Join(t.TempDir(), "logs", "diag.log")
	logger, err = cfg.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("hello")
	_ = logger.Close()

	data, err := os.ReadFile(cfg.Logging.File)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file = %q, want it to contain hello", data)
	}
}
