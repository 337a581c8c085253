package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/activitymonitor/internal/event"
	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
	"github.com/Iron-Ham/activitymonitor/internal/logging"
)

// Overrides is the content of a source overrides file.
//
//	rules:
//	  - pattern: "internal/bridge/*.go"
//	    minimal: Debug
//	  - pattern: "cmd/**"
//	    line: 42
//	    override: "{Off,Info}"
type Overrides struct {
	Rules []RuleConfig `yaml:"rules"`
}

// LoadOverrides reads and validates the overrides file at path.
func LoadOverrides(fs afero.Fs, path string) (*Overrides, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read overrides file: %w", err)
	}

	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse overrides file: %w", err)
	}

	var errs ValidationErrors
	for i, r := range o.Rules {
		errs = append(errs, validateRule(fmt.Sprintf("rules[%d]", i), r)...)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return &o, nil
}

// ApplyRules installs base followed by extra as the glob rules of sf.
// Returns the number of rules installed.
func ApplyRules(sf *logfilter.SourceFilter, base, extra []RuleConfig) (int, error) {
	rules := make([]logfilter.Rule, 0, len(base)+len(extra))
	for _, r := range base {
		rules = append(rules, r.Rule())
	}
	for _, r := range extra {
		rules = append(rules, r.Rule())
	}
	if err := sf.SetRules(rules); err != nil {
		return 0, err
	}
	return len(rules), nil
}

// OverridesWatcher reloads a source overrides file when it changes and
// reinstalls the rules on a SourceFilter.
type OverridesWatcher struct {
	watcher *fsnotify.Watcher
	fs      afero.Fs
	path    string
	base    []RuleConfig
	sources *logfilter.SourceFilter
	bus     *event.Bus
	logger  *logging.Logger

	// Debounce window; editors emit several events for one save
	debounce time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// WatchOverrides starts watching the overrides file named by cfg. The base
// rules of cfg stay in front of the file's rules on every reload. A reload
// that fails keeps the previous rules. bus and logger may be nil.
func WatchOverrides(fs afero.Fs, cfg *Config, sources *logfilter.SourceFilter, bus *event.Bus, logger *logging.Logger) (*OverridesWatcher, error) {
	if cfg.Sources.OverridesFile == "" {
		return nil, fmt.Errorf("no overrides file configured")
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	path := filepath.Clean(cfg.Sources.OverridesFile)
	// Watch the directory: many editors replace the file on save, which
	// drops a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	w := &OverridesWatcher{
		watcher:  watcher,
		fs:       fs,
		path:     path,
		base:     cfg.Sources.Rules,
		sources:  sources,
		bus:      bus,
		logger:   logger.WithComponent("config.overrides"),
		debounce: 50 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

// Reload re-reads the file now and applies its rules.
func (w *OverridesWatcher) Reload() error {
	n, err := w.reload()
	if w.bus != nil {
		w.bus.Publish(event.NewOverridesReloadedEvent(w.path, n, err))
	}
	if err != nil {
		w.logger.Warn("overrides reload failed, keeping previous rules", "path", w.path, "error", err)
		return err
	}
	w.logger.Info("overrides reloaded", "path", w.path, "rules", n)
	return nil
}

func (w *OverridesWatcher) reload() (int, error) {
	o, err := LoadOverrides(w.fs, w.path)
	if err != nil {
		return 0, err
	}
	return ApplyRules(w.sources, w.base, o.Rules)
}

// Stop stops watching. It is safe to call more than once.
func (w *OverridesWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
		<-w.doneCh
	})
}

func (w *OverridesWatcher) watchLoop() {
	defer close(w.doneCh)

	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C
	pending := false

	for {
		select {
		case <-w.stopCh:
			debounceTimer.Stop()
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			debounceTimer.Reset(w.debounce)

		case <-debounceTimer.C:
			if pending {
				pending = false
				_ = w.Reload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("overrides watcher error", "error", err)
		}
	}
}
