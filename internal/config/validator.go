package config

import (
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
	"github.com/Iron-Ham/activitymonitor/internal/tags"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "bridge.queue_size")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateMonitor()...)
	errors = append(errors, c.validateSources()...)
	errors = append(errors, c.validateBridge()...)
	errors = append(errors, c.validateCritical()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateMonitor validates the MonitorConfig
func (c *Config) validateMonitor() []ValidationError {
	var errors []ValidationError

	// The default filter is the last resort: it must decide both axes.
	if c.Monitor.DefaultFilter.HasUndefined() {
		errors = append(errors, ValidationError{
			Field:   "monitor.default_filter",
			Value:   c.Monitor.DefaultFilter.String(),
			Message: "must define both the line and the group level",
		})
	}

	for i, tag := range c.Monitor.AutoTags {
		if tag == "" || strings.ContainsAny(tag, tags.Separator+" \t\n") {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("monitor.auto_tags[%d]", i),
				Value:   tag,
				Message: "must be a single non-empty tag without separators or whitespace",
			})
		}
	}

	return errors
}

// validateSources validates the SourcesConfig
func (c *Config) validateSources() []ValidationError {
	var errors []ValidationError

	for i, r := range c.Sources.Rules {
		errors = append(errors, validateRule(fmt.Sprintf("sources.rules[%d]", i), r)...)
	}
	if c.Sources.Watch && c.Sources.OverridesFile == "" {
		errors = append(errors, ValidationError{
			Field:   "sources.watch",
			Value:   c.Sources.Watch,
			Message: "requires sources.overrides_file",
		})
	}

	return errors
}

// validateRule validates one source rule; field prefixes the reported paths
func validateRule(field string, r RuleConfig) []ValidationError {
	var errors []ValidationError

	if r.Pattern == "" {
		errors = append(errors, ValidationError{
			Field:   field + ".pattern",
			Value:   r.Pattern,
			Message: "cannot be empty",
		})
	} else if _, err := glob.Compile(r.Pattern, '/'); err != nil {
		errors = append(errors, ValidationError{
			Field:   field + ".pattern",
			Value:   r.Pattern,
			Message: fmt.Sprintf("invalid glob: %v", err),
		})
	}
	if r.Line < 0 {
		errors = append(errors, ValidationError{
			Field:   field + ".line",
			Value:   r.Line,
			Message: "must be non-negative (0 matches any line)",
		})
	}
	if r.Override == logfilter.UndefinedFilter && r.Minimal == logfilter.UndefinedFilter {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   r.Pattern,
			Message: "must set override or minimal",
		})
	}

	return errors
}

// validateBridge validates the BridgeConfig
func (c *Config) validateBridge() []ValidationError {
	var errors []ValidationError

	const maxQueueSize = 1 << 20
	if c.Bridge.QueueSize < 0 {
		errors = append(errors, ValidationError{
			Field:   "bridge.queue_size",
			Value:   c.Bridge.QueueSize,
			Message: "must be non-negative (0 disables queuing)",
		})
	}
	if c.Bridge.QueueSize > maxQueueSize {
		errors = append(errors, ValidationError{
			Field:   "bridge.queue_size",
			Value:   c.Bridge.QueueSize,
			Message: fmt.Sprintf("exceeds maximum of %d", maxQueueSize),
		})
	}

	if c.Bridge.MaxConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   "bridge.max_connections",
			Value:   c.Bridge.MaxConnections,
			Message: "must be non-negative (0 = unlimited)",
		})
	}

	const minFrameBytes = 1024
	const maxFrameBytes = 64 << 20
	if c.Bridge.MaxFrameBytes < minFrameBytes || c.Bridge.MaxFrameBytes > maxFrameBytes {
		errors = append(errors, ValidationError{
			Field:   "bridge.max_frame_bytes",
			Value:   c.Bridge.MaxFrameBytes,
			Message: fmt.Sprintf("must be between %d and %d", minFrameBytes, maxFrameBytes),
		})
	}

	if c.Bridge.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Bridge.Listen); err != nil {
			errors = append(errors, ValidationError{
				Field:   "bridge.listen",
				Value:   c.Bridge.Listen,
				Message: "must be host:port",
			})
		}
	}

	// Pulling and pushing the same value makes two monitors chase each other.
	if c.Bridge.PullTopic && c.Bridge.PushTopic {
		errors = append(errors, ValidationError{
			Field:   "bridge.push_topic",
			Value:   c.Bridge.PushTopic,
			Message: "cannot be combined with bridge.pull_topic",
		})
	}
	if c.Bridge.PullTags && c.Bridge.PushTags {
		errors = append(errors, ValidationError{
			Field:   "bridge.push_tags",
			Value:   c.Bridge.PushTags,
			Message: "cannot be combined with bridge.pull_tags",
		})
	}

	return errors
}

// validateCritical validates the CriticalConfig
func (c *Config) validateCritical() []ValidationError {
	var errors []ValidationError

	const maxCapacity = 100_000
	if c.Critical.Capacity < 1 || c.Critical.Capacity > maxCapacity {
		errors = append(errors, ValidationError{
			Field:   "critical.capacity",
			Value:   c.Critical.Capacity,
			Message: fmt.Sprintf("must be between 1 and %d", maxCapacity),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
