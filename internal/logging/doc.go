// Package logging provides the library's own diagnostic logger.
//
// This is not the activity log: monitors deliver activity to their clients.
// Logger wraps log/slog with a JSON handler and persistent attributes and is
// used by the components that need to report about themselves (the
// critical error collector, bridge targets, the overrides watcher and the
// command line).
//
// # Basic Usage
//
//	logger := logging.NewLogger(os.Stderr, "INFO")
//	logger.WithMonitor(m.UniqueID().String()).Warn("client detached", "client", "*bridge.Bridge")
//
// For tests, use [NopLogger] to discard all output.
//
// # Log Levels
//
//   - [LevelDebug]: Detailed information for debugging
//   - [LevelInfo]: General operational information (default)
//   - [LevelWarn]: Warning conditions that may need attention
//   - [LevelError]: Error conditions that affect functionality
package logging
