package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

var slogLevels = map[string]slog.Level{
	LevelDebug: slog.LevelDebug,
	LevelInfo:  slog.LevelInfo,
	LevelWarn:  slog.LevelWarn,
	LevelError: slog.LevelError,
}

// fileSink is the log file shared by a logger and all its children.
type fileSink struct {
	mu   sync.Mutex
	file *os.File
}

func (s *fileSink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	f := s.file
	s.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

// Logger writes library diagnostics as JSON lines. Children created with
// the With* methods share the parent's output and carry extra attributes.
// It is safe for concurrent use, and a nil *Logger discards everything.
type Logger struct {
	slog *slog.Logger
	sink *fileSink
}

// NewLogger creates a Logger that writes JSON lines to w at the given level.
// A nil writer means stderr.
func NewLogger(w io.Writer, level string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevels[ParseLevel(level)]})
	return &Logger{slog: slog.New(handler)}
}

// NewFileLogger creates a Logger appending JSON lines to path. Parent
// directories are created as needed. Close releases the file.
func NewFileLogger(path string, level string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	l := NewLogger(file, level)
	l.sink = &fileSink{file: file}
	return l, nil
}

// NopLogger returns a Logger that discards all output.
func NopLogger() *Logger {
	return &Logger{slog: slog.New(slog.DiscardHandler)}
}

// WithMonitor tags every entry with a monitor id.
func (l *Logger) WithMonitor(monitorID string) *Logger {
	return l.child(slog.String("monitor_id", monitorID))
}

// WithTopic tags every entry with a monitor topic.
func (l *Logger) WithTopic(topic string) *Logger {
	return l.child(slog.String("topic", topic))
}

// WithComponent names the emitting component.
func (l *Logger) WithComponent(component string) *Logger {
	return l.child(slog.String("component", component))
}

// With adds alternating key-value attributes. Pairs whose key is not a
// string are skipped, as is a trailing key without a value.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	attrs := make([]any, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			attrs = append(attrs, slog.Any(key, args[i+1]))
		}
	}
	return l.child(attrs...)
}

func (l *Logger) child(attrs ...any) *Logger {
	if l == nil || len(attrs) == 0 {
		return l
	}
	return &Logger{slog: l.slog.With(attrs...), sink: l.sink}
}

// Enabled reports whether entries at level would be written.
func (l *Logger) Enabled(level string) bool {
	if l == nil {
		return false
	}
	return l.slog.Enabled(context.Background(), slogLevels[ParseLevel(level)])
}

// Debug logs msg at DEBUG with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }

// Info logs msg at INFO with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args) }

// Warn logs msg at WARN with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args) }

// Error logs msg at ERROR with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l *Logger) log(level slog.Level, msg string, args []any) {
	if l == nil {
		return
	}
	l.slog.Log(context.Background(), level, msg, args...)
}

// Close syncs and closes the log file. It is a no-op for loggers that do
// not write to a file, and for every call after the first.
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.close()
}

// ParseLevel normalizes a level name, case-insensitively. Unknown names
// map to LevelInfo.
func ParseLevel(level string) string {
	up := strings.ToUpper(strings.TrimSpace(level))
	if _, ok := slogLevels[up]; ok {
		return up
	}
	return LevelInfo
}

// ValidLevels returns the accepted level names, most verbose first.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
