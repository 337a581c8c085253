package logfilter

import "strings"

// LevelFilter is a severity threshold. The zero value, Undefined, defers to
// whatever it is combined with.
type LevelFilter uint8

const (
	Undefined LevelFilter = iota
	FilterDebug
	FilterTrace
	FilterInfo
	FilterWarn
	FilterError
	FilterFatal
	FilterOff
)

var levelFilterNames = [...]string{
	Undefined:   "Undefined",
	FilterDebug: "Debug",
	FilterTrace: "Trace",
	FilterInfo:  "Info",
	FilterWarn:  "Warn",
	FilterError: "Error",
	FilterFatal: "Fatal",
	FilterOff:   "Off",
}

// String returns the level name used by the text grammar.
func (f LevelFilter) String() string {
	if int(f) < len(levelFilterNames) {
		return levelFilterNames[f]
	}
	return "Invalid"
}

// ParseLevelFilter parses a level name. Matching is exact.
func ParseLevelFilter(s string) (LevelFilter, bool) {
	for i, n := range levelFilterNames {
		if n == s {
			return LevelFilter(i), true
		}
	}
	return Undefined, false
}

// LogLevel is the level of an entry (a line or a group). None is the
// filtered-out sentinel. The IsFiltered bit marks a level that has already
// been checked against the filters and must not be checked again.
type LogLevel uint8

const (
	None LogLevel = iota
	Debug
	Trace
	Info
	Warn
	Error
	Fatal

	// IsFiltered is OR-ed into a level by callers that already filtered.
	IsFiltered LogLevel = 0x80

	levelMask LogLevel = 0x7F
)

var logLevelNames = [...]string{
	None:  "None",
	Debug: "Debug",
	Trace: "Trace",
	Info:  "Info",
	Warn:  "Warn",
	Error: "Error",
	Fatal: "Fatal",
}

// Mask strips the IsFiltered flag.
func (l LogLevel) Mask() LogLevel { return l & levelMask }

// Filtered reports whether the IsFiltered flag is set.
func (l LogLevel) Filtered() bool { return l&IsFiltered != 0 }

// IsNone reports whether the level is the filtered-out sentinel.
func (l LogLevel) IsNone() bool { return l.Mask() == None }

// String returns the level name, suffixed with "|Filtered" when flagged.
func (l LogLevel) String() string {
	m := l.Mask()
	name := "Invalid"
	if int(m) < len(logLevelNames) {
		name = logLevelNames[m]
	}
	if l.Filtered() {
		return name + "|Filtered"
	}
	return name
}

// ParseLogLevel parses a level name, case-insensitively.
func ParseLogLevel(s string) (LogLevel, bool) {
	for i, n := range logLevelNames {
		if strings.EqualFold(n, s) {
			return LogLevel(i), true
		}
	}
	return None, false
}

// passes reports whether a masked entry level clears threshold f.
// An Undefined threshold lets everything through.
func passes(l LogLevel, f LevelFilter) bool {
	return uint8(l.Mask()) >= uint8(f)
}
