// Package logfilter implements the two-axis verbosity filter of a monitor:
// one threshold for log lines and one for groups, combined per axis with
// "most permissive wins" semantics and an Undefined marker that defers to
// the other operand.
//
// The text form of a filter is either a preset name (Undefined, Debug,
// Trace, Verbose, Monitor, Terse, Release, Off) or the generic
// "{Line,Group}" form, e.g. "{Warn,Info}".
package logfilter

import (
	"fmt"
	"strings"
)

// LogFilter is an immutable pair of thresholds.
type LogFilter struct {
	Line  LevelFilter
	Group LevelFilter
}

// Presets.
var (
	UndefinedFilter = LogFilter{}
	DebugFilter     = LogFilter{Line: FilterDebug, Group: FilterDebug}
	TraceFilter     = LogFilter{Line: FilterTrace, Group: FilterTrace}
	VerboseFilter   = LogFilter{Line: FilterInfo, Group: FilterTrace}
	MonitorFilter   = LogFilter{Line: FilterWarn, Group: FilterTrace}
	TerseFilter     = LogFilter{Line: FilterError, Group: FilterInfo}
	ReleaseFilter   = LogFilter{Line: FilterError, Group: FilterError}
	OffFilter       = LogFilter{Line: FilterOff, Group: FilterOff}
)

var presets = []struct {
	name   string
	filter LogFilter
}{
	{"Undefined", UndefinedFilter},
	{"Debug", DebugFilter},
	{"Trace", TraceFilter},
	{"Verbose", VerboseFilter},
	{"Monitor", MonitorFilter},
	{"Terse", TerseFilter},
	{"Release", ReleaseFilter},
	{"Off", OffFilter},
}

// PresetNames returns the names accepted by Parse besides the generic form.
func PresetNames() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.name
	}
	return names
}

// New builds a filter from its two thresholds.
func New(line, group LevelFilter) LogFilter {
	return LogFilter{Line: line, Group: group}
}

// CombineLevel combines two thresholds: Undefined defers to the other side,
// otherwise the more permissive (lower) wins.
func CombineLevel(a, b LevelFilter) LevelFilter {
	switch {
	case b == Undefined:
		return a
	case a == Undefined:
		return b
	case a < b:
		return a
	default:
		return b
	}
}

// Combine combines f with other per axis.
func (f LogFilter) Combine(other LogFilter) LogFilter {
	return LogFilter{
		Line:  CombineLevel(f.Line, other.Line),
		Group: CombineLevel(f.Group, other.Group),
	}
}

// Combine is the package-level form of LogFilter.Combine.
func Combine(a, b LogFilter) LogFilter {
	return a.Combine(b)
}

// CombineUndefinedOnly replaces only the Undefined axes of f with the
// corresponding axes of def.
func (f LogFilter) CombineUndefinedOnly(def LogFilter) LogFilter {
	if f.Line == Undefined {
		f.Line = def.Line
	}
	if f.Group == Undefined {
		f.Group = def.Group
	}
	return f
}

// IsUndefined reports whether both axes are Undefined.
func (f LogFilter) IsUndefined() bool {
	return f.Line == Undefined && f.Group == Undefined
}

// HasUndefined reports whether at least one axis is Undefined.
func (f LogFilter) HasUndefined() bool {
	return f.Line == Undefined || f.Group == Undefined
}

// AcceptsLine reports whether a line at level l passes the Line threshold.
// The None sentinel is never accepted.
func (f LogFilter) AcceptsLine(l LogLevel) bool {
	return !l.IsNone() && passes(l, f.Line)
}

// AcceptsGroup reports whether a group at level l passes the Group threshold.
func (f LogFilter) AcceptsGroup(l LogLevel) bool {
	return !l.IsNone() && passes(l, f.Group)
}

// String returns the preset name when f matches one, the generic form otherwise.
func (f LogFilter) String() string {
	for _, p := range presets {
		if p.filter == f {
			return p.name
		}
	}
	return "{" + f.Line.String() + "," + f.Group.String() + "}"
}

// Parse parses the text form of a filter.
func Parse(s string) (LogFilter, error) {
	if f, ok := TryParse(s); ok {
		return f, nil
	}
	return UndefinedFilter, fmt.Errorf("invalid log filter %q: expected one of %s or {Line,Group}",
		s, strings.Join(PresetNames(), ", "))
}

// TryParse is Parse without the error.
func TryParse(s string) (LogFilter, bool) {
	for _, p := range presets {
		if p.name == s {
			return p.filter, true
		}
	}
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return UndefinedFilter, false
	}
	parts := strings.Split(s[1:len(s)-1], ",")
	if len(parts) != 2 {
		return UndefinedFilter, false
	}
	line, ok := ParseLevelFilter(parts[0])
	if !ok {
		return UndefinedFilter, false
	}
	group, ok := ParseLevelFilter(parts[1])
	if !ok {
		return UndefinedFilter, false
	}
	return LogFilter{Line: line, Group: group}, true
}

// MarshalText implements encoding.TextMarshaler.
func (f LogFilter) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *LogFilter) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Pack encodes f in 16 bits so it can live in an atomic word.
func (f LogFilter) Pack() uint32 {
	return uint32(f.Line)<<8 | uint32(f.Group)
}

// Unpack reverses Pack.
func Unpack(v uint32) LogFilter {
	return LogFilter{Line: LevelFilter(v >> 8), Group: LevelFilter(v & 0xFF)}
}
