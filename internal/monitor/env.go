package monitor

import (
	"time"

	"github.com/Iron-Ham/activitymonitor/internal/event"
	"github.com/Iron-Ham/activitymonitor/internal/logfilter"
	"github.com/Iron-Ham/activitymonitor/internal/logging"
	"github.com/Iron-Ham/activitymonitor/internal/tags"
)

// Well-known tag atoms.
const (
	TagMonitorFilterChanged    = "MonitorFilterChanged"
	TagMonitorAutoTagsChanged  = "MonitorAutoTagsChanged"
	TagMonitorTopicChanged     = "MonitorTopicChanged"
	TagMonitorEnd              = "MonitorEnd"
	TagCreateDependentActivity = "CreateDependentActivity"
	TagStartDependentActivity  = "StartDependentActivity"

	// Conclusion tags.
	TagGetTextConclusion     = "c:GetText"
	TagUserConclusion        = "c:User"
	TagPrematureClose        = "c:PrematureClose"
	TagClosedByBridgeRemoved = "c:ClosedByBridgeRemoved"
)

// ErrorCollector receives errors nothing else can handle. Add must not panic.
type ErrorCollector interface {
	Add(err error, comment string)
}

// KnownTags holds the well-known tag sets interned in an Env's registry.
type KnownTags struct {
	MonitorFilterChanged    *tags.Set
	MonitorAutoTagsChanged  *tags.Set
	MonitorTopicChanged     *tags.Set
	MonitorEnd              *tags.Set
	CreateDependentActivity *tags.Set
	StartDependentActivity  *tags.Set
	GetTextConclusion       *tags.Set
	UserConclusion          *tags.Set
	PrematureClose          *tags.Set
	ClosedByBridgeRemoved   *tags.Set
}

// Env is the explicitly constructed context shared by a set of monitors:
// the process default filter, the tag registry, the error collector and
// the call-site source filter. Tests build their own to stay isolated.
type Env struct {
	// DefaultFilter decides when a monitor's actual filter is Undefined.
	DefaultFilter logfilter.LogFilter
	Tags          *tags.Registry
	Known         KnownTags
	Collector     ErrorCollector
	Sources       *logfilter.SourceFilter
	Bus           *event.Bus
	Logger        *logging.Logger
	Clock         func() time.Time
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithDefaultFilter sets the process default filter.
func WithDefaultFilter(f logfilter.LogFilter) EnvOption {
	return func(e *Env) { e.DefaultFilter = f }
}

// WithRegistry uses r instead of a fresh tag registry.
func WithRegistry(r *tags.Registry) EnvOption {
	return func(e *Env) { e.Tags = r }
}

// WithCollector sets the error collector.
func WithCollector(c ErrorCollector) EnvOption {
	return func(e *Env) { e.Collector = c }
}

// WithSourceFilter sets the call-site filter.
func WithSourceFilter(s *logfilter.SourceFilter) EnvOption {
	return func(e *Env) { e.Sources = s }
}

// WithBus publishes client detachments on bus.
func WithBus(bus *event.Bus) EnvOption {
	return func(e *Env) { e.Bus = bus }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *logging.Logger) EnvOption {
	return func(e *Env) { e.Logger = l }
}

// WithClock replaces time.Now. Returned times are converted to UTC.
func WithClock(clock func() time.Time) EnvOption {
	return func(e *Env) { e.Clock = clock }
}

// NewEnv creates an Env. Without options it uses the Trace default filter,
// a fresh registry and source filter, and discards collected errors.
func NewEnv(opts ...EnvOption) *Env {
	e := &Env{DefaultFilter: logfilter.TraceFilter}
	for _, opt := range opts {
		opt(e)
	}
	if e.Tags == nil {
		e.Tags = tags.NewRegistry()
	}
	if e.Collector == nil {
		e.Collector = discardCollector{}
	}
	if e.Sources == nil {
		e.Sources = logfilter.NewSourceFilter()
	}
	if e.Logger == nil {
		e.Logger = logging.NopLogger()
	}
	if e.Clock == nil {
		e.Clock = time.Now
	}
	r := e.Tags
	e.Known = KnownTags{
		MonitorFilterChanged:    r.Register(TagMonitorFilterChanged),
		MonitorAutoTagsChanged:  r.Register(TagMonitorAutoTagsChanged),
		MonitorTopicChanged:     r.Register(TagMonitorTopicChanged),
		MonitorEnd:              r.Register(TagMonitorEnd),
		CreateDependentActivity: r.Register(TagCreateDependentActivity),
		StartDependentActivity:  r.Register(TagStartDependentActivity),
		GetTextConclusion:       r.Register(TagGetTextConclusion),
		UserConclusion:          r.Register(TagUserConclusion),
		PrematureClose:          r.Register(TagPrematureClose),
		ClosedByBridgeRemoved:   r.Register(TagClosedByBridgeRemoved),
	}
	return e
}

func (e *Env) now() time.Time {
	return e.Clock().UTC()
}

type discardCollector struct{}

func (discardCollector) Add(error, string) {}
