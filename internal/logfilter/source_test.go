package logfilter

import (
	"sync"
	"testing"
)

func TestSourceOverride_Effective(t *testing.T) {
	tests := []struct {
		name   string
		o      SourceOverride
		actual LogFilter
		def    LogFilter
		want   LogFilter
	}{
		{
			name:   "empty override falls back to default",
			actual: UndefinedFilter,
			def:    MonitorFilter,
			want:   MonitorFilter,
		},
		{
			name:   "minimal widens",
			o:      SourceOverride{Minimal: New(FilterDebug, Undefined)},
			actual: TerseFilter,
			def:    TraceFilter,
			want:   New(FilterDebug, FilterInfo),
		},
		{
			name:   "override replaces axis",
			o:      SourceOverride{Override: New(Undefined, FilterOff), Minimal: New(FilterDebug, FilterDebug)},
			actual: TerseFilter,
			def:    TraceFilter,
			want:   New(FilterDebug, FilterOff),
		},
		{
			name:   "override beats a more permissive actual",
			o:      SourceOverride{Override: New(FilterError, Undefined)},
			actual: DebugFilter,
			def:    TraceFilter,
			want:   New(FilterError, FilterDebug),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.o.Effective(tt.actual, tt.def); got != tt.want {
				t.Errorf("Effective() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSourceFilter_Exact(t *testing.T) {
	sf := NewSourceFilter()
	if !sf.IsEmpty() {
		t.Fatal("new SourceFilter should be empty")
	}

	loc := Location{File: "orders/payment.go", Line: 42}
	o := SourceOverride{Override: OffFilter}
	sf.Set(loc, o)

	if sf.IsEmpty() {
		t.Error("IsEmpty() = true after Set")
	}
	if got, ok := sf.Lookup(loc); !ok || got != o {
		t.Errorf("Lookup(%v) = %v, %v, want %v, true", loc, got, ok, o)
	}
	if _, ok := sf.Lookup(Location{File: "orders/payment.go", Line: 43}); ok {
		t.Error("Lookup of another line should miss")
	}

	if !sf.Remove(loc) {
		t.Error("Remove() = false, want true")
	}
	if sf.Remove(loc) {
		t.Error("second Remove() = true, want false")
	}
	if !sf.IsEmpty() {
		t.Error("IsEmpty() = false after Remove")
	}
}

func TestSourceFilter_Rules(t *testing.T) {
	sf := NewSourceFilter()
	rules := []Rule{
		{Pattern: "orders/*.go", Line: 10, SourceOverride: SourceOverride{Override: OffFilter}},
		{Pattern: "orders/*.go", SourceOverride: SourceOverride{Minimal: DebugFilter}},
		{Pattern: "**/*.go", SourceOverride: SourceOverride{Override: ReleaseFilter}},
	}
	if err := sf.SetRules(rules); err != nil {
		t.Fatalf("SetRules() error = %v", err)
	}
	if got := sf.Rules(); len(got) != 3 || got[0].Pattern != "orders/*.go" {
		t.Errorf("Rules() = %v", got)
	}

	tests := []struct {
		loc  Location
		want SourceOverride
		ok   bool
	}{
		{Location{"orders/payment.go", 10}, SourceOverride{Override: OffFilter}, true},
		{Location{"orders/payment.go", 11}, SourceOverride{Minimal: DebugFilter}, true},
		{Location{"shipping/label.go", 3}, SourceOverride{Override: ReleaseFilter}, true},
		{Location{"orders/sub/deep.go", 3}, SourceOverride{Override: ReleaseFilter}, true},
		{Location{"README.md", 1}, SourceOverride{}, false},
	}

	for _, tt := range tests {
		got, ok := sf.Lookup(tt.loc)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Lookup(%v) = %v, %v, want %v, %v", tt.loc, got, ok, tt.want, tt.ok)
		}
	}

	// Exact entries win over rules.
	exact := SourceOverride{Override: TraceFilter}
	sf.Set(Location{"orders/payment.go", 10}, exact)
	if got, _ := sf.Lookup(Location{"orders/payment.go", 10}); got != exact {
		t.Errorf("Lookup() = %v, want exact entry %v", got, exact)
	}

	sf.Clear()
	if !sf.IsEmpty() {
		t.Error("IsEmpty() = false after Clear")
	}
}

func TestSourceFilter_InvalidPattern(t *testing.T) {
	sf := NewSourceFilter()
	if err := sf.SetRules([]Rule{{Pattern: "*.go"}}); err != nil {
		t.Fatalf("SetRules() error = %v", err)
	}
	if err := sf.SetRules([]Rule{{Pattern: "["}}); err == nil {
		t.Fatal("SetRules([) should fail")
	}
	if got := sf.Rules(); len(got) != 1 {
		t.Errorf("failed SetRules replaced the rules: %v", got)
	}
}

func TestSourceFilter_Nil(t *testing.T) {
	var sf *SourceFilter
	if !sf.IsEmpty() {
		t.Error("nil SourceFilter should be empty")
	}
	if _, ok := sf.Lookup(Location{File: "a.go", Line: 1}); ok {
		t.Error("nil SourceFilter Lookup should miss")
	}
}

func TestSourceFilter_ConcurrentSet(t *testing.T) {
	sf := NewSourceFilter()
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(line int) {
			defer wg.Done()
			sf.Set(Location{File: "a.go", Line: line}, SourceOverride{Override: OffFilter})
		}(i)
	}
	wg.Wait()

	for i := 1; i <= 50; i++ {
		if _, ok := sf.Lookup(Location{File: "a.go", Line: i}); !ok {
			t.Errorf("Lookup(a.go:%d) lost by a concurrent Set", i)
		}
	}
}

func TestLocation_String(t *testing.T) {
	if got := (Location{File: "a.go", Line: 3}).String(); got != "a.go:3" {
		t.Errorf("String() = %q, want a.go:3", got)
	}
	if got := (Location{}).String(); got != "" {
		t.Errorf("zero String() = %q, want empty", got)
	}
}
