package logtime

import (
	"math"
	"testing"
	"time"
)

var base = time.Date(2026, 3, 1, 10, 20, 30, 1, time.UTC)

func TestNext(t *testing.T) {
	tests := []struct {
		name string
		last Timestamp
		now  time.Time
		want Timestamp
	}{
		{"first stamp", Timestamp{}, base, Timestamp{Time: base}},
		{"clock advances", Timestamp{Time: base, Uniquifier: 4}, base.Add(time.Microsecond), Timestamp{Time: base.Add(time.Microsecond)}},
		{"clock stalls", Timestamp{Time: base}, base, Timestamp{Time: base, Uniquifier: 1}},
		{"clock goes back", Timestamp{Time: base, Uniquifier: 2}, base.Add(-time.Second), Timestamp{Time: base, Uniquifier: 3}},
		{"uniquifier exhausted", Timestamp{Time: base, Uniquifier: math.MaxUint8}, base, Timestamp{Time: base.Add(time.Nanosecond)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Next(tt.last, tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
			if !tt.last.IsZero() && !tt.last.Before(got) {
				t.Errorf("Next() = %v does not follow %v", got, tt.last)
			}
		})
	}
}

func TestNext_StrictlyIncreasing(t *testing.T) {
	var last Timestamp
	for i := 0; i < 600; i++ {
		ts := Next(last, base)
		if !last.IsZero() && ts.Compare(last) <= 0 {
			t.Fatalf("stamp %d = %v, not after %v", i, ts, last)
		}
		last = ts
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		ts   Timestamp
		want string
	}{
		{Timestamp{Time: base}, "2026-03-01T10:20:30.000000001Z"},
		{Timestamp{Time: base, Uniquifier: 12}, "2026-03-01T10:20:30.000000001Z,12"},
		{From(base.In(time.FixedZone("CET", 3600))), "2026-03-01T10:20:30.000000001Z"},
	}

	for _, tt := range tests {
		if got := tt.ts.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Timestamp
		wantErr bool
	}{
		{"2026-03-01T10:20:30.000000001Z", Timestamp{Time: base}, false},
		{"2026-03-01T10:20:30.000000001Z,255", Timestamp{Time: base, Uniquifier: 255}, false},
		{"2026-03-01T10:20:30.000000001Z,256", Timestamp{}, true},
		{"2026-03-01T10:20:30.000000001Z,0", Timestamp{}, true},
		{"2026-03-01T10:20:30Z", Timestamp{}, true},
		{"2026-03-01T10:20:30.000000001Z trailing", Timestamp{}, true},
		{"", Timestamp{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !tt.wantErr && !got.IsUTC() {
				t.Errorf("Parse(%q) is not UTC", tt.input)
			}
		})
	}
}

func TestParsePrefix(t *testing.T) {
	ts, n, ok := ParsePrefix("2026-03-01T10:20:30.000000001Z,7 for details")
	if !ok {
		t.Fatal("ParsePrefix() ok = false")
	}
	if n != len(Layout)+2 {
		t.Errorf("ParsePrefix() consumed %d bytes, want %d", n, len(Layout)+2)
	}
	if ts.Uniquifier != 7 {
		t.Errorf("Uniquifier = %d, want 7", ts.Uniquifier)
	}

	// A comma not followed by digits is left alone.
	_, n, ok = ParsePrefix("2026-03-01T10:20:30.000000001Z, next")
	if !ok || n != len(Layout) {
		t.Errorf("ParsePrefix() = %d, %v, want %d, true", n, ok, len(Layout))
	}
}

func TestRoundTrip(t *testing.T) {
	for _, ts := range []Timestamp{{Time: base}, {Time: base, Uniquifier: 1}, {Time: base.Add(999 * time.Millisecond), Uniquifier: 200}} {
		got, err := Parse(ts.String())
		if err != nil || !got.Equal(ts) {
			t.Errorf("Parse(%q) = %v, %v, want %v", ts.String(), got, err, ts)
		}
	}
}
