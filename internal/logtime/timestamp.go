// Package logtime provides strictly ordered log timestamps.
//
// A Timestamp pairs a UTC time with a uniquifier so that two stamps taken in
// sequence never compare equal, even when the clock does not advance between
// them.
package logtime

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Layout is the fixed-width text form of the time part.
const Layout = "2006-01-02T15:04:05.000000000Z"

// Timestamp is a UTC time plus a uniquifier.
type Timestamp struct {
	Time       time.Time
	Uniquifier uint8
}

// Now returns the current UTC time with a zero uniquifier.
func Now() Timestamp {
	return Timestamp{Time: time.Now().UTC()}
}

// From wraps t (converted to UTC).
func From(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// Next returns a stamp for t that is strictly greater than last. When t does
// not advance past last, last's time is reused with the next uniquifier; when
// the uniquifier is exhausted the time moves forward by one nanosecond.
func Next(last Timestamp, t time.Time) Timestamp {
	t = t.UTC()
	if last.Time.IsZero() || t.After(last.Time) {
		return Timestamp{Time: t}
	}
	if last.Uniquifier == math.MaxUint8 {
		return Timestamp{Time: last.Time.Add(time.Nanosecond)}
	}
	return Timestamp{Time: last.Time, Uniquifier: last.Uniquifier + 1}
}

// IsZero reports whether the time part is zero.
func (t Timestamp) IsZero() bool {
	return t.Time.IsZero()
}

// IsUTC reports whether the time part is expressed in UTC.
func (t Timestamp) IsUTC() bool {
	return t.Time.Location() == time.UTC
}

// Compare returns -1, 0 or +1.
func (t Timestamp) Compare(o Timestamp) int {
	if c := t.Time.Compare(o.Time); c != 0 {
		return c
	}
	switch {
	case t.Uniquifier < o.Uniquifier:
		return -1
	case t.Uniquifier > o.Uniquifier:
		return 1
	}
	return 0
}

// Before reports whether t sorts before o.
func (t Timestamp) Before(o Timestamp) bool { return t.Compare(o) < 0 }

// Equal reports whether t and o denote the same stamp.
func (t Timestamp) Equal(o Timestamp) bool { return t.Compare(o) == 0 }

// String renders the time with Layout, followed by ",N" when the
// uniquifier is not zero.
func (t Timestamp) String() string {
	s := t.Time.UTC().Format(Layout)
	if t.Uniquifier > 0 {
		s += "," + strconv.Itoa(int(t.Uniquifier))
	}
	return s
}

// Parse parses the whole of s.
func Parse(s string) (Timestamp, error) {
	ts, n, ok := ParsePrefix(s)
	if !ok || n != len(s) {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return ts, nil
}

// ParsePrefix parses a timestamp at the start of s and returns the number of
// bytes consumed. Trailing text is left alone.
func ParsePrefix(s string) (Timestamp, int, bool) {
	if len(s) < len(Layout) {
		return Timestamp{}, 0, false
	}
	t, err := time.Parse(Layout, s[:len(Layout)])
	if err != nil {
		return Timestamp{}, 0, false
	}
	ts := Timestamp{Time: t.UTC()}
	n := len(Layout)
	if n < len(s) && s[n] == ',' {
		end := n + 1
		for end < len(s) && end-n <= 3 && s[end] >= '0' && s[end] <= '9' {
			end++
		}
		if end > n+1 {
			u, err := strconv.Atoi(s[n+1 : end])
			if err != nil || u < 1 || u > math.MaxUint8 {
				return Timestamp{}, 0, false
			}
			ts.Uniquifier = uint8(u)
			n = end
		}
	}
	return ts, n, true
}
