package logfilter

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/gobwas/glob"
)

// Location identifies a call site.
type Location struct {
	File string
	Line int
}

// String renders "file:line".
func (l Location) String() string {
	if l.File == "" {
		return ""
	}
	return l.File + ":" + strconv.Itoa(l.Line)
}

// SourceOverride is what a SourceFilter forces for a call site. A defined
// Override axis replaces the monitor's filter; otherwise Minimal is combined
// with it.
type SourceOverride struct {
	Override LogFilter
	Minimal  LogFilter
}

// Effective resolves the filter that applies at a call site given the
// monitor's actual filter and the process default.
func (o SourceOverride) Effective(actual, def LogFilter) LogFilter {
	eff := actual.Combine(o.Minimal)
	if o.Override.Line != Undefined {
		eff.Line = o.Override.Line
	}
	if o.Override.Group != Undefined {
		eff.Group = o.Override.Group
	}
	return eff.CombineUndefinedOnly(def)
}

// Rule matches call sites by file glob and optional line (0 = any line).
type Rule struct {
	Pattern string
	Line    int
	SourceOverride
}

type compiledRule struct {
	Rule
	g glob.Glob
}

type sourceSnapshot struct {
	exact map[Location]SourceOverride
	rules []compiledRule
}

// SourceFilter maps call sites to forced filters. Lookups are lock-free;
// mutations publish a new snapshot with a CAS loop.
type SourceFilter struct {
	snap atomic.Pointer[sourceSnapshot]
}

// NewSourceFilter creates an empty SourceFilter.
func NewSourceFilter() *SourceFilter {
	s := &SourceFilter{}
	s.snap.Store(&sourceSnapshot{})
	return s
}

func (s *SourceFilter) load() *sourceSnapshot {
	if p := s.snap.Load(); p != nil {
		return p
	}
	return &sourceSnapshot{}
}

// IsEmpty reports whether no rule is configured. Callers use it to skip
// call-site resolution entirely.
func (s *SourceFilter) IsEmpty() bool {
	if s == nil {
		return true
	}
	p := s.load()
	return len(p.exact) == 0 && len(p.rules) == 0
}

func (s *SourceFilter) update(fn func(old *sourceSnapshot) *sourceSnapshot) {
	for {
		old := s.snap.Load()
		cur := old
		if cur == nil {
			cur = &sourceSnapshot{}
		}
		if s.snap.CompareAndSwap(old, fn(cur)) {
			return
		}
	}
}

// Set forces o at an exact call site.
func (s *SourceFilter) Set(loc Location, o SourceOverride) {
	s.update(func(old *sourceSnapshot) *sourceSnapshot {
		exact := make(map[Location]SourceOverride, len(old.exact)+1)
		for k, v := range old.exact {
			exact[k] = v
		}
		exact[loc] = o
		return &sourceSnapshot{exact: exact, rules: old.rules}
	})
}

// Remove drops the exact entry for loc. Returns true if it existed.
func (s *SourceFilter) Remove(loc Location) bool {
	removed := false
	s.update(func(old *sourceSnapshot) *sourceSnapshot {
		_, removed = old.exact[loc]
		if !removed {
			return old
		}
		exact := make(map[Location]SourceOverride, len(old.exact))
		for k, v := range old.exact {
			if k != loc {
				exact[k] = v
			}
		}
		return &sourceSnapshot{exact: exact, rules: old.rules}
	})
	return removed
}

// SetRules replaces the glob rules. Rules are evaluated in order after the
// exact entries; the first match wins.
func (s *SourceFilter) SetRules(rules []Rule) error {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		g, err := glob.Compile(r.Pattern, '/')
		if err != nil {
			return fmt.Errorf("invalid source pattern %q: %w", r.Pattern, err)
		}
		compiled = append(compiled, compiledRule{Rule: r, g: g})
	}
	s.update(func(old *sourceSnapshot) *sourceSnapshot {
		return &sourceSnapshot{exact: old.exact, rules: compiled}
	})
	return nil
}

// Rules returns a copy of the current glob rules.
func (s *SourceFilter) Rules() []Rule {
	p := s.load()
	out := make([]Rule, len(p.rules))
	for i, r := range p.rules {
		out[i] = r.Rule
	}
	return out
}

// Clear removes every entry and rule.
func (s *SourceFilter) Clear() {
	s.snap.Store(&sourceSnapshot{})
}

// Lookup returns the override for loc, if any.
func (s *SourceFilter) Lookup(loc Location) (SourceOverride, bool) {
	if s == nil {
		return SourceOverride{}, false
	}
	p := s.load()
	if o, ok := p.exact[loc]; ok {
		return o, true
	}
	for _, r := range p.rules {
		if r.Line != 0 && r.Line != loc.Line {
			continue
		}
		if r.g.Match(loc.File) {
			return r.SourceOverride, true
		}
	}
	return SourceOverride{}, false
}
