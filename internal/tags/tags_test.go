package tags

import (
	"fmt"
	"slices"
	"sync"
	"testing"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name  string
		atoms []string
		want  string
	}{
		{"sorted", []string{"b", "a"}, "a|b"},
		{"duplicates", []string{"a", "a", "b"}, "a|b"},
		{"trimmed", []string{" a ", "", "  "}, "a"},
		{"split on separator", []string{"c|a", "b"}, "a|b|c"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := r.Register(tt.atoms...)
			if got := s.String(); got != tt.want {
				t.Errorf("Register(%q).String() = %q, want %q", tt.atoms, got, tt.want)
			}
			if !r.Owns(s) {
				t.Error("Owns() = false for a set it registered")
			}
		})
	}
}

func TestRegistry_Interning(t *testing.T) {
	r := NewRegistry()
	a := r.Register("order", "payment")
	b := r.Parse("payment|order")
	if a != b {
		t.Errorf("equal sets are not the same pointer: %p, %p", a, b)
	}
	if r.Register() != r.Empty() {
		t.Error("Register() should return the empty set")
	}

	other := NewRegistry()
	c := other.Register("order", "payment")
	if a == c {
		t.Error("sets from different registries compare equal")
	}
	if r.Owns(c) {
		t.Error("Owns() = true for a foreign set")
	}
	if !r.Owns(nil) {
		t.Error("Owns(nil) = false, want true")
	}
	if got := r.Import(c); got != a {
		t.Errorf("Import() = %p, want the local set %p", got, a)
	}
	if got := r.Import(nil); got != r.Empty() {
		t.Error("Import(nil) should return the empty set")
	}
}

func TestRegistry_Union(t *testing.T) {
	r := NewRegistry()
	other := NewRegistry()

	tests := []struct {
		name string
		a, b *Set
		want string
	}{
		{"disjoint", r.Register("a"), r.Register("b"), "a|b"},
		{"overlap", r.Register("a", "b"), r.Register("b", "c"), "a|b|c"},
		{"same", r.Register("a"), r.Register("a"), "a"},
		{"left empty", nil, r.Register("a"), "a"},
		{"right empty", r.Register("a"), r.Empty(), "a"},
		{"both empty", nil, nil, ""},
		{"foreign operand", other.Register("x"), nil, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Union(tt.a, tt.b)
			if got.String() != tt.want {
				t.Errorf("Union() = %q, want %q", got.String(), tt.want)
			}
			if !r.Owns(got) || got == nil {
				t.Error("Union() returned a set the registry does not own")
			}
			if got != r.Parse(tt.want) {
				t.Error("Union() result is not interned")
			}
		})
	}
}

func TestSet_Queries(t *testing.T) {
	r := NewRegistry()
	s := r.Register("order", "payment", "eu")

	if !s.Contains("payment") || s.Contains("shipping") {
		t.Errorf("Contains() wrong for %q", s)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
	if !slices.Equal(s.Atoms(), []string{"eu", "order", "payment"}) {
		t.Errorf("Atoms() = %v", s.Atoms())
	}
	if !s.Overlaps(r.Register("eu", "us")) || s.Overlaps(r.Register("us")) {
		t.Error("Overlaps() wrong")
	}
	if !s.IsSupersetOf(r.Register("eu", "order")) || s.IsSupersetOf(r.Register("eu", "us")) {
		t.Error("IsSupersetOf() wrong")
	}
	if !s.IsSupersetOf(nil) {
		t.Error("every set is a superset of the empty set")
	}

	var nilSet *Set
	if !nilSet.IsEmpty() || nilSet.Len() != 0 || nilSet.String() != "" || nilSet.Contains("a") {
		t.Error("nil set should behave as empty")
	}
	if nilSet.Registry() != nil {
		t.Error("nil set has no registry")
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	results := make([]*Set, 32)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Register(fmt.Sprintf("t%d", i%4), "shared")
		}(i)
	}
	wg.Wait()

	for i, s := range results {
		if s != r.Register(fmt.Sprintf("t%d", i%4), "shared") {
			t.Errorf("results[%d] was not interned", i)
		}
	}
	// empty + 4 distinct sets
	if r.Len() != 5 {
		t.Errorf("Len() = %d, want 5", r.Len())
	}
}
