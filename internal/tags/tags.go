// Package tags provides interned, immutable label sets.
//
// A Registry interns every set it hands out, so two sets with the same
// atoms obtained from the same registry are the same pointer and compare
// equal with ==. Sets from different registries never compare equal; a
// monitor rejects sets that its environment's registry did not produce.
package tags

import (
	"slices"
	"strings"
	"sync"
)

// Separator joins atoms in the text form of a set.
const Separator = "|"

// Set is an interned tag set. A nil *Set behaves as the empty set.
type Set struct {
	atoms []string
	key   string
	reg   *Registry
}

// Atoms returns a copy of the sorted atoms.
func (s *Set) Atoms() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.atoms)
}

// IsEmpty reports whether the set has no atoms.
func (s *Set) IsEmpty() bool {
	return s == nil || len(s.atoms) == 0
}

// Len returns the number of atoms.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.atoms)
}

// Contains reports whether atom is part of the set.
func (s *Set) Contains(atom string) bool {
	if s == nil {
		return false
	}
	_, found := slices.BinarySearch(s.atoms, atom)
	return found
}

// Overlaps reports whether s and other share at least one atom.
func (s *Set) Overlaps(other *Set) bool {
	if s.IsEmpty() || other.IsEmpty() {
		return false
	}
	for _, a := range other.atoms {
		if s.Contains(a) {
			return true
		}
	}
	return false
}

// IsSupersetOf reports whether every atom of other is in s.
func (s *Set) IsSupersetOf(other *Set) bool {
	if other.IsEmpty() {
		return true
	}
	for _, a := range other.atoms {
		if !s.Contains(a) {
			return false
		}
	}
	return true
}

// Registry returns the registry that interned the set.
func (s *Set) Registry() *Registry {
	if s == nil {
		return nil
	}
	return s.reg
}

// String returns the atoms joined by Separator.
func (s *Set) String() string {
	if s == nil {
		return ""
	}
	return s.key
}

// Registry interns tag sets. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	sets  map[string]*Set
	empty *Set
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{sets: make(map[string]*Set)}
	r.empty = &Set{reg: r}
	r.sets[""] = r.empty
	return r
}

// Empty returns the registry's empty set.
func (r *Registry) Empty() *Set {
	return r.empty
}

// Owns reports whether s was interned by r. The nil set is owned by every
// registry and stands for the empty set.
func (r *Registry) Owns(s *Set) bool {
	return s == nil || s.reg == r
}

// Register interns the set made of atoms. Atoms are trimmed, empty ones and
// duplicates dropped, and the separator is not allowed inside an atom (it
// splits it).
func (r *Registry) Register(atoms ...string) *Set {
	clean := make([]string, 0, len(atoms))
	for _, a := range atoms {
		for _, part := range strings.Split(a, Separator) {
			if part = strings.TrimSpace(part); part != "" {
				clean = append(clean, part)
			}
		}
	}
	slices.Sort(clean)
	clean = slices.Compact(clean)
	return r.intern(clean)
}

// Parse interns the set described by its text form ("a|b|c").
func (r *Registry) Parse(text string) *Set {
	return r.Register(text)
}

// Import re-interns a set coming from another registry.
func (r *Registry) Import(s *Set) *Set {
	if s == nil {
		return r.empty
	}
	if s.reg == r {
		return s
	}
	return r.intern(s.atoms)
}

// Union returns the interned union of a and b.
func (r *Registry) Union(a, b *Set) *Set {
	switch {
	case a.IsEmpty() && b.IsEmpty():
		return r.empty
	case b.IsEmpty():
		return r.Import(a)
	case a.IsEmpty():
		return r.Import(b)
	case a == b:
		return r.Import(a)
	}
	merged := make([]string, 0, len(a.atoms)+len(b.atoms))
	merged = append(merged, a.atoms...)
	merged = append(merged, b.atoms...)
	slices.Sort(merged)
	return r.intern(slices.Compact(merged))
}

// Len returns the number of interned sets, the empty set included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sets)
}

func (r *Registry) intern(sorted []string) *Set {
	key := strings.Join(sorted, Separator)

	r.mu.RLock()
	s, ok := r.sets[key]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sets[key]; ok {
		return s
	}
	s = &Set{atoms: slices.Clone(sorted), key: key, reg: r}
	r.sets[key] = s
	return s
}
