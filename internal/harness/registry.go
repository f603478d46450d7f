package harness

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDuplicateTest is returned when two tests share a group and ID.
var ErrDuplicateTest = errors.New("duplicate test identity")

// Registry owns the catalog's test cases. It is populated once at startup
// and only read afterwards.
type Registry struct {
	cases []TestCase
	index map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds tc. A second test with the same identity key is rejected.
func (r *Registry) Register(tc TestCase) error {
	id := tc.Identity()
	key := id.Key()
	if _, ok := r.index[key]; ok {
		return fmt.Errorf("register %s: %w", key, ErrDuplicateTest)
	}
	if _, ok := groupNames[id.Group]; !ok {
		return fmt.Errorf("register %s: unknown group %d", key, int(id.Group))
	}
	r.index[key] = len(r.cases)
	r.cases = append(r.cases, tc)
	return nil
}

// Len returns the number of registered tests.
func (r *Registry) Len() int {
	return len(r.cases)
}

// Lookup returns the test registered under key, e.g. "d007".
func (r *Registry) Lookup(key string) (TestCase, bool) {
	i, ok := r.index[key]
	if !ok {
		return nil, false
	}
	return r.cases[i], true
}

// All returns every test ordered by group, then ID.
func (r *Registry) All() []TestCase {
	return r.Select(Filter{})
}

// Filter narrows a selection. Zero fields match everything.
type Filter struct {
	Group Group
	ID    uint32
}

func (f Filter) match(id Identity) bool {
	if f.Group != 0 && id.Group != f.Group {
		return false
	}
	if f.ID != 0 && id.ID != f.ID {
		return false
	}
	return true
}

// Select returns the tests matching f ordered by group, then ID.
func (r *Registry) Select(f Filter) []TestCase {
	out := make([]TestCase, 0, len(r.cases))
	for _, tc := range r.cases {
		if f.match(tc.Identity()) {
			out = append(out, tc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Identity(), out[j].Identity()
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.ID < b.ID
	})
	return out
}
