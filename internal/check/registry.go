package check

import (
	"fmt"
	"slices"
	"strings"
)

// Registry maps check IDs to checks. It is built once and never mutated, so
// it can be shared across goroutines without locking.
type Registry struct {
	byID map[string]Check
	all  []Check
}

// NewRegistry rejects empty and duplicate IDs.
func NewRegistry(checks ...Check) (*Registry, error) {
	r := &Registry{byID: make(map[string]Check, len(checks))}
	for i, c := range checks {
		if c == nil {
			return nil, fmt.Errorf("check[%d] is nil", i)
		}
		id := c.ID()
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("check[%d]: id is required", i)
		}
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("duplicate check id %q", id)
		}
		r.byID[id] = c
		r.all = append(r.all, c)
	}
	slices.SortFunc(r.all, func(a, b Check) int { return strings.Compare(a.ID(), b.ID()) })
	return r, nil
}

// Lookup returns the check registered under id.
func (r *Registry) Lookup(id string) (Check, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// All returns the registered checks sorted by ID.
func (r *Registry) All() []Check {
	return slices.Clone(r.all)
}

func (r *Registry) Len() int {
	return len(r.all)
}
