// Package checks holds the built-in check kinds. Each kind is instantiated
// from a config.Check entry, so one kind can back several registered checks
// with different IDs and default parameters.
package checks

import (
	"fmt"
	"slices"

	"github.com/blackwhitehere/acme-data-dash/internal/check"
	"github.com/blackwhitehere/acme-data-dash/internal/config"
)

// Factory builds a check from its config entry.
type Factory func(c config.Check) check.Check

var factories = map[string]Factory{
	"example":       NewExample,
	"sql_row_count": NewSQLRowCount,
	"sql_freshness": NewSQLFreshness,
	"http_endpoint": NewHTTPEndpoint,
	"tcp_port":      NewTCPPort,
}

// New returns the check for c.Type.
func New(c config.Check) (check.Check, error) {
	f, ok := factories[c.Type]
	if !ok {
		return nil, fmt.Errorf("unknown check type %q", c.Type)
	}
	return f(c), nil
}

// Build instantiates every configured check.
func Build(cfgs []config.Check) ([]check.Check, error) {
	out := make([]check.Check, 0, len(cfgs))
	for _, c := range cfgs {
		ck, err := New(c)
		if err != nil {
			return nil, fmt.Errorf("check %q: %w", c.ID, err)
		}
		out = append(out, ck)
	}
	return out, nil
}

// base carries the parts every kind shares: identity, description and the
// declared parameters with configured defaults applied.
type base struct {
	id          string
	description string
	params      []check.ParameterDefinition
	defaults    map[string]string
	fixed       map[string]bool
}

// fixedParams are taken only from config when the operator sets them there,
// so a caller cannot point a check at another connection or statement.
var fixedParams = []string{"connection", "query"}

func newBase(c config.Check, description string, params []check.ParameterDefinition) base {
	if c.Description != "" {
		description = c.Description
	}
	defs := slices.Clone(params)
	defaults := make(map[string]string)
	for i := range defs {
		if v, ok := c.Params[defs[i].Name]; ok {
			defs[i].Default = &v
		}
		if defs[i].Default != nil {
			defaults[defs[i].Name] = *defs[i].Default
		}
	}
	fixed := make(map[string]bool)
	for _, name := range fixedParams {
		if _, ok := c.Params[name]; ok {
			fixed[name] = true
		}
	}
	return base{id: c.ID, description: description, params: defs, defaults: defaults, fixed: fixed}
}

func (b *base) ID() string          { return b.id }
func (b *base) Description() string { return b.description }

func (b *base) Parameters() []check.ParameterDefinition {
	return slices.Clone(b.params)
}

// resolve overlays the caller's params on the declared defaults. A caller
// value for a fixed parameter is accepted only when it matches config.
func (b *base) resolve(p check.Params) (check.Params, error) {
	for name := range b.fixed {
		if !p.Has(name) {
			continue
		}
		if v, err := p.String(name); err != nil || v != b.defaults[name] {
			return nil, check.ConfigErrorf("parameter %s is set by configuration and cannot be overridden", name)
		}
	}
	return p.Merge(b.defaults), nil
}

func param(name, description string) check.ParameterDefinition {
	return check.ParameterDefinition{Name: name, Description: description}
}

func paramDefault(name, description, def string) check.ParameterDefinition {
	return check.ParameterDefinition{Name: name, Description: description, Default: &def}
}
