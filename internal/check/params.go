package check

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Params is the per-invocation parameter map. Values are whatever the caller
// decoded from JSON or the CLI: strings, float64, json.Number, bool, nested
// maps and slices.
type Params map[string]any

// Has reports whether name is present and non-nil.
func (p Params) Has(name string) bool {
	v, ok := p[name]
	return ok && v != nil
}

// String returns name as a string. Numbers and booleans are formatted.
func (p Params) String(name string) (string, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return "", ConfigErrorf("Missing %s", name)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case bool:
		return strconv.FormatBool(t), nil
	}
	return "", ConfigErrorf("parameter %s: expected string, got %T", name, v)
}

// StringOr returns def when name is absent.
func (p Params) StringOr(name, def string) (string, error) {
	if !p.Has(name) {
		return def, nil
	}
	return p.String(name)
}

// Int returns name as an integer. Numeric strings are accepted.
func (p Params) Int(name string) (int64, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return 0, ConfigErrorf("Missing %s", name)
	}
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		if t != math.Trunc(t) {
			return 0, ConfigErrorf("parameter %s: %v is not an integer", name, t)
		}
		return int64(t), nil
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, ConfigErrorf("parameter %s: %q is not an integer", name, t)
		}
		return n, nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, ConfigErrorf("parameter %s: %q is not an integer", name, t)
		}
		return n, nil
	}
	return 0, ConfigErrorf("parameter %s: expected integer, got %T", name, v)
}

// IntOr returns def when name is absent.
func (p Params) IntOr(name string, def int64) (int64, error) {
	if !p.Has(name) {
		return def, nil
	}
	return p.Int(name)
}

// DurationOr parses name with time.ParseDuration, returning def when absent.
func (p Params) DurationOr(name string, def time.Duration) (time.Duration, error) {
	if !p.Has(name) {
		return def, nil
	}
	s, err := p.String(name)
	if err != nil {
		return 0, err
	}
	d, perr := time.ParseDuration(s)
	if perr != nil {
		return 0, ConfigErrorf("parameter %s: %v", name, perr)
	}
	return d, nil
}

// Merge returns a new map holding defaults overlaid by p.
func (p Params) Merge(defaults map[string]string) Params {
	out := make(Params, len(defaults)+len(p))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range p {
		out[k] = v
	}
	return out
}
