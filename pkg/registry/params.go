// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"maps"
	"time"

	"github.com/spf13/cast"
)

// Params are construction parameters for a component. Values arrive from
// the command line, customization files and code, so accessors convert
// loosely and fall back to a default when the key is absent or unusable.
type Params map[string]any

// Clone returns a shallow copy; a nil receiver yields an empty map.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	maps.Copy(out, p)
	return out
}

// Overlay returns a copy of p with every entry of over applied on top.
func (p Params) Overlay(over Params) Params {
	out := p.Clone()
	maps.Copy(out, over)
	return out
}

// Has reports whether key is set.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// String returns key as a string.
func (p Params) String(key, def string) string {
	v, ok := p[key]
	if !ok {
		return def
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return def
	}
	return s
}

// Int returns key as an int.
func (p Params) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return i
}

// Float returns key as a float64.
func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f
}

// Bool returns key as a bool.
func (p Params) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

// Duration returns key as a time.Duration. Bare numbers are seconds.
func (p Params) Duration(key string, def time.Duration) time.Duration {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return time.Duration(n) * time.Second
	case int64:
		return time.Duration(n) * time.Second
	case float64:
		return time.Duration(n * float64(time.Second))
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return def
	}
	return d
}

// Strings returns key as a string slice.
func (p Params) Strings(key string) []string {
	v, ok := p[key]
	if !ok {
		return nil
	}
	s, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil
	}
	return s
}
