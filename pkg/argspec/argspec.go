// SPDX-License-Identifier: MPL-2.0

package argspec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrEmptyName is returned when a spec has no leading name.
var ErrEmptyName = errors.New("argument spec has no name")

type (
	// Args holds the parsed arguments of a spec in encounter order.
	// Positional values keep their order; keyword values are keyed by name.
	Args struct {
		Positional []any
		Keyword    map[string]any
	}

	// Spec is a parsed "name,pos,...,key=value" string.
	Spec struct {
		Name string
		Args Args
	}
)

// Split parses s into a name plus positional and keyword arguments.
// Elements containing '=' are keyword arguments, everything else is
// positional. Values that look like integers or floats are converted.
func Split(s string) (Spec, error) {
	parts := strings.Split(s, ",")
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return Spec{}, fmt.Errorf("%w: %q", ErrEmptyName, s)
	}

	spec := Spec{Name: name, Args: Args{Keyword: map[string]any{}}}
	for _, p := range parts[1:] {
		if key, val, ok := strings.Cut(p, "="); ok {
			spec.Args.Keyword[strings.TrimSpace(key)] = MakeNumeric(val)
			continue
		}
		spec.Args.Positional = append(spec.Args.Positional, MakeNumeric(p))
	}
	return spec, nil
}

// MakeNumeric converts s to an int or float64 when it parses as one and
// returns the string unchanged otherwise.
func MakeNumeric(s string) any {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Empty reports whether there are no arguments at all.
func (a Args) Empty() bool {
	return len(a.Positional) == 0 && len(a.Keyword) == 0
}

// Pos returns the i-th positional argument as a string, or def when absent.
func (a Args) Pos(i int, def string) string {
	if i < 0 || i >= len(a.Positional) {
		return def
	}
	return fmt.Sprint(a.Positional[i])
}

// Kw returns a keyword argument formatted as a string, or def when absent.
func (a Args) Kw(key, def string) string {
	v, ok := a.Keyword[key]
	if !ok {
		return def
	}
	return fmt.Sprint(v)
}

// String renders the spec back into its compact form. Keyword arguments
// are not guaranteed to keep their original order.
func (s Spec) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	for _, p := range s.Args.Positional {
		fmt.Fprintf(&b, ",%v", p)
	}
	for k, v := range s.Args.Keyword {
		fmt.Fprintf(&b, ",%s=%v", k, v)
	}
	return b.String()
}
