// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/nestnet/nestnet/pkg/argspec"
)

type (
	// Registry holds one table per Kind plus the default key of each table.
	Registry struct {
		mu       sync.RWMutex
		tables   [kindCount]map[string]*Factory
		defaults [kindCount]string
	}

	// Plugin is a compiled-in extension that registers its components
	// through the typed helpers.
	Plugin interface {
		Register(r *Registry) error
	}

	// PluginFunc adapts a function to the Plugin interface.
	PluginFunc func(r *Registry) error
)

// Register calls f(r).
func (f PluginFunc) Register(r *Registry) error { return f(r) }

// New returns an empty registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.tables {
		r.tables[i] = map[string]*Factory{}
	}
	return r
}

// Register inserts or replaces the factory stored under key. It never fails.
func (r *Registry) Register(kind Kind, key string, f *Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[kind][key] = f
}

// Resolve returns the factory stored under key.
func (r *Registry) Resolve(kind Kind, key string) (*Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.tables[kind][key]
	if !ok {
		return nil, &UnknownComponentError{Kind: kind, Key: key, Known: sortedKeys(r.tables[kind])}
	}
	return f, nil
}

// Has reports whether key is present in kind's table.
func (r *Registry) Has(kind Kind, key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tables[kind][key]
	return ok
}

// ResolveSpec parses a "name[,pos...][,key=value...]" string, resolves name
// and returns the factory specialized with the parsed arguments. Positional
// arguments bind to the factory's declared positional parameter names.
// A spec without arguments returns the stored factory itself.
func (r *Registry) ResolveSpec(kind Kind, spec string) (*Factory, error) {
	parsed, err := argspec.Split(spec)
	if err != nil {
		return nil, &InvalidSpecError{Kind: kind, Spec: spec, Reason: err.Error()}
	}
	f, err := r.Resolve(kind, parsed.Name)
	if err != nil {
		return nil, err
	}
	if parsed.Args.Empty() {
		return f, nil
	}

	if len(parsed.Args.Positional) > len(f.Positional) {
		return nil, &InvalidSpecError{
			Kind:   kind,
			Spec:   spec,
			Reason: fmt.Sprintf("%d positional arguments given, %q accepts %d", len(parsed.Args.Positional), parsed.Name, len(f.Positional)),
		}
	}
	extra := make(Params, len(parsed.Args.Positional)+len(parsed.Args.Keyword))
	for i, v := range parsed.Args.Positional {
		extra[f.Positional[i]] = v
	}
	for k, v := range parsed.Args.Keyword {
		extra[k] = v
	}
	return Specialize(f, extra), nil
}

// SetDefault records the default key of a table. The key is not checked;
// callers resolve it when they need it.
func (r *Registry) SetDefault(kind Kind, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults[kind] = key
}

// Default returns the default key of a table.
func (r *Registry) Default(kind Kind) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults[kind]
}

// Keys returns the sorted keys of a table.
func (r *Registry) Keys(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.tables[kind])
}

// Help renders "key=Name" pairs of a table, sorted by key.
func (r *Registry) Help(kind Kind) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := sortedKeys(r.tables[kind])
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+r.tables[kind][k].Name)
	}
	return strings.Join(parts, " ")
}

// Clone returns an independent copy of every table and default. Factories
// are shared; they are immutable after construction.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := New()
	for i := range r.tables {
		maps.Copy(c.tables[i], r.tables[i])
	}
	c.defaults = r.defaults
	return c
}

// Use registers every plugin in order, stopping at the first failure.
func (r *Registry) Use(plugins ...Plugin) error {
	for _, p := range plugins {
		if err := p.Register(r); err != nil {
			return err
		}
	}
	return nil
}

// RegisterTopo registers a topology factory.
func (r *Registry) RegisterTopo(key string, f *Factory) error {
	return r.registerTyped(KindTopology, key, f)
}

// RegisterSwitch registers a switch factory.
func (r *Registry) RegisterSwitch(key string, f *Factory) error {
	return r.registerTyped(KindSwitch, key, f)
}

// RegisterHost registers a host factory.
func (r *Registry) RegisterHost(key string, f *Factory) error {
	return r.registerTyped(KindHost, key, f)
}

// RegisterController registers a controller factory.
func (r *Registry) RegisterController(key string, f *Factory) error {
	return r.registerTyped(KindController, key, f)
}

// RegisterLink registers a link factory.
func (r *Registry) RegisterLink(key string, f *Factory) error {
	return r.registerTyped(KindLink, key, f)
}

func (r *Registry) registerTyped(kind Kind, key string, f *Factory) error {
	if f.Kind != kind {
		return &KindMismatchError{Want: kind, Got: f.Kind, Key: key}
	}
	r.Register(kind, key, f)
	return nil
}

func sortedKeys(m map[string]*Factory) []string {
	return slices.Sorted(maps.Keys(m))
}
