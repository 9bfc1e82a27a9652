// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"fmt"
)

type (
	// BuildFunc constructs one component instance named name from the
	// merged parameter set.
	BuildFunc func(name string, p Params) (any, error)

	// Traits describe properties of a component that resolution policy
	// depends on.
	Traits struct {
		// RequiresController marks switches that cannot forward without an
		// external controller.
		RequiresController bool
		// Bridge marks standalone learning switches.
		Bridge bool
		// UserSpace marks switches whose datapath runs in user space; links
		// attached to them need traffic control on both ends.
		UserSpace bool
		// Container marks hosts backed by a container runtime.
		Container bool
		// Remote marks variants that can be placed on cluster servers.
		Remote bool
	}

	// Factory is a named, constructible template for a component.
	// A specialized factory carries bound defaults merged beneath the
	// arguments supplied at construction time.
	Factory struct {
		// Name is the human readable implementation name shown in listings.
		Name string
		// Kind is the table the factory belongs to.
		Kind Kind
		// Positional names the parameters that positional spec arguments
		// bind to, in order.
		Positional []string
		// Traits carries resolution-relevant properties.
		Traits Traits

		defaults Params
		build    BuildFunc
		base     *Factory
	}

	// FactoryOption configures a Factory created by NewFactory.
	FactoryOption func(*Factory)
)

// NewFactory creates a base factory.
func NewFactory(kind Kind, name string, build BuildFunc, opts ...FactoryOption) *Factory {
	f := &Factory{Name: name, Kind: kind, build: build}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithDefaults binds default parameters to a factory.
func WithDefaults(p Params) FactoryOption {
	return func(f *Factory) { f.defaults = p.Clone() }
}

// WithPositional declares the parameter names positional arguments bind to.
func WithPositional(names ...string) FactoryOption {
	return func(f *Factory) { f.Positional = append([]string(nil), names...) }
}

// WithTraits sets the factory traits.
func WithTraits(t Traits) FactoryOption {
	return func(f *Factory) { f.Traits = t }
}

// Specialize returns a factory deriving from base whose defaults are base's
// defaults overlaid with extra. Arguments passed to New still win over both.
func Specialize(base *Factory, extra Params) *Factory {
	return &Factory{
		Name:       base.Name,
		Kind:       base.Kind,
		Positional: base.Positional,
		Traits:     base.Traits,
		defaults:   base.defaults.Overlay(extra),
		build:      base.build,
		base:       base,
	}
}

// Defaults returns a copy of the bound default parameters.
func (f *Factory) Defaults() Params {
	return f.defaults.Clone()
}

// Base returns the factory f was specialized from, or nil for a base
// factory.
func (f *Factory) Base() *Factory {
	return f.base
}

// Root follows Base links back to the original factory.
func (f *Factory) Root() *Factory {
	root := f
	for root.base != nil {
		root = root.base
	}
	return root
}

// Merge returns the parameter set New would build with.
func (f *Factory) Merge(args Params) Params {
	return f.defaults.Overlay(args)
}

// New constructs a component.
func (f *Factory) New(name string, args Params) (any, error) {
	if f.build == nil {
		return nil, fmt.Errorf("%s factory %q has no constructor", f.Kind, f.Name)
	}
	return f.build(name, f.Merge(args))
}

// Build constructs a component through f and asserts its type.
func Build[T any](f *Factory, name string, args Params) (T, error) {
	var zero T
	v, err := f.New(name, args)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s factory %q built %T, want %T", f.Kind, f.Name, v, zero)
	}
	return t, nil
}
