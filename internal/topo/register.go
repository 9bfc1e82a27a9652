// SPDX-License-Identifier: MPL-2.0

package topo

import (
	"fmt"

	"github.com/nestnet/nestnet/pkg/registry"
)

// DefaultKey is the topology used when none is selected.
const DefaultKey = "minimal"

func factory(name string, build func(p registry.Params) (*Topo, error), opts ...registry.FactoryOption) *registry.Factory {
	return registry.NewFactory(registry.KindTopology, name, func(_ string, p registry.Params) (any, error) {
		return build(p)
	}, opts...)
}

// Register adds the standard topologies to r and makes minimal the
// default.
func Register(r *registry.Registry) error {
	factories := map[string]*registry.Factory{
		"minimal": factory("MinimalTopo", func(registry.Params) (*Topo, error) {
			return Minimal(), nil
		}),
		"single": factory("SingleSwitchTopo", func(p registry.Params) (*Topo, error) {
			return Single(p.Int("k", 2)), nil
		}, registry.WithPositional("k"), registry.WithDefaults(registry.Params{"k": 2})),
		"reversed": factory("SingleSwitchReversedTopo", func(p registry.Params) (*Topo, error) {
			return Reversed(p.Int("k", 2)), nil
		}, registry.WithPositional("k"), registry.WithDefaults(registry.Params{"k": 2})),
		"linear": factory("LinearTopo", func(p registry.Params) (*Topo, error) {
			return Linear(p.Int("k", 2), p.Int("n", 1))
		}, registry.WithPositional("k", "n"), registry.WithDefaults(registry.Params{"k": 2, "n": 1})),
		"tree": factory("TreeTopo", func(p registry.Params) (*Topo, error) {
			return Tree(p.Int("depth", 1), p.Int("fanout", 2))
		}, registry.WithPositional("depth", "fanout"), registry.WithDefaults(registry.Params{"depth": 1, "fanout": 2})),
		"torus": factory("TorusTopo", func(p registry.Params) (*Topo, error) {
			return Torus(p.Int("x", 3), p.Int("y", 3), p.Int("n", 1))
		}, registry.WithPositional("x", "y", "n"), registry.WithDefaults(registry.Params{"x": 3, "y": 3, "n": 1})),
		"file": factory("FileTopo", func(p registry.Params) (*Topo, error) {
			path := p.String("path", "")
			if path == "" {
				return nil, fmt.Errorf("%w: file topology needs path=<file>", ErrInvalidShape)
			}
			return LoadFile(path)
		}, registry.WithPositional("path")),
	}
	for key, f := range factories {
		if err := r.RegisterTopo(key, f); err != nil {
			return err
		}
	}
	r.SetDefault(registry.KindTopology, DefaultKey)
	return nil
}

// Literal returns a topology factory that always builds s.
func Literal(name string, s Spec) *registry.Factory {
	return factory(name, func(registry.Params) (*Topo, error) {
		return FromSpec(s)
	})
}
