// SPDX-License-Identifier: MPL-2.0

package custom

import (
	"fmt"
	"plugin"

	"github.com/nestnet/nestnet/pkg/registry"
)

// RegisterSymbol is the function a plugin must export:
//
//	func Register(r *registry.Registry) error
const RegisterSymbol = "Register"

func openPlugin(path string) (registry.Plugin, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	sym, err := p.Lookup(RegisterSymbol)
	if err != nil {
		return nil, err
	}
	return pluginFromSymbol(sym)
}

// pluginFromSymbol accepts an exported function or a pointer to an exported
// function variable.
func pluginFromSymbol(sym any) (registry.Plugin, error) {
	switch fn := sym.(type) {
	case func(*registry.Registry) error:
		return registry.PluginFunc(fn), nil
	case *func(*registry.Registry) error:
		if fn == nil || *fn == nil {
			return nil, fmt.Errorf("%s is nil", RegisterSymbol)
		}
		return registry.PluginFunc(*fn), nil
	default:
		return nil, fmt.Errorf("%s has type %T, want func(*registry.Registry) error", RegisterSymbol, sym)
	}
}
