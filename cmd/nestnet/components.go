// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/nestnet/nestnet/internal/dispatch"
	"github.com/nestnet/nestnet/internal/netemu"
	"github.com/nestnet/nestnet/internal/topo"
	"github.com/nestnet/nestnet/pkg/registry"
)

// newRegistry returns the built-in component tables with the defaults of
// the loaded configuration applied.
func (app *App) newRegistry() (*registry.Registry, error) {
	reg := registry.New()
	if err := reg.Use(registry.PluginFunc(topo.Register), registry.PluginFunc(netemu.Register)); err != nil {
		return nil, fmt.Errorf("register built-in components: %w", err)
	}
	if app.cfg == nil {
		return reg, nil
	}
	d := app.cfg.Defaults
	for kind, key := range map[registry.Kind]string{
		registry.KindTopology:   d.Topo,
		registry.KindSwitch:     d.Switch,
		registry.KindHost:       d.Host,
		registry.KindController: d.Controller,
		registry.KindLink:       d.Link,
	} {
		if key != "" {
			reg.SetDefault(kind, key)
		}
	}
	return reg, nil
}

func (app *App) newDispatcher() *dispatch.Dispatcher {
	return dispatch.New(app.logger)
}
