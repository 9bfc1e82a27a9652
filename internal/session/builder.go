// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/nestnet/nestnet/internal/container"
	"github.com/nestnet/nestnet/internal/netemu"
)

// NetworkBuilder builds networks with netemu.
type NetworkBuilder struct {
	// Engine runs container hosts; nil detects one when needed.
	Engine    container.Engine
	Commander netemu.Commander
	Logger    *log.Logger
	// IPBase applies when neither the options nor a customization file
	// chose one.
	IPBase string
}

// Build maps the resolved run onto netemu options.
func (b *NetworkBuilder) Build(ctx context.Context, r *Resolved) (Network, error) {
	o := r.Options
	if o.IPBase == "" {
		o.IPBase = b.IPBase
	}
	opts := netemu.Options{
		Topo:          r.Topo,
		Switch:        r.Switch,
		Host:          r.Host,
		Link:          r.Link,
		Controllers:   r.Controllers,
		IPBase:        o.IPBase,
		InNamespace:   r.Mode == ModeControlNet,
		AutoSetMACs:   o.MAC,
		AutoStaticARP: o.ARP,
		AutoPinCPUs:   o.Pin,
		WaitConnected: o.Wait,
		WaitTimeout:   o.WaitTimeout,
		ListenPort:    o.ListenPort,
		PromptTimeout: o.PromptTimeout,
		Commander:     b.Commander,
		Logger:        b.Logger,
	}
	switch r.Mode {
	case ModeContainer:
		opts.Image = o.Image
		if opts.Image == "" {
			opts.Image = container.DefaultImage
		}
		opts.Engine = b.Engine
	case ModeCluster:
		opts.Servers = o.Cluster
		opts.Placement = o.Placement
	}

	net, err := netemu.Build(ctx, opts)
	if net == nil {
		return nil, err
	}
	return net, err
}
