// SPDX-License-Identifier: MPL-2.0

package session

import (
	"strconv"
	"time"

	"github.com/nestnet/nestnet/internal/topo"
	"github.com/nestnet/nestnet/pkg/registry"
)

const (
	ModeStandard Mode = iota
	// ModeControlNet runs switches in their own namespaces with a
	// control network to the controllers.
	ModeControlNet
	// ModeContainer backs hosts with containers.
	ModeContainer
	// ModeCluster spreads the network over several servers.
	ModeCluster
)

type (
	// Mode selects how the network is built.
	Mode int

	// Options are the choices of one run. Empty component specs select the
	// registry default.
	Options struct {
		Topo        string
		Switch      string
		Host        string
		Link        string
		Controllers []string

		IPBase      string
		InNamespace bool
		// Cluster lists the servers of cluster mode.
		Cluster   []string
		Placement string

		Tests  []string
		Pre    string
		Post   string
		Custom []string

		MAC bool
		ARP bool
		Pin bool
		// ListenPort is the first switch listening port; 0 disables it.
		ListenPort int
		// Wait waits for switches to connect; WaitTimeout bounds it.
		Wait        bool
		WaitTimeout time.Duration

		Image         string
		PromptTimeout time.Duration
	}

	// Resolved is the outcome of resolution. It does not change once
	// built.
	Resolved struct {
		RunID   string
		Mode    Mode
		Options Options

		TopoSpec       string
		SwitchSpec     string
		HostSpec       string
		LinkSpec       string
		ControllerSpec []string

		Topo        *topo.Topo
		Switch      *registry.Factory
		Host        *registry.Factory
		Link        *registry.Factory
		Controllers []*registry.Factory
	}
)

func (m Mode) String() string {
	switch m {
	case ModeStandard:
		return "standard"
	case ModeControlNet:
		return "controlnet"
	case ModeContainer:
		return "container"
	case ModeCluster:
		return "cluster"
	default:
		return "Mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// View is the data handed to a custom validator.
func (r *Resolved) View() map[string]any {
	o := r.Options
	return map[string]any{
		"run":         r.RunID,
		"mode":        r.Mode.String(),
		"topo":        r.TopoSpec,
		"switch":      r.SwitchSpec,
		"host":        r.HostSpec,
		"link":        r.LinkSpec,
		"controller":  nonNil(r.ControllerSpec),
		"hosts":       nonNil(r.Topo.Hosts()),
		"switches":    nonNil(r.Topo.Switches()),
		"ipbase":      o.IPBase,
		"innamespace": o.InNamespace,
		"cluster":     nonNil(o.Cluster),
		"placement":   o.Placement,
		"test":        nonNil(o.Tests),
		"mac":         o.MAC,
		"arp":         o.ARP,
		"pin":         o.Pin,
		"listenport":  o.ListenPort,
		"wait":        o.Wait,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
