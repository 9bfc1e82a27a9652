// SPDX-License-Identifier: MPL-2.0

package netemu

import (
	"github.com/nestnet/nestnet/pkg/registry"
)

// RemoteKey is the key of the cluster variant in every table.
const RemoteKey = "remote"

func switchFactory(name string, driver func() switchDriver, traits registry.Traits) *registry.Factory {
	return registry.NewFactory(registry.KindSwitch, name, func(node string, p registry.Params) (any, error) {
		return &Node{Name: node, Role: RoleSwitch, Params: p, Impl: name, sw: driver()}, nil
	}, registry.WithTraits(traits))
}

func hostFactory(name string, driver func() hostDriver, traits registry.Traits, opts ...registry.FactoryOption) *registry.Factory {
	opts = append(opts, registry.WithTraits(traits))
	return registry.NewFactory(registry.KindHost, name, func(node string, p registry.Params) (any, error) {
		return &Node{Name: node, Role: RoleHost, Params: p, Impl: name, host: driver()}, nil
	}, opts...)
}

func controllerFactory(name, command string, args func(*Node, int) string) *registry.Factory {
	return registry.NewFactory(registry.KindController, name, func(node string, p registry.Params) (any, error) {
		return &Node{
			Name: node, Role: RoleController, Params: p, Impl: name,
			ctl: &processController{command: command, args: args},
		}, nil
	}, registry.WithPositional("ip", "port"))
}

func linkFactory(name string, driver func() linkDriver, traits registry.Traits) *registry.Factory {
	return registry.NewFactory(registry.KindLink, name, func(link string, p registry.Params) (any, error) {
		return &Link{Name: link, Impl: name, Params: p, driver: driver()}, nil
	}, registry.WithTraits(traits))
}

// Register installs the built-in switches, hosts, controllers and links and
// their default keys.
func Register(r *registry.Registry) error {
	ovsk := switchFactory("OVSSwitch", func() switchDriver { return &ovsSwitch{failMode: "secure"} },
		registry.Traits{RequiresController: true})
	switches := map[string]*registry.Factory{
		"user": switchFactory("UserSwitch", func() switchDriver { return userSwitch{} },
			registry.Traits{RequiresController: true, UserSpace: true}),
		"ovs":  ovsk,
		"ovsk": ovsk,
		"ovsbr": switchFactory("OVSBridge", func() switchDriver { return &ovsSwitch{failMode: "standalone", standalone: true} },
			registry.Traits{Bridge: true}),
		"ivs": switchFactory("IVSSwitch", func() switchDriver { return ivsSwitch{} },
			registry.Traits{RequiresController: true}),
		"lxbr": switchFactory("LinuxBridge", func() switchDriver { return linuxBridge{} },
			registry.Traits{Bridge: true}),
		"default": ovsk,
		RemoteKey: switchFactory("RemoteOVSSwitch", func() switchDriver { return &ovsSwitch{failMode: "secure"} },
			registry.Traits{RequiresController: true, Remote: true}),
	}

	proc := hostFactory("Host", func() hostDriver { return &procHost{} }, registry.Traits{})
	hosts := map[string]*registry.Factory{
		"proc":    proc,
		"default": proc,
		"cfs": hostFactory("CPULimitedHost", func() hostDriver { return &procHost{sched: "cfs"} },
			registry.Traits{}, registry.WithPositional("cpu")),
		"rt": hostFactory("CPULimitedHost", func() hostDriver { return &procHost{sched: "rt"} },
			registry.Traits{}, registry.WithPositional("cpu")),
		"docker": hostFactory("Docker", func() hostDriver { return containerHost{} },
			registry.Traits{Container: true}, registry.WithPositional("dimage")),
		RemoteKey: hostFactory("RemoteHost", func() hostDriver { return &procHost{} },
			registry.Traits{Remote: true}, registry.WithPositional("server")),
	}

	ref := controllerFactory("Controller", "controller", refArgs)
	controllers := map[string]*registry.Factory{
		"ref":     ref,
		"default": ref,
		"ovsc":    controllerFactory("OVSController", "ovs-controller", refArgs),
		"nox":     controllerFactory("NOX", "nox_core", noxArgs),
		"ryu":     controllerFactory("Ryu", "ryu-manager", ryuArgs),
		RemoteKey: registry.NewFactory(registry.KindController, "RemoteController",
			func(node string, p registry.Params) (any, error) {
				return &Node{Name: node, Role: RoleController, Params: p, Impl: "RemoteController", ctl: remoteController{}}, nil
			}, registry.WithPositional("ip", "port")),
		"none": registry.NewFactory(registry.KindController, "NullController",
			func(string, registry.Params) (any, error) { return nil, nil }),
	}

	veth := func() linkDriver { return vethLink{} }
	links := map[string]*registry.Factory{
		"default": linkFactory("Link", veth, registry.Traits{}),
		"tc":      linkFactory("TCLink", func() linkDriver { return vethLink{shape: true} }, registry.Traits{}),
		"tcu":     linkFactory("TCULink", func() linkDriver { return vethLink{shape: true, noOffload: true} }, registry.Traits{UserSpace: true}),
		"ovs":     linkFactory("OVSLink", func() linkDriver { return ovsPatchLink{} }, registry.Traits{}),
		RemoteKey: linkFactory("RemoteLink", func() linkDriver { return tunnelLink{local: vethLink{shape: true}} },
			registry.Traits{Remote: true}),
	}

	tables := []struct {
		kind    registry.Kind
		entries map[string]*registry.Factory
	}{
		{registry.KindSwitch, switches},
		{registry.KindHost, hosts},
		{registry.KindController, controllers},
		{registry.KindLink, links},
	}
	for _, t := range tables {
		for key, f := range t.entries {
			r.Register(t.kind, key, f)
		}
		r.SetDefault(t.kind, "default")
	}
	return nil
}
