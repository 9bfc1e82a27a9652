// SPDX-License-Identifier: MPL-2.0

package netemu

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nestnet/nestnet/internal/channel"
	"github.com/nestnet/nestnet/internal/container"
	"github.com/nestnet/nestnet/internal/dispatch"
	"github.com/nestnet/nestnet/internal/topo"
	"github.com/nestnet/nestnet/pkg/registry"
)

const (
	// DefaultOFPort is the OpenFlow port of the first controller.
	DefaultOFPort = 6653
	// DefaultListenPort is the first passive listening port of switches.
	DefaultListenPort = 6654

	// tag marks interfaces, bridges and cgroups owned by nestnet so that
	// Cleanup can find them.
	tag = "nestnet"
)

type (
	// ShellLauncher rewrites the argv used to start a node's shell.
	ShellLauncher func(n *Node, argv []string) []string

	// Options describes the network to build.
	Options struct {
		Topo        *topo.Topo
		Switch      *registry.Factory
		Host        *registry.Factory
		Link        *registry.Factory
		Controllers []*registry.Factory

		IPBase        string
		InNamespace   bool
		AutoSetMACs   bool
		AutoStaticARP bool
		AutoPinCPUs   bool
		// WaitConnected makes Start wait for switches; WaitTimeout bounds
		// the wait (0 waits without bound).
		WaitConnected bool
		WaitTimeout   time.Duration
		// ListenPort is the first passive listening port; 0 disables.
		ListenPort int

		// Image is the default image of container hosts.
		Image  string
		Engine container.Engine

		// Servers and Placement select cluster mode.
		Servers   []string
		Placement string

		PromptTimeout time.Duration
		Commander     Commander
		Launch        ShellLauncher
		Logger        *log.Logger
	}

	// Network is a built network.
	Network struct {
		opts   Options
		logger *log.Logger
		mux    *channel.Multiplexer
		cmd    Commander

		nodes       map[string]*Node
		hosts       []*Node
		switches    []*Node
		controllers []*Node
		links       []*Link
		ctlNet      *controlNet

		remote  map[string]Commander
		ops     map[string]dispatch.Operation
		started bool
		stopped sync.Once
		stopErr error
	}
)

// Build creates every node, starts its shell and wires the links. On
// failure the partially built network is returned with the error so the
// caller can stop it.
func Build(ctx context.Context, opts Options) (*Network, error) {
	if opts.Topo == nil {
		return nil, errors.New("no topology")
	}
	if opts.Commander == nil {
		opts.Commander = NewLocalCommander()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.IPBase == "" {
		opts.IPBase = "10.0.0.0/8"
	}
	mux, err := channel.NewMultiplexer()
	if err != nil {
		return nil, err
	}

	n := &Network{
		opts:   opts,
		logger: opts.Logger,
		mux:    mux,
		cmd:    opts.Commander,
		nodes:  map[string]*Node{},
		remote: map[string]Commander{},
	}
	n.registerOperations()
	return n, n.build(ctx)
}

func (n *Network) build(ctx context.Context) error {
	placement := map[string]string{}
	if len(n.opts.Servers) > 0 {
		placer, err := NewPlacer(n.opts.Placement, n.opts.Servers)
		if err != nil {
			return err
		}
		placement = placer.Place(n.opts.Topo, n.opts.Topo.Switches(), n.opts.Topo.Hosts())
		n.logger.Info("placing nodes", "servers", n.opts.Servers, "placement", n.opts.Placement)
	}

	n.logger.Info("*** Adding controller")
	if err := n.addControllers(); err != nil {
		return err
	}

	n.logger.Info("*** Adding hosts", "hosts", n.opts.Topo.Hosts())
	alloc, err := NewIPAllocator(n.opts.IPBase)
	if err != nil {
		return err
	}
	for i, name := range n.opts.Topo.Hosts() {
		node, err := n.newNode(n.opts.Host, name, RoleHost)
		if err != nil {
			return err
		}
		node.index = i
		node.Server = node.Params.String("server", placement[name])
		if ip := node.Params.String("ip", ""); ip != "" {
			if node.IP, err = alloc.ParseHostIP(ip); err != nil {
				return fmt.Errorf("host %s: invalid ip %q: %w", name, ip, err)
			}
		} else if node.IP, err = alloc.Next(); err != nil {
			return err
		}
		node.MAC = node.Params.String("mac", "")
		if node.MAC == "" && n.opts.AutoSetMACs {
			node.MAC = MACForIndex(uint64(i) + 1)
		}
		n.hosts = append(n.hosts, node)
	}

	n.logger.Info("*** Adding switches", "switches", n.opts.Topo.Switches())
	for i, name := range n.opts.Topo.Switches() {
		node, err := n.newNode(n.opts.Switch, name, RoleSwitch)
		if err != nil {
			return err
		}
		node.index = i
		node.Server = node.Params.String("server", placement[name])
		node.ownNetns = n.opts.InNamespace
		n.switches = append(n.switches, node)
	}

	for _, node := range n.Nodes() {
		if err := n.startShell(ctx, node); err != nil {
			return err
		}
	}

	for _, sw := range n.switches {
		if err := sw.sw.create(ctx, n, sw); err != nil {
			return fmt.Errorf("create switch %s: %w", sw.Name, err)
		}
	}

	if n.opts.InNamespace {
		if err := n.buildControlNet(ctx); err != nil {
			return err
		}
	}

	n.logger.Info("*** Adding links")
	for _, tl := range n.opts.Topo.Links() {
		if err := n.addLink(ctx, tl); err != nil {
			return err
		}
	}

	for _, h := range n.hosts {
		if err := n.configureHost(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

func (n *Network) newNode(f *registry.Factory, name string, role Role) (*Node, error) {
	params := registry.Params{}
	if tn, ok := n.opts.Topo.Node(name); ok {
		params = tn.Params
	}
	node, err := registry.Build[*Node](f, name, params)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", role, name, err)
	}
	if node.Role != role {
		return nil, fmt.Errorf("%s %s: factory %q builds a %s", role, name, f.Name, node.Role)
	}
	n.nodes[name] = node
	return node, nil
}

func (n *Network) addControllers() error {
	for i, f := range n.opts.Controllers {
		name := "c" + strconv.Itoa(i)
		v, err := f.New(name, nil)
		if err != nil {
			return fmt.Errorf("controller %s: %w", name, err)
		}
		node, ok := v.(*Node)
		if !ok || node == nil {
			// NullController builds nothing.
			continue
		}
		node.index = i
		if !node.Params.Has("port") {
			node.Params = node.Params.Overlay(registry.Params{"port": DefaultOFPort + i})
		}
		if len(n.opts.Servers) > 0 {
			node.Server = node.Params.String("server", n.opts.Servers[0])
		}
		n.nodes[name] = node
		n.controllers = append(n.controllers, node)
	}
	return nil
}

// startShell launches the node's shell and records the pid owning its
// namespaces.
func (n *Network) startShell(ctx context.Context, node *Node) error {
	shell := channel.ShellArgv(node.Name, channel.DefaultSentinel)
	argv, err := n.launchArgv(ctx, node, shell)
	if err != nil {
		return err
	}
	if n.opts.Launch != nil {
		argv = n.opts.Launch(node, argv)
	}

	node.ch = channel.New(n.mux, channel.Options{
		Name:          node.Name,
		Argv:          argv,
		PromptTimeout: n.opts.PromptTimeout,
		Logger:        n.logger,
	})
	if err := node.ch.Start(ctx); err != nil {
		return err
	}
	if node.pid == 0 {
		out, err := node.Cmd(ctx, "echo $$")
		if err != nil {
			return err
		}
		if node.pid, err = parseShellPid(out); err != nil {
			return fmt.Errorf("node %s: %w", node.Name, err)
		}
	}
	if node.host != nil {
		if err := node.host.setup(ctx, n, node); err != nil {
			return fmt.Errorf("set up host %s: %w", node.Name, err)
		}
	}
	return nil
}

// parseShellPid reads the output of "echo $$", which ends in a newline.
func parseShellPid(out string) (int, error) {
	pid, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("unexpected pid %q", out)
	}
	return pid, nil
}

func (n *Network) launchArgv(ctx context.Context, node *Node, shell []string) ([]string, error) {
	if node.host != nil {
		return node.host.launch(ctx, n, node, shell)
	}
	argv := shell
	if node.ownNetns {
		argv = append([]string{"unshare", "--net", "--"}, shell...)
	}
	if !isLocal(node.Server) {
		argv = SSHArgv(node.Server, true, append([]string{"sudo", "-E"}, argv...))
	}
	return argv, nil
}

// commander returns the commander for a server.
func (n *Network) commander(server string) Commander {
	if isLocal(server) {
		return n.cmd
	}
	c, ok := n.remote[server]
	if !ok {
		c = NewRemoteCommander(server, n.cmd)
		n.remote[server] = c
	}
	return c
}

// nodeExec runs argv in the node's network namespace on its server.
func (n *Network) nodeExec(ctx context.Context, node *Node, argv ...string) (string, error) {
	if node.Role == RoleHost || node.ownNetns {
		argv = append([]string{"nsenter", "-t", strconv.Itoa(node.pid), "-n", "--"}, argv...)
	}
	return n.commander(node.Server).Run(ctx, argv...)
}

// rootExec runs argv in the root namespace of server.
func (n *Network) rootExec(ctx context.Context, server string, argv ...string) (string, error) {
	return n.commander(server).Run(ctx, argv...)
}

func (n *Network) configureHost(ctx context.Context, h *Node) error {
	if _, err := n.nodeExec(ctx, h, "ip", "link", "set", "lo", "up"); err != nil {
		return err
	}
	for i, intf := range h.intfs {
		if i == 0 {
			intf.IP = h.IP
			intf.MAC = h.MAC
		}
		if intf.MAC != "" {
			if _, err := n.nodeExec(ctx, h, "ip", "link", "set", "dev", intf.Name, "address", intf.MAC); err != nil {
				return err
			}
		}
		if intf.IP.IsValid() {
			if _, err := n.nodeExec(ctx, h, "ip", "addr", "add", intf.IP.String(), "dev", intf.Name); err != nil {
				return err
			}
		}
		if _, err := n.nodeExec(ctx, h, "ip", "link", "set", "dev", intf.Name, "up"); err != nil {
			return err
		}
	}
	return nil
}

// Start starts controllers and switches. Calling it again is a no-op.
func (n *Network) Start(ctx context.Context) error {
	if n.started {
		return nil
	}
	n.logger.Info("*** Starting controller", "controllers", names(n.controllers))
	for _, c := range n.controllers {
		if err := c.ctl.start(ctx, n, c); err != nil {
			return fmt.Errorf("start controller %s: %w", c.Name, err)
		}
	}
	n.logger.Info("*** Starting switches", "switches", names(n.switches))
	for _, sw := range n.switches {
		if err := sw.sw.start(ctx, n, sw, n.controllers); err != nil {
			return fmt.Errorf("start switch %s: %w", sw.Name, err)
		}
	}
	n.started = true

	if n.opts.AutoStaticARP {
		if err := n.StaticARP(ctx); err != nil {
			return err
		}
	}
	if n.opts.WaitConnected {
		if n.opts.WaitTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, n.opts.WaitTimeout)
			defer cancel()
		}
		if err := n.WaitConnected(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop tears the network down. It runs once; later calls return the first
// result.
func (n *Network) Stop(ctx context.Context) error {
	n.stopped.Do(func() {
		var errs []error
		n.logger.Info("*** Stopping controllers", "controllers", names(n.controllers))
		for _, c := range n.controllers {
			if c.ctl != nil && c.ch != nil {
				errs = append(errs, c.ctl.stop(ctx, n, c))
			}
		}
		n.logger.Info("*** Stopping links", "links", len(n.links))
		for _, l := range n.links {
			errs = append(errs, l.driver.remove(ctx, n, l))
		}
		n.logger.Info("*** Stopping switches", "switches", names(n.switches))
		for _, sw := range n.switches {
			if sw.ch != nil {
				errs = append(errs, sw.sw.stop(ctx, n, sw))
			}
		}
		if n.ctlNet != nil {
			errs = append(errs, n.ctlNet.remove(ctx, n))
		}
		n.logger.Info("*** Stopping hosts", "hosts", names(n.hosts))
		for _, node := range n.Nodes() {
			if node.ch != nil {
				errs = append(errs, node.ch.Close())
			}
			if node.host != nil {
				errs = append(errs, node.host.teardown(ctx, n, node))
			}
		}
		errs = append(errs, n.mux.Close())
		n.stopErr = errors.Join(errs...)
		n.logger.Info("*** Done")
	})
	return n.stopErr
}

// Nodes returns hosts, switches and controllers in that order.
func (n *Network) Nodes() []*Node {
	all := make([]*Node, 0, len(n.nodes))
	all = append(all, n.hosts...)
	all = append(all, n.switches...)
	return append(all, n.controllers...)
}

// Node looks a node up by name.
func (n *Network) Node(name string) (*Node, error) {
	node, ok := n.nodes[name]
	if !ok {
		return nil, &UnknownNodeError{Name: name}
	}
	return node, nil
}

// Hosts returns the hosts in topology order.
func (n *Network) Hosts() []*Node { return slices.Clone(n.hosts) }

// Switches returns the switches in topology order.
func (n *Network) Switches() []*Node { return slices.Clone(n.switches) }

// Controllers returns the controllers.
func (n *Network) Controllers() []*Node { return slices.Clone(n.controllers) }

// Links returns the links in creation order.
func (n *Network) Links() []*Link { return slices.Clone(n.links) }

// Multiplexer returns the run's channel multiplexer.
func (n *Network) Multiplexer() *channel.Multiplexer { return n.mux }

// Logger returns the network's logger.
func (n *Network) Logger() *log.Logger { return n.logger }

func names(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}
