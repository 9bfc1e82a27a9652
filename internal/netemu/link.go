// SPDX-License-Identifier: MPL-2.0

package netemu

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/nestnet/nestnet/internal/topo"
	"github.com/nestnet/nestnet/pkg/registry"
)

type (
	// Link connects two interfaces.
	Link struct {
		Name   string
		Impl   string
		Params registry.Params
		Intf1  *Intf
		Intf2  *Intf

		key    int
		driver linkDriver
	}

	linkDriver interface {
		create(ctx context.Context, n *Network, l *Link) error
		remove(ctx context.Context, n *Network, l *Link) error
	}

	// vethLink is a veth pair, optionally shaped with netem.
	vethLink struct {
		shape bool
		// noOffload disables segmentation offloads, which user space
		// switches do not handle.
		noOffload bool
	}

	// ovsPatchLink joins two Open vSwitch bridges with patch ports and
	// falls back to a veth pair otherwise.
	ovsPatchLink struct {
		fallback vethLink
	}

	// tunnelLink joins nodes on different cluster servers with a gretap
	// tunnel and nodes on the same server with a veth pair.
	tunnelLink struct {
		local vethLink
	}
)

func (l *Link) String() string {
	return l.Intf1.Name + "<->" + l.Intf2.Name
}

// Intfs returns both ends.
func (l *Link) Intfs() [2]*Intf {
	return [2]*Intf{l.Intf1, l.Intf2}
}

// SetStatus brings both ends up or down.
func (l *Link) SetStatus(ctx context.Context, n *Network, up bool) error {
	state := "down"
	if up {
		state = "up"
	}
	var errs []error
	for _, intf := range l.Intfs() {
		_, err := n.nodeExec(ctx, intf.Node, "ip", "link", "set", "dev", intf.Name, state)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (n *Network) addLink(ctx context.Context, tl topo.Link) error {
	node1, err := n.Node(tl.A)
	if err != nil {
		return err
	}
	node2, err := n.Node(tl.B)
	if err != nil {
		return err
	}
	l, err := registry.Build[*Link](n.opts.Link, tl.A+"-"+tl.B, tl.Params)
	if err != nil {
		return fmt.Errorf("link %s-%s: %w", tl.A, tl.B, err)
	}
	l.key = len(n.links) + 1
	l.Intf1 = node1.addIntf(l)
	l.Intf2 = node2.addIntf(l)
	n.links = append(n.links, l)

	if err := l.driver.create(ctx, n, l); err != nil {
		return fmt.Errorf("create link %s: %w", l, err)
	}
	for _, intf := range l.Intfs() {
		if intf.Node.Role != RoleSwitch {
			continue
		}
		if err := intf.Node.sw.addPort(ctx, n, intf.Node, intf); err != nil {
			return fmt.Errorf("attach %s: %w", intf.Name, err)
		}
	}
	return nil
}

// inNetns reports whether the node has its own network namespace.
func inNetns(node *Node) bool {
	return node.Role == RoleHost || node.ownNetns
}

func vethEnd(intf *Intf) []string {
	args := []string{"name", intf.Name}
	if inNetns(intf.Node) {
		args = append(args, "netns", strconv.Itoa(intf.Node.pid))
	}
	return args
}

func (v vethLink) create(ctx context.Context, n *Network, l *Link) error {
	argv := append([]string{"ip", "link", "add"}, vethEnd(l.Intf1)...)
	argv = append(argv, "type", "veth", "peer")
	argv = append(argv, vethEnd(l.Intf2)...)
	if _, err := n.rootExec(ctx, l.Intf1.Node.Server, argv...); err != nil {
		return err
	}
	return v.finish(ctx, n, l)
}

// finish tags root namespace ends for Cleanup and applies shaping.
func (v vethLink) finish(ctx context.Context, n *Network, l *Link) error {
	for _, intf := range l.Intfs() {
		if !inNetns(intf.Node) {
			if _, err := n.nodeExec(ctx, intf.Node, "ip", "link", "set", "dev", intf.Name, "alias", tag); err != nil {
				return err
			}
		}
		if intf.Node.Role == RoleSwitch {
			if _, err := n.nodeExec(ctx, intf.Node, "ip", "link", "set", "dev", intf.Name, "up"); err != nil {
				return err
			}
		}
		if v.noOffload {
			// ethtool is optional; offloads stay on without it.
			_, _ = n.nodeExec(ctx, intf.Node, "ethtool", "-K", intf.Name, "tso", "off", "gso", "off", "gro", "off")
		}
		if !v.shape {
			continue
		}
		if netem := NetemArgs(l.Params); len(netem) > 0 {
			argv := append([]string{"tc", "qdisc", "replace", "dev", intf.Name, "root", "netem"}, netem...)
			if _, err := n.nodeExec(ctx, intf.Node, argv...); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v vethLink) remove(ctx context.Context, n *Network, l *Link) error {
	return ignoreMissing(n.nodeExec(ctx, l.Intf1.Node, "ip", "link", "del", "dev", l.Intf1.Name))
}

func (o ovsPatchLink) create(ctx context.Context, n *Network, l *Link) error {
	if !o.patchable(l) {
		return o.fallback.create(ctx, n, l)
	}
	for _, pair := range [][2]*Intf{{l.Intf1, l.Intf2}, {l.Intf2, l.Intf1}} {
		self, peer := pair[0], pair[1]
		if _, err := n.nodeExec(ctx, self.Node,
			"ovs-vsctl", "add-port", self.Node.Name, self.Name,
			"--", "set", "Interface", self.Name, "type=patch", "options:peer="+peer.Name); err != nil {
			return err
		}
		self.attached = true
	}
	return nil
}

func (o ovsPatchLink) remove(ctx context.Context, n *Network, l *Link) error {
	if !o.patchable(l) {
		return o.fallback.remove(ctx, n, l)
	}
	var errs []error
	for _, intf := range l.Intfs() {
		_, err := n.nodeExec(ctx, intf.Node, "ovs-vsctl", "--if-exists", "del-port", intf.Node.Name, intf.Name)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (o ovsPatchLink) patchable(l *Link) bool {
	_, ok1 := l.Intf1.Node.sw.(*ovsSwitch)
	_, ok2 := l.Intf2.Node.sw.(*ovsSwitch)
	return ok1 && ok2 && l.Intf1.Node.Server == l.Intf2.Node.Server
}

func (t tunnelLink) create(ctx context.Context, n *Network, l *Link) error {
	if l.Intf1.Node.Server == l.Intf2.Node.Server {
		return t.local.create(ctx, n, l)
	}
	addr1, err := serverAddr(l.Intf1.Node.Server)
	if err != nil {
		return err
	}
	addr2, err := serverAddr(l.Intf2.Node.Server)
	if err != nil {
		return err
	}
	ends := []struct {
		intf          *Intf
		local, remote string
	}{
		{l.Intf1, addr1, addr2},
		{l.Intf2, addr2, addr1},
	}
	for _, e := range ends {
		server := e.intf.Node.Server
		if _, err := n.rootExec(ctx, server, "ip", "link", "add", e.intf.Name, "type", "gretap",
			"local", e.local, "remote", e.remote, "key", strconv.Itoa(l.key)); err != nil {
			return err
		}
		if inNetns(e.intf.Node) {
			if _, err := n.rootExec(ctx, server, "ip", "link", "set", e.intf.Name, "netns", strconv.Itoa(e.intf.Node.pid)); err != nil {
				return err
			}
		}
	}
	return t.local.finish(ctx, n, l)
}

func (t tunnelLink) remove(ctx context.Context, n *Network, l *Link) error {
	if l.Intf1.Node.Server == l.Intf2.Node.Server {
		return t.local.remove(ctx, n, l)
	}
	return errors.Join(
		ignoreMissing(n.nodeExec(ctx, l.Intf1.Node, "ip", "link", "del", "dev", l.Intf1.Name)),
		ignoreMissing(n.nodeExec(ctx, l.Intf2.Node, "ip", "link", "del", "dev", l.Intf2.Name)),
	)
}

// serverAddr resolves a cluster server name to an IPv4 address.
func serverAddr(server string) (string, error) {
	if isLocal(server) {
		return "127.0.0.1", nil
	}
	addrs, err := net.LookupHost(server)
	if err != nil {
		return "", fmt.Errorf("resolve server %s: %w", server, err)
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a, nil
		}
	}
	return "", fmt.Errorf("server %s has no IPv4 address", server)
}

// NetemArgs renders the netem options for a shaped link: bw in Mbit/s,
// delay and jitter as durations, loss in percent and max_queue_size in
// packets.
func NetemArgs(p registry.Params) []string {
	var args []string
	if d := p.String("delay", ""); d != "" {
		args = append(args, "delay", d)
		if j := p.String("jitter", ""); j != "" {
			args = append(args, j)
		}
	}
	if loss := p.Float("loss", 0); loss > 0 {
		args = append(args, "loss", strconv.FormatFloat(loss, 'f', -1, 64)+"%")
	}
	if bw := p.Float("bw", 0); bw > 0 {
		args = append(args, "rate", strconv.FormatFloat(bw, 'f', -1, 64)+"mbit")
	}
	if q := p.Int("max_queue_size", 0); q > 0 {
		args = append(args, "limit", strconv.Itoa(q))
	}
	return args
}

func ignoreMissing(out string, err error) error {
	if err != nil && strings.Contains(out, "Cannot find device") {
		return nil
	}
	return err
}
