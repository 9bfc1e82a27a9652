// SPDX-License-Identifier: MPL-2.0

package netemu

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/nestnet/nestnet/internal/channel"
	"github.com/nestnet/nestnet/pkg/registry"
)

const (
	RoleHost Role = iota
	RoleSwitch
	RoleController
)

type (
	// Role is what a node is in the network.
	Role int

	// Node is one emulated host, switch or controller with its shell.
	Node struct {
		Name   string
		Role   Role
		Params registry.Params
		// Impl is the implementation name shown by dump.
		Impl string
		// Server is the cluster server the node runs on; "" is local.
		Server string
		// IP and MAC of the first interface; hosts only.
		IP  netip.Prefix
		MAC string

		intfs       []*Intf
		ownNetns    bool
		pid         int
		containerID string
		ch          *channel.Channel
		index       int

		host hostDriver
		sw   switchDriver
		ctl  controllerDriver
	}

	// Intf is one end of a link.
	Intf struct {
		Name string
		Node *Node
		Link *Link
		Port int
		IP   netip.Prefix
		MAC  string

		// attached is set once the interface is a switch port.
		attached bool
	}
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleSwitch:
		return "switch"
	case RoleController:
		return "controller"
	default:
		return "Role(" + strconv.Itoa(int(r)) + ")"
	}
}

func (n *Node) String() string { return n.Name }

// Channel returns the node's shell, or nil before the network is built.
func (n *Node) Channel() *channel.Channel { return n.ch }

// Pid returns the pid owning the node's namespaces.
func (n *Node) Pid() int { return n.pid }

// Intfs returns the node's interfaces in port order.
func (n *Node) Intfs() []*Intf { return n.intfs }

// IntfNames returns the names of the node's interfaces.
func (n *Node) IntfNames() []string {
	names := make([]string, len(n.intfs))
	for i, intf := range n.intfs {
		names[i] = intf.Name
	}
	return names
}

// Addr returns the node's IP address without prefix length, or "".
func (n *Node) Addr() string {
	if !n.IP.IsValid() {
		return ""
	}
	return n.IP.Addr().String()
}

// Run sends cmd to the node's shell and waits for it to finish.
func (n *Node) Run(ctx context.Context, cmd string) (channel.Result, error) {
	if n.ch == nil {
		return channel.Result{}, fmt.Errorf("node %s has no shell", n.Name)
	}
	return n.ch.Run(ctx, cmd)
}

// Cmd runs cmd and returns its output regardless of exit status.
func (n *Node) Cmd(ctx context.Context, cmd string) (string, error) {
	res, err := n.Run(ctx, cmd)
	return res.Output, err
}

// nextPort returns the port number for a new interface. Hosts count from 0
// and switches from 1.
func (n *Node) nextPort() int {
	if n.Role == RoleSwitch {
		return len(n.intfs) + 1
	}
	return len(n.intfs)
}

func (n *Node) addIntf(l *Link) *Intf {
	port := n.nextPort()
	intf := &Intf{Name: fmt.Sprintf("%s-eth%d", n.Name, port), Node: n, Link: l, Port: port}
	n.intfs = append(n.intfs, intf)
	return intf
}

// Status returns "up" or "down" from ip link output for the interface.
func (i *Intf) Status(ctx context.Context, net *Network) string {
	out, err := net.nodeExec(ctx, i.Node, "ip", "-o", "link", "show", "dev", i.Name)
	if err != nil {
		return "missing"
	}
	if strings.Contains(out, "state UP") || strings.Contains(out, ",UP") {
		return "up"
	}
	return "down"
}
