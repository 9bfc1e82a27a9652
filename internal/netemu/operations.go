// SPDX-License-Identifier: MPL-2.0

package netemu

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nestnet/nestnet/internal/dispatch"
	"github.com/nestnet/nestnet/pkg/argspec"
)

func (n *Network) registerOperations() {
	n.ops = map[string]dispatch.Operation{
		"dump": func(ctx context.Context, _ argspec.Args) error {
			for _, line := range n.Dump(ctx) {
				n.logger.Info(line)
			}
			return nil
		},
		"net": func(context.Context, argspec.Args) error {
			for _, line := range n.Net() {
				n.logger.Info(line)
			}
			return nil
		},
		"links": func(ctx context.Context, _ argspec.Args) error {
			for _, line := range n.LinkStatus(ctx) {
				n.logger.Info(line)
			}
			return nil
		},
		// link,h1,s1,down
		"link": func(ctx context.Context, args argspec.Args) error {
			return n.ConfigLink(ctx, args.Pos(0, ""), args.Pos(1, ""), args.Pos(2, ""))
		},
		"arp": func(ctx context.Context, _ argspec.Args) error {
			return n.StaticARP(ctx)
		},
		// pingWithTimeout,timeout=2
		"pingWithTimeout": func(ctx context.Context, args argspec.Args) error {
			d, err := time.ParseDuration(args.Kw("timeout", "1") + "s")
			if err != nil {
				return fmt.Errorf("invalid timeout: %w", err)
			}
			_, err = n.Ping(ctx, n.hosts, d)
			return err
		},
	}
}

// Dump describes every node with its interfaces and pid.
func (n *Network) Dump(ctx context.Context) []string {
	lines := make([]string, 0, len(n.nodes))
	for _, node := range n.Nodes() {
		intfs := make([]string, len(node.intfs))
		for i, intf := range node.intfs {
			addr := "None"
			if intf.IP.IsValid() {
				addr = intf.IP.Addr().String()
			}
			intfs[i] = intf.Name + ":" + addr
		}
		impl := node.Impl
		if impl == "" {
			impl = strings.ToUpper(node.Role.String()[:1]) + node.Role.String()[1:]
		}
		lines = append(lines, fmt.Sprintf("<%s %s: %s pid=%d> ", impl, node.Name, strings.Join(intfs, ","), node.pid))
	}
	return lines
}

// Net lists every node with the peer of each of its interfaces.
func (n *Network) Net() []string {
	var lines []string
	for _, node := range n.Nodes() {
		parts := []string{node.Name}
		for _, intf := range node.intfs {
			peer := intf.Link.Intf1
			if peer == intf {
				peer = intf.Link.Intf2
			}
			parts = append(parts, intf.Name+":"+peer.Name)
		}
		lines = append(lines, strings.Join(parts, " "))
	}
	return lines
}

// LinkStatus reports the state of both ends of every link.
func (n *Network) LinkStatus(ctx context.Context) []string {
	lines := make([]string, len(n.links))
	for i, l := range n.links {
		s1, s2 := l.Intf1.Status(ctx, n), l.Intf2.Status(ctx, n)
		lines[i] = fmt.Sprintf("%s (%s %s)", l, okStatus(s1), okStatus(s2))
	}
	return lines
}

func okStatus(s string) string {
	if s == "up" {
		return "OK"
	}
	return s
}

// ConfigLink brings every link between two nodes up or down.
func (n *Network) ConfigLink(ctx context.Context, a, b, state string) error {
	if state != "up" && state != "down" {
		return fmt.Errorf("link state must be up or down, not %q", state)
	}
	na, err := n.Node(a)
	if err != nil {
		return err
	}
	nb, err := n.Node(b)
	if err != nil {
		return err
	}
	found := false
	for _, l := range n.links {
		if (l.Intf1.Node == na && l.Intf2.Node == nb) || (l.Intf1.Node == nb && l.Intf2.Node == na) {
			found = true
			if err := l.SetStatus(ctx, n, state == "up"); err != nil {
				return err
			}
		}
	}
	if !found {
		return fmt.Errorf("no link between %s and %s", a, b)
	}
	return nil
}
