// SPDX-License-Identifier: MPL-2.0

package netemu

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strconv"
)

// controlNet connects switches running in their own namespaces to the
// controllers in the root namespace through a bridge.
type controlNet struct {
	bridge  string
	gateway netip.Prefix
	ends    []string
}

// ControlNetPrefix is the address block of the control network.
var ControlNetPrefix = netip.MustParsePrefix("192.168.123.0/24")

func (n *Network) buildControlNet(ctx context.Context) error {
	cn := &controlNet{
		bridge:  tag + "-ctl",
		gateway: netip.PrefixFrom(offset(ControlNetPrefix.Addr(), 1), ControlNetPrefix.Bits()),
	}
	n.ctlNet = cn
	n.logger.Info("*** Configuring control network", "bridge", cn.bridge, "gateway", cn.gateway)

	steps := [][]string{
		{"ip", "link", "add", "name", cn.bridge, "type", "bridge"},
		{"ip", "link", "set", "dev", cn.bridge, "alias", tag},
		{"ip", "addr", "add", cn.gateway.String(), "dev", cn.bridge},
		{"ip", "link", "set", "dev", cn.bridge, "up"},
	}
	for _, argv := range steps {
		if _, err := n.rootExec(ctx, "", argv...); err != nil {
			return err
		}
	}

	for i, sw := range n.switches {
		if !isLocal(sw.Server) {
			return fmt.Errorf("switch %s: control network needs local switches", sw.Name)
		}
		root, inner := "ctl-"+sw.Name, sw.Name+"-ctl"
		addr := netip.PrefixFrom(offset(ControlNetPrefix.Addr(), uint64(i)+2), ControlNetPrefix.Bits())
		if _, err := n.rootExec(ctx, "", "ip", "link", "add", "name", root, "type", "veth",
			"peer", "name", inner, "netns", strconv.Itoa(sw.pid)); err != nil {
			return err
		}
		cn.ends = append(cn.ends, root)
		for _, argv := range [][]string{
			{"ip", "link", "set", "dev", root, "alias", tag},
			{"ip", "link", "set", "dev", root, "master", cn.bridge},
			{"ip", "link", "set", "dev", root, "up"},
		} {
			if _, err := n.rootExec(ctx, "", argv...); err != nil {
				return err
			}
		}
		for _, argv := range [][]string{
			{"ip", "link", "set", "lo", "up"},
			{"ip", "addr", "add", addr.String(), "dev", inner},
			{"ip", "link", "set", "dev", inner, "up"},
		} {
			if _, err := n.nodeExec(ctx, sw, argv...); err != nil {
				return err
			}
		}
	}
	return nil
}

func (cn *controlNet) remove(ctx context.Context, n *Network) error {
	errs := []error{ignoreMissing(n.rootExec(ctx, "", "ip", "link", "del", "dev", cn.bridge))}
	for _, end := range cn.ends {
		errs = append(errs, ignoreMissing(n.rootExec(ctx, "", "ip", "link", "del", "dev", end)))
	}
	return errors.Join(errs...)
}
