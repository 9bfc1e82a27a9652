// SPDX-License-Identifier: MPL-2.0

package netemu

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type (
	switchDriver interface {
		create(ctx context.Context, n *Network, sw *Node) error
		addPort(ctx context.Context, n *Network, sw *Node, intf *Intf) error
		start(ctx context.Context, n *Network, sw *Node, ctls []*Node) error
		stop(ctx context.Context, n *Network, sw *Node) error
		connected(ctx context.Context, n *Network, sw *Node) (bool, error)
	}

	// ovsSwitch is an Open vSwitch bridge. In standalone mode it is a
	// learning bridge that needs no controller.
	ovsSwitch struct {
		failMode   string
		datapath   string
		standalone bool
	}

	// userSwitch is the user space reference switch (ofdatapath plus
	// ofprotocol), driven from the switch's shell.
	userSwitch struct{}

	// ivsSwitch is Indigo Virtual Switch.
	ivsSwitch struct{}

	// linuxBridge is a kernel bridge.
	linuxBridge struct{}
)

func (o *ovsSwitch) create(ctx context.Context, n *Network, sw *Node) error {
	argv := []string{"ovs-vsctl", "--", "--may-exist", "add-br", sw.Name,
		"--", "set", "Bridge", sw.Name, "external-ids:" + tag + "=1"}
	dpid := sw.Params.String("dpid", DPID(sw.Name))
	if dpid != "" {
		argv = append(argv, "other-config:datapath-id="+dpid)
	}
	if o.datapath == "user" {
		argv = append(argv, "datapath_type=netdev")
	}
	if sw.Params.Bool("stp", false) {
		argv = append(argv, "stp_enable=true")
	}
	if protocols := sw.Params.String("protocols", ""); protocols != "" {
		argv = append(argv, "protocols="+protocols)
	}
	failMode := sw.Params.String("failMode", o.failMode)
	argv = append(argv, "--", "set-fail-mode", sw.Name, failMode)
	_, err := n.nodeExec(ctx, sw, argv...)
	return err
}

func (o *ovsSwitch) addPort(ctx context.Context, n *Network, sw *Node, intf *Intf) error {
	if intf.attached {
		return nil
	}
	_, err := n.nodeExec(ctx, sw, "ovs-vsctl", "--may-exist", "add-port", sw.Name, intf.Name,
		"--", "set", "Interface", intf.Name, "ofport_request="+strconv.Itoa(intf.Port))
	if err == nil {
		intf.attached = true
	}
	return err
}

func (o *ovsSwitch) start(ctx context.Context, n *Network, sw *Node, ctls []*Node) error {
	targets := make([]string, 0, len(ctls)+1)
	if !o.standalone {
		for _, c := range ctls {
			targets = append(targets, c.ctl.target(n, c, sw))
		}
	}
	if port := n.listenPort(sw); port > 0 {
		targets = append(targets, "ptcp:"+strconv.Itoa(port))
	}
	if len(targets) == 0 {
		_, err := n.nodeExec(ctx, sw, "ovs-vsctl", "del-controller", sw.Name)
		return err
	}
	_, err := n.nodeExec(ctx, sw, append([]string{"ovs-vsctl", "set-controller", sw.Name}, targets...)...)
	return err
}

func (o *ovsSwitch) stop(ctx context.Context, n *Network, sw *Node) error {
	_, err := n.nodeExec(ctx, sw, "ovs-vsctl", "--if-exists", "del-br", sw.Name)
	return err
}

func (o *ovsSwitch) connected(ctx context.Context, n *Network, sw *Node) (bool, error) {
	if o.standalone || sw.Params.String("failMode", o.failMode) == "standalone" {
		return true, nil
	}
	out, err := n.nodeExec(ctx, sw, "ovs-vsctl", "show")
	if err != nil {
		return false, err
	}
	return OVSConnected(out, sw.Name), nil
}

// OVSConnected reports whether the "ovs-vsctl show" section of bridge lists
// a connected controller.
func OVSConnected(show, bridge string) bool {
	inBridge := false
	for _, line := range strings.Split(show, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Bridge ") {
			name := strings.Trim(strings.TrimPrefix(trimmed, "Bridge "), `"`)
			inBridge = name == bridge
			continue
		}
		if inBridge && trimmed == "is_connected: true" {
			return true
		}
	}
	return false
}

func (userSwitch) create(context.Context, *Network, *Node) error { return nil }

func (userSwitch) addPort(_ context.Context, _ *Network, _ *Node, intf *Intf) error {
	intf.attached = true
	return nil
}

func userSocket(sw *Node) string { return "/tmp/" + tag + "-" + sw.Name + ".sock" }

func userLog(sw *Node) string { return "/tmp/" + tag + "-" + sw.Name + "-ofp.log" }

func (userSwitch) start(ctx context.Context, n *Network, sw *Node, ctls []*Node) error {
	dpid := sw.Params.String("dpid", DPID(sw.Name))
	datapath := fmt.Sprintf("ofdatapath -i %s punix:%s -d %s --no-slicing 1> /tmp/%s-%s-ofd.log 2>&1 &",
		strings.Join(sw.IntfNames(), ","), userSocket(sw), dpid, tag, sw.Name)
	if _, err := sw.Run(ctx, datapath); err != nil {
		return err
	}
	target := "tcp:127.0.0.1:" + strconv.Itoa(DefaultOFPort)
	if len(ctls) > 0 {
		target = ctls[0].ctl.target(n, ctls[0], sw)
	}
	protocol := fmt.Sprintf("ofprotocol unix:%s %s --fail=closed", userSocket(sw), target)
	if port := n.listenPort(sw); port > 0 {
		protocol += " --listen=ptcp:" + strconv.Itoa(port)
	}
	_, err := sw.Run(ctx, protocol+" 1> "+userLog(sw)+" 2>&1 &")
	return err
}

func (userSwitch) stop(ctx context.Context, _ *Network, sw *Node) error {
	_, err := sw.Run(ctx, "kill %ofdatapath %ofprotocol 2>/dev/null; rm -f "+userSocket(sw))
	return err
}

func (userSwitch) connected(ctx context.Context, _ *Network, sw *Node) (bool, error) {
	out, err := sw.Cmd(ctx, "cat "+userLog(sw))
	return strings.Contains(out, "rconn: connected"), err
}

func (ivsSwitch) create(context.Context, *Network, *Node) error { return nil }

func (ivsSwitch) addPort(_ context.Context, _ *Network, _ *Node, intf *Intf) error {
	intf.attached = true
	return nil
}

func (ivsSwitch) start(ctx context.Context, n *Network, sw *Node, ctls []*Node) error {
	args := []string{"ivs", "--dpid", "0x" + sw.Params.String("dpid", DPID(sw.Name))}
	for _, c := range ctls {
		args = append(args, "-c", strings.TrimPrefix(c.ctl.target(n, c, sw), "tcp:"))
	}
	if port := n.listenPort(sw); port > 0 {
		args = append(args, "--listen", "127.0.0.1:"+strconv.Itoa(port))
	}
	for _, name := range sw.IntfNames() {
		args = append(args, "-i", name)
	}
	_, err := sw.Run(ctx, QuoteArgv(args)+" 1> /tmp/"+tag+"-"+sw.Name+"-ivs.log 2>&1 &")
	return err
}

func (ivsSwitch) stop(ctx context.Context, _ *Network, sw *Node) error {
	_, err := sw.Run(ctx, "kill %ivs 2>/dev/null")
	return err
}

func (ivsSwitch) connected(context.Context, *Network, *Node) (bool, error) { return true, nil }

func (linuxBridge) create(ctx context.Context, n *Network, sw *Node) error {
	if _, err := n.nodeExec(ctx, sw, "ip", "link", "add", "name", sw.Name, "type", "bridge"); err != nil {
		return err
	}
	if sw.Params.Bool("stp", false) {
		if _, err := n.nodeExec(ctx, sw, "ip", "link", "set", "dev", sw.Name, "type", "bridge", "stp_state", "1"); err != nil {
			return err
		}
	}
	_, err := n.nodeExec(ctx, sw, "ip", "link", "set", "dev", sw.Name, "alias", tag)
	return err
}

func (linuxBridge) addPort(ctx context.Context, n *Network, sw *Node, intf *Intf) error {
	_, err := n.nodeExec(ctx, sw, "ip", "link", "set", "dev", intf.Name, "master", sw.Name)
	if err == nil {
		intf.attached = true
	}
	return err
}

func (linuxBridge) start(ctx context.Context, n *Network, sw *Node, _ []*Node) error {
	_, err := n.nodeExec(ctx, sw, "ip", "link", "set", "dev", sw.Name, "up")
	return err
}

func (linuxBridge) stop(ctx context.Context, n *Network, sw *Node) error {
	return ignoreMissing(n.nodeExec(ctx, sw, "ip", "link", "del", "dev", sw.Name))
}

func (linuxBridge) connected(context.Context, *Network, *Node) (bool, error) { return true, nil }

// listenPort returns the passive listening port of a switch, or 0.
func (n *Network) listenPort(sw *Node) int {
	if p := sw.Params.Int("listenPort", 0); p > 0 {
		return p
	}
	if n.opts.ListenPort <= 0 {
		return 0
	}
	return n.opts.ListenPort + sw.index
}
