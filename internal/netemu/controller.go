// SPDX-License-Identifier: MPL-2.0

package netemu

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/nestnet/nestnet/pkg/registry"
)

// controllerCandidates are searched in order by FindController.
var controllerCandidates = []string{"controller", "ovs-controller", "test-controller", "ovs-testcontroller"}

type (
	controllerDriver interface {
		start(ctx context.Context, n *Network, c *Node) error
		stop(ctx context.Context, n *Network, c *Node) error
		// target is the address switch sw connects to.
		target(n *Network, c *Node, sw *Node) string
	}

	// processController runs an OpenFlow controller program in the
	// controller's shell.
	processController struct {
		command string
		// args renders the command line after the program name.
		args func(c *Node, port int) string
	}

	// remoteController points switches at a controller nestnet does not
	// run.
	remoteController struct{}
)

func controllerPort(c *Node) int {
	return c.Params.Int("port", DefaultOFPort)
}

func controllerLog(c *Node) string {
	return "/tmp/" + tag + "-" + c.Name + ".log"
}

func (p *processController) start(ctx context.Context, _ *Network, c *Node) error {
	command := c.Params.String("command", p.command)
	line := fmt.Sprintf("%s %s 1> %s 2>&1 &", command, p.args(c, controllerPort(c)), controllerLog(c))
	if _, err := c.Run(ctx, line); err != nil {
		return err
	}
	return nil
}

func (p *processController) stop(ctx context.Context, _ *Network, c *Node) error {
	pid := c.ch.LastPid()
	if pid == 0 {
		return nil
	}
	_, err := c.Run(ctx, "kill "+strconv.Itoa(pid)+" 2>/dev/null; wait "+strconv.Itoa(pid)+" 2>/dev/null")
	return err
}

func (p *processController) target(n *Network, c *Node, sw *Node) string {
	ip := "127.0.0.1"
	switch {
	case n.ctlNet != nil:
		ip = n.ctlNet.gateway.Addr().String()
	case c.Server != sw.Server:
		if addr, err := serverAddr(c.Server); err == nil {
			ip = addr
		}
	}
	return "tcp:" + c.Params.String("ip", ip) + ":" + strconv.Itoa(controllerPort(c))
}

func (remoteController) start(_ context.Context, n *Network, c *Node) error {
	addr := net.JoinHostPort(c.Params.String("ip", "127.0.0.1"), strconv.Itoa(controllerPort(c)))
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		n.logger.Warn("Unable to contact the remote controller", "addr", addr)
		return nil
	}
	return conn.Close()
}

func (remoteController) stop(context.Context, *Network, *Node) error { return nil }

func (remoteController) target(_ *Network, c *Node, _ *Node) string {
	return "tcp:" + c.Params.String("ip", "127.0.0.1") + ":" + strconv.Itoa(controllerPort(c))
}

// FindController looks for a reference controller program on PATH and
// returns a factory running it, or nil when none is installed.
func FindController() *registry.Factory {
	return findController(exec.LookPath)
}

func findController(lookPath func(string) (string, error)) *registry.Factory {
	for _, name := range controllerCandidates {
		if _, err := lookPath(name); err == nil {
			return registry.Specialize(controllerFactory("Controller", name, refArgs), registry.Params{"command": name})
		}
	}
	return nil
}

func refArgs(c *Node, port int) string {
	return strings.TrimSpace(c.Params.String("cargs", "-v") + " ptcp:" + strconv.Itoa(port))
}

func noxArgs(c *Node, port int) string {
	return "-i ptcp:" + strconv.Itoa(port) + " " + c.Params.String("components", "packetdump")
}

func ryuArgs(c *Node, port int) string {
	return "--ofp-tcp-listen-port " + strconv.Itoa(port) + " " + c.Params.String("app", "ryu.app.simple_switch")
}
