// SPDX-License-Identifier: MPL-2.0

package netemu

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nestnet/nestnet/internal/channel"
	"github.com/nestnet/nestnet/internal/dispatch"
)

const (
	// connectPoll is the interval between switch connection checks.
	connectPoll = 500 * time.Millisecond
	// DefaultIperfPort is the iperf server port.
	DefaultIperfPort = 5001
	// DefaultIperfSeconds is the iperf client duration.
	DefaultIperfSeconds = 5
)

var (
	pingSummary = regexp.MustCompile(`(\d+) packets transmitted, (\d+)( packets)? received`)
	iperfRate   = regexp.MustCompile(`([\d.]+ [KMGT]?bits/sec)`)
	linkEther   = regexp.MustCompile(`link/ether ([0-9a-f:]{17})`)
)

// WaitConnected polls the switches until every one reports a controller
// connection or ctx ends.
func (n *Network) WaitConnected(ctx context.Context) error {
	n.logger.Info("*** Waiting for switches to connect")
	remaining := slices.Clone(n.switches)
	for {
		var next []*Node
		for _, sw := range remaining {
			ok, err := sw.sw.connected(ctx, n, sw)
			if err != nil {
				return fmt.Errorf("check switch %s: %w", sw.Name, err)
			}
			if ok {
				n.logger.Info(sw.Name + " ")
				continue
			}
			next = append(next, sw)
		}
		if len(next) == 0 {
			return nil
		}
		remaining = next
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrNotConnected, strings.Join(names(remaining), " "))
		case <-time.After(connectPoll):
		}
	}
}

// StaticARP fills every host's neighbor table with every other host.
func (n *Network) StaticARP(ctx context.Context) error {
	macs := make(map[*Node]string, len(n.hosts))
	for _, h := range n.hosts {
		mac, err := n.hostMAC(ctx, h)
		if err != nil {
			return err
		}
		macs[h] = mac
	}
	for _, src := range n.hosts {
		if len(src.intfs) == 0 {
			continue
		}
		for _, dst := range n.hosts {
			if src == dst || macs[dst] == "" || dst.Addr() == "" {
				continue
			}
			if _, err := n.nodeExec(ctx, src, "ip", "neigh", "replace", dst.Addr(),
				"lladdr", macs[dst], "dev", src.intfs[0].Name, "nud", "permanent"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *Network) hostMAC(ctx context.Context, h *Node) (string, error) {
	if h.MAC != "" || len(h.intfs) == 0 {
		return h.MAC, nil
	}
	out, err := n.nodeExec(ctx, h, "ip", "-o", "link", "show", "dev", h.intfs[0].Name)
	if err != nil {
		return "", err
	}
	if m := linkEther.FindStringSubmatch(out); m != nil {
		h.MAC = m[1]
	}
	return h.MAC, nil
}

// ParsePing returns the sent and received counts of ping output.
func ParsePing(out string) (sent, received int, err error) {
	m := pingSummary.FindStringSubmatch(out)
	if m == nil {
		return 0, 0, fmt.Errorf("could not parse ping output: %q", out)
	}
	sent, _ = strconv.Atoi(m[1])
	received, _ = strconv.Atoi(m[2])
	return sent, received, nil
}

// Ping sends one echo from every host to every other host in hosts and
// returns the percentage of lost replies. Each round runs one ping on every
// host concurrently.
func (n *Network) Ping(ctx context.Context, hosts []*Node, timeout time.Duration) (float64, error) {
	n.logger.Info("*** Ping: testing ping reachability")
	if len(hosts) < 2 {
		n.logger.Warn("*** Warning: No packets sent")
		return 0, nil
	}
	wait := ""
	if timeout > 0 {
		wait = " -W " + strconv.Itoa(max(1, int(timeout.Seconds())))
	}
	reached := make(map[*Node][]string, len(hosts))
	var sent, lost int
	for round := 1; round < len(hosts); round++ {
		chans := make([]*channel.Channel, len(hosts))
		for i, src := range hosts {
			dst := hosts[(i+round)%len(hosts)]
			if err := src.ch.Send("ping -c1" + wait + " " + dst.Addr()); err != nil {
				// Drain the pings already in flight so those shells stay usable.
				if _, gerr := channel.Gather(ctx, n.mux, chans[:i]); gerr != nil {
					err = errors.Join(err, gerr)
				}
				return 0, err
			}
			chans[i] = src.ch
		}
		results, err := channel.Gather(ctx, n.mux, chans)
		if err != nil {
			return 0, err
		}
		for i, res := range results {
			dst := hosts[(i+round)%len(hosts)]
			s, r, perr := ParsePing(res.Output)
			if perr != nil {
				n.logger.Warn("ping output not understood", "host", hosts[i].Name, "output", res.Output)
				s, r = 1, 0
			}
			sent += s
			lost += s - r
			mark := "X"
			if r > 0 {
				mark = dst.Name
			}
			reached[hosts[i]] = append(reached[hosts[i]], mark)
		}
	}
	for _, h := range hosts {
		n.logger.Info(h.Name + " -> " + strings.Join(reached[h], " "))
	}
	loss := 100 * float64(lost) / float64(sent)
	n.logger.Info(fmt.Sprintf("*** Results: %.0f%% dropped (%d/%d received)", loss, sent-lost, sent))
	return loss, nil
}

// PingAll pings between every pair of hosts.
func (n *Network) PingAll(ctx context.Context) (float64, error) {
	return n.Ping(ctx, n.hosts, 0)
}

// PingPair pings between the first two hosts.
func (n *Network) PingPair(ctx context.Context) (float64, error) {
	if len(n.hosts) < 2 {
		return 0, ErrNoHosts
	}
	return n.Ping(ctx, n.hosts[:2], 0)
}

// ParseIperf returns the last rate reported in iperf output.
func ParseIperf(out string) (string, error) {
	m := iperfRate.FindAllString(out, -1)
	if len(m) == 0 {
		return "", fmt.Errorf("could not parse iperf output: %q", out)
	}
	return m[len(m)-1], nil
}

// Iperf runs an iperf server on one host and a client on another and
// returns the server and client rates.
func (n *Network) Iperf(ctx context.Context, opts dispatch.IperfOptions) ([]string, error) {
	client, server, err := n.iperfHosts(opts.Hosts)
	if err != nil {
		return nil, err
	}
	port := opts.Port
	if port == 0 {
		port = DefaultIperfPort
	}
	seconds := opts.Seconds
	if seconds == 0 {
		seconds = DefaultIperfSeconds
	}
	udp := strings.EqualFold(opts.L4Type, "UDP")
	bw := opts.UDPBandwidth
	if bw == "" {
		bw = "10M"
	}
	n.logger.Info(fmt.Sprintf("*** Iperf: testing %s bandwidth between %s and %s", strings.ToUpper(opts.L4Type), client.Name, server.Name))

	serverLog := fmt.Sprintf("/tmp/%s-iperf-%s.log", tag, server.Name)
	serverCmd := "iperf -p " + strconv.Itoa(port) + " -s"
	clientCmd := "iperf -p " + strconv.Itoa(port) + " -t " + strconv.Itoa(seconds) + " -c " + server.Addr()
	if udp {
		serverCmd += " -u"
		clientCmd += " -u -b " + bw
	}
	if _, err := server.Run(ctx, serverCmd+" 1> "+serverLog+" 2>&1 &"); err != nil {
		return nil, err
	}
	serverPid := server.ch.LastPid()
	defer func() {
		_, _ = server.Run(context.WithoutCancel(ctx), "kill "+strconv.Itoa(serverPid)+" 2>/dev/null; rm -f "+serverLog)
	}()
	if !udp {
		if err := waitListening(ctx, client, server.Addr(), port); err != nil {
			return nil, err
		}
	}

	res, err := client.Run(ctx, clientCmd)
	if err != nil {
		return nil, err
	}
	clientRate, err := ParseIperf(res.Output)
	if err != nil {
		return nil, err
	}
	// The server reports once the client's last segment arrived.
	var serverRate string
	for range 10 {
		out, err := server.Cmd(ctx, "cat "+serverLog)
		if err != nil {
			return nil, err
		}
		if serverRate, err = ParseIperf(out); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	rates := []string{serverRate, clientRate}
	if udp {
		rates = []string{bw, serverRate, clientRate}
	}
	n.logger.Info("*** Results: [" + strings.Join(rates, ", ") + "]")
	return rates, nil
}

func (n *Network) iperfHosts(names []string) (client, server *Node, err error) {
	switch len(names) {
	case 0:
		if len(n.hosts) < 2 {
			return nil, nil, ErrNoHosts
		}
		return n.hosts[0], n.hosts[len(n.hosts)-1], nil
	case 2:
		if client, err = n.Node(names[0]); err != nil {
			return nil, nil, err
		}
		if server, err = n.Node(names[1]); err != nil {
			return nil, nil, err
		}
		return client, server, nil
	default:
		return nil, nil, errors.New("iperf needs exactly two hosts")
	}
}

// waitListening polls from client until the server port accepts
// connections.
func waitListening(ctx context.Context, client *Node, addr string, port int) error {
	connect := fmt.Sprintf("(exec 3<>/dev/tcp/%s/%d) 2>/dev/null", addr, port)
	for {
		res, err := client.Run(ctx, connect)
		if err != nil {
			return err
		}
		if res.ExitStatus == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Operation looks up an operation registered under name.
func (n *Network) Operation(name string) (dispatch.Operation, bool) {
	op, ok := n.ops[name]
	return op, ok
}
