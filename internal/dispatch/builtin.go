// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/nestnet/nestnet/pkg/argspec"
)

func noop(context.Context, *Dispatcher, Network, argspec.Args) error {
	return nil
}

// testAll waits for the switches, (re)starts the network and runs the
// reachability and throughput tests.
func testAll(ctx context.Context, d *Dispatcher, net Network, args argspec.Args) error {
	if err := net.WaitConnected(ctx); err != nil {
		return err
	}
	if err := net.Start(ctx); err != nil {
		return err
	}
	if err := testPingAll(ctx, d, net, argspec.Args{}); err != nil {
		return err
	}
	return testIperf(ctx, d, net, args)
}

func testPingAll(ctx context.Context, d *Dispatcher, net Network, _ argspec.Args) error {
	loss, err := net.PingAll(ctx)
	if err != nil {
		return err
	}
	d.logger.Info(fmt.Sprintf("Results: %.0f%% dropped", loss))
	return nil
}

func testPingPair(ctx context.Context, d *Dispatcher, net Network, _ argspec.Args) error {
	loss, err := net.PingPair(ctx)
	if err != nil {
		return err
	}
	d.logger.Info(fmt.Sprintf("Results: %.0f%% dropped", loss))
	return nil
}

func testIperf(ctx context.Context, d *Dispatcher, net Network, args argspec.Args) error {
	return runIperf(ctx, d, net, iperfOptions(args, "TCP"))
}

func testIperfUDP(ctx context.Context, d *Dispatcher, net Network, args argspec.Args) error {
	opts := iperfOptions(args, "UDP")
	if opts.UDPBandwidth == "" {
		opts.UDPBandwidth = args.Pos(0, "")
		opts.Hosts = nil
	}
	return runIperf(ctx, d, net, opts)
}

func runIperf(ctx context.Context, d *Dispatcher, net Network, opts IperfOptions) error {
	rates, err := net.Iperf(ctx, opts)
	if err != nil {
		return err
	}
	d.logger.Info("Results: [" + strings.Join(rates, ", ") + "]")
	return nil
}

// iperfOptions maps "iperf,h1,h2,seconds=2,udpBw=5M,port=5002,l4Type=UDP".
func iperfOptions(args argspec.Args, l4Type string) IperfOptions {
	opts := IperfOptions{
		L4Type:       args.Kw("l4Type", l4Type),
		UDPBandwidth: args.Kw("udpBw", ""),
	}
	if len(args.Positional) >= 2 {
		opts.Hosts = []string{args.Pos(0, ""), args.Pos(1, "")}
	}
	if v, ok := args.Keyword["seconds"].(int); ok {
		opts.Seconds = v
	}
	if v, ok := args.Keyword["port"].(int); ok {
		opts.Port = v
	}
	return opts
}
