// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"

	"github.com/nestnet/nestnet/pkg/argspec"
)

type (
	// Operation is a named network capability invokable from a test spec.
	Operation func(ctx context.Context, args argspec.Args) error

	// IperfOptions parameterizes a throughput measurement. Zero values
	// select the network's defaults.
	IperfOptions struct {
		// Hosts are the client and server; empty picks the first and last
		// host.
		Hosts        []string
		L4Type       string
		UDPBandwidth string
		Seconds      int
		Port         int
	}

	// Network is what the dispatcher needs from a running network.
	Network interface {
		// Start starts controllers and switches. It must be idempotent.
		Start(ctx context.Context) error
		// WaitConnected blocks until every switch reports connected.
		WaitConnected(ctx context.Context) error
		// PingAll pings between all host pairs and returns the loss
		// percentage.
		PingAll(ctx context.Context) (float64, error)
		// PingPair pings between the first two hosts.
		PingPair(ctx context.Context) (float64, error)
		// Iperf measures throughput and returns the server and client
		// rates.
		Iperf(ctx context.Context, opts IperfOptions) ([]string, error)
		// Operation looks up an additional named operation.
		Operation(name string) (Operation, bool)
	}
)
