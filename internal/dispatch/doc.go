// SPDX-License-Identifier: MPL-2.0

// Package dispatch runs test specifications such as "pingall+iperf" or
// "iperf,h1,h4,seconds=2" against a running network.
//
// Each segment is resolved against an alternate-spelling table, then the
// built-in tests, then the operations the network advertises through its
// Operation lookup.
package dispatch
