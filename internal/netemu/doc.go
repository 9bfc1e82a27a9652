// SPDX-License-Identifier: MPL-2.0

// Package netemu is the default network builder.
//
// It turns a topology plus resolved component factories into a live network
// on the local host (or a set of cluster servers): one shell per node,
// network namespaces through unshare, veth pairs, Open vSwitch or Linux
// bridges, OpenFlow controllers and traffic control on links. Everything that
// changes host state goes through a Commander so it can be recorded in tests
// and replayed over ssh for cluster servers.
//
// The package issues collaborator commands (ip, tc, ovs-vsctl, unshare,
// nsenter, ssh) and does not model packet flow itself.
package netemu
