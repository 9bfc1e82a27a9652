// SPDX-License-Identifier: MPL-2.0

// Package cli is the interactive command line of a running network. Lines
// are either CLI commands (nodes, net, dump, links, sh, source, time, px,
// help, exit), test specs handed to the dispatcher, or "<node> <command>"
// which runs command in the node's shell. Node names in a node command are
// replaced by their IP addresses, so "h1 ping -c1 h2" works.
package cli
