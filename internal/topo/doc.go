// SPDX-License-Identifier: MPL-2.0

// Package topo describes network topologies as undirected graphs of hosts
// and switches and ships the standard generators.
package topo
