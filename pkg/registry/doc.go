// SPDX-License-Identifier: MPL-2.0

// Package registry holds the named component tables (topologies, switches,
// hosts, controllers and links) that a run resolves its configuration
// against.
//
// A Registry is an explicit value owned by one run. Tables are filled while
// the run is being configured (built-ins, customization files, plugins) and
// are read-only once the network has been built.
package registry
