// SPDX-License-Identifier: MPL-2.0

// Package argspec parses the compact "name,pos,...,key=value" argument
// strings used on the command line to select components and tests.
//
// Examples:
//
//	tree,depth=2,fanout=3   -> name "tree", keyword depth=2, fanout=3
//	linear,4                -> name "linear", positional 4
//	iperf,h1,h4             -> name "iperf", positional "h1", "h4"
package argspec
