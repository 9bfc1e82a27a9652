// SPDX-License-Identifier: MPL-2.0

package topo

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/graph/simple"
	gtopo "gonum.org/v1/gonum/graph/topo"

	"github.com/nestnet/nestnet/pkg/registry"
)

const (
	// NodeHost is an end host.
	NodeHost NodeKind = iota
	// NodeSwitch is a switch.
	NodeSwitch
)

var (
	// ErrDuplicateNode is returned when a name is added twice.
	ErrDuplicateNode = errors.New("duplicate node")
	// ErrUnknownNode is returned when a link names a missing node.
	ErrUnknownNode = errors.New("unknown node")
	// ErrDuplicateLink is returned when two nodes are linked twice.
	ErrDuplicateLink = errors.New("duplicate link")
)

type (
	// NodeKind distinguishes hosts from switches.
	NodeKind int

	// Node is a vertex of the topology.
	Node struct {
		ID     int64
		Name   string
		Kind   NodeKind
		Params registry.Params
	}

	// Link is an edge of the topology.
	Link struct {
		A, B   string
		Params registry.Params
	}

	// Topo is a topology under construction or ready to be built.
	Topo struct {
		g      *simple.UndirectedGraph
		nodes  []*Node
		byName map[string]*Node
		links  []Link
	}
)

// New returns an empty topology.
func New() *Topo {
	return &Topo{
		g:      simple.NewUndirectedGraph(),
		byName: map[string]*Node{},
	}
}

// AddHost adds a host.
func (t *Topo) AddHost(name string, params registry.Params) error {
	return t.add(name, NodeHost, params)
}

// AddSwitch adds a switch.
func (t *Topo) AddSwitch(name string, params registry.Params) error {
	return t.add(name, NodeSwitch, params)
}

func (t *Topo) add(name string, kind NodeKind, params registry.Params) error {
	if _, ok := t.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, name)
	}
	n := &Node{ID: int64(len(t.nodes)), Name: name, Kind: kind, Params: params.Clone()}
	t.g.AddNode(simple.Node(n.ID))
	t.nodes = append(t.nodes, n)
	t.byName[name] = n
	return nil
}

// AddLink connects two existing nodes.
func (t *Topo) AddLink(a, b string, params registry.Params) error {
	na, ok := t.byName[a]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, a)
	}
	nb, ok := t.byName[b]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, b)
	}
	if a == b {
		return fmt.Errorf("cannot link %s to itself", a)
	}
	if t.g.HasEdgeBetween(na.ID, nb.ID) {
		return fmt.Errorf("%w: %s-%s", ErrDuplicateLink, a, b)
	}
	t.g.SetEdge(t.g.NewEdge(simple.Node(na.ID), simple.Node(nb.ID)))
	t.links = append(t.links, Link{A: a, B: b, Params: params.Clone()})
	return nil
}

// Node returns the node called name.
func (t *Topo) Node(name string) (*Node, bool) {
	n, ok := t.byName[name]
	return n, ok
}

// Hosts returns host names in insertion order.
func (t *Topo) Hosts() []string { return t.names(NodeHost) }

// Switches returns switch names in insertion order.
func (t *Topo) Switches() []string { return t.names(NodeSwitch) }

// Links returns the links in insertion order.
func (t *Topo) Links() []Link {
	return append([]Link(nil), t.links...)
}

// Neighbors returns the names of the nodes linked to name.
func (t *Topo) Neighbors(name string) []string {
	n, ok := t.byName[name]
	if !ok {
		return nil
	}
	var out []string
	it := t.g.From(n.ID)
	for it.Next() {
		out = append(out, t.nodes[it.Node().ID()].Name)
	}
	return out
}

// Components returns the connected components as lists of node names.
func (t *Topo) Components() [][]string {
	var out [][]string
	for _, comp := range gtopo.ConnectedComponents(t.g) {
		names := make([]string, 0, len(comp))
		for _, n := range comp {
			names = append(names, t.nodes[n.ID()].Name)
		}
		out = append(out, names)
	}
	return out
}

// Connected reports whether every node can reach every other node.
func (t *Topo) Connected() bool {
	return len(t.nodes) <= 1 || len(gtopo.ConnectedComponents(t.g)) == 1
}

func (t *Topo) names(kind NodeKind) []string {
	var out []string
	for _, n := range t.nodes {
		if n.Kind == kind {
			out = append(out, n.Name)
		}
	}
	return out
}
