// SPDX-License-Identifier: MPL-2.0

package topo

import (
	"errors"
	"fmt"
)

// ErrInvalidShape is returned for generator parameters that cannot form
// a topology.
var ErrInvalidShape = errors.New("invalid topology shape")

// must panics on construction errors that generators cannot produce.
func must(err error) {
	if err != nil {
		panic(err)
	}
}

// Minimal is two hosts on one switch.
func Minimal() *Topo {
	return Single(2)
}

// Single is k hosts on one switch.
func Single(k int) *Topo {
	t := New()
	must(t.AddSwitch("s1", nil))
	for i := 1; i <= k; i++ {
		h := fmt.Sprintf("h%d", i)
		must(t.AddHost(h, nil))
		must(t.AddLink(h, "s1", nil))
	}
	return t
}

// Reversed is Single with links added in reverse order, so switch ports
// number the hosts backwards.
func Reversed(k int) *Topo {
	t := New()
	must(t.AddSwitch("s1", nil))
	for i := 1; i <= k; i++ {
		must(t.AddHost(fmt.Sprintf("h%d", i), nil))
	}
	for i := k; i >= 1; i-- {
		must(t.AddLink(fmt.Sprintf("h%d", i), "s1", nil))
	}
	return t
}

// Linear is a chain of k switches with n hosts each.
func Linear(k, n int) (*Topo, error) {
	if k < 1 || n < 1 {
		return nil, fmt.Errorf("%w: linear needs k >= 1 and n >= 1", ErrInvalidShape)
	}
	t := New()
	host := func(i, j int) string {
		if n == 1 {
			return fmt.Sprintf("h%d", i)
		}
		return fmt.Sprintf("h%ds%d", j, i)
	}
	prev := ""
	for i := 1; i <= k; i++ {
		sw := fmt.Sprintf("s%d", i)
		must(t.AddSwitch(sw, nil))
		for j := 1; j <= n; j++ {
			h := host(i, j)
			must(t.AddHost(h, nil))
			must(t.AddLink(h, sw, nil))
		}
		if prev != "" {
			must(t.AddLink(sw, prev, nil))
		}
		prev = sw
	}
	return t, nil
}

// Tree is a tree of switches of the given depth and fanout with hosts as
// leaves.
func Tree(depth, fanout int) (*Topo, error) {
	if depth < 0 || fanout < 1 {
		return nil, fmt.Errorf("%w: tree needs depth >= 0 and fanout >= 1", ErrInvalidShape)
	}
	t := New()
	hosts, switches := 0, 0
	var addTree func(level int) string
	addTree = func(level int) string {
		if level == 0 {
			hosts++
			h := fmt.Sprintf("h%d", hosts)
			must(t.AddHost(h, nil))
			return h
		}
		switches++
		sw := fmt.Sprintf("s%d", switches)
		must(t.AddSwitch(sw, nil))
		for range fanout {
			child := addTree(level - 1)
			must(t.AddLink(sw, child, nil))
		}
		return sw
	}
	addTree(depth)
	return t, nil
}

// Torus is an x by y grid of switches with wrap-around links and n hosts
// per switch.
func Torus(x, y, n int) (*Topo, error) {
	if x < 3 || y < 3 {
		return nil, fmt.Errorf("%w: torus needs at least 3x3", ErrInvalidShape)
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: torus needs n >= 1", ErrInvalidShape)
	}
	t := New()
	sw := func(i, j int) string { return fmt.Sprintf("s%dx%d", i, j) }
	for i := 1; i <= x; i++ {
		for j := 1; j <= y; j++ {
			s := sw(i, j)
			must(t.AddSwitch(s, nil))
			for k := 1; k <= n; k++ {
				h := fmt.Sprintf("h%dx%d", i, j)
				if n > 1 {
					h = fmt.Sprintf("h%dx%dx%d", i, j, k)
				}
				must(t.AddHost(h, nil))
				must(t.AddLink(h, s, nil))
			}
		}
	}
	for i := 1; i <= x; i++ {
		for j := 1; j <= y; j++ {
			right := sw(i, j%y+1)
			down := sw(i%x+1, j)
			must(t.AddLink(sw(i, j), right, nil))
			must(t.AddLink(sw(i, j), down, nil))
		}
	}
	return t, nil
}
