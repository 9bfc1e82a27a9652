// SPDX-License-Identifier: MPL-2.0

package netemu

import (
	"fmt"
	"math/rand/v2"

	"github.com/nestnet/nestnet/internal/topo"
)

const (
	// PlacementBlock fills servers with consecutive switches.
	PlacementBlock = "block"
	// PlacementRandom assigns switches to servers at random.
	PlacementRandom = "random"
)

// Placer maps switches and hosts onto cluster servers.
type Placer struct {
	kind    string
	servers []string
	rand    *rand.Rand
}

// NewPlacer returns a placer of the given kind; "" selects block.
func NewPlacer(kind string, servers []string) (*Placer, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("placement needs at least one server")
	}
	switch kind {
	case "", PlacementBlock:
		kind = PlacementBlock
	case PlacementRandom:
	default:
		return nil, fmt.Errorf("unknown placement %q (use %s or %s)", kind, PlacementBlock, PlacementRandom)
	}
	return &Placer{kind: kind, servers: servers, rand: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}, nil
}

// Place returns the server of every switch and host. Switches are
// distributed first; a host follows the first switch it is linked to, or
// is placed like a switch when it has none.
func (p *Placer) Place(t *topo.Topo, switches, hosts []string) map[string]string {
	out := make(map[string]string, len(switches)+len(hosts))
	for i, sw := range switches {
		out[sw] = p.pick(i, len(switches))
	}
	for i, h := range hosts {
		placed := false
		for _, nb := range t.Neighbors(h) {
			if server, ok := out[nb]; ok {
				if tn, ok := t.Node(nb); ok && tn.Kind == topo.NodeSwitch {
					out[h] = server
					placed = true
					break
				}
			}
		}
		if !placed {
			out[h] = p.pick(i, len(hosts))
		}
	}
	return out
}

func (p *Placer) pick(i, total int) string {
	if p.kind == PlacementRandom {
		return p.servers[p.rand.IntN(len(p.servers))]
	}
	size := (total + len(p.servers) - 1) / len(p.servers)
	if size == 0 {
		size = 1
	}
	return p.servers[min(i/size, len(p.servers)-1)]
}
