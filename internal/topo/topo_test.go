// SPDX-License-Identifier: MPL-2.0

package topo

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/nestnet/nestnet/pkg/registry"
)

func TestGenerators(t *testing.T) {
	t.Parallel()

	mustTopo := func(tp *Topo, err error) *Topo {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return tp
	}

	tests := []struct {
		name         string
		topo         *Topo
		wantHosts    int
		wantSwitches int
		wantLinks    int
	}{
		{name: "minimal", topo: Minimal(), wantHosts: 2, wantSwitches: 1, wantLinks: 2},
		{name: "single,4", topo: Single(4), wantHosts: 4, wantSwitches: 1, wantLinks: 4},
		{name: "reversed,3", topo: Reversed(3), wantHosts: 3, wantSwitches: 1, wantLinks: 3},
		{name: "linear,4", topo: mustTopo(Linear(4, 1)), wantHosts: 4, wantSwitches: 4, wantLinks: 7},
		{name: "linear,2,3", topo: mustTopo(Linear(2, 3)), wantHosts: 6, wantSwitches: 2, wantLinks: 7},
		{name: "tree,2,3", topo: mustTopo(Tree(2, 3)), wantHosts: 9, wantSwitches: 4, wantLinks: 12},
		{name: "torus,3,3", topo: mustTopo(Torus(3, 3, 1)), wantHosts: 9, wantSwitches: 9, wantLinks: 27},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(tt.topo.Hosts()); got != tt.wantHosts {
				t.Errorf("hosts = %d, want %d", got, tt.wantHosts)
			}
			if got := len(tt.topo.Switches()); got != tt.wantSwitches {
				t.Errorf("switches = %d, want %d", got, tt.wantSwitches)
			}
			if got := len(tt.topo.Links()); got != tt.wantLinks {
				t.Errorf("links = %d, want %d", got, tt.wantLinks)
			}
			if !tt.topo.Connected() {
				t.Error("topology is not connected")
			}
		})
	}
}

func TestGenerators_InvalidShapes(t *testing.T) {
	t.Parallel()

	if _, err := Torus(2, 3, 1); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("Torus(2,3) error = %v", err)
	}
	if _, err := Linear(0, 1); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("Linear(0,1) error = %v", err)
	}
	if _, err := Tree(1, 0); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("Tree(1,0) error = %v", err)
	}
}

func TestReversedPortOrder(t *testing.T) {
	t.Parallel()

	links := Reversed(3).Links()
	if links[0].A != "h3" || links[2].A != "h1" {
		t.Errorf("links = %+v, want h3 first and h1 last", links)
	}
}

func TestTopo_Errors(t *testing.T) {
	t.Parallel()

	tp := New()
	if err := tp.AddHost("h1", nil); err != nil {
		t.Fatal(err)
	}
	if err := tp.AddSwitch("h1", nil); !errors.Is(err, ErrDuplicateNode) {
		t.Errorf("duplicate node error = %v", err)
	}
	if err := tp.AddLink("h1", "s9", nil); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("unknown node error = %v", err)
	}
	if err := tp.AddSwitch("s1", nil); err != nil {
		t.Fatal(err)
	}
	if err := tp.AddLink("h1", "s1", nil); err != nil {
		t.Fatal(err)
	}
	if err := tp.AddLink("s1", "h1", nil); !errors.Is(err, ErrDuplicateLink) {
		t.Errorf("duplicate link error = %v", err)
	}
}

func TestTopo_Components(t *testing.T) {
	t.Parallel()

	tp := New()
	for _, h := range []string{"h1", "h2", "h3"} {
		if err := tp.AddHost(h, nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := tp.AddLink("h1", "h2", nil); err != nil {
		t.Fatal(err)
	}
	if tp.Connected() {
		t.Error("Connected() = true with an isolated host")
	}
	if got := len(tp.Components()); got != 2 {
		t.Errorf("Components() = %d, want 2", got)
	}
	if got := tp.Neighbors("h1"); !slices.Equal(got, []string{"h2"}) {
		t.Errorf("Neighbors(h1) = %v", got)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "topo.yaml")
	content := `
switches:
  s1: {}
hosts:
  h10: {ip: 10.0.0.10/8}
  h2: {}
links:
  - {node1: h2, node2: s1}
  - {node1: h10, node2: s1, params: {bw: 10}}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tp, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := tp.Hosts(); !slices.Equal(got, []string{"h2", "h10"}) {
		t.Errorf("Hosts() = %v, want natural order", got)
	}
	h10, _ := tp.Node("h10")
	if h10.Params.String("ip", "") != "10.0.0.10/8" {
		t.Errorf("h10 params = %v", h10.Params)
	}
	if got := tp.Links()[1].Params.Int("bw", 0); got != 10 {
		t.Errorf("link bw = %d", got)
	}
}

func TestRegister(t *testing.T) {
	t.Parallel()

	r := registry.New()
	if err := Register(r); err != nil {
		t.Fatal(err)
	}
	if r.Default(registry.KindTopology) != DefaultKey {
		t.Errorf("default = %q", r.Default(registry.KindTopology))
	}

	f, err := r.ResolveSpec(registry.KindTopology, "tree,depth=2,fanout=2")
	if err != nil {
		t.Fatal(err)
	}
	tp, err := registry.Build[*Topo](f, "topo", nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(tp.Hosts()) != 4 {
		t.Errorf("tree,2,2 hosts = %d, want 4", len(tp.Hosts()))
	}

	f, err = r.ResolveSpec(registry.KindTopology, "linear,3")
	if err != nil {
		t.Fatal(err)
	}
	tp, err = registry.Build[*Topo](f, "topo", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tp.Switches()) != 3 {
		t.Errorf("linear,3 switches = %d", len(tp.Switches()))
	}

	f, err = r.Resolve(registry.KindTopology, "file")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.New("topo", nil); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("file without path error = %v", err)
	}
}
