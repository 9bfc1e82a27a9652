// SPDX-License-Identifier: MPL-2.0

package custom

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/nestnet/nestnet/internal/topo"
	"github.com/nestnet/nestnet/pkg/registry"
)

type macroRecorder map[string][]string

func (m macroRecorder) RegisterMacro(name string, specs []string) { m[name] = specs }

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	if err := topo.Register(r); err != nil {
		t.Fatal(err)
	}
	build := func(name string, p registry.Params) (any, error) { return p, nil }
	r.Register(registry.KindSwitch, "ovsk", registry.NewFactory(registry.KindSwitch, "OVSSwitch", build,
		registry.WithDefaults(registry.Params{"failMode": "secure"}),
		registry.WithTraits(registry.Traits{RequiresController: true})))
	r.Register(registry.KindHost, "proc", registry.NewFactory(registry.KindHost, "Host", build))
	r.Register(registry.KindController, "ref", registry.NewFactory(registry.KindController, "Controller", build,
		registry.WithPositional("ip", "port")))
	r.Register(registry.KindLink, "tc", registry.NewFactory(registry.KindLink, "TCLink", build))
	return r
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func built(t *testing.T, r *registry.Registry, kind registry.Kind, key string) registry.Params {
	t.Helper()
	f, err := r.Resolve(kind, key)
	if err != nil {
		t.Fatalf("Resolve(%s, %q) error = %v", kind, key, err)
	}
	p, err := registry.Build[registry.Params](f, "x", nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return p
}

func TestLoad_Formats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"cue", "c.cue", `
switches: slow: {base: "ovsk", params: {stp: true, failMode: "standalone"}}
tests: smoke: ["pingall", "iperf,h1,h2"]
`},
		{"json", "c.json", `{
  "switches": {"slow": {"base": "ovsk", "params": {"stp": true, "failMode": "standalone"}}},
  "tests": {"smoke": ["pingall", "iperf,h1,h2"]}
}`},
		{"yaml", "c.yaml", `
switches:
  slow:
    base: ovsk
    params: {stp: true, failMode: standalone}
tests:
  smoke: [pingall, "iperf,h1,h2"]
`},
		{"toml", "c.toml", `
[switches.slow]
base = "ovsk"
[switches.slow.params]
stp = true
failMode = "standalone"

[tests]
smoke = ["pingall", "iperf,h1,h2"]
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := newTestRegistry(t)
			macros := macroRecorder{}
			res, err := NewLoader(r, WithTests(macros)).Load(context.Background(), []string{writeFile(t, tt.file, tt.content)})
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			p := built(t, r, registry.KindSwitch, "slow")
			if !p.Bool("stp", false) || p.String("failMode", "") != "standalone" {
				t.Errorf("slow params = %v", p)
			}
			f, _ := r.Resolve(registry.KindSwitch, "slow")
			if !f.Traits.RequiresController || f.Root().Name != "OVSSwitch" {
				t.Errorf("specialization lost base traits: %+v", f)
			}
			if got := macros["smoke"]; !slices.Equal(got, []string{"pingall", "iperf,h1,h2"}) {
				t.Errorf("macro smoke = %v", got)
			}
			if !slices.Equal(res.Tests, []string{"smoke"}) {
				t.Errorf("Result.Tests = %v", res.Tests)
			}
		})
	}
}

func TestLoad_LaterFilesOverride(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	first := writeFile(t, "a.cue", `
switches: s: {base: "ovsk", params: {dpid: "1"}}
defaults: {topo: "single", ipbase: "192.168.0.0/16"}
`)
	second := writeFile(t, "b.yaml", `
switches:
  s: {base: ovsk, params: {dpid: "2"}}
defaults:
  topo: linear
`)
	res, err := NewLoader(r).Load(context.Background(), []string{first, second})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := built(t, r, registry.KindSwitch, "s").String("dpid", ""); got != "2" {
		t.Errorf("dpid = %q, want 2", got)
	}
	if res.Defaults.Topo != "linear" || res.Defaults.IPBase != "192.168.0.0/16" {
		t.Errorf("Defaults = %+v", res.Defaults)
	}
	if !slices.Equal(res.Files, []string{first, second}) {
		t.Errorf("Files = %v", res.Files)
	}
}

func TestLoad_EntriesBuildOnEachOther(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	path := writeFile(t, "c.cue", `
controllers: {
	a: {base: "b", params: {port: 7000}}
	b: {base: "ref,10.0.0.1"}
}
`)
	if _, err := NewLoader(r).Load(context.Background(), []string{path}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	p := built(t, r, registry.KindController, "a")
	if p.String("ip", "") != "10.0.0.1" || p.Int("port", 0) != 7000 {
		t.Errorf("a params = %v", p)
	}
}

func TestLoad_LiteralAndSpecializedTopos(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	path := writeFile(t, "t.cue", `
topos: {
	pair: {
		hosts: {h1: {}, h2: {}}
		switches: {s1: {}}
		links: [{node1: "h1", node2: "s1"}, {node1: "h2", node2: "s1", params: {bw: 10}}]
	}
	line4: {base: "linear,4"}
}
`)
	if _, err := NewLoader(r).Load(context.Background(), []string{path}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for key, wantHosts := range map[string]int{"pair": 2, "line4": 4} {
		f, err := r.Resolve(registry.KindTopology, key)
		if err != nil {
			t.Fatal(err)
		}
		tp, err := registry.Build[*topo.Topo](f, key, nil)
		if err != nil {
			t.Fatalf("Build(%s) error = %v", key, err)
		}
		if got := len(tp.Hosts()); got != wantHosts {
			t.Errorf("%s hosts = %d, want %d", key, got, wantHosts)
		}
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		file     string
		content  string
		sentinel error
		wantSub  string
	}{
		{"unknown top-level", "x.cue", `servers: ["a"]`, ErrCustomFileInvalid, "servers"},
		{"missing base", "x.cue", `switches: s: {params: {}}`, ErrCustomFileInvalid, "base"},
		{"unknown base", "x.cue", `hosts: h: {base: "nope"}`, registry.ErrUnknownComponent, "nope"},
		{"cycle", "x.cue", `links: {a: {base: "b"}, b: {base: "a"}}`, registry.ErrUnknownComponent, "link"},
		{"too many positionals", "x.cue", `topos: t: {base: "single,1,2"}`, registry.ErrInvalidSpec, "positional"},
		{"syntax", "x.yaml", "switches: [", ErrCustomFileInvalid, "x.yaml"},
		{"extension", "x.ini", "a=1", ErrCustomFileInvalid, "unsupported"},
		{"tests not list", "x.cue", `tests: t: "pingall"`, ErrCustomFileInvalid, "tests"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewLoader(newTestRegistry(t), WithTests(macroRecorder{})).
				Load(context.Background(), []string{writeFile(t, tt.file, tt.content)})
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("Load() error = %v, want %v", err, tt.sentinel)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "gone.cue")
	_, err := NewLoader(newTestRegistry(t)).Load(context.Background(), []string{missing})

	var nf *FileNotFoundError
	if !errors.As(err, &nf) || nf.Path != missing {
		t.Fatalf("Load() error = %v, want *FileNotFoundError for %s", err, missing)
	}
	if !errors.Is(err, ErrCustomFileNotFound) {
		t.Error("error does not wrap ErrCustomFileNotFound")
	}
}

func TestLoad_Validator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"cue struct", "v.cue", `validate: {switch: !="user", topo: =~"^(linear|tree)"}`},
		{"yaml string", "v.yaml", `validate: 'switch: !="user", topo: =~"^(linear|tree)"'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := NewLoader(newTestRegistry(t)).Load(context.Background(), []string{writeFile(t, tt.file, tt.content)})
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if res.Validator == nil {
				t.Fatal("Validator is nil")
			}

			ok := map[string]any{"topo": "linear,3", "switch": "ovsk", "hosts": 3}
			if err := res.Validator.Validate(ok); err != nil {
				t.Errorf("Validate(ok) error = %v", err)
			}
			bad := map[string]any{"topo": "linear,3", "switch": "user"}
			err = res.Validator.Validate(bad)
			if !errors.Is(err, ErrValidationFailed) {
				t.Errorf("Validate(bad) error = %v, want ErrValidationFailed", err)
			}
		})
	}
}

func TestLoad_Plugin(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	path := writeFile(t, "ext.so", "not really a shared object")
	opener := func(p string) (registry.Plugin, error) {
		return registry.PluginFunc(func(r *registry.Registry) error {
			return r.RegisterSwitch("p4", registry.NewFactory(registry.KindSwitch, "P4Switch", nil))
		}), nil
	}
	if _, err := NewLoader(r, WithPluginOpener(opener)).Load(context.Background(), []string{path}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !r.Has(registry.KindSwitch, "p4") {
		t.Error("plugin switch not registered")
	}

	failing := func(string) (registry.Plugin, error) {
		return registry.PluginFunc(func(r *registry.Registry) error {
			return r.RegisterSwitch("bad", registry.NewFactory(registry.KindHost, "Host", nil))
		}), nil
	}
	_, err := NewLoader(r, WithPluginOpener(failing)).Load(context.Background(), []string{path})
	if !errors.Is(err, registry.ErrKindMismatch) {
		t.Errorf("Load() error = %v, want ErrKindMismatch", err)
	}
}

func TestPluginFromSymbol(t *testing.T) {
	t.Parallel()

	fn := func(*registry.Registry) error { return nil }
	if _, err := pluginFromSymbol(fn); err != nil {
		t.Errorf("func symbol: %v", err)
	}
	if _, err := pluginFromSymbol(&fn); err != nil {
		t.Errorf("pointer symbol: %v", err)
	}
	if _, err := pluginFromSymbol(func() {}); err == nil {
		t.Error("wrong signature accepted")
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := writeFile(t, "a.cue", `tests: {}`)
	if _, err := NewLoader(newTestRegistry(t)).Load(ctx, []string{path}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}
