// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"errors"
	"slices"
	"testing"
	"time"
)

type built struct {
	name   string
	params Params
}

func recordingFactory(kind Kind, name string, opts ...FactoryOption) *Factory {
	return NewFactory(kind, name, func(n string, p Params) (any, error) {
		return &built{name: n, params: p}, nil
	}, opts...)
}

func TestRegistry_Independence(t *testing.T) {
	t.Parallel()

	for _, kind := range Kinds() {
		r := New()
		f := recordingFactory(kind, "F")
		g := recordingFactory(kind, "G")
		r.Register(kind, "a", f)
		r.Register(kind, "b", g)

		gotA, err := r.Resolve(kind, "a")
		if err != nil || gotA != f {
			t.Errorf("%s: Resolve(a) = %v, %v; want f", kind, gotA, err)
		}
		gotB, err := r.Resolve(kind, "b")
		if err != nil || gotB != g {
			t.Errorf("%s: Resolve(b) = %v, %v; want g", kind, gotB, err)
		}
	}
}

func TestRegistry_LastWriterWins(t *testing.T) {
	t.Parallel()

	r := New()
	f := recordingFactory(KindSwitch, "F")
	g := recordingFactory(KindSwitch, "G")
	r.Register(KindSwitch, "ovs", f)
	r.Register(KindSwitch, "ovs", g)

	got, err := r.Resolve(KindSwitch, "ovs")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != g {
		t.Errorf("Resolve() returned %q, want the later registration", got.Name)
	}
}

func TestRegistry_TablesAreSeparate(t *testing.T) {
	t.Parallel()

	r := New()
	r.Register(KindHost, "proc", recordingFactory(KindHost, "Host"))
	if _, err := r.Resolve(KindSwitch, "proc"); err == nil {
		t.Error("host key resolved in the switch table")
	}
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	t.Parallel()

	r := New()
	r.Register(KindTopology, "minimal", recordingFactory(KindTopology, "MinimalTopo"))
	r.Register(KindTopology, "linear", recordingFactory(KindTopology, "LinearTopo"))

	_, err := r.Resolve(KindTopology, "does-not-exist")
	if !errors.Is(err, ErrUnknownComponent) {
		t.Fatalf("Resolve() error = %v, want ErrUnknownComponent", err)
	}
	var uce *UnknownComponentError
	if !errors.As(err, &uce) {
		t.Fatalf("error is %T, want *UnknownComponentError", err)
	}
	if want := []string{"linear", "minimal"}; !slices.Equal(uce.Known, want) {
		t.Errorf("Known = %v, want %v", uce.Known, want)
	}
}

func TestRegistry_ResolveIsCaseSensitive(t *testing.T) {
	t.Parallel()

	r := New()
	r.Register(KindSwitch, "ovs", recordingFactory(KindSwitch, "OVSSwitch"))
	if _, err := r.Resolve(KindSwitch, "OVS"); !errors.Is(err, ErrUnknownComponent) {
		t.Errorf("Resolve(OVS) error = %v, want ErrUnknownComponent", err)
	}
}

func TestSpecialize(t *testing.T) {
	t.Parallel()

	base := recordingFactory(KindLink, "TCLink", WithDefaults(Params{"bw": 10, "delay": "1ms"}))
	spec := Specialize(base, Params{"p": 1})

	tests := []struct {
		name  string
		args  Params
		wantP int
	}{
		{name: "default applies", args: nil, wantP: 1},
		{name: "caller overrides", args: Params{"p": 2}, wantP: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := Build[*built](spec, "l1", tt.args)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if got := b.params.Int("p", 0); got != tt.wantP {
				t.Errorf("p = %d, want %d", got, tt.wantP)
			}
			if got := b.params.Int("bw", 0); got != 10 {
				t.Errorf("base default bw = %d, want 10", got)
			}
		})
	}

	if spec.Base() != base || spec.Root() != base {
		t.Error("specialization does not point back at its base")
	}
	if base.Defaults().Has("p") {
		t.Error("Specialize mutated the base defaults")
	}
}

func TestRegistry_ResolveSpec(t *testing.T) {
	t.Parallel()

	r := New()
	tree := recordingFactory(KindTopology, "TreeTopo", WithPositional("depth", "fanout"), WithDefaults(Params{"depth": 1, "fanout": 2}))
	r.Register(KindTopology, "tree", tree)

	f, err := r.ResolveSpec(KindTopology, "tree")
	if err != nil {
		t.Fatalf("ResolveSpec(tree) error = %v", err)
	}
	if f != tree {
		t.Error("spec without arguments should return the stored factory")
	}

	f, err = r.ResolveSpec(KindTopology, "tree,3,fanout=4")
	if err != nil {
		t.Fatalf("ResolveSpec() error = %v", err)
	}
	b, err := Build[*built](f, "topo", nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.params.Int("depth", 0) != 3 || b.params.Int("fanout", 0) != 4 {
		t.Errorf("params = %v, want depth=3 fanout=4", b.params)
	}

	if _, err := r.ResolveSpec(KindTopology, "tree,1,2,3"); !errors.Is(err, ErrInvalidSpec) {
		t.Errorf("too many positionals: error = %v, want ErrInvalidSpec", err)
	}
	if _, err := r.ResolveSpec(KindTopology, "torus,3,3"); !errors.Is(err, ErrUnknownComponent) {
		t.Errorf("unknown name: error = %v, want ErrUnknownComponent", err)
	}
}

func TestRegistry_TypedHelpers(t *testing.T) {
	t.Parallel()

	r := New()
	if err := r.RegisterSwitch("lxbr", recordingFactory(KindSwitch, "LinuxBridge")); err != nil {
		t.Fatalf("RegisterSwitch() error = %v", err)
	}
	err := r.RegisterSwitch("proc", recordingFactory(KindHost, "Host"))
	if !errors.Is(err, ErrKindMismatch) {
		t.Errorf("RegisterSwitch(host factory) error = %v, want ErrKindMismatch", err)
	}
	if r.Has(KindSwitch, "proc") {
		t.Error("mismatched factory was stored")
	}
}

func TestRegistry_UsePlugins(t *testing.T) {
	t.Parallel()

	r := New()
	boom := errors.New("boom")
	err := r.Use(
		PluginFunc(func(r *Registry) error {
			return r.RegisterController("ryu", recordingFactory(KindController, "Ryu"))
		}),
		PluginFunc(func(*Registry) error { return boom }),
	)
	if !errors.Is(err, boom) {
		t.Errorf("Use() error = %v, want boom", err)
	}
	if !r.Has(KindController, "ryu") {
		t.Error("first plugin did not register")
	}
}

func TestRegistry_HelpAndDefaults(t *testing.T) {
	t.Parallel()

	r := New()
	r.Register(KindSwitch, "ovsbr", recordingFactory(KindSwitch, "OVSBridge"))
	r.Register(KindSwitch, "lxbr", recordingFactory(KindSwitch, "LinuxBridge"))
	r.SetDefault(KindSwitch, "ovsbr")

	if got, want := r.Help(KindSwitch), "lxbr=LinuxBridge ovsbr=OVSBridge"; got != want {
		t.Errorf("Help() = %q, want %q", got, want)
	}
	if got := r.Default(KindSwitch); got != "ovsbr" {
		t.Errorf("Default() = %q", got)
	}

	c := r.Clone()
	c.Register(KindSwitch, "user", recordingFactory(KindSwitch, "UserSwitch"))
	if r.Has(KindSwitch, "user") {
		t.Error("Clone shares tables with the original")
	}
	if c.Default(KindSwitch) != "ovsbr" {
		t.Error("Clone dropped defaults")
	}
}

func TestKindTables(t *testing.T) {
	t.Parallel()

	for _, kind := range Kinds() {
		got, ok := KindForTable(kind.Table())
		if !ok || got != kind {
			t.Errorf("KindForTable(%q) = %v, %v", kind.Table(), got, ok)
		}
	}
	if _, ok := KindForTable("widgets"); ok {
		t.Error("KindForTable accepted an unknown table")
	}
}

func TestParams(t *testing.T) {
	t.Parallel()

	p := Params{"n": "3", "f": 2, "b": "true", "d": 2, "ds": "150ms", "s": []any{"a", "b"}}
	if got := p.Int("n", 0); got != 3 {
		t.Errorf("Int = %d", got)
	}
	if got := p.Float("f", 0); got != 2 {
		t.Errorf("Float = %v", got)
	}
	if !p.Bool("b", false) {
		t.Error("Bool = false")
	}
	if got := p.Duration("d", 0); got != 2*time.Second {
		t.Errorf("Duration(int) = %v", got)
	}
	if got := p.Duration("ds", 0); got != 150*time.Millisecond {
		t.Errorf("Duration(string) = %v", got)
	}
	if got := p.String("missing", "x"); got != "x" {
		t.Errorf("String default = %q", got)
	}
	if got := p.Strings("s"); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Strings = %v", got)
	}
}
