// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nestnet/nestnet/internal/custom"
	"github.com/nestnet/nestnet/internal/dispatch"
	"github.com/nestnet/nestnet/internal/netemu"
	"github.com/nestnet/nestnet/internal/testutil"
	"github.com/nestnet/nestnet/internal/topo"
	"github.com/nestnet/nestnet/pkg/registry"
)

// fakeNetwork records the calls the runner makes.
type fakeNetwork struct {
	events   *[]string
	clock    *testutil.FakeClock
	startErr error
	stops    int
}

func (f *fakeNetwork) Start(context.Context) error {
	*f.events = append(*f.events, "start")
	if f.clock != nil {
		f.clock.Advance(2 * time.Second)
	}
	return f.startErr
}

func (f *fakeNetwork) Stop(context.Context) error {
	f.stops++
	*f.events = append(*f.events, "stop")
	return nil
}

func (f *fakeNetwork) WaitConnected(context.Context) error {
	*f.events = append(*f.events, "wait")
	return nil
}

func (f *fakeNetwork) PingAll(context.Context) (float64, error) {
	*f.events = append(*f.events, "pingAll")
	return 0, nil
}

func (f *fakeNetwork) PingPair(context.Context) (float64, error) {
	*f.events = append(*f.events, "pingPair")
	return 0, nil
}

func (f *fakeNetwork) Iperf(context.Context, dispatch.IperfOptions) ([]string, error) {
	*f.events = append(*f.events, "iperf")
	return []string{"1 Gbits/sec", "1 Gbits/sec"}, nil
}

func (f *fakeNetwork) Operation(string) (dispatch.Operation, bool) { return nil, false }

type fakeFrontEnd struct {
	events   *[]string
	interact func(ctx context.Context) error
	// scriptErr fails scripts by base name.
	scriptErr map[string]error
}

func (f *fakeFrontEnd) RunScript(_ context.Context, _ Network, path string) error {
	name := filepath.Base(path)
	*f.events = append(*f.events, "script "+name)
	return f.scriptErr[name]
}

func (f *fakeFrontEnd) Interact(ctx context.Context, _ Network) error {
	*f.events = append(*f.events, "interact")
	if f.interact != nil {
		return f.interact(ctx)
	}
	return nil
}

type harness struct {
	runner   *Runner
	registry *registry.Registry
	events   []string
	net      *fakeNetwork
	front    *fakeFrontEnd
	clock    *testutil.FakeClock
	resolved *Resolved
	buildErr error
	cleanups int
}

func newHarness(t *testing.T, controller *registry.Factory) *harness {
	t.Helper()
	h := &harness{registry: registry.New(), clock: testutil.NewFakeClock(time.Time{})}
	if err := topo.Register(h.registry); err != nil {
		t.Fatal(err)
	}
	if err := netemu.Register(h.registry); err != nil {
		t.Fatal(err)
	}
	h.net = &fakeNetwork{events: &h.events, clock: h.clock}
	h.front = &fakeFrontEnd{events: &h.events}
	h.runner = NewRunner(Deps{
		Registry: h.registry,
		Builder: BuilderFunc(func(_ context.Context, r *Resolved) (Network, error) {
			h.events = append(h.events, "build")
			h.resolved = r
			return h.net, h.buildErr
		}),
		FrontEnd:       h.front,
		FindController: func() *registry.Factory { return controller },
		Cleanup: func(context.Context) error {
			h.cleanups++
			return nil
		},
		Clock:  h.clock,
		Logger: log.New(io.Discard),
	})
	return h
}

func refController(t *testing.T) *registry.Factory {
	t.Helper()
	r := registry.New()
	if err := netemu.Register(r); err != nil {
		t.Fatal(err)
	}
	f, err := r.Resolve(registry.KindController, "ref")
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestResolve_NoControllerFallsBackToBridge(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	res, err := h.runner.Resolve(Options{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.SwitchSpec != "ovsbr" {
		t.Errorf("SwitchSpec = %q, want ovsbr", res.SwitchSpec)
	}
	if !slices.Equal(res.ControllerSpec, []string{"none"}) {
		t.Errorf("ControllerSpec = %v, want [none]", res.ControllerSpec)
	}
	if !res.Switch.Traits.Bridge {
		t.Error("fallback switch is not a bridge")
	}
	if res.TopoSpec != "minimal" || len(res.Topo.Hosts()) != 2 {
		t.Errorf("topology = %q %v", res.TopoSpec, res.Topo.Hosts())
	}
}

func TestResolve_NoControllerForExplicitSwitch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, err := h.runner.Resolve(Options{Switch: "ovsk"})
	var nc *NoControllerAvailableError
	if !errors.As(err, &nc) {
		t.Fatalf("Resolve() error = %v, want NoControllerAvailableError", err)
	}
	if nc.Switch != "ovsk" || !errors.Is(err, ErrNoControllerAvailable) {
		t.Errorf("error = %#v", nc)
	}

	// Bridges work without a controller.
	res, err := h.runner.Resolve(Options{Switch: "lxbr"})
	if err != nil {
		t.Fatalf("Resolve(lxbr) error = %v", err)
	}
	if res.SwitchSpec != "lxbr" {
		t.Errorf("SwitchSpec = %q", res.SwitchSpec)
	}
}

func TestResolve_DiscoveredController(t *testing.T) {
	t.Parallel()

	h := newHarness(t, refController(t))
	res, err := h.runner.Resolve(Options{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !slices.Equal(res.ControllerSpec, []string{"default"}) || len(res.Controllers) != 1 {
		t.Errorf("controllers = %v", res.ControllerSpec)
	}
	if res.SwitchSpec != "default" {
		t.Errorf("SwitchSpec = %q, want default", res.SwitchSpec)
	}
}

func TestResolve_UserSwitchLink(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		opts     Options
		wantLink string
	}{
		{"default link upgraded", Options{Switch: "user"}, "tcu"},
		{"explicit default upgraded", Options{Switch: "user", Link: "default"}, "tcu"},
		{"explicit link kept", Options{Switch: "user", Link: "tc,bw=10"}, "tc,bw=10"},
		{"kernel switch untouched", Options{Switch: "ovsk"}, "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, refController(t))
			res, err := h.runner.Resolve(tt.opts)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if res.LinkSpec != tt.wantLink {
				t.Errorf("LinkSpec = %q, want %q", res.LinkSpec, tt.wantLink)
			}
		})
	}
}

func TestResolve_Modes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts Options
		want Mode
	}{
		{"standard", Options{}, ModeStandard},
		{"innamespace", Options{InNamespace: true}, ModeControlNet},
		{"container", Options{Host: "docker"}, ModeContainer},
		{"cluster", Options{Cluster: []string{"a", "b"}}, ModeCluster},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, refController(t))
			res, err := h.runner.Resolve(tt.opts)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if res.Mode != tt.want {
				t.Errorf("Mode = %s, want %s", res.Mode, tt.want)
			}
		})
	}
}

func TestResolve_ClusterUsesRemoteVariants(t *testing.T) {
	t.Parallel()

	h := newHarness(t, refController(t))
	res, err := h.runner.Resolve(Options{Switch: "ovsk,failMode=standalone", Cluster: []string{"a"}})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	for name, f := range map[string]*registry.Factory{"host": res.Host, "switch": res.Switch, "link": res.Link} {
		if !f.Traits.Remote {
			t.Errorf("%s %q is not a remote variant", name, f.Name)
		}
	}
	if got := res.Switch.Defaults().String("failMode", ""); got != "standalone" {
		t.Errorf("switch params lost: failMode = %q", got)
	}
}

func TestResolve_ConflictingModes(t *testing.T) {
	t.Parallel()

	for _, opts := range []Options{
		{InNamespace: true, Cluster: []string{"a"}},
		{Host: "docker", Cluster: []string{"a"}},
	} {
		h := newHarness(t, refController(t))
		if _, err := h.runner.Resolve(opts); !errors.Is(err, ErrConflictingMode) {
			t.Errorf("Resolve(%+v) error = %v, want ErrConflictingMode", opts, err)
		}
	}
}

func TestResolve_UnknownComponent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, refController(t))
	for _, opts := range []Options{
		{Topo: "ring"},
		{Switch: "p4"},
		{Host: "vm"},
		{Link: "wifi"},
		{Controllers: []string{"ref", "onos"}},
	} {
		var unknown *registry.UnknownComponentError
		if _, err := h.runner.Resolve(opts); !errors.As(err, &unknown) {
			t.Errorf("Resolve(%+v) error = %v, want UnknownComponentError", opts, err)
		}
	}
}

func TestRun_TestLifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, refController(t))
	dir := t.TempDir()
	rep, err := h.runner.Run(context.Background(), Options{
		Tests: []string{"pingall+pingpair"},
		Pre:   filepath.Join(dir, "pre.txt"),
		Post:  filepath.Join(dir, "post.txt"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{"build", "script pre.txt", "start", "pingAll", "pingPair", "script post.txt", "stop"}
	if !slices.Equal(h.events, want) {
		t.Errorf("events = %v, want %v", h.events, want)
	}
	if rep.Elapsed != 2*time.Second {
		t.Errorf("Elapsed = %s, want 2s", rep.Elapsed)
	}
	if rep.RunID == "" || rep.Resolved.RunID != rep.RunID {
		t.Errorf("run id = %q / %q", rep.RunID, rep.Resolved.RunID)
	}
	if !rep.Started || rep.Interrupted || h.cleanups != 0 {
		t.Errorf("report = %+v, cleanups = %d", rep, h.cleanups)
	}
}

func TestRun_Interactive(t *testing.T) {
	t.Parallel()

	h := newHarness(t, refController(t))
	if _, err := h.runner.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{"build", "start", "interact", "stop"}
	if !slices.Equal(h.events, want) {
		t.Errorf("events = %v, want %v", h.events, want)
	}
}

func TestRun_PartialBuildIsStopped(t *testing.T) {
	t.Parallel()

	h := newHarness(t, refController(t))
	h.buildErr = errors.New("veth failed")
	_, err := h.runner.Run(context.Background(), Options{Tests: []string{"pingall"}})
	if err == nil || !strings.Contains(err.Error(), "veth failed") {
		t.Fatalf("Run() error = %v", err)
	}
	if h.net.stops != 1 {
		t.Errorf("Stop called %d times, want 1", h.net.stops)
	}
	if slices.Contains(h.events, "start") {
		t.Error("partial network was started")
	}
	if h.cleanups != 1 {
		t.Errorf("cleanups = %d, want 1", h.cleanups)
	}
}

func TestRun_TestFailureStillStops(t *testing.T) {
	t.Parallel()

	h := newHarness(t, refController(t))
	_, err := h.runner.Run(context.Background(), Options{Tests: []string{"pingall", "nosuchtest"}})
	if !errors.Is(err, dispatch.ErrUnknownTest) {
		t.Fatalf("Run() error = %v, want ErrUnknownTest", err)
	}
	if h.net.stops != 1 {
		t.Errorf("Stop called %d times, want 1", h.net.stops)
	}
}

func TestRun_FaultsStopOnceAndClean(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	tests := []struct {
		name   string
		inject func(h *harness)
		want   []string
	}{
		{
			name:   "start",
			inject: func(h *harness) { h.net.startErr = errBoom },
			want:   []string{"build", "script pre.txt", "start", "stop"},
		},
		{
			name:   "pre hook",
			inject: func(h *harness) { h.front.scriptErr = map[string]error{"pre.txt": errBoom} },
			want:   []string{"build", "script pre.txt", "stop"},
		},
		{
			name:   "post hook",
			inject: func(h *harness) { h.front.scriptErr = map[string]error{"post.txt": errBoom} },
			want:   []string{"build", "script pre.txt", "start", "pingAll", "script post.txt", "stop"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, refController(t))
			tt.inject(h)
			dir := t.TempDir()
			rep, err := h.runner.Run(context.Background(), Options{
				Tests: []string{"pingall"},
				Pre:   filepath.Join(dir, "pre.txt"),
				Post:  filepath.Join(dir, "post.txt"),
			})
			if !errors.Is(err, errBoom) {
				t.Fatalf("Run() error = %v, want boom", err)
			}
			if !slices.Equal(h.events, tt.want) {
				t.Errorf("events = %v, want %v", h.events, tt.want)
			}
			if h.net.stops != 1 {
				t.Errorf("Stop called %d times, want 1", h.net.stops)
			}
			if h.cleanups != 1 {
				t.Errorf("cleanups = %d, want 1", h.cleanups)
			}
			if rep.Interrupted {
				t.Error("fault reported as interrupt")
			}
		})
	}
}

func TestRun_Interrupted(t *testing.T) {
	t.Parallel()

	h := newHarness(t, refController(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.front.interact = func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	}
	rep, err := h.runner.Run(ctx, Options{Post: "post.txt"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if !rep.Interrupted {
		t.Error("Interrupted = false")
	}
	if slices.Contains(h.events, "script post.txt") {
		t.Error("post script ran after interrupt")
	}
	if h.net.stops != 1 || h.cleanups != 1 {
		t.Errorf("stops = %d, cleanups = %d", h.net.stops, h.cleanups)
	}
}

func writeCustom(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_CustomFile(t *testing.T) {
	t.Parallel()

	h := newHarness(t, refController(t))
	path := writeCustom(t, "custom.cue", `
tests: smoke: ["pingpair", "pingall"]
defaults: {
	topo:   "linear"
	ipbase: "192.168.0.0/16"
}
`)
	_, err := h.runner.Run(context.Background(), Options{Custom: []string{path}, Tests: []string{"smoke"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !slices.Equal(h.events, []string{"build", "start", "pingPair", "pingAll", "stop"}) {
		t.Errorf("events = %v", h.events)
	}
	if h.resolved.TopoSpec != "linear" || h.resolved.Options.IPBase != "192.168.0.0/16" {
		t.Errorf("custom defaults not applied: %q %q", h.resolved.TopoSpec, h.resolved.Options.IPBase)
	}
}

func TestRun_ValidatorRejects(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	path := writeCustom(t, "custom.yaml", `
validate: |
  switch: "lxbr"
`)
	_, err := h.runner.Run(context.Background(), Options{Custom: []string{path}})
	if !errors.Is(err, custom.ErrValidationFailed) {
		t.Fatalf("Run() error = %v, want ErrValidationFailed", err)
	}
	if slices.Contains(h.events, "build") {
		t.Error("network built despite failed validation")
	}
}

func TestRun_MissingCustomFile(t *testing.T) {
	t.Parallel()

	h := newHarness(t, refController(t))
	_, err := h.runner.Run(context.Background(), Options{Custom: []string{filepath.Join(t.TempDir(), "nope.cue")}})
	if !errors.Is(err, custom.ErrCustomFileNotFound) {
		t.Fatalf("Run() error = %v, want ErrCustomFileNotFound", err)
	}
	if len(h.events) != 0 {
		t.Errorf("events = %v", h.events)
	}
}
