// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nestnet/nestnet/pkg/argspec"
)

const maxMacroDepth = 16

type (
	// TestFunc is a test runnable against a network.
	TestFunc func(ctx context.Context, d *Dispatcher, net Network, args argspec.Args) error

	// Dispatcher resolves and runs test specifications.
	Dispatcher struct {
		tests  map[string]TestFunc
		alt    map[string]string
		logger *log.Logger
	}

	depthKey struct{}
)

// New returns a dispatcher with the built-in tests registered.
func New(logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	d := &Dispatcher{
		tests: map[string]TestFunc{},
		alt: map[string]string{
			"pingall":  "pingAll",
			"pingpair": "pingPair",
			"iperfudp": "iperfUdp",
		},
		logger: logger,
	}
	d.Register("all", testAll)
	d.Register("none", noop)
	d.Register("build", noop)
	d.Register("pingAll", testPingAll)
	d.Register("pingPair", testPingPair)
	d.Register("iperf", testIperf)
	d.Register("iperfUdp", testIperfUDP)
	return d
}

// Register adds or replaces a test.
func (d *Dispatcher) Register(name string, fn TestFunc) {
	d.tests[name] = fn
}

// RegisterMacro adds a test that runs other test specs in order.
func (d *Dispatcher) RegisterMacro(name string, specs []string) {
	specs = slices.Clone(specs)
	d.Register(name, func(ctx context.Context, d *Dispatcher, net Network, _ argspec.Args) error {
		depth, _ := ctx.Value(depthKey{}).(int)
		if depth >= maxMacroDepth {
			return fmt.Errorf("%w: %s", ErrMacroDepth, name)
		}
		return d.Run(context.WithValue(ctx, depthKey{}, depth+1), net, specs)
	})
}

// Names returns the sorted names of all registered tests.
func (d *Dispatcher) Names() []string {
	return slices.Sorted(maps.Keys(d.tests))
}

// Canonical applies the alternate-spelling table to name.
func (d *Dispatcher) Canonical(name string) string {
	if alt, ok := d.alt[strings.ToLower(name)]; ok {
		return alt
	}
	return name
}

// Run executes every spec in order. Each spec may chain tests with '+'.
// The first failure stops the run.
func (d *Dispatcher) Run(ctx context.Context, net Network, specs []string) error {
	for _, spec := range specs {
		for _, segment := range strings.Split(spec, "+") {
			if err := d.RunOne(ctx, net, segment); err != nil {
				return err
			}
		}
	}
	return nil
}

// RunOne executes a single "name[,pos...][,key=value...]" segment.
func (d *Dispatcher) RunOne(ctx context.Context, net Network, segment string) error {
	parsed, err := argspec.Split(segment)
	if err != nil {
		return err
	}
	name := d.Canonical(parsed.Name)

	if fn, ok := d.tests[name]; ok {
		d.logger.Debug("running test", "test", name, "args", parsed.Args)
		return fn(ctx, d, net, parsed.Args)
	}
	if op, ok := net.Operation(name); ok {
		d.logger.Debug("running network operation", "operation", name, "args", parsed.Args)
		return op(ctx, parsed.Args)
	}
	return &UnknownTestError{Name: parsed.Name, Known: d.Names()}
}

// Logger returns the logger tests report through.
func (d *Dispatcher) Logger() *log.Logger {
	return d.logger
}
