// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nestnet/nestnet/internal/custom"
	"github.com/nestnet/nestnet/internal/dispatch"
	"github.com/nestnet/nestnet/internal/netemu"
	"github.com/nestnet/nestnet/internal/topo"
	"github.com/nestnet/nestnet/pkg/registry"
)

const (
	// bridgeSwitch replaces the default switch when no controller exists.
	bridgeSwitch = "ovsbr"
	// userSpaceLink is the link used with user space switches.
	userSpaceLink = "tcu"
)

type (
	// Network is a built network.
	Network interface {
		dispatch.Network
		// Stop tears the network down; later calls return the first
		// result.
		Stop(ctx context.Context) error
	}

	// Builder constructs the network of a resolved run. It may return a
	// partially built network together with an error.
	Builder interface {
		Build(ctx context.Context, r *Resolved) (Network, error)
	}

	// BuilderFunc adapts a function to Builder.
	BuilderFunc func(ctx context.Context, r *Resolved) (Network, error)

	// FrontEnd runs command scripts and the interactive session.
	FrontEnd interface {
		RunScript(ctx context.Context, net Network, path string) error
		Interact(ctx context.Context, net Network) error
	}

	// Clock measures the run time.
	Clock interface {
		Now() time.Time
		Since(t time.Time) time.Duration
	}

	// Deps are the collaborators of a Runner. Registry and Builder are
	// required.
	Deps struct {
		Registry   *registry.Registry
		Dispatcher *dispatch.Dispatcher
		Builder    Builder
		FrontEnd   FrontEnd
		// FindController discovers a controller when none is requested.
		FindController func() *registry.Factory
		// Cleanup removes leftovers after a failed or interrupted run.
		Cleanup func(ctx context.Context) error
		Loader  *custom.Loader
		Clock   Clock
		Logger  *log.Logger
	}

	// Runner executes runs.
	Runner struct {
		deps Deps
	}

	// Report describes a finished run.
	Report struct {
		RunID       string
		Elapsed     time.Duration
		Resolved    *Resolved
		Started     bool
		Interrupted bool
	}

	realClock struct{}
)

func (f BuilderFunc) Build(ctx context.Context, r *Resolved) (Network, error) { return f(ctx, r) }

func (realClock) Now() time.Time                  { return time.Now() }
func (realClock) Since(t time.Time) time.Duration { return time.Since(t) }

// NewRunner returns a runner; missing optional collaborators get defaults.
func NewRunner(deps Deps) *Runner {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = dispatch.New(deps.Logger)
	}
	if deps.FindController == nil {
		deps.FindController = netemu.FindController
	}
	if deps.Clock == nil {
		deps.Clock = realClock{}
	}
	if deps.Loader == nil {
		deps.Loader = custom.NewLoader(deps.Registry, custom.WithTests(deps.Dispatcher), custom.WithLogger(deps.Logger))
	}
	return &Runner{deps: deps}
}

// Run performs one run. The network is stopped exactly once on every path
// after it was built, with a context that ignores cancellation. The report
// is returned even when err is not nil.
func (r *Runner) Run(ctx context.Context, opts Options) (rep *Report, err error) {
	start := r.deps.Clock.Now()
	rep = &Report{RunID: uuid.NewString()}
	logger := r.deps.Logger

	defer func() {
		rep.Elapsed = r.deps.Clock.Since(start)
		if err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil) {
			rep.Interrupted = true
		}
		if err != nil && r.deps.Cleanup != nil {
			if rep.Interrupted {
				logger.Info("Keyboard Interrupt. Shutting down and cleaning up...")
			} else {
				logger.Error("Caught exception. Cleaning up...", "error", err)
			}
			if cerr := r.deps.Cleanup(context.WithoutCancel(ctx)); cerr != nil {
				logger.Warn("cleanup failed", "error", cerr)
			}
		}
		logger.Info(fmt.Sprintf("completed in %0.3f seconds", rep.Elapsed.Seconds()))
	}()

	loaded, err := r.deps.Loader.Load(ctx, opts.Custom)
	if err != nil {
		return rep, err
	}
	r.applyDefaults(&opts, loaded.Defaults)

	res, err := r.Resolve(opts)
	if err != nil {
		return rep, err
	}
	res.RunID = rep.RunID
	rep.Resolved = res
	logger.Debug("resolved run", "run", res.RunID, "mode", res.Mode, "topo", res.TopoSpec,
		"switch", res.SwitchSpec, "host", res.HostSpec, "link", res.LinkSpec, "controller", res.ControllerSpec)

	if loaded.Validator != nil {
		logger.Debug("validating run", "source", loaded.Validator.Source())
		if err := loaded.Validator.Validate(res.View()); err != nil {
			return rep, err
		}
	}

	net, err := r.deps.Builder.Build(ctx, res)
	if net != nil {
		defer func() {
			if serr := net.Stop(context.WithoutCancel(ctx)); serr != nil {
				err = errors.Join(err, serr)
			}
		}()
	}
	if err != nil {
		return rep, err
	}

	if opts.Pre != "" {
		if err := r.script(ctx, net, opts.Pre); err != nil {
			return rep, err
		}
	}

	if err := net.Start(ctx); err != nil {
		return rep, err
	}
	rep.Started = true

	var runErr error
	if len(opts.Tests) > 0 {
		runErr = r.deps.Dispatcher.Run(ctx, net, opts.Tests)
	} else if r.deps.FrontEnd != nil {
		runErr = r.deps.FrontEnd.Interact(ctx, net)
	}

	if opts.Post != "" && ctx.Err() == nil {
		runErr = errors.Join(runErr, r.script(ctx, net, opts.Post))
	}
	return rep, runErr
}

func (r *Runner) script(ctx context.Context, net Network, path string) error {
	if r.deps.FrontEnd == nil {
		return fmt.Errorf("cannot run %s: no command front end", path)
	}
	return r.deps.FrontEnd.RunScript(ctx, net, path)
}

// applyDefaults installs the defaults of customization files.
func (r *Runner) applyDefaults(opts *Options, d custom.Defaults) {
	reg := r.deps.Registry
	for kind, key := range map[registry.Kind]string{
		registry.KindTopology:   d.Topo,
		registry.KindSwitch:     d.Switch,
		registry.KindHost:       d.Host,
		registry.KindController: d.Controller,
		registry.KindLink:       d.Link,
	} {
		if key != "" {
			reg.SetDefault(kind, key)
		}
	}
	if d.IPBase != "" && opts.IPBase == "" {
		opts.IPBase = d.IPBase
	}
}

// Resolve turns options into factories and a network mode.
func (r *Runner) Resolve(opts Options) (*Resolved, error) {
	reg := r.deps.Registry
	logger := r.deps.Logger

	res := &Resolved{
		Options:    opts,
		TopoSpec:   orDefault(opts.Topo, reg.Default(registry.KindTopology)),
		SwitchSpec: orDefault(opts.Switch, reg.Default(registry.KindSwitch)),
		HostSpec:   orDefault(opts.Host, reg.Default(registry.KindHost)),
		LinkSpec:   orDefault(opts.Link, reg.Default(registry.KindLink)),
	}
	defaultSwitch := opts.Switch == "" || opts.Switch == "default"
	defaultLink := opts.Link == "" || opts.Link == "default"

	if opts.InNamespace && len(opts.Cluster) > 0 {
		return nil, &ConflictingModeError{Modes: []string{"--innamespace", "--cluster"}}
	}

	res.ControllerSpec = opts.Controllers
	if len(res.ControllerSpec) == 0 {
		if f := r.deps.FindController(); f != nil {
			reg.Register(registry.KindController, "default", f)
			res.ControllerSpec = []string{"default"}
		} else {
			res.ControllerSpec = []string{"none"}
			if defaultSwitch {
				logger.Info("*** No default OpenFlow controller found for default switch!")
				logger.Info("*** Falling back to OVS Bridge")
				res.SwitchSpec = bridgeSwitch
			} else {
				sw, err := reg.ResolveSpec(registry.KindSwitch, res.SwitchSpec)
				if err != nil {
					return nil, err
				}
				if sw.Traits.RequiresController {
					return nil, &NoControllerAvailableError{Switch: res.SwitchSpec}
				}
			}
		}
	}

	tf, err := reg.ResolveSpec(registry.KindTopology, res.TopoSpec)
	if err != nil {
		return nil, err
	}
	if res.Topo, err = registry.Build[*topo.Topo](tf, res.TopoSpec, nil); err != nil {
		return nil, fmt.Errorf("build topology %s: %w", res.TopoSpec, err)
	}
	if res.Switch, err = reg.ResolveSpec(registry.KindSwitch, res.SwitchSpec); err != nil {
		return nil, err
	}
	if res.Host, err = reg.ResolveSpec(registry.KindHost, res.HostSpec); err != nil {
		return nil, err
	}
	for _, spec := range res.ControllerSpec {
		c, err := reg.ResolveSpec(registry.KindController, spec)
		if err != nil {
			return nil, err
		}
		res.Controllers = append(res.Controllers, c)
	}

	if res.Switch.Traits.UserSpace && defaultLink {
		logger.Debug("*** Using TCULink with UserSwitch")
		res.LinkSpec = userSpaceLink
	}
	if res.Link, err = reg.ResolveSpec(registry.KindLink, res.LinkSpec); err != nil {
		return nil, err
	}

	switch {
	case res.Host.Traits.Container && len(opts.Cluster) > 0:
		return nil, &ConflictingModeError{Modes: []string{"--host " + res.HostSpec, "--cluster"}}
	case res.Host.Traits.Container:
		res.Mode = ModeContainer
	case len(opts.Cluster) > 0:
		res.Mode = ModeCluster
		logger.Warn("*** WARNING: Experimental cluster mode!")
		logger.Warn("*** Using RemoteHost, RemoteOVSSwitch, RemoteLink")
		if err := r.remoteVariants(res); err != nil {
			return nil, err
		}
	case opts.InNamespace:
		res.Mode = ModeControlNet
	}
	return res, nil
}

// remoteVariants swaps host, switch and link for their cluster variants,
// keeping the parameters given with the original specs.
func (r *Runner) remoteVariants(res *Resolved) error {
	reg := r.deps.Registry
	for _, slot := range []struct {
		kind registry.Kind
		f    **registry.Factory
	}{
		{registry.KindHost, &res.Host},
		{registry.KindSwitch, &res.Switch},
		{registry.KindLink, &res.Link},
	} {
		if (*slot.f).Traits.Remote {
			continue
		}
		remote, err := reg.Resolve(slot.kind, netemu.RemoteKey)
		if err != nil {
			return err
		}
		*slot.f = registry.Specialize(remote, (*slot.f).Defaults())
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
