// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/nestnet/nestnet/internal/cli"
	"github.com/nestnet/nestnet/internal/config"
	"github.com/nestnet/nestnet/internal/container"
	"github.com/nestnet/nestnet/internal/netemu"
	"github.com/nestnet/nestnet/internal/session"
	"github.com/nestnet/nestnet/internal/sshserver"
)

// defaultListenPort is the first switch listening port.
const defaultListenPort = 6654

type runFlags struct {
	topo        string
	sw          string
	host        string
	controllers []string
	link        string

	custom []string
	tests  []string
	pre    string
	post   string

	ipbase      string
	innamespace bool
	cluster     []string
	placement   string

	mac, arp, pin bool
	listenPort    int
	noListenPort  bool
	wait          bool
	waitTimeout   time.Duration

	clean     bool
	ssh       bool
	sshListen string
}

func newRunCommand(app *App) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build a network and run tests or a command line against it",
		Long: `Build a network from the chosen components, start it and then either run
the given tests or open a command line. The network is torn down when the
tests finish or the command line exits.

Component specs take the form name[,arg...][,key=value...], for example
--topo tree,depth=2,fanout=3 or --link tc,bw=10,delay=5ms.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.run(cmd, &f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.topo, "topo", "", "topology spec (see 'nestnet list')")
	fl.StringVar(&f.sw, "switch", "", "switch spec")
	fl.StringVar(&f.host, "host", "", "host spec")
	fl.StringArrayVar(&f.controllers, "controller", nil, "controller spec (repeatable)")
	fl.StringVar(&f.link, "link", "", "link spec")
	fl.StringSliceVar(&f.custom, "custom", nil, "customization files (.cue, .json, .yaml, .toml or .so)")
	fl.StringArrayVar(&f.tests, "test", nil, "test to run instead of the command line (repeatable)")
	fl.StringVar(&f.pre, "pre", "", "command script to run before the network starts")
	fl.StringVar(&f.post, "post", "", "command script to run after the tests or command line")
	fl.StringVarP(&f.ipbase, "ipbase", "i", "", "base address/prefix for host addresses (default from config)")
	fl.BoolVar(&f.innamespace, "innamespace", false, "run switches in their own namespaces with a control network")
	fl.StringSliceVar(&f.cluster, "cluster", nil, "servers to spread the network over (cluster mode)")
	fl.StringVar(&f.placement, "placement", "", "cluster placement: block|random (default from config)")
	fl.BoolVar(&f.mac, "mac", false, "set MAC addresses from host numbers")
	fl.BoolVar(&f.arp, "arp", false, "fill static ARP tables on every host")
	fl.BoolVar(&f.pin, "pin", false, "pin hosts to cores round robin")
	fl.IntVar(&f.listenPort, "listenport", defaultListenPort, "first port switches listen on for management")
	fl.BoolVar(&f.noListenPort, "nolistenport", false, "do not open switch listening ports")
	fl.BoolVarP(&f.wait, "wait", "w", false, "wait for switches to connect to their controllers")
	fl.DurationVar(&f.waitTimeout, "twait", 0, "bound the --wait phase (0 waits without bound)")
	fl.BoolVarP(&f.clean, "clean", "c", false, "remove leftovers of earlier runs and exit")
	fl.BoolVar(&f.ssh, "ssh", false, "also serve the command line over SSH")
	fl.StringVar(&f.sshListen, "ssh-listen", "", "host:port for --ssh (default from config)")
	cmd.MarkFlagsMutuallyExclusive("listenport", "nolistenport")
	return cmd
}

func (app *App) run(cmd *cobra.Command, f *runFlags) error {
	ctx := cmd.Context()
	cfg := app.cfg
	logger := app.logger

	if f.clean {
		if err := app.Cleanup(ctx, f.cluster, cfg, logger); err != nil {
			return app.fail(cmd, err)
		}
		return nil
	}

	reg, err := app.newRegistry()
	if err != nil {
		return app.fail(cmd, err)
	}
	dispatcher := app.newDispatcher()

	builder := app.Builder
	if builder == nil {
		nb := &session.NetworkBuilder{
			Commander: netemu.NewLocalCommander(),
			Logger:    logger,
			IPBase:    cfg.Defaults.IPBase,
		}
		// A missing engine only matters for container hosts, which
		// detect one themselves.
		if cfg.Container.Engine != "" {
			engine, err := container.NewEngine(container.EngineType(cfg.Container.Engine))
			if err != nil {
				return app.fail(cmd, explainRunError(err))
			}
			nb.Engine = engine
		}
		builder = nb
	}

	cliOpts := cli.Options{
		In:         app.stdin,
		Out:        app.stdout,
		Dispatcher: dispatcher,
		Logger:     logger,
		Lock:       &sync.Mutex{},
	}
	var frontEnd session.FrontEnd = cli.New(cliOpts)
	if f.ssh {
		sshCfg, err := sshConfig(cfg, f.sshListen)
		if err != nil {
			return app.fail(cmd, err)
		}
		frontEnd = &sshserver.FrontEnd{
			Local:   frontEnd,
			Config:  sshCfg,
			Options: []sshserver.Option{sshserver.WithCLIOptions(cliOpts), sshserver.WithLogger(logger)},
			Logger:  logger,
		}
	}

	if len(f.tests) == 0 && levelFor(cfg.Verbosity) > outputLevel {
		logger.Warn(fmt.Sprintf("*** WARNING: selected verbosity level (%s) will hide CLI output!", cfg.Verbosity))
		logger.Warn("Please restart nestnet with -v [debug, info, output].")
	}

	runner := session.NewRunner(session.Deps{
		Registry:       reg,
		Dispatcher:     dispatcher,
		Builder:        builder,
		FrontEnd:       frontEnd,
		FindController: app.FindController,
		Cleanup: func(ctx context.Context) error {
			return app.Cleanup(ctx, f.cluster, cfg, logger)
		},
		Logger: logger,
	})

	opts := session.Options{
		Topo:          f.topo,
		Switch:        f.sw,
		Host:          f.host,
		Link:          f.link,
		Controllers:   f.controllers,
		IPBase:        f.ipbase,
		InNamespace:   f.innamespace,
		Cluster:       f.cluster,
		Placement:     f.placement,
		Tests:         f.tests,
		Pre:           f.pre,
		Post:          f.post,
		Custom:        f.custom,
		MAC:           f.mac,
		ARP:           f.arp,
		Pin:           f.pin,
		ListenPort:    f.listenPort,
		Wait:          f.wait,
		WaitTimeout:   f.waitTimeout,
		Image:         cfg.Container.Image,
		PromptTimeout: cfg.Channel.PromptTimeout,
	}
	if f.noListenPort {
		opts.ListenPort = 0
	}
	if opts.Placement == "" {
		opts.Placement = string(cfg.Cluster.Placement)
	}

	rep, err := runner.Run(ctx, opts)
	if rep != nil && rep.Interrupted {
		cmd.SilenceErrors = true
		return &ExitError{Code: ExitInterrupted, Err: err}
	}
	if err != nil {
		return app.fail(cmd, explainRunError(err))
	}
	return nil
}

// sshConfig applies a host:port override to the configured console address.
func sshConfig(cfg *config.Config, listen string) (sshserver.Config, error) {
	c := sshserver.DefaultConfig()
	c.Host = cfg.SSH.Host
	c.Port = cfg.SSH.Port
	if listen == "" {
		return c, nil
	}
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return c, fmt.Errorf("--ssh-listen %q: %w", listen, err)
	}
	p, err := cast.ToIntE(port)
	if err != nil || p < 0 || p > 65535 {
		return c, fmt.Errorf("--ssh-listen %q: invalid port", listen)
	}
	if host != "" {
		c.Host = host
	}
	c.Port = p
	return c, nil
}
