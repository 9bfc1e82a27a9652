// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nestnet/nestnet/internal/config"
	"github.com/nestnet/nestnet/internal/issue"
	"github.com/nestnet/nestnet/internal/session"
	"github.com/nestnet/nestnet/pkg/registry"
)

// outputLevel sits between info and warning: test results and the
// command line stay visible while progress messages are hidden.
const outputLevel = log.Level(2)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

type (
	// App wires the commands to their collaborators. Nil collaborators
	// get the production implementations.
	App struct {
		Config config.Provider
		// Builder replaces the netemu network builder.
		Builder session.Builder
		// FindController replaces controller discovery.
		FindController func() *registry.Factory
		// Cleanup replaces the removal of leftovers on the local machine
		// and the given cluster servers.
		Cleanup func(ctx context.Context, servers []string, cfg *config.Config, logger *log.Logger) error

		stdin  io.Reader
		stdout io.Writer
		stderr io.Writer

		configPath string
		verbosity  string
		cfg        *config.Config
		logger     *log.Logger
	}

	// Dependencies are the injection points of NewApp.
	Dependencies struct {
		Config         config.Provider
		Builder        session.Builder
		FindController func() *registry.Factory
		Cleanup        func(ctx context.Context, servers []string, cfg *config.Config, logger *log.Logger) error
		Stdin          io.Reader
		Stdout         io.Writer
		Stderr         io.Writer
	}
)

// NewApp returns an App with defaults for every nil dependency.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:         deps.Config,
		Builder:        deps.Builder,
		FindController: deps.FindController,
		Cleanup:        deps.Cleanup,
		stdin:          deps.Stdin,
		stdout:         deps.Stdout,
		stderr:         deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.Cleanup == nil {
		app.Cleanup = cleanupHosts
	}
	if app.stdin == nil {
		app.stdin = os.Stdin
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "nestnet",
		Short: "Emulate a network of hosts, switches and controllers on one machine",
		Long: TitleStyle.Render("nestnet") + SubtitleStyle.Render(" - network emulation from the command line") + `

nestnet builds a virtual network from a topology, starts its switches and
controllers, and then either runs tests against it or opens a command
line where you can run commands on any node.

` + SubtitleStyle.Render("Examples:") + `
  nestnet run                              Minimal network and a command line
  nestnet run --topo tree,2,2 --test pingall
  nestnet run --topo linear,4 --switch ovsbr --test iperf
  nestnet list                             Show the available components
  nestnet clean                            Remove what a crashed run left behind`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.init(cmd)
		},
	}
	root.SetIn(app.stdin)
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)

	root.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/nestnet/config.cue)")
	root.PersistentFlags().StringVarP(&app.verbosity, "verbosity", "v", "",
		"debug|info|output|warning|warn|error|critical (default from config, else info)")

	root.AddCommand(
		newRunCommand(app),
		newCleanCommand(app),
		newListCommand(app),
		newConfigCommand(app),
		newExplainCommand(app),
	)
	return root
}

// Execute runs the command line and exits with its status.
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(ExitFault)
	}
}

func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// init loads the configuration and installs the logger.
func (app *App) init(cmd *cobra.Command) error {
	cfg, err := app.Config.Load(cmd.Context(), config.LoadOptions{ConfigFilePath: app.configPath})
	if err != nil {
		return app.fail(cmd, err)
	}
	if app.verbosity != "" {
		cfg.Verbosity = config.Verbosity(app.verbosity)
		if ok, errs := cfg.Verbosity.IsValid(); !ok {
			return app.fail(cmd, errors.Join(errs...))
		}
	}
	app.cfg = cfg
	app.logger = newLogger(app.stderr, cfg.Verbosity)
	log.SetDefault(app.logger)
	slog.SetDefault(slog.New(app.logger))
	return nil
}

func newLogger(w io.Writer, v config.Verbosity) *log.Logger {
	return log.NewWithOptions(w, log.Options{Level: levelFor(v)})
}

func levelFor(v config.Verbosity) log.Level {
	switch v {
	case config.VerbosityDebug:
		return log.DebugLevel
	case config.VerbosityOutput:
		return outputLevel
	case config.VerbosityWarning, config.VerbosityWarn:
		return log.WarnLevel
	case config.VerbosityError:
		return log.ErrorLevel
	case config.VerbosityCritical:
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

func (app *App) verbose() bool {
	return app.cfg != nil && app.cfg.Verbosity == config.VerbosityDebug
}

// fail renders err for the user and returns the exit error for it.
func (app *App) fail(cmd *cobra.Command, err error) error {
	cmd.SilenceErrors = true
	fmt.Fprintln(app.stderr, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, app.verbose()))
	return &ExitError{Code: ExitFault, Err: err}
}

// formatErrorForDisplay formats an error for user display. An
// ActionableError uses its own Format; verbose mode shows the full chain.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}
