// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nestnet/nestnet/internal/config"
)

// newConfigCommand creates the `nestnet config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage nestnet configuration",
		Long: `Manage nestnet configuration.

Configuration is stored in $XDG_CONFIG_HOME/nestnet/config.cue, falling
back to ~/.config/nestnet/config.cue. Every key can be overridden with a
NESTNET_ environment variable, e.g. NESTNET_CONTAINER_ENGINE=podman.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	var schema bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if schema {
				fmt.Fprint(cmd.OutOrStdout(), config.Schema())
				return nil
			}
			_, path, err := config.LoadWithPath(cmd.Context(), config.LoadOptions{ConfigFilePath: app.configPath})
			if err != nil {
				return app.fail(cmd, err)
			}
			showConfig(cmd.OutOrStdout(), app.cfg, path)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&schema, "schema", false, "print the CUE schema instead")

	cfgCmd.AddCommand(
		showCmd,
		&cobra.Command{
			Use:   "dump",
			Short: "Output the effective configuration as CUE",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				fmt.Fprint(cmd.OutOrStdout(), config.GenerateCUE(app.cfg))
				return nil
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Create the default configuration file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				path, err := config.CreateDefaultConfig()
				if err != nil {
					return app.fail(cmd, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", SuccessStyle.Render("Configuration file:"), path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show the configuration file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				path := app.configPath
				if path == "" {
					var err error
					if path, err = config.DefaultPath(); err != nil {
						return app.fail(cmd, err)
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
	)
	return cfgCmd
}

func showConfig(w io.Writer, cfg *config.Config, path string) {
	key := CmdStyle.Render
	val := SuccessStyle.Render

	fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(w)
	if path != "" {
		fmt.Fprintf(w, "%s: %s\n", key("Config file"), path)
	} else {
		fmt.Fprintf(w, "%s: %s\n", key("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s:\n", key("defaults"))
	for _, kv := range [][2]string{
		{"topo", cfg.Defaults.Topo},
		{"switch", cfg.Defaults.Switch},
		{"host", cfg.Defaults.Host},
		{"controller", cfg.Defaults.Controller},
		{"link", cfg.Defaults.Link},
		{"ipbase", cfg.Defaults.IPBase},
	} {
		fmt.Fprintf(w, "  %s: %s\n", kv[0], val(kv[1]))
	}
	fmt.Fprintf(w, "%s: %s\n", key("verbosity"), val(string(cfg.Verbosity)))
	fmt.Fprintf(w, "%s: %s\n", key("channel.prompt_timeout"), val(cfg.Channel.PromptTimeout.String()))
	engine := cfg.Container.Engine
	if engine == "" {
		engine = "(auto-detect)"
	}
	fmt.Fprintf(w, "%s: %s\n", key("container.engine"), val(engine))
	fmt.Fprintf(w, "%s: %s\n", key("container.image"), val(cfg.Container.Image))
	fmt.Fprintf(w, "%s: %s\n", key("cluster.placement"), val(string(cfg.Cluster.Placement)))
	fmt.Fprintf(w, "%s: %s\n", key("ssh"), val(fmt.Sprintf("%s:%d", cfg.SSH.Host, cfg.SSH.Port)))
}
