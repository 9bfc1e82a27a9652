// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nestnet/nestnet/internal/custom"
	"github.com/nestnet/nestnet/pkg/registry"
)

func newListCommand(app *App) *cobra.Command {
	var customFiles []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the available components and tests",
		Long: `List every registered topology, switch, host, controller and link with the
implementation it builds, followed by the tests accepted by --test.
Customization files given with --custom are loaded first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := app.newRegistry()
			if err != nil {
				return app.fail(cmd, err)
			}
			dispatcher := app.newDispatcher()
			if len(customFiles) > 0 {
				loader := custom.NewLoader(reg, custom.WithTests(dispatcher), custom.WithLogger(app.logger))
				res, err := loader.Load(cmd.Context(), customFiles)
				if err != nil {
					return app.fail(cmd, explainRunError(err))
				}
				for kind, key := range map[registry.Kind]string{
					registry.KindTopology:   res.Defaults.Topo,
					registry.KindSwitch:     res.Defaults.Switch,
					registry.KindHost:       res.Defaults.Host,
					registry.KindController: res.Defaults.Controller,
					registry.KindLink:       res.Defaults.Link,
				} {
					if key != "" {
						reg.SetDefault(kind, key)
					}
				}
			}

			out := cmd.OutOrStdout()
			for _, kind := range registry.Kinds() {
				fmt.Fprintf(out, "%s %s\n", TitleStyle.Render(kind.Table()+":"), SubtitleStyle.Render("(default "+reg.Default(kind)+")"))
				for _, pair := range strings.Fields(reg.Help(kind)) {
					key, name, _ := strings.Cut(pair, "=")
					fmt.Fprintf(out, "  %s %s\n", CmdStyle.Width(14).Render(key), name)
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, TitleStyle.Render("tests:"))
			fmt.Fprintf(out, "  %s\n", strings.Join(dispatcher.Names(), " "))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&customFiles, "custom", nil, "customization files to load first")
	return cmd
}
