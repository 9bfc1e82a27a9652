// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nestnet/nestnet/internal/issue"
)

func newExplainCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "explain [topic]",
		Short: "Explain an error and what to do about it",
		Long: `Show the help entry an error message points to. Without a topic, list
every entry.`,
		Args: cobra.MaximumNArgs(1),
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return issueSlugs(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				fmt.Fprintln(out, TitleStyle.Render("Topics:"))
				for _, slug := range issueSlugs() {
					fmt.Fprintf(out, "  %s\n", CmdStyle.Render(slug))
				}
				return nil
			}
			entry, ok := issue.Lookup(args[0])
			if !ok {
				return app.fail(cmd, fmt.Errorf("no help topic %q (known: %s)", args[0], strings.Join(issueSlugs(), ", ")))
			}
			rendered, err := entry.Render(glamourStyle(out))
			if err != nil {
				return app.fail(cmd, err)
			}
			fmt.Fprint(out, rendered)
			return nil
		},
	}
}

func issueSlugs() []string {
	values := issue.Values()
	slugs := make([]string, 0, len(values))
	for _, i := range values {
		slugs = append(slugs, i.Slug())
	}
	return slugs
}

// glamourStyle picks a colored style only when w is a terminal.
func glamourStyle(w any) string {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "auto"
	}
	return "notty"
}
