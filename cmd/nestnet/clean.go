// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nestnet/nestnet/internal/config"
	"github.com/nestnet/nestnet/internal/container"
	"github.com/nestnet/nestnet/internal/netemu"
)

func newCleanCommand(app *App) *cobra.Command {
	var cluster []string
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove processes, interfaces and containers left by earlier runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.Cleanup(cmd.Context(), cluster, app.cfg, app.logger); err != nil {
				return app.fail(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&cluster, "cluster", nil, "also clean these servers over ssh")
	return cmd
}

// cleanupHosts cleans the local machine, then every cluster server.
// Container leftovers are only looked for locally.
func cleanupHosts(ctx context.Context, servers []string, cfg *config.Config, logger *log.Logger) error {
	var engine container.Engine
	if cfg != nil {
		if e, err := container.NewEngine(container.EngineType(cfg.Container.Engine)); err == nil {
			engine = e
		} else {
			logger.Debug("no container engine, skipping containers", "error", err)
		}
	}

	local := netemu.NewLocalCommander()
	errs := []error{netemu.Cleanup(ctx, local, engine, logger)}
	for _, server := range servers {
		logger.Info("*** Cleaning up cluster server", "server", server)
		if err := netemu.Cleanup(ctx, netemu.NewRemoteCommander(server, local), nil, logger.With("server", server)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", server, err))
		}
	}
	return errors.Join(errs...)
}
