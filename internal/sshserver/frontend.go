// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/nestnet/nestnet/internal/cli"
	"github.com/nestnet/nestnet/internal/session"
)

// FrontEnd opens an SSH console next to a local front end for as long as
// the local one is interacting. Scripts run locally only.
type FrontEnd struct {
	Local   session.FrontEnd
	Config  Config
	Options []Option
	Logger  *log.Logger
}

// RunScript delegates to the local front end.
func (f *FrontEnd) RunScript(ctx context.Context, net session.Network, path string) error {
	return f.Local.RunScript(ctx, net, path)
}

// Interact starts the console, announces how to log in and hands over to
// the local front end. The console stops when the local session ends.
func (f *FrontEnd) Interact(ctx context.Context, net session.Network) (err error) {
	cn, ok := net.(cli.Network)
	if !ok {
		return fmt.Errorf("network %T cannot be served over SSH", net)
	}
	logger := f.Logger
	if logger == nil {
		logger = log.Default()
	}

	srv := New(f.Config, cn, f.Options...)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if stopErr := srv.Stop(); stopErr != nil && err == nil {
			err = stopErr
		}
	}()

	info, err := srv.ConnectionInfo("console")
	if err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("*** SSH console: ssh -p %d %s@%s", info.Port, info.User, info.Host))
	logger.Info("*** SSH console password: " + string(info.Token))

	return f.Local.Interact(ctx, net)
}
