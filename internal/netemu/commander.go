// SPDX-License-Identifier: MPL-2.0

package netemu

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

type (
	// Commander runs collaborator commands and returns their combined
	// output.
	Commander interface {
		Run(ctx context.Context, argv ...string) (string, error)
	}

	// ExecCommandFunc creates exec.Cmd values; tests inject fakes.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// LocalCommander runs commands on this machine.
	LocalCommander struct {
		execCommand ExecCommandFunc
	}

	// RemoteCommander runs commands on a cluster server over ssh.
	RemoteCommander struct {
		Server string
		local  Commander
	}
)

// NewLocalCommander returns a commander using exec.CommandContext.
func NewLocalCommander() *LocalCommander {
	return &LocalCommander{execCommand: exec.CommandContext}
}

// Run executes argv and returns trimmed combined output.
func (c *LocalCommander) Run(ctx context.Context, argv ...string) (string, error) {
	cmd := c.execCommand(ctx, argv[0], argv[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	output := strings.TrimSpace(out.String())
	if err != nil {
		return output, &CommandError{Argv: argv, Output: output, Cause: err}
	}
	return output, nil
}

// NewRemoteCommander returns a commander for server that runs ssh through
// local.
func NewRemoteCommander(server string, local Commander) *RemoteCommander {
	return &RemoteCommander{Server: server, local: local}
}

// Run executes argv on the server as one quoted remote command line.
func (c *RemoteCommander) Run(ctx context.Context, argv ...string) (string, error) {
	out, err := c.local.Run(ctx, SSHArgv(c.Server, false, argv)...)
	var ce *CommandError
	if errors.As(err, &ce) {
		ce.Server = c.Server
		ce.Argv = argv
	}
	return out, err
}

// SSHArgv wraps argv so that it runs on server. tty requests a terminal,
// which node shells need.
func SSHArgv(server string, tty bool, argv []string) []string {
	out := []string{"ssh", "-o", "BatchMode=yes"}
	if tty {
		out = append(out, "-tt")
	}
	return append(out, server, QuoteArgv(argv))
}

// QuoteArgv renders argv as a bash command line.
func QuoteArgv(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		q, err := syntax.Quote(a, syntax.LangBash)
		if err != nil {
			// Only strings with NUL bytes fail; they cannot reach a shell.
			q = "''"
		}
		quoted[i] = q
	}
	return strings.Join(quoted, " ")
}

// isLocal reports whether server names this machine.
func isLocal(server string) bool {
	return server == "" || server == "localhost" || server == "127.0.0.1"
}
