// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"mvdan.cc/sh/v3/shell"
)

func builtinCommands() map[string]command {
	cmds := map[string]command{
		"nodes": {"list all nodes", cmdNodes},
		"net":   {"list network connections", cmdNet},
		"dump":  {"dump node info", cmdDump},
		"links": {"report on links", cmdLinks},
		"link":  {"bring link(s) between two nodes up or down: link <a> <b> up|down", cmdLink},
		"intfs": {"list interfaces", cmdIntfs},
		"sh":    {"run an external shell command: sh <cmd>", cmdSh},
		"source": {"read commands from a file: source <file>", func(ctx context.Context, c *CLI, net Network, args []string, _ string) error {
			if len(args) != 1 {
				return errors.New("usage: source <file>")
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return c.runLines(ctx, net, f, args[0])
		}},
		"time": {"measure the time a command takes: time <cmd>", func(ctx context.Context, c *CLI, net Network, _ []string, rest string) error {
			start := time.Now()
			err := c.Exec(ctx, net, rest)
			fmt.Fprintf(c.opts.Out, "*** Elapsed time: %0.6f secs\n", time.Since(start).Seconds())
			return err
		}},
		"px":   {"evaluate a CUE expression over the nodes: px h1.ip", cmdPx},
		"exit": {"exit", func(context.Context, *CLI, Network, []string, string) error { return exitSignal{} }},
		"quit": {"exit", func(context.Context, *CLI, Network, []string, string) error { return exitSignal{} }},
	}
	cmds["help"] = command{"show this help", cmdHelp}
	return cmds
}

// splitArgs splits a command line like a shell would, expanding
// environment variables.
func splitArgs(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	return shell.Fields(s, os.Getenv)
}

func cmdHelp(_ context.Context, c *CLI, _ Network, args []string, _ string) error {
	if len(args) > 0 {
		cmd, ok := c.commands[args[0]]
		if !ok {
			return fmt.Errorf("*** No help on %s", args[0])
		}
		fmt.Fprintln(c.opts.Out, cmd.help)
		return nil
	}
	fmt.Fprintln(c.opts.Out, "Documented commands:")
	for _, name := range slices.Sorted(maps.Keys(c.commands)) {
		fmt.Fprintf(c.opts.Out, "  %-8s %s\n", name, c.commands[name].help)
	}
	fmt.Fprintf(c.opts.Out, "\nTests: %s\n", strings.Join(c.opts.Dispatcher.Names(), " "))
	fmt.Fprintln(c.opts.Out, `
You may also send a command to a node using:
  <node> command {args}
For example:
  nestnet> h1 ifconfig

Node names in the command are replaced by their IP addresses:
  nestnet> h2 ping h3`)
	return nil
}

func cmdNodes(_ context.Context, c *CLI, net Network, _ []string, _ string) error {
	names := make([]string, 0)
	for _, n := range net.Nodes() {
		names = append(names, n.Name)
	}
	slices.Sort(names)
	fmt.Fprintf(c.opts.Out, "available nodes are: \n%s\n", strings.Join(names, " "))
	return nil
}

func printLines(c *CLI, lines []string) {
	for _, l := range lines {
		fmt.Fprintln(c.opts.Out, l)
	}
}

func cmdNet(_ context.Context, c *CLI, net Network, _ []string, _ string) error {
	printLines(c, net.Net())
	return nil
}

func cmdDump(ctx context.Context, c *CLI, net Network, _ []string, _ string) error {
	printLines(c, net.Dump(ctx))
	return nil
}

func cmdLinks(ctx context.Context, c *CLI, net Network, _ []string, _ string) error {
	printLines(c, net.LinkStatus(ctx))
	return nil
}

func cmdLink(ctx context.Context, _ *CLI, net Network, args []string, _ string) error {
	if len(args) != 3 {
		return errors.New("usage: link <node1> <node2> [up|down]")
	}
	return net.ConfigLink(ctx, args[0], args[1], args[2])
}

func cmdIntfs(_ context.Context, c *CLI, net Network, _ []string, _ string) error {
	for _, n := range net.Nodes() {
		fmt.Fprintf(c.opts.Out, "%s: %s\n", n.Name, strings.Join(n.IntfNames(), ","))
	}
	return nil
}

func cmdSh(ctx context.Context, c *CLI, _ Network, _ []string, rest string) error {
	if rest == "" {
		return errors.New("usage: sh <cmd>")
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", rest)
	cmd.Stdout = c.opts.Out
	cmd.Stderr = c.opts.Out
	return cmd.Run()
}

// cmdPx evaluates a CUE expression with every node bound by name to its
// name, role, ip, mac, pid and interfaces.
func cmdPx(_ context.Context, c *CLI, net Network, _ []string, rest string) error {
	if rest == "" {
		return errors.New("usage: px <expression>")
	}
	cctx := cuecontext.New()
	scope := map[string]any{}
	for _, n := range net.Nodes() {
		scope[n.Name] = map[string]any{
			"name":  n.Name,
			"role":  n.Role.String(),
			"ip":    n.Addr(),
			"mac":   n.MAC,
			"pid":   n.Pid(),
			"intfs": n.IntfNames(),
		}
	}
	v := cctx.CompileString(rest, cue.Scope(cctx.Encode(scope)))
	if err := v.Err(); err != nil {
		return err
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	fmt.Fprintf(c.opts.Out, "%v\n", v)
	return nil
}
