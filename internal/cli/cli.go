// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/nestnet/nestnet/internal/dispatch"
	"github.com/nestnet/nestnet/internal/netemu"
	"github.com/nestnet/nestnet/internal/session"
)

// DefaultPrompt is shown before every interactive line.
const DefaultPrompt = "nestnet> "

type (
	// Network is what the CLI needs from a running network.
	Network interface {
		session.Network
		Nodes() []*netemu.Node
		Node(name string) (*netemu.Node, error)
		Dump(ctx context.Context) []string
		Net() []string
		LinkStatus(ctx context.Context) []string
		ConfigLink(ctx context.Context, a, b, state string) error
	}

	// LineReader returns one input line at a time; io.EOF ends the
	// session.
	LineReader interface {
		ReadLine() (string, error)
	}

	// Options configures a CLI.
	Options struct {
		// In is read line by line unless Lines is set.
		In io.Reader
		// Lines replaces In, e.g. with a line-editing terminal.
		Lines  LineReader
		Out    io.Writer
		Prompt string
		// Dispatcher runs test specs typed at the prompt.
		Dispatcher *dispatch.Dispatcher
		Logger     *log.Logger
		// Lock, when set, is held while each interactive line runs so
		// several consoles can share one network.
		Lock sync.Locker
	}

	// CLI runs commands against a network.
	CLI struct {
		opts     Options
		commands map[string]command
	}

	command struct {
		help string
		run  func(ctx context.Context, c *CLI, net Network, args []string, rest string) error
	}

	scanReader struct {
		sc     *bufio.Scanner
		out    io.Writer
		prompt string
	}

	// exitSignal ends the command loop.
	exitSignal struct{}
)

func (exitSignal) Error() string { return "exit" }

// New returns a CLI. Missing options get stdin, stdout, a new dispatcher and
// the default logger.
func New(opts Options) *CLI {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = dispatch.New(opts.Logger)
	}
	c := &CLI{opts: opts}
	c.commands = builtinCommands()
	return c
}

func (s *scanReader) ReadLine() (string, error) {
	if s.prompt != "" {
		fmt.Fprint(s.out, s.prompt)
	}
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.sc.Text(), nil
}

func asNetwork(net session.Network) (Network, error) {
	n, ok := net.(Network)
	if !ok {
		return nil, fmt.Errorf("network %T does not support the command line", net)
	}
	return n, nil
}

// Interact reads and runs lines until exit, end of input or ctx ends.
func (c *CLI) Interact(ctx context.Context, snet session.Network) error {
	net, err := asNetwork(snet)
	if err != nil {
		return err
	}
	lines := c.opts.Lines
	if lines == nil {
		lines = &scanReader{sc: bufio.NewScanner(c.opts.In), out: c.opts.Out, prompt: c.opts.Prompt}
	}
	c.opts.Logger.Info("*** Starting CLI:")

	type readResult struct {
		line string
		err  error
	}
	next := make(chan readResult, 1)
	read := func() {
		line, err := lines.ReadLine()
		next <- readResult{line, err}
	}

	for {
		go read()
		var r readResult
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r = <-next:
		}
		if errors.Is(r.err, io.EOF) {
			fmt.Fprintln(c.opts.Out)
			return nil
		}
		if r.err != nil {
			return r.err
		}
		if err := c.execLocked(ctx, net, r.line); err != nil {
			if errors.Is(err, exitSignal{}) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.opts.Logger.Error(err.Error())
		}
	}
}

func (c *CLI) execLocked(ctx context.Context, net Network, line string) error {
	if c.opts.Lock != nil {
		c.opts.Lock.Lock()
		defer c.opts.Lock.Unlock()
	}
	return c.Exec(ctx, net, line)
}

// RunScript runs every line of the file at path. Blank lines and lines
// starting with '#' are skipped; the first failing line stops the script.
func (c *CLI) RunScript(ctx context.Context, snet session.Network, path string) error {
	net, err := asNetwork(snet)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.runLines(ctx, net, f, path)
}

func (c *CLI) runLines(ctx context.Context, net Network, r io.Reader, source string) error {
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		c.opts.Logger.Info("*** " + line)
		if err := c.Exec(ctx, net, line); err != nil {
			if errors.Is(err, exitSignal{}) {
				return nil
			}
			return fmt.Errorf("%s:%d: %w", source, lineNo, err)
		}
	}
	return sc.Err()
}

// Exec runs one line.
func (c *CLI) Exec(ctx context.Context, net Network, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	first, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	if cmd, ok := c.commands[first]; ok {
		args, err := splitArgs(rest)
		if err != nil {
			return err
		}
		return cmd.run(ctx, c, net, args, rest)
	}
	if node, err := net.Node(first); err == nil {
		if rest == "" {
			return fmt.Errorf("*** Enter a command for node: %s <cmd>", first)
		}
		return c.nodeCommand(ctx, net, node, rest)
	}
	if c.isTest(net, first) {
		args, err := splitArgs(rest)
		if err != nil {
			return err
		}
		return c.opts.Dispatcher.RunOne(ctx, net, strings.Join(append([]string{first}, args...), ","))
	}
	return fmt.Errorf("*** Unknown command: %s", line)
}

func (c *CLI) isTest(net Network, name string) bool {
	name = c.opts.Dispatcher.Canonical(name)
	for _, known := range c.opts.Dispatcher.Names() {
		if known == name {
			return true
		}
	}
	_, ok := net.Operation(name)
	return ok
}

// nodeCommand runs cmd in node's shell and streams its output. Canceling
// ctx interrupts the command.
func (c *CLI) nodeCommand(ctx context.Context, net Network, node *netemu.Node, cmd string) error {
	ch := node.Channel()
	if ch == nil {
		return fmt.Errorf("node %s has no shell", node.Name)
	}
	if err := ch.Send(substituteIPs(net, cmd)); err != nil {
		return err
	}
	_, err := ch.Monitor(ctx, func(b []byte) { _, _ = c.opts.Out.Write(b) })
	if err != nil && ctx.Err() != nil {
		_ = ch.Interrupt()
		if _, werr := ch.Wait(context.WithoutCancel(ctx)); werr != nil {
			c.opts.Logger.Debug("interrupted command did not finish", "node", node.Name, "error", werr)
		}
	}
	return err
}

// substituteIPs replaces words naming hosts with their addresses.
func substituteIPs(net Network, cmd string) string {
	words := strings.Fields(cmd)
	changed := false
	for i, w := range words {
		if node, err := net.Node(w); err == nil && node.Addr() != "" {
			words[i] = node.Addr()
			changed = true
		}
	}
	if !changed {
		return cmd
	}
	return strings.Join(words, " ")
}
