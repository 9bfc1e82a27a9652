// SPDX-License-Identifier: MPL-2.0

package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

const (
	// DefaultPromptTimeout bounds the wait for the first prompt.
	DefaultPromptTimeout = 30 * time.Second

	// initCommand turns the fresh shell into a quiet command executor.
	initCommand = "unset HISTFILE; stty -echo; set +m"

	killGrace = 2 * time.Second
	readSize  = 4096
)

type (
	// Options configures a Channel.
	Options struct {
		// Name is the node name, used in errors, logs and the shell argv.
		Name string
		// Argv is the full command to spawn. Empty means ShellArgv(Name).
		Argv []string
		// Env is appended to the current environment.
		Env []string
		// Dir is the working directory of the shell.
		Dir string
		// Sentinel terminates prompt frames. Zero means DefaultSentinel.
		Sentinel byte
		// PromptTimeout bounds the wait for the first prompt. Zero waits
		// without bound; negative means DefaultPromptTimeout.
		PromptTimeout time.Duration
		// Logger receives debug output. Nil uses the default logger.
		Logger *log.Logger
	}

	// Result is the outcome of one command.
	Result struct {
		Output     string
		ExitStatus int
	}

	// Channel is one pseudo-terminal backed shell.
	Channel struct {
		opts   Options
		mux    *Multiplexer
		logger *log.Logger

		state  atomic.Int32
		cmd    *exec.Cmd
		master *os.File
		handle Handle

		// Fields below are owned by the goroutine driving the channel.
		buf     []byte
		emitted int
		lastCmd string
		lastPid int

		closeOnce sync.Once
		closeErr  error
	}
)

// New creates an idle channel that will register with mux when started.
func New(mux *Multiplexer, opts Options) *Channel {
	if opts.Sentinel == 0 {
		opts.Sentinel = DefaultSentinel
	}
	if opts.PromptTimeout < 0 {
		opts.PromptTimeout = DefaultPromptTimeout
	}
	if len(opts.Argv) == 0 {
		opts.Argv = ShellArgv(opts.Name, opts.Sentinel)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Channel{
		opts:   opts,
		mux:    mux,
		logger: logger.With("node", opts.Name),
		handle: -1,
	}
}

// Name returns the node name.
func (c *Channel) Name() string { return c.opts.Name }

// State returns the current state.
func (c *Channel) State() State { return State(c.state.Load()) }

// Handle returns the master descriptor registered with the multiplexer, or
// -1 before Start.
func (c *Channel) Handle() Handle { return c.handle }

// Pid returns the shell process id, or 0 before Start.
func (c *Channel) Pid() int {
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// LastCommand returns the most recently sent command.
func (c *Channel) LastCommand() string { return c.lastCmd }

// LastPid returns the pid of the most recent background job, or 0.
func (c *Channel) LastPid() int { return c.lastPid }

// Start spawns the shell on a new pseudo-terminal and waits for its first
// prompt.
func (c *Channel) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateStarting)) {
		return &AlreadyRunningError{Node: c.opts.Name, State: c.State()}
	}

	if err := c.spawn(); err != nil {
		c.state.Store(int32(StateClosed))
		return &StartError{Node: c.opts.Name, Cause: err}
	}
	c.logger.Debug("shell spawned", "pid", c.Pid(), "argv", strings.Join(c.opts.Argv, " "))

	waitCtx := ctx
	if c.opts.PromptTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.opts.PromptTimeout)
		defer cancel()
	}
	if err := c.awaitFirstPrompt(waitCtx); err != nil {
		_ = c.Close()
		return &StartError{Node: c.opts.Name, Cause: err}
	}

	c.state.Store(int32(StateReady))
	if _, err := c.Run(waitCtx, initCommand); err != nil {
		_ = c.Close()
		return &StartError{Node: c.opts.Name, Cause: err}
	}
	c.logger.Debug("shell ready")
	return nil
}

func (c *Channel) spawn() error {
	master, slave, err := pty.Open()
	if err != nil {
		return fmt.Errorf("allocate pty: %w", err)
	}
	// Wide terminals keep long output lines from being wrapped.
	_ = pty.Setsize(master, &pty.Winsize{Rows: 24, Cols: 1000})

	cmd := exec.Command(c.opts.Argv[0], c.opts.Argv[1:]...)
	cmd.Env = append(os.Environ(), c.opts.Env...)
	cmd.Dir = c.opts.Dir
	cmd.Stdin, cmd.Stdout, cmd.Stderr = slave, slave, slave
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true, Ctty: 0}
	if err := cmd.Start(); err != nil {
		_ = master.Close()
		_ = slave.Close()
		return fmt.Errorf("spawn %s: %w", c.opts.Argv[0], err)
	}
	_ = slave.Close()

	c.cmd = cmd
	c.master = master
	c.handle = Handle(master.Fd())
	if err := c.mux.Register(c.handle, c); err != nil {
		_ = master.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return err
	}
	return nil
}

func (c *Channel) awaitFirstPrompt(ctx context.Context) error {
	for {
		if err := c.mux.WaitFor(ctx, c.handle); err != nil {
			return err
		}
		chunk, err := c.fill()
		if err != nil {
			return err
		}
		if len(chunk) > 0 && chunk[len(chunk)-1] == c.opts.Sentinel {
			if _, _, ok := parseFrame(c.buf, c.opts.Sentinel); ok {
				c.resetBuffer()
				return nil
			}
		}
	}
}

// Send writes cmd to the shell. The channel is Busy until the command's
// status frame has been collected with Wait or Monitor. A command ending
// in '&' also reports its job pid, which Close signals.
func (c *Channel) Send(cmd string) error {
	switch st := c.State(); st {
	case StateReady:
	case StateBusy:
		return &BusyError{Node: c.opts.Name, Running: c.lastCmd}
	default:
		return &ClosedError{Node: c.opts.Name, State: st}
	}

	c.resetBuffer()
	c.lastCmd = cmd
	line := cmd
	if strings.HasSuffix(strings.TrimSpace(cmd), "&") {
		c.lastPid = 0
		line += fmt.Sprintf(" printf '\\%03o%%d\\n' $!", pidMarker)
	}
	c.state.Store(int32(StateBusy))
	if _, err := c.master.Write([]byte(line + "\n")); err != nil {
		return c.fault("write", err)
	}
	return nil
}

// Wait collects the output of the running command.
func (c *Channel) Wait(ctx context.Context) (Result, error) {
	return c.Monitor(ctx, nil)
}

// Monitor collects the output of the running command, passing output to fn
// as it arrives. Bytes that may belong to a frame are held back until the
// frame is complete.
func (c *Channel) Monitor(ctx context.Context, fn func([]byte)) (Result, error) {
	for {
		if st := c.State(); st != StateBusy {
			return Result{}, &ClosedError{Node: c.opts.Name, State: st}
		}
		if res, ok := c.complete(fn); ok {
			return res, nil
		}
		if err := c.mux.WaitFor(ctx, c.handle); err != nil {
			if errors.Is(err, ErrNotRegistered) {
				return Result{}, &ClosedError{Node: c.opts.Name, State: c.State()}
			}
			return Result{}, err
		}
		if _, err := c.fill(); err != nil {
			return Result{}, err
		}
	}
}

// Run sends cmd and waits for its result.
func (c *Channel) Run(ctx context.Context, cmd string) (Result, error) {
	if err := c.Send(cmd); err != nil {
		return Result{}, err
	}
	return c.Wait(ctx)
}

// Interrupt sends ^C to the terminal.
func (c *Channel) Interrupt() error {
	if c.State() == StateClosed || c.master == nil {
		return &ClosedError{Node: c.opts.Name, State: c.State()}
	}
	if _, err := c.master.Write([]byte{0x03}); err != nil {
		return c.fault("interrupt", err)
	}
	return nil
}

// Close terminates the shell. A running command is interrupted and its job
// and process group receive SIGTERM first. The handle is unregistered from
// the multiplexer before the master descriptor is released. Close is
// idempotent.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		prev := State(c.state.Swap(int32(StateClosed)))
		if c.cmd == nil {
			return
		}
		if prev == StateBusy {
			c.terminateJob()
		}

		c.mux.Unregister(c.handle)
		closeErr := c.master.Close()

		_ = c.cmd.Process.Signal(syscall.SIGHUP)
		done := make(chan error, 1)
		go func() { done <- c.cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(killGrace):
			_ = c.cmd.Process.Kill()
			<-done
		}
		c.logger.Debug("shell closed", "previous", prev)
		c.closeErr = closeErr
	})
	return c.closeErr
}

func (c *Channel) terminateJob() {
	_, _ = c.master.Write([]byte{0x03})
	if c.lastPid > 0 {
		_ = unix.Kill(c.lastPid, unix.SIGTERM)
	}
	// Job control is off, so foreground jobs share the shell's group. An
	// interactive shell ignores SIGTERM itself.
	if pgid, err := unix.Getpgid(c.Pid()); err == nil && pgid > 0 {
		_ = unix.Kill(-pgid, unix.SIGTERM)
	}
}

// fill performs one read from the master and appends it to the buffer.
func (c *Channel) fill() ([]byte, error) {
	var tmp [readSize]byte
	n, err := unix.Read(int(c.handle), tmp[:])
	if n > 0 {
		c.buf = append(c.buf, tmp[:n]...)
		return tmp[:n], nil
	}
	if err == nil || errors.Is(err, unix.EIO) {
		err = io.EOF
	}
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
		return nil, nil
	}
	return nil, c.fault("read", err)
}

// complete checks the buffer for a finished command.
func (c *Channel) complete(fn func([]byte)) (Result, bool) {
	if c.lastPid == 0 && bytes.IndexByte(c.buf, pidMarker) >= 0 {
		if rest, pid, ok := extractPid(c.buf); ok {
			c.buf = rest
			c.lastPid = pid
			c.emitted = min(c.emitted, len(c.buf))
		}
	}

	start, status, ok := parseFrame(c.buf, c.opts.Sentinel)
	if ok {
		out := normalize(c.buf[:start])
		if fn != nil && c.emitted < start {
			fn(normalize(c.buf[c.emitted:start]))
		}
		c.resetBuffer()
		c.state.Store(int32(StateReady))
		return Result{Output: string(out), ExitStatus: status}, true
	}

	if fn != nil {
		safe := len(c.buf)
		if i := bytes.IndexAny(c.buf[c.emitted:], string([]byte{frameStart, pidMarker})); i >= 0 {
			safe = c.emitted + i
		}
		if safe > c.emitted {
			fn(normalize(c.buf[c.emitted:safe]))
			c.emitted = safe
		}
	}
	return Result{}, false
}

func (c *Channel) resetBuffer() {
	c.buf = c.buf[:0]
	c.emitted = 0
}

func (c *Channel) fault(op string, err error) error {
	c.logger.Debug("channel fault", "op", op, "err", err)
	_ = c.Close()
	return &FaultError{Node: c.opts.Name, Op: op, Cause: err}
}
