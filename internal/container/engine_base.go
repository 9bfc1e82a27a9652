// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"os/exec"
	"slices"
	"strconv"
	"strings"

	"github.com/nestnet/nestnet/internal/issue"
)

type (
	// ExecCommandFunc creates exec.Cmd values; tests inject fakes.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine implements the operations shared by all CLI engines.
	BaseCLIEngine struct {
		name        string
		binaryPath  string
		execCommand ExecCommandFunc
		// pidFormat is the inspect template printing the init pid.
		pidFormat string
	}
)

// WithName sets the engine name used in error messages.
func WithName(name string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) { e.name = name }
}

// WithExecCommand replaces exec.CommandContext.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) { e.execCommand = fn }
}

// WithBinaryPath overrides the resolved engine binary.
func WithBinaryPath(path string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) { e.binaryPath = path }
}

// NewBaseCLIEngine creates a base engine for the binary at binaryPath.
func NewBaseCLIEngine(binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		binaryPath:  binaryPath,
		execCommand: exec.CommandContext,
		pidFormat:   "{{.State.Pid}}",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BinaryPath returns the engine binary, or "" when it was not found.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// RunArgs builds "run -d [options] <image> [command...]".
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run", "-d", "-t"}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	if opts.Hostname != "" {
		args = append(args, "--hostname", opts.Hostname)
	}
	if opts.Network != "" {
		args = append(args, "--network", opts.Network)
	}
	if opts.Privileged {
		args = append(args, "--privileged")
	}
	if opts.CPUs > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(opts.CPUs, 'f', -1, 64))
	}
	if opts.Memory != "" {
		args = append(args, "--memory", opts.Memory)
	}
	for _, v := range opts.Volumes {
		args = append(args, "-v", v)
	}
	// Sorted so the argv is deterministic.
	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}
	for _, k := range slices.Sorted(maps.Keys(opts.Labels)) {
		args = append(args, "--label", k+"="+opts.Labels[k])
	}
	args = append(args, opts.Image)
	return append(args, opts.Command...)
}

// ExecArgv returns "<binary> exec -it <id> <command...>".
func (e *BaseCLIEngine) ExecArgv(containerID string, command []string) []string {
	argv := []string{e.binaryPath, "exec", "-it", containerID}
	return append(argv, command...)
}

// RunDetached starts a container and returns its id.
func (e *BaseCLIEngine) RunDetached(ctx context.Context, opts RunOptions) (string, error) {
	out, err := e.RunCommandCombined(ctx, e.RunArgs(opts)...)
	if err != nil {
		return "", runContainerError(e.name, opts, err, out)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1]), nil
}

// Pid returns the host pid of the container's init process.
func (e *BaseCLIEngine) Pid(ctx context.Context, containerID string) (int, error) {
	out, err := e.RunCommandWithOutput(ctx, "inspect", "--format", e.pidFormat, containerID)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("container %s is not running (pid %q)", containerID, strings.TrimSpace(out))
	}
	return pid, nil
}

// Remove removes a container.
func (e *BaseCLIEngine) Remove(ctx context.Context, containerID string, force bool) error {
	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	return e.RunCommandStatus(ctx, append(args, containerID)...)
}

// List returns names of containers whose name starts with prefix.
func (e *BaseCLIEngine) List(ctx context.Context, prefix string) ([]string, error) {
	out, err := e.RunCommandWithOutput(ctx, "ps", "-a", "--format", "{{.Names}}")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if name := strings.TrimSpace(line); strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, nil
}

// ImageExists reports whether image is present locally.
func (e *BaseCLIEngine) ImageExists(ctx context.Context, image string) (bool, error) {
	return e.RunCommandStatus(ctx, "image", "inspect", image) == nil, nil
}

// RunCommandCombined executes a command and returns combined output.
func (e *BaseCLIEngine) RunCommandCombined(ctx context.Context, args ...string) ([]byte, error) {
	out, err := e.CreateCommand(ctx, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}
	return out, nil
}

// RunCommandStatus executes a command and returns only its status.
func (e *BaseCLIEngine) RunCommandStatus(ctx context.Context, args ...string) error {
	if err := e.CreateCommand(ctx, args...).Run(); err != nil {
		return fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}
	return nil
}

// RunCommandWithOutput executes a command and returns its stdout.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}
	return out.String(), nil
}

// CreateCommand creates an exec.Cmd for the engine binary.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	return e.execCommand(ctx, e.binaryPath, args...)
}

func runContainerError(engine string, opts RunOptions, cause error, output []byte) error {
	ctx := issue.NewErrorContext().
		WithOperation("start container host").
		WithResource(opts.Name + " (" + opts.Image + ")").
		WithIssue(issue.ContainerEngineNotFoundId)
	if msg := strings.TrimSpace(string(output)); msg != "" {
		cause = fmt.Errorf("%w: %s", cause, msg)
	}
	ctx.WithSuggestion("Verify the image exists (try: " + engine + " pull " + opts.Image + ")")
	ctx.WithSuggestion("Remove leftovers of an earlier run with 'nestnet clean'")
	return ctx.Wrap(cause).BuildError()
}
