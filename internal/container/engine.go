// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
)

const (
	EngineTypeDocker EngineType = "docker"
	EngineTypePodman EngineType = "podman"
	EngineTypeIsula  EngineType = "isula"

	// DefaultImage is the image container hosts run when none is given.
	DefaultImage = "ubuntu:trusty"
	// NamePrefix prefixes every container created for a node.
	NamePrefix = "mn."
)

// ErrEngineNotAvailable is returned when no usable engine binary exists.
var ErrEngineNotAvailable = errors.New("container engine not available")

type (
	// EngineType identifies a container engine CLI.
	EngineType string

	// Engine is the set of operations container hosts need.
	Engine interface {
		// Name returns the engine name.
		Name() string
		// Available reports whether the engine binary works.
		Available() bool
		// Version returns the engine version.
		Version(ctx context.Context) (string, error)
		// RunDetached starts a container in the background and returns
		// its id.
		RunDetached(ctx context.Context, opts RunOptions) (string, error)
		// ExecArgv returns the argv that runs command inside a container
		// on an interactive terminal.
		ExecArgv(containerID string, command []string) []string
		// Pid returns the host pid of the container's init process.
		Pid(ctx context.Context, containerID string) (int, error)
		// Remove removes a container.
		Remove(ctx context.Context, containerID string, force bool) error
		// List returns the names of containers whose name starts with
		// prefix.
		List(ctx context.Context, prefix string) ([]string, error)
		// ImageExists reports whether an image is present locally.
		ImageExists(ctx context.Context, image string) (bool, error)
	}

	// RunOptions describes a detached node container.
	RunOptions struct {
		Image    string
		Name     string
		Hostname string
		// Network is the engine network mode; "none" for emulated hosts.
		Network    string
		Privileged bool
		CPUs       float64
		Memory     string
		Volumes    []string
		Env        map[string]string
		Labels     map[string]string
		// Command overrides the image command; emulated hosts idle.
		Command []string
	}

	// EngineNotAvailableError reports a missing or broken engine.
	EngineNotAvailableError struct {
		Engine string
		Reason string
	}
)

func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Unwrap returns ErrEngineNotAvailable for errors.Is compatibility.
func (e *EngineNotAvailableError) Unwrap() error { return ErrEngineNotAvailable }

// IsValid reports whether t names a supported engine.
func (t EngineType) IsValid() bool {
	switch t {
	case EngineTypeDocker, EngineTypePodman, EngineTypeIsula:
		return true
	default:
		return false
	}
}

// NewEngine returns the preferred engine, falling back to any other
// available engine. An empty preference auto-detects.
func NewEngine(preferred EngineType, opts ...BaseCLIEngineOption) (Engine, error) {
	if preferred == "" {
		return AutoDetectEngine(opts...)
	}
	if !preferred.IsValid() {
		return nil, fmt.Errorf("unknown container engine type: %s", preferred)
	}
	candidates := []Engine{newEngine(preferred, opts...)}
	for _, t := range engineOrder {
		if t != preferred {
			candidates = append(candidates, newEngine(t, opts...))
		}
	}
	for _, e := range candidates {
		if e.Available() {
			return e, nil
		}
	}
	return nil, &EngineNotAvailableError{
		Engine: string(preferred),
		Reason: string(preferred) + " is not installed or not accessible, and no fallback engine is available",
	}
}

// AutoDetectEngine returns the first available engine in the order docker,
// podman, isula.
func AutoDetectEngine(opts ...BaseCLIEngineOption) (Engine, error) {
	for _, t := range engineOrder {
		if e := newEngine(t, opts...); e.Available() {
			return e, nil
		}
	}
	return nil, &EngineNotAvailableError{
		Engine: "any",
		Reason: "none of docker, podman or isula is available on this system",
	}
}

var engineOrder = []EngineType{EngineTypeDocker, EngineTypePodman, EngineTypeIsula}

func newEngine(t EngineType, opts ...BaseCLIEngineOption) Engine {
	switch t {
	case EngineTypePodman:
		return NewPodmanEngine(opts...)
	case EngineTypeIsula:
		return NewIsulaEngine(opts...)
	default:
		return NewDockerEngine(opts...)
	}
}
