// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	VerbosityDebug    Verbosity = "debug"
	VerbosityInfo     Verbosity = "info"
	VerbosityOutput   Verbosity = "output"
	VerbosityWarning  Verbosity = "warning"
	VerbosityWarn     Verbosity = "warn"
	VerbosityError    Verbosity = "error"
	VerbosityCritical Verbosity = "critical"

	PlacementBlock  Placement = "block"
	PlacementRandom Placement = "random"

	// DefaultPromptTimeout bounds the wait for a node shell's first prompt.
	DefaultPromptTimeout = 30 * time.Second
	// DefaultIPBase is the address block hosts are numbered from.
	DefaultIPBase = "10.0.0.0/8"
	// DefaultImage is the image used for container hosts.
	DefaultImage = "ubuntu:trusty"
)

var (
	// ErrInvalidVerbosity is returned for an unknown log level name.
	ErrInvalidVerbosity = errors.New("invalid verbosity")
	// ErrInvalidPlacement is returned for an unknown cluster placement.
	ErrInvalidPlacement = errors.New("invalid placement")
)

type (
	// Verbosity is a log level name accepted by --verbosity.
	Verbosity string

	// InvalidVerbosityError wraps ErrInvalidVerbosity.
	InvalidVerbosityError struct {
		Value Verbosity
	}

	// Placement selects how nodes are spread over cluster servers.
	Placement string

	// InvalidPlacementError wraps ErrInvalidPlacement.
	InvalidPlacementError struct {
		Value Placement
	}

	// Config is the effective configuration.
	Config struct {
		Defaults  DefaultsConfig  `json:"defaults" mapstructure:"defaults"`
		Verbosity Verbosity       `json:"verbosity" mapstructure:"verbosity"`
		Channel   ChannelConfig   `json:"channel" mapstructure:"channel"`
		Container ContainerConfig `json:"container" mapstructure:"container"`
		Cluster   ClusterConfig   `json:"cluster" mapstructure:"cluster"`
		SSH       SSHConfig       `json:"ssh" mapstructure:"ssh"`
	}

	// DefaultsConfig replaces the registry's default component keys.
	DefaultsConfig struct {
		Topo       string `json:"topo" mapstructure:"topo"`
		Switch     string `json:"switch" mapstructure:"switch"`
		Host       string `json:"host" mapstructure:"host"`
		Controller string `json:"controller" mapstructure:"controller"`
		Link       string `json:"link" mapstructure:"link"`
		IPBase     string `json:"ipbase" mapstructure:"ipbase"`
	}

	// ChannelConfig configures node shells.
	ChannelConfig struct {
		PromptTimeout time.Duration `json:"prompt_timeout" mapstructure:"prompt_timeout"`
	}

	// ContainerConfig configures container hosts.
	ContainerConfig struct {
		// Engine is "docker", "podman", "isula" or empty for auto-detection.
		Engine string `json:"engine" mapstructure:"engine"`
		Image  string `json:"image" mapstructure:"image"`
	}

	// ClusterConfig configures cluster mode.
	ClusterConfig struct {
		Placement Placement `json:"placement" mapstructure:"placement"`
	}

	// SSHConfig configures the remote console.
	SSHConfig struct {
		Host string `json:"host" mapstructure:"host"`
		Port int    `json:"port" mapstructure:"port"`
	}
)

func (v Verbosity) String() string { return string(v) }

// IsValid reports whether v names a known level.
func (v Verbosity) IsValid() (bool, []error) {
	switch v {
	case VerbosityDebug, VerbosityInfo, VerbosityOutput, VerbosityWarning,
		VerbosityWarn, VerbosityError, VerbosityCritical:
		return true, nil
	default:
		return false, []error{&InvalidVerbosityError{Value: v}}
	}
}

// Verbosities lists the accepted level names.
func Verbosities() []Verbosity {
	return []Verbosity{
		VerbosityDebug, VerbosityInfo, VerbosityOutput, VerbosityWarning,
		VerbosityWarn, VerbosityError, VerbosityCritical,
	}
}

func (e *InvalidVerbosityError) Error() string {
	return fmt.Sprintf("invalid verbosity %q (valid: debug, info, output, warning, warn, error, critical)", e.Value)
}

func (e *InvalidVerbosityError) Unwrap() error { return ErrInvalidVerbosity }

func (p Placement) String() string { return string(p) }

// IsValid reports whether p is block or random.
func (p Placement) IsValid() (bool, []error) {
	switch p {
	case PlacementBlock, PlacementRandom:
		return true, nil
	default:
		return false, []error{&InvalidPlacementError{Value: p}}
	}
}

func (e *InvalidPlacementError) Error() string {
	return fmt.Sprintf("invalid placement %q (valid: block, random)", e.Value)
}

func (e *InvalidPlacementError) Unwrap() error { return ErrInvalidPlacement }

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			Topo:       "minimal",
			Switch:     "default",
			Host:       "default",
			Controller: "default",
			Link:       "default",
			IPBase:     DefaultIPBase,
		},
		Verbosity: VerbosityInfo,
		Channel:   ChannelConfig{PromptTimeout: DefaultPromptTimeout},
		Container: ContainerConfig{Image: DefaultImage},
		Cluster:   ClusterConfig{Placement: PlacementBlock},
		SSH:       SSHConfig{Host: "127.0.0.1", Port: 2222},
	}
}
