// SPDX-License-Identifier: MPL-2.0

package netemu

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownNode is returned when a name matches no node.
	ErrUnknownNode = errors.New("unknown node")
	// ErrNoHosts is returned by tests that need hosts on a network without
	// any.
	ErrNoHosts = errors.New("network has too few hosts")
	// ErrCommandFailed is returned when a collaborator command fails.
	ErrCommandFailed = errors.New("command failed")
	// ErrNotConnected is returned when switches do not connect in time.
	ErrNotConnected = errors.New("switches not connected")
	// ErrControllerUnreachable is returned when a remote controller does
	// not accept connections.
	ErrControllerUnreachable = errors.New("controller unreachable")
)

type (
	// UnknownNodeError names the missing node.
	UnknownNodeError struct {
		Name string
	}

	// CommandError carries a failed command and its output.
	CommandError struct {
		Server string
		Argv   []string
		Output string
		Cause  error
	}
)

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown node %q", e.Name)
}

func (e *UnknownNodeError) Unwrap() error { return ErrUnknownNode }

func (e *CommandError) Error() string {
	where := ""
	if e.Server != "" {
		where = " on " + e.Server
	}
	msg := fmt.Sprintf("%v%s: %v", e.Argv, where, e.Cause)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *CommandError) Unwrap() []error { return []error{ErrCommandFailed, e.Cause} }
