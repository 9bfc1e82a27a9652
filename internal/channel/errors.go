// SPDX-License-Identifier: MPL-2.0

package channel

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning is returned when Start is called on a channel that
	// is not idle.
	ErrAlreadyRunning = errors.New("shell already running")
	// ErrChannelStart is returned when a shell could not be brought to its
	// first prompt.
	ErrChannelStart = errors.New("channel start failed")
	// ErrChannelBusy is returned when a command is sent before the previous
	// one completed.
	ErrChannelBusy = errors.New("channel busy")
	// ErrChannelFault is returned on read or write failures; the channel is
	// closed when it is reported.
	ErrChannelFault = errors.New("channel fault")
	// ErrChannelClosed is returned when using a channel that is not open.
	ErrChannelClosed = errors.New("channel closed")
	// ErrNotRegistered is returned when waiting on a handle that is not (or
	// no longer) registered with the multiplexer.
	ErrNotRegistered = errors.New("handle not registered")
)

type (
	// AlreadyRunningError reports a second Start on the same node.
	AlreadyRunningError struct {
		Node  string
		State State
	}

	// StartError reports a shell that failed to reach its first prompt.
	StartError struct {
		Node  string
		Cause error
	}

	// BusyError reports a Send while a command is still running.
	BusyError struct {
		Node    string
		Running string
	}

	// FaultError reports an I/O failure on the terminal.
	FaultError struct {
		Node  string
		Op    string
		Cause error
	}

	// ClosedError reports an operation on a channel that is not open.
	ClosedError struct {
		Node  string
		State State
	}
)

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("node %s: shell already %s", e.Node, e.State)
}

// Unwrap returns ErrAlreadyRunning for errors.Is compatibility.
func (e *AlreadyRunningError) Unwrap() error { return ErrAlreadyRunning }

func (e *StartError) Error() string {
	return fmt.Sprintf("node %s: start shell: %v", e.Node, e.Cause)
}

// Unwrap returns ErrChannelStart and the cause.
func (e *StartError) Unwrap() []error { return []error{ErrChannelStart, e.Cause} }

func (e *BusyError) Error() string {
	return fmt.Sprintf("node %s: channel busy running %q", e.Node, e.Running)
}

// Unwrap returns ErrChannelBusy for errors.Is compatibility.
func (e *BusyError) Unwrap() error { return ErrChannelBusy }

func (e *FaultError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.Node, e.Op, e.Cause)
}

// Unwrap returns ErrChannelFault and the cause.
func (e *FaultError) Unwrap() []error { return []error{ErrChannelFault, e.Cause} }

func (e *ClosedError) Error() string {
	return fmt.Sprintf("node %s: channel is %s", e.Node, e.State)
}

// Unwrap returns ErrChannelClosed for errors.Is compatibility.
func (e *ClosedError) Unwrap() error { return ErrChannelClosed }
