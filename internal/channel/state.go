// SPDX-License-Identifier: MPL-2.0

package channel

const (
	// StateIdle means no shell has been started.
	StateIdle State = iota
	// StateStarting means the shell was spawned and the first prompt has
	// not been seen yet.
	StateStarting
	// StateReady means the shell waits for a command.
	StateReady
	// StateBusy means a command was sent and its frame has not been seen.
	StateBusy
	// StateClosed is terminal.
	StateClosed
)

// State is the lifecycle state of a Channel.
type State int32

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
