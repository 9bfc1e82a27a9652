// SPDX-License-Identifier: MPL-2.0

package sshserver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// StateCreated indicates Start has not been called.
	StateCreated State = iota
	// StateStarting indicates Start is binding the listener.
	StateStarting
	// StateRunning indicates the server accepts connections.
	StateRunning
	// StateStopping indicates Stop is draining connections.
	StateStopping
	// StateStopped is terminal.
	StateStopped
	// StateFailed is terminal: the server failed to start or serve.
	StateFailed
)

type (
	// State is the lifecycle state of a Server.
	State int32

	// lifecycle is the single-use state machine behind Server.
	lifecycle struct {
		state     atomic.Int32
		mu        sync.Mutex
		ctx       context.Context
		cancel    context.CancelFunc
		wg        sync.WaitGroup
		startedCh chan struct{}
		errCh     chan error
		lastErr   error
	}
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is Stopped or Failed.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

func newLifecycle() *lifecycle {
	l := &lifecycle{
		startedCh: make(chan struct{}),
		errCh:     make(chan error, 1),
	}
	l.state.Store(int32(StateCreated))
	return l
}

func (l *lifecycle) current() State { return State(l.state.Load()) }

func (l *lifecycle) lastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// toStarting moves Created to Starting. A canceled ctx fails the server
// before anything is bound.
func (l *lifecycle) toStarting(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		l.fail(fmt.Errorf("context cancelled before start: %w", err))
		return l.lastError()
	}
	if !l.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return fmt.Errorf("cannot start server in state %s", l.current())
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	return nil
}

func (l *lifecycle) toRunning() {
	if l.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		close(l.startedCh)
	}
}

func (l *lifecycle) fail(err error) {
	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()
	l.state.Store(int32(StateFailed))
	if l.cancel != nil {
		l.cancel()
	}
	l.sendError(err)
}

// toStopping reports whether the caller owns the shutdown.
func (l *lifecycle) toStopping() bool {
	for {
		cur := l.current()
		switch cur {
		case StateCreated:
			if l.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
				return false
			}
		case StateStarting, StateRunning:
			if l.state.CompareAndSwap(int32(cur), int32(StateStopping)) {
				if l.cancel != nil {
					l.cancel()
				}
				return true
			}
		default:
			return false
		}
	}
}

func (l *lifecycle) sendError(err error) {
	select {
	case l.errCh <- err:
	default:
	}
}
