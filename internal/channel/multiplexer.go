// SPDX-License-Identifier: MPL-2.0

package channel

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// waitSlice bounds a single poll in WaitFor so cancellation is observed.
const waitSlice = 100 * time.Millisecond

type (
	// Handle is a readable descriptor registered with a Multiplexer.
	Handle int

	// Multiplexer maps handles to their channels and waits on all of them
	// with one poll call.
	//
	// Waiters hold a read lock for the duration of a poll. Register and
	// Unregister first write to an internal wake pipe, which makes every
	// in-flight poll return, and then take the write lock. A waiter can
	// therefore never report a handle whose mapping was removed.
	Multiplexer struct {
		mu     sync.RWMutex
		chans  map[Handle]*Channel
		wakeR  int
		wakeW  int
		closed atomic.Bool
	}
)

// NewMultiplexer creates an empty multiplexer.
func NewMultiplexer() (*Multiplexer, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("create wake pipe: %w", err)
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return nil, fmt.Errorf("configure wake pipe: %w", err)
		}
	}
	return &Multiplexer{
		chans: map[Handle]*Channel{},
		wakeR: fds[0],
		wakeW: fds[1],
	}, nil
}

// Register maps h to c.
func (m *Multiplexer) Register(h Handle, c *Channel) error {
	m.wake()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drain()
	if m.closed.Load() {
		return errors.New("multiplexer closed")
	}
	m.chans[h] = c
	return nil
}

// Unregister removes h. Unknown handles are ignored.
func (m *Multiplexer) Unregister(h Handle) {
	m.wake()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drain()
	delete(m.chans, h)
}

// Lookup returns the channel registered under h.
func (m *Multiplexer) Lookup(h Handle) (*Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chans[h]
	return c, ok
}

// Handles returns the registered handles in ascending order.
func (m *Multiplexer) Handles() []Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.chans))
}

// Len returns the number of registered handles.
func (m *Multiplexer) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chans)
}

// WaitAny blocks until at least one registered handle is readable, the
// timeout expires or the set of handles changes. A negative timeout waits
// without bound. The returned handles were registered when the wait ended;
// an empty result is not an error.
func (m *Multiplexer) WaitAny(timeout time.Duration) ([]Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed.Load() {
		return nil, errors.New("multiplexer closed")
	}
	return m.poll(slices.Collect(maps.Keys(m.chans)), timeout)
}

// WaitFor blocks until h is readable or ctx is done.
func (m *Multiplexer) WaitFor(ctx context.Context, h Handle) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		slice := waitSlice
		if deadline, ok := ctx.Deadline(); ok {
			slice = min(slice, time.Until(deadline))
		}
		ready, err := m.waitOne(h, max(slice, 0))
		if err != nil {
			return err
		}
		if ready {
			return nil
		}
	}
}

// Close releases the wake pipe. Registered channels are not closed.
func (m *Multiplexer) Close() error {
	if m.closed.Load() {
		return nil
	}
	m.wake()
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	clear(m.chans)
	return errors.Join(unix.Close(m.wakeR), unix.Close(m.wakeW))
}

func (m *Multiplexer) waitOne(h Handle, timeout time.Duration) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.chans[h]; !ok || m.closed.Load() {
		return false, ErrNotRegistered
	}
	ready, err := m.poll([]Handle{h}, timeout)
	return len(ready) > 0, err
}

// poll must be called with the read lock held.
func (m *Multiplexer) poll(handles []Handle, timeout time.Duration) ([]Handle, error) {
	fds := make([]unix.PollFd, 0, len(handles)+1)
	fds = append(fds, unix.PollFd{Fd: int32(m.wakeR), Events: unix.POLLIN})
	for _, h := range handles {
		fds = append(fds, unix.PollFd{Fd: int32(h), Events: unix.POLLIN})
	}

	deadline := time.Now().Add(timeout)
	for {
		ms := -1
		if timeout >= 0 {
			ms = int(time.Until(deadline).Milliseconds())
			if ms < 0 {
				ms = 0
			}
		}
		_, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("poll: %w", err)
		}
		break
	}

	var ready []Handle
	for _, fd := range fds[1:] {
		if fd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			ready = append(ready, Handle(fd.Fd))
		}
	}
	return ready, nil
}

func (m *Multiplexer) wake() {
	if m.closed.Load() {
		return
	}
	_, _ = unix.Write(m.wakeW, []byte{0})
}

// drain must be called with the write lock held.
func (m *Multiplexer) drain() {
	if m.closed.Load() {
		return
	}
	var buf [64]byte
	for {
		n, err := unix.Read(m.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}
