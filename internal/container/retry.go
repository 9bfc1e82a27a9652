// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// RetryWithBackoff retries op up to maxAttempts times with exponential
// backoff, stopping early when ctx is done or op reports a permanent error.
func RetryWithBackoff(
	ctx context.Context,
	maxAttempts int,
	baseBackoff time.Duration,
	op func(attempt int) (retry bool, err error),
) error {
	var lastErr error
	for attempt := range maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry aborted: %w", ctx.Err())
			case <-time.After(baseBackoff * time.Duration(1<<(attempt-1))):
			}
		}
		retry, err := op(attempt)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// IsTransientError reports whether a container start failure is worth
// retrying. Cancellation never is.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 125 {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"OCI runtime error", "ping_group_range", "error creating overlay mount", "connection refused"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// StartWithRetry runs RunDetached, retrying transient failures.
func StartWithRetry(ctx context.Context, e Engine, opts RunOptions, attempts int) (string, error) {
	var id string
	err := RetryWithBackoff(ctx, attempts, 500*time.Millisecond, func(int) (bool, error) {
		var err error
		id, err = e.RunDetached(ctx, opts)
		return IsTransientError(err), err
	})
	return id, err
}
