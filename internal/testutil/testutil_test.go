// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"testing"
	"time"
)

func TestFakeClock(t *testing.T) {
	t.Parallel()

	c := NewFakeClock(time.Time{})
	start := c.Now()
	if start.IsZero() {
		t.Fatal("zero initial time should select the reference time")
	}
	c.Advance(90 * time.Second)
	if got := c.Since(start); got != 90*time.Second {
		t.Errorf("Since() = %s, want 1m30s", got)
	}
	at := time.Date(2030, time.June, 1, 0, 0, 0, 0, time.UTC)
	c.Set(at)
	if !c.Now().Equal(at) {
		t.Errorf("Now() = %s, want %s", c.Now(), at)
	}
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	path := WriteFile(t, t.TempDir(), "a/b/topo.yaml", "hosts: {}\n")
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "hosts: {}\n" {
		t.Errorf("ReadFile() = %q, %v", data, err)
	}
}

//nolint:paralleltest // t.Setenv
func TestContainerParallelism(t *testing.T) {
	t.Setenv(ContainerParallelEnv, "3")
	if got := containerParallelism(); got != 3 {
		t.Errorf("containerParallelism() = %d, want 3", got)
	}
	t.Setenv(ContainerParallelEnv, "zero")
	if got := containerParallelism(); got < 1 || got > 2 {
		t.Errorf("containerParallelism() with a bad value = %d, want 1 or 2", got)
	}
}
