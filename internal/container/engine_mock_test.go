// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"testing"
)

type (
	// mockCommandRecorder records engine invocations and replays canned
	// output through the helper process.
	mockCommandRecorder struct {
		mu          sync.Mutex
		invocations [][]string
		exitCode    int
		stdout      string
	}
)

func (m *mockCommandRecorder) commandFunc(t *testing.T) ExecCommandFunc {
	t.Helper()
	return func(_ context.Context, name string, args ...string) *exec.Cmd {
		m.mu.Lock()
		m.invocations = append(m.invocations, append([]string{name}, args...))
		m.mu.Unlock()

		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.Command(os.Args[0], cs...) //nolint:noctx // helper process
		cmd.Env = []string{
			"GO_WANT_HELPER_PROCESS=1",
			"GO_HELPER_EXIT_CODE=" + strconv.Itoa(m.exitCode),
			"GO_HELPER_STDOUT=" + m.stdout,
		}
		return cmd
	}
}

func (m *mockCommandRecorder) last() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.invocations) == 0 {
		return nil
	}
	return m.invocations[len(m.invocations)-1]
}

func (m *mockCommandRecorder) assertArgsContain(t *testing.T, want ...string) {
	t.Helper()
	got := strings.Join(m.last(), " ")
	for _, w := range want {
		if !strings.Contains(got, w) {
			t.Errorf("expected args to contain %q, got: %s", w, got)
		}
	}
}

// TestHelperProcess stands in for the engine binary.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	fmt.Fprint(os.Stdout, os.Getenv("GO_HELPER_STDOUT"))
	code, _ := strconv.Atoi(os.Getenv("GO_HELPER_EXIT_CODE"))
	os.Exit(code)
}
