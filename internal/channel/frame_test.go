// SPDX-License-Identifier: MPL-2.0

package channel

import (
	"slices"
	"testing"
)

func TestParseFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		in         string
		wantOK     bool
		wantStart  int
		wantStatus int
	}{
		{name: "bare prompt", in: "\x1e0\x7f", wantOK: true, wantStart: 0, wantStatus: 0},
		{name: "output and status", in: "hello\r\n\x1e127\x7f", wantOK: true, wantStart: 7, wantStatus: 127},
		{name: "no sentinel", in: "hello\r\n\x1e0", wantOK: false},
		{name: "sentinel without frame", in: "abc\x7f", wantOK: false},
		{name: "empty status", in: "abc\x1e\x7f", wantOK: false},
		{name: "non numeric status", in: "\x1eab\x7f", wantOK: false},
		{name: "earlier separator in output", in: "a\x1eb\n\x1e2\x7f", wantOK: true, wantStart: 4, wantStatus: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			start, status, ok := parseFrame([]byte(tt.in), DefaultSentinel)
			if ok != tt.wantOK {
				t.Fatalf("parseFrame(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			}
			if ok && (start != tt.wantStart || status != tt.wantStatus) {
				t.Errorf("parseFrame(%q) = (%d, %d), want (%d, %d)", tt.in, start, status, tt.wantStart, tt.wantStatus)
			}
		})
	}
}

func TestExtractPid(t *testing.T) {
	t.Parallel()

	rest, pid, ok := extractPid([]byte("[1] 4242\r\n\x1d4242\r\nmore"))
	if !ok || pid != 4242 {
		t.Fatalf("extractPid() = %d, %v", pid, ok)
	}
	if got := string(rest); got != "[1] 4242\r\nmore" {
		t.Errorf("rest = %q", got)
	}

	if _, _, ok := extractPid([]byte("\x1d42")); ok {
		t.Error("incomplete marker line was accepted")
	}
}

func TestShellArgv(t *testing.T) {
	t.Parallel()

	argv := ShellArgv("h1", DefaultSentinel)
	if !slices.Contains(argv, "PS1=\x1e$?\x7f") {
		t.Errorf("argv %q lacks the framed prompt", argv)
	}
	if argv[len(argv)-1] != "nestnet:h1" {
		t.Errorf("argv %q does not name the node", argv)
	}
	if !slices.Contains(argv, "--noediting") || !slices.Contains(argv, "--norc") {
		t.Errorf("argv %q does not disable rc files and line editing", argv)
	}
}
