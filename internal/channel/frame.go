// SPDX-License-Identifier: MPL-2.0

package channel

import (
	"bytes"
	"fmt"
	"strconv"
)

const (
	// DefaultSentinel terminates every prompt frame.
	DefaultSentinel byte = 0x7f

	// frameStart opens a prompt frame; the exit status follows.
	frameStart byte = 0x1e
	// pidMarker prefixes the job pid printed after background commands.
	pidMarker byte = 0x1d
)

// PromptString returns the PS1 value that makes the shell print a status
// frame terminated by sentinel.
func PromptString(sentinel byte) string {
	return fmt.Sprintf("%c$?%c", frameStart, sentinel)
}

// ShellArgv returns the argv that starts an interactive bash for node with
// the framed prompt, no rc files, no line editing and no history.
// Launchers (namespaces, containers, ssh) prefix it.
func ShellArgv(node string, sentinel byte) []string {
	return []string{
		"env", "PS1=" + PromptString(sentinel), "PS2=", "HISTFILE=",
		"bash", "--norc", "--noprofile", "--noediting", "-is", "nestnet:" + node,
	}
}

// parseFrame reports whether buf ends with a complete status frame and, if
// so, where the frame starts and which status it carries.
func parseFrame(buf []byte, sentinel byte) (start, status int, ok bool) {
	n := len(buf)
	if n < 3 || buf[n-1] != sentinel {
		return 0, 0, false
	}
	start = bytes.LastIndexByte(buf[:n-1], frameStart)
	if start < 0 || start == n-2 {
		return 0, 0, false
	}
	status, err := strconv.Atoi(string(buf[start+1 : n-1]))
	if err != nil || status < 0 {
		return 0, 0, false
	}
	return start, status, true
}

// extractPid removes the first pid marker line from buf and returns the pid.
func extractPid(buf []byte) ([]byte, int, bool) {
	i := bytes.IndexByte(buf, pidMarker)
	if i < 0 {
		return buf, 0, false
	}
	end := bytes.IndexByte(buf[i:], '\n')
	if end < 0 {
		return buf, 0, false
	}
	end += i
	digits := bytes.TrimRight(buf[i+1:end], "\r")
	pid, err := strconv.Atoi(string(digits))
	if err != nil {
		return buf, 0, false
	}
	return append(buf[:i], buf[end+1:]...), pid, true
}

// normalize converts terminal line endings to plain newlines.
func normalize(b []byte) []byte {
	return bytes.ReplaceAll(b, []byte("\r\n"), []byte("\n"))
}
