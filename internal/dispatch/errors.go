// SPDX-License-Identifier: MPL-2.0

package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownTest is returned when a test name matches neither a
	// built-in nor a network operation.
	ErrUnknownTest = errors.New("unknown test")
	// ErrMacroDepth is returned when macro tests nest too deeply.
	ErrMacroDepth = errors.New("test macros nested too deeply")
)

// UnknownTestError names the unresolved test and the known built-ins.
type UnknownTestError struct {
	Name  string
	Known []string
}

func (e *UnknownTestError) Error() string {
	return fmt.Sprintf("unknown test %q (built-in tests: %s)", e.Name, strings.Join(e.Known, ", "))
}

// Unwrap returns ErrUnknownTest for errors.Is compatibility.
func (e *UnknownTestError) Unwrap() error { return ErrUnknownTest }
