// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownComponent is returned when a key is absent from its table.
	ErrUnknownComponent = errors.New("unknown component")
	// ErrInvalidSpec is returned when a component spec string cannot be
	// mapped onto a factory.
	ErrInvalidSpec = errors.New("invalid component spec")
	// ErrKindMismatch is returned when a factory is registered through a
	// typed helper of a different kind.
	ErrKindMismatch = errors.New("component kind mismatch")
)

type (
	// UnknownComponentError reports a key missing from a kind's table.
	UnknownComponentError struct {
		Kind  Kind
		Key   string
		Known []string
	}

	// InvalidSpecError reports a spec string that could not be applied.
	InvalidSpecError struct {
		Kind   Kind
		Spec   string
		Reason string
	}

	// KindMismatchError reports a factory registered in the wrong table.
	KindMismatchError struct {
		Want Kind
		Got  Kind
		Key  string
	}
)

func (e *UnknownComponentError) Error() string {
	return fmt.Sprintf("unknown %s %q (known: %s)", e.Kind, e.Key, strings.Join(e.Known, ", "))
}

// Unwrap returns ErrUnknownComponent for errors.Is compatibility.
func (e *UnknownComponentError) Unwrap() error { return ErrUnknownComponent }

func (e *InvalidSpecError) Error() string {
	return fmt.Sprintf("invalid %s spec %q: %s", e.Kind, e.Spec, e.Reason)
}

// Unwrap returns ErrInvalidSpec for errors.Is compatibility.
func (e *InvalidSpecError) Unwrap() error { return ErrInvalidSpec }

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("cannot register %s factory as %s %q", e.Got, e.Want, e.Key)
}

// Unwrap returns ErrKindMismatch for errors.Is compatibility.
func (e *KindMismatchError) Unwrap() error { return ErrKindMismatch }
