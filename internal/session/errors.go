// SPDX-License-Identifier: MPL-2.0

package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoControllerAvailable is returned when the selected switch needs a
	// controller and none was requested or found.
	ErrNoControllerAvailable = errors.New("no controller available")
	// ErrConflictingMode is returned when mutually exclusive network modes
	// are requested together.
	ErrConflictingMode = errors.New("conflicting network modes")
)

type (
	// NoControllerAvailableError names the switch that needs a controller.
	NoControllerAvailableError struct {
		Switch string
	}

	// ConflictingModeError lists the modes requested together.
	ConflictingModeError struct {
		Modes []string
	}
)

func (e *NoControllerAvailableError) Error() string {
	return fmt.Sprintf("could not find a default controller for switch %s", e.Switch)
}

func (e *NoControllerAvailableError) Unwrap() error { return ErrNoControllerAvailable }

func (e *ConflictingModeError) Error() string {
	return fmt.Sprintf("please specify %s, not both", strings.Join(e.Modes, " OR "))
}

func (e *ConflictingModeError) Unwrap() error { return ErrConflictingMode }
