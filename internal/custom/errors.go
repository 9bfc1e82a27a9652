// SPDX-License-Identifier: MPL-2.0

package custom

import (
	"errors"
	"fmt"
)

var (
	// ErrCustomFileNotFound is returned when a --custom path does not exist.
	ErrCustomFileNotFound = errors.New("custom file not found")
	// ErrCustomFileInvalid is returned when a file fails to parse or does
	// not match the schema.
	ErrCustomFileInvalid = errors.New("invalid custom file")
	// ErrValidationFailed is returned when the custom validator rejects a
	// session.
	ErrValidationFailed = errors.New("custom validation failed")
)

type (
	// FileNotFoundError names the missing file.
	FileNotFoundError struct {
		Path string
	}

	// InvalidFileError reports why a file was rejected.
	InvalidFileError struct {
		Path  string
		Cause error
	}

	// ValidationError carries the constraint failure.
	ValidationError struct {
		Source string
		Cause  error
	}
)

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("could not find custom file: %s", e.Path)
}

func (e *FileNotFoundError) Unwrap() error { return ErrCustomFileNotFound }

func (e *InvalidFileError) Error() string {
	return fmt.Sprintf("invalid custom file %s: %v", e.Path, e.Cause)
}

func (e *InvalidFileError) Unwrap() []error { return []error{ErrCustomFileInvalid, e.Cause} }

func (e *ValidationError) Error() string {
	return fmt.Sprintf("session rejected by validator from %s: %v", e.Source, e.Cause)
}

func (e *ValidationError) Unwrap() []error { return []error{ErrValidationFailed, e.Cause} }
