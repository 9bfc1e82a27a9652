// SPDX-License-Identifier: MPL-2.0

package custom

import (
	"cuelang.org/go/cue"

	"github.com/nestnet/nestnet/internal/cueutil"
)

// Validator checks a resolved session view against a CUE constraint.
type Validator struct {
	ctx        *cue.Context
	constraint cue.Value
	source     string
}

// Source returns the file the constraint came from.
func (v *Validator) Source() string {
	return v.source
}

// Validate unifies view with the constraint. Every field the constraint
// mentions must end up concrete.
func (v *Validator) Validate(view any) error {
	doc, err := cueutil.Encode(v.ctx, view, cueutil.WithFilename(v.source))
	if err != nil {
		return &ValidationError{Source: v.source, Cause: err}
	}
	unified := v.constraint.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Source: v.source, Cause: cueutil.FormatError(err, v.source)}
	}
	return nil
}
