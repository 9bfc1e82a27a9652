// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates user documents against embedded CUE schemas.
//
// Every document format nestnet reads (CUE, JSON, YAML, TOML) ends up as a
// cue.Value that is unified with a closed schema definition before any Go
// code looks at it:
//
//	v, err := cueutil.Unify(ctx, schema, "#Config", doc, cueutil.WithFilename(path))
//	if err != nil {
//		return err // "<file>: <json-path>: <message>"
//	}
package cueutil
