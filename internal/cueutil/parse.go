// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"

	"cuelang.org/go/cue"
)

// Compile compiles CUE (or JSON, which is valid CUE) source in ctx.
func Compile(ctx *cue.Context, data []byte, opts ...Option) (cue.Value, error) {
	o := applyOptions(opts)
	if err := CheckFileSize(data, o.maxFileSize, o.filename); err != nil {
		return cue.Value{}, err
	}
	v := ctx.CompileBytes(data, cue.Filename(o.filename))
	if v.Err() != nil {
		return cue.Value{}, FormatError(v.Err(), o.filename)
	}
	return v, nil
}

// Encode converts a decoded Go value (from YAML or TOML) into a cue.Value.
func Encode(ctx *cue.Context, doc any, opts ...Option) (cue.Value, error) {
	o := applyOptions(opts)
	v := ctx.Encode(doc)
	if v.Err() != nil {
		return cue.Value{}, FormatError(v.Err(), o.filename)
	}
	return v, nil
}

// Unify compiles schema, looks up definition and unifies it with doc.
// The result is validated; pass WithConcrete(true) when every field must be
// set.
func Unify(ctx *cue.Context, schema []byte, definition string, doc cue.Value, opts ...Option) (cue.Value, error) {
	o := applyOptions(opts)

	schemaValue := ctx.CompileBytes(schema)
	if schemaValue.Err() != nil {
		return cue.Value{}, fmt.Errorf("internal error: failed to compile schema: %w", schemaValue.Err())
	}
	root := schemaValue.LookupPath(cue.ParsePath(definition))
	if root.Err() != nil {
		return cue.Value{}, fmt.Errorf("internal error: schema definition %s not found: %w", definition, root.Err())
	}

	unified := root.Unify(doc)
	if err := unified.Validate(cue.Concrete(o.concrete)); err != nil {
		return cue.Value{}, FormatError(err, o.filename)
	}
	return unified, nil
}

// Decode decodes a validated value into T.
func Decode[T any](v cue.Value, opts ...Option) (*T, error) {
	o := applyOptions(opts)
	var out T
	if err := v.Decode(&out); err != nil {
		return nil, FormatError(err, o.filename)
	}
	return &out, nil
}
