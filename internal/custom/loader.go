// SPDX-License-Identifier: MPL-2.0

package custom

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/nestnet/nestnet/internal/cueutil"
	"github.com/nestnet/nestnet/internal/topo"
	"github.com/nestnet/nestnet/pkg/registry"
)

//go:embed custom_schema.cue
var customSchema []byte

type (
	// TestRegistrar accepts macro tests.
	TestRegistrar interface {
		RegisterMacro(name string, specs []string)
	}

	// PluginOpener loads a compiled plugin file.
	PluginOpener func(path string) (registry.Plugin, error)

	// Defaults replaces the default component keys and IP base. Empty
	// fields leave the current value.
	Defaults struct {
		Topo       string `json:"topo"`
		Switch     string `json:"switch"`
		Host       string `json:"host"`
		Controller string `json:"controller"`
		Link       string `json:"link"`
		IPBase     string `json:"ipbase"`
	}

	// Result summarizes what a Load call changed beyond the registry.
	Result struct {
		// Files lists the loaded paths in order.
		Files []string
		// Defaults is the merge of every file's defaults block.
		Defaults Defaults
		// Validator is the last validator defined, or nil.
		Validator *Validator
		// Tests lists the macro test names defined.
		Tests []string
	}

	// Loader applies customization files to a registry.
	Loader struct {
		registry *registry.Registry
		tests    TestRegistrar
		logger   *log.Logger
		open     PluginOpener
	}

	// LoaderOption configures a Loader.
	LoaderOption func(*Loader)

	entry struct {
		Base     string                    `json:"base"`
		Params   map[string]any            `json:"params"`
		Hosts    map[string]map[string]any `json:"hosts"`
		Switches map[string]map[string]any `json:"switches"`
		Links    []topo.LinkSpec           `json:"links"`
	}
)

// WithTests routes macro tests to tr.
func WithTests(tr TestRegistrar) LoaderOption {
	return func(l *Loader) { l.tests = tr }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// WithPluginOpener replaces the Go plugin loader.
func WithPluginOpener(open PluginOpener) LoaderOption {
	return func(l *Loader) { l.open = open }
}

// NewLoader returns a loader registering into r.
func NewLoader(r *registry.Registry, opts ...LoaderOption) *Loader {
	l := &Loader{registry: r, logger: log.Default(), open: openPlugin}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load applies each file in order. Later files override earlier ones.
func (l *Loader) Load(ctx context.Context, paths []string) (*Result, error) {
	res := &Result{}
	cctx := cuecontext.New()
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return nil, &FileNotFoundError{Path: path}
		}
		l.logger.Debug("loading custom file", "path", path)

		if strings.EqualFold(filepath.Ext(path), ".so") {
			if err := l.loadPlugin(path); err != nil {
				return nil, err
			}
		} else if err := l.loadDocument(cctx, path, res); err != nil {
			return nil, err
		}
		res.Files = append(res.Files, path)
	}
	return res, nil
}

func (l *Loader) loadPlugin(path string) error {
	p, err := l.open(path)
	if err != nil {
		return &InvalidFileError{Path: path, Cause: err}
	}
	if err := l.registry.Use(p); err != nil {
		return &InvalidFileError{Path: path, Cause: err}
	}
	return nil
}

func (l *Loader) loadDocument(cctx *cue.Context, path string, res *Result) error {
	doc, err := readDocument(cctx, path)
	if err != nil {
		return &InvalidFileError{Path: path, Cause: err}
	}
	unified, err := cueutil.Unify(cctx, customSchema, "#Custom", doc, cueutil.WithFilename(path))
	if err != nil {
		return &InvalidFileError{Path: path, Cause: err}
	}

	for _, kind := range []registry.Kind{
		registry.KindSwitch, registry.KindHost, registry.KindController, registry.KindLink, registry.KindTopology,
	} {
		entries, err := decodeField[map[string]entry](unified, kind.Table(), path)
		if err != nil {
			return err
		}
		if entries == nil {
			continue
		}
		if err := l.registerEntries(kind, *entries); err != nil {
			return &InvalidFileError{Path: path, Cause: err}
		}
	}

	tests, err := decodeField[map[string][]string](unified, "tests", path)
	if err != nil {
		return err
	}
	if tests != nil {
		for _, name := range slices.Sorted(maps.Keys(*tests)) {
			if l.tests == nil {
				return &InvalidFileError{Path: path, Cause: fmt.Errorf("test %q defined but tests are not accepted here", name)}
			}
			l.tests.RegisterMacro(name, (*tests)[name])
			res.Tests = append(res.Tests, name)
		}
	}

	defaults, err := decodeField[Defaults](unified, "defaults", path)
	if err != nil {
		return err
	}
	res.Defaults = res.Defaults.overlay(defaults)

	if v := doc.LookupPath(cue.ParsePath("validate")); v.Exists() {
		validator, err := newValidator(cctx, v, path)
		if err != nil {
			return &InvalidFileError{Path: path, Cause: err}
		}
		res.Validator = validator
	}
	return nil
}

// registerEntries registers specializations. An entry may build on another
// entry of the same file, so entries are retried until no progress is made.
func (l *Loader) registerEntries(kind registry.Kind, entries map[string]entry) error {
	pending := slices.Sorted(maps.Keys(entries))
	for len(pending) > 0 {
		var (
			next    []string
			lastErr error
		)
		for _, key := range pending {
			f, err := l.factoryFor(kind, key, entries[key])
			if dependsOnPending(err, key, entries) {
				next = append(next, key)
				lastErr = err
				continue
			}
			if err != nil {
				return fmt.Errorf("%s %q: %w", kind, key, err)
			}
			l.registry.Register(kind, key, f)
			l.logger.Debug("registered custom component", "kind", kind, "key", key, "impl", f.Name)
		}
		if len(next) == len(pending) {
			return fmt.Errorf("%s %q: %w", kind, next[0], lastErr)
		}
		pending = next
	}
	return nil
}

// dependsOnPending reports whether err is an unknown base defined by another
// entry of the same table.
func dependsOnPending(err error, key string, entries map[string]entry) bool {
	var unknown *registry.UnknownComponentError
	if !errors.As(err, &unknown) || unknown.Key == key {
		return false
	}
	_, defined := entries[unknown.Key]
	return defined
}

func (l *Loader) factoryFor(kind registry.Kind, key string, e entry) (*registry.Factory, error) {
	if e.Base == "" {
		if kind != registry.KindTopology {
			return nil, errors.New("base is required")
		}
		return topo.Literal(key, topo.Spec{Hosts: e.Hosts, Switches: e.Switches, Links: e.Links}), nil
	}
	base, err := l.registry.ResolveSpec(kind, e.Base)
	if err != nil {
		return nil, err
	}
	return registry.Specialize(base, e.Params), nil
}

func (d Defaults) overlay(o *Defaults) Defaults {
	if o == nil {
		return d
	}
	pick := func(a, b string) string {
		if b != "" {
			return b
		}
		return a
	}
	return Defaults{
		Topo:       pick(d.Topo, o.Topo),
		Switch:     pick(d.Switch, o.Switch),
		Host:       pick(d.Host, o.Host),
		Controller: pick(d.Controller, o.Controller),
		Link:       pick(d.Link, o.Link),
		IPBase:     pick(d.IPBase, o.IPBase),
	}
}

// readDocument turns a file of any supported format into a cue.Value.
func readDocument(cctx *cue.Context, path string) (cue.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, err
	}
	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return cue.Value{}, err
	}

	var doc map[string]any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue", ".json":
		return cueutil.Compile(cctx, data, cueutil.WithFilename(path))
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return cue.Value{}, fmt.Errorf("%s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &doc); err != nil {
			return cue.Value{}, fmt.Errorf("%s: %w", path, err)
		}
	default:
		return cue.Value{}, fmt.Errorf("unsupported file type %q (use .cue, .json, .yaml, .toml or .so)", ext)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return cueutil.Encode(cctx, doc, cueutil.WithFilename(path))
}

func decodeField[T any](v cue.Value, field, path string) (*T, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	out, err := cueutil.Decode[T](fv, cueutil.WithFilename(path))
	if err != nil {
		return nil, &InvalidFileError{Path: path, Cause: err}
	}
	return out, nil
}

func newValidator(cctx *cue.Context, v cue.Value, path string) (*Validator, error) {
	if v.Kind() == cue.StringKind {
		src, err := v.String()
		if err != nil {
			return nil, err
		}
		compiled, err := cueutil.Compile(cctx, []byte(src), cueutil.WithFilename(path+"#validate"))
		if err != nil {
			return nil, err
		}
		v = compiled
	}
	return &Validator{ctx: cctx, constraint: v, source: path}, nil
}
