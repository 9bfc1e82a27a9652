// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	"github.com/nestnet/nestnet/internal/cueutil"
	"github.com/nestnet/nestnet/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "nestnet"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "NESTNET"
)

//go:embed config_schema.cue
var configSchema []byte

// ConfigDir returns $XDG_CONFIG_HOME/nestnet, defaulting to ~/.config/nestnet.
//
//nolint:revive // ConfigDir reads better than Dir at call sites
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, AppName), nil
}

// DefaultPath returns the config file path inside ConfigDir.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper()

	resolvedPath := ""
	switch {
	case opts.ConfigFilePath != "":
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", loadError(opts.ConfigFilePath,
				fmt.Errorf("config file not found: %s", opts.ConfigFilePath),
				"Verify the file path passed to --config")
		}
		resolvedPath = opts.ConfigFilePath
	default:
		dir := opts.ConfigDirPath
		if dir == "" {
			var err error
			if dir, err = ConfigDir(); err != nil {
				return nil, "", err
			}
		}
		if p := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt); fileExists(p) {
			resolvedPath = p
		}
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", loadError(resolvedPath, err,
				"Check that the file contains valid CUE syntax",
				"Verify the values match the schema shown by 'nestnet config show --schema'")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", loadError(resolvedPath, fmt.Errorf("failed to parse config: %w", err))
	}
	if err := cfg.validate(); err != nil {
		return nil, "", loadError(resolvedPath, err)
	}
	return &cfg, resolvedPath, nil
}

// newViper returns a Viper instance holding the defaults and reading
// NESTNET_* overrides.
func newViper() *viper.Viper {
	v := viper.New()
	d := DefaultConfig()
	v.SetDefault("defaults.topo", d.Defaults.Topo)
	v.SetDefault("defaults.switch", d.Defaults.Switch)
	v.SetDefault("defaults.host", d.Defaults.Host)
	v.SetDefault("defaults.controller", d.Defaults.Controller)
	v.SetDefault("defaults.link", d.Defaults.Link)
	v.SetDefault("defaults.ipbase", d.Defaults.IPBase)
	v.SetDefault("verbosity", string(d.Verbosity))
	v.SetDefault("channel.prompt_timeout", d.Channel.PromptTimeout)
	v.SetDefault("container.engine", d.Container.Engine)
	v.SetDefault("container.image", d.Container.Image)
	v.SetDefault("cluster.placement", string(d.Cluster.Placement))
	v.SetDefault("ssh.host", d.SSH.Host)
	v.SetDefault("ssh.port", d.SSH.Port)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadCUEIntoViper validates a CUE file against #Config and merges it over
// the defaults. Fields are optional, so values need not be concrete.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ctx := cuecontext.New()
	doc, err := cueutil.Compile(ctx, data, cueutil.WithFilename(path))
	if err != nil {
		return err
	}
	unified, err := cueutil.Unify(ctx, configSchema, "#Config", doc, cueutil.WithFilename(path))
	if err != nil {
		return err
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

// validate checks what environment overrides can bring in after the schema
// has run.
func (c *Config) validate() error {
	var errs []error
	if ok, e := c.Verbosity.IsValid(); !ok {
		errs = append(errs, e...)
	}
	if ok, e := c.Cluster.Placement.IsValid(); !ok {
		errs = append(errs, e...)
	}
	if c.Channel.PromptTimeout < 0 {
		errs = append(errs, fmt.Errorf("channel.prompt_timeout must not be negative, got %s", c.Channel.PromptTimeout))
	}
	return errors.Join(errs...)
}

func loadError(path string, cause error, suggestions ...string) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestions(suggestions...).
		WithIssue(issue.ConfigLoadFailedId).
		Wrap(cause).
		BuildError()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Schema returns the embedded CUE schema.
func Schema() string {
	return string(configSchema)
}

// CreateDefaultConfig writes the defaults to the config file unless it exists.
// It returns the path of the file.
func CreateDefaultConfig() (string, error) {
	path, err := DefaultPath()
	if err != nil {
		return "", err
	}
	if fileExists(path) {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return path, nil
}

// GenerateCUE renders cfg as a config.cue document.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// nestnet configuration file\n\n")

	sb.WriteString("defaults: {\n")
	fmt.Fprintf(&sb, "\ttopo:       %q\n", cfg.Defaults.Topo)
	fmt.Fprintf(&sb, "\tswitch:     %q\n", cfg.Defaults.Switch)
	fmt.Fprintf(&sb, "\thost:       %q\n", cfg.Defaults.Host)
	fmt.Fprintf(&sb, "\tcontroller: %q\n", cfg.Defaults.Controller)
	fmt.Fprintf(&sb, "\tlink:       %q\n", cfg.Defaults.Link)
	fmt.Fprintf(&sb, "\tipbase:     %q\n", cfg.Defaults.IPBase)
	sb.WriteString("}\n\n")

	fmt.Fprintf(&sb, "verbosity: %q\n\n", cfg.Verbosity)

	fmt.Fprintf(&sb, "channel: prompt_timeout: %q\n\n", cfg.Channel.PromptTimeout.String())

	sb.WriteString("container: {\n")
	fmt.Fprintf(&sb, "\tengine: %q\n", cfg.Container.Engine)
	fmt.Fprintf(&sb, "\timage:  %q\n", cfg.Container.Image)
	sb.WriteString("}\n\n")

	fmt.Fprintf(&sb, "cluster: placement: %q\n\n", cfg.Cluster.Placement)

	sb.WriteString("ssh: {\n")
	fmt.Fprintf(&sb, "\thost: %q\n", cfg.SSH.Host)
	fmt.Fprintf(&sb, "\tport: %d\n", cfg.SSH.Port)
	sb.WriteString("}\n")

	return sb.String()
}
