// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/nestnet/nestnet/internal/issue"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.cue")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if cfg.Defaults.Topo != "minimal" {
		t.Errorf("Defaults.Topo = %q, want minimal", cfg.Defaults.Topo)
	}
	if cfg.Defaults.IPBase != DefaultIPBase {
		t.Errorf("Defaults.IPBase = %q", cfg.Defaults.IPBase)
	}
	if cfg.Verbosity != VerbosityInfo {
		t.Errorf("Verbosity = %q, want info", cfg.Verbosity)
	}
	if cfg.Channel.PromptTimeout != DefaultPromptTimeout {
		t.Errorf("PromptTimeout = %s", cfg.Channel.PromptTimeout)
	}
	if cfg.Container.Image != "ubuntu:trusty" {
		t.Errorf("Container.Image = %q", cfg.Container.Image)
	}
	if cfg.Cluster.Placement != PlacementBlock {
		t.Errorf("Cluster.Placement = %q", cfg.Cluster.Placement)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, path, err := LoadWithPath(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path != "" {
		t.Errorf("resolved path = %q, want empty", path)
	}
	if cfg.Defaults.Switch != "default" || cfg.SSH.Port != 2222 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
defaults: {
	topo:   "linear"
	switch: "ovsbr"
}
verbosity: "debug"
channel: prompt_timeout: "1m30s"
container: engine: "podman"
cluster: placement: "random"
ssh: port: 2022
`)

	cfg, resolved, err := LoadWithPath(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if resolved != path {
		t.Errorf("resolved = %q, want %q", resolved, path)
	}
	if cfg.Defaults.Topo != "linear" || cfg.Defaults.Switch != "ovsbr" {
		t.Errorf("Defaults = %+v", cfg.Defaults)
	}
	// Untouched keys keep their defaults.
	if cfg.Defaults.Host != "default" {
		t.Errorf("Defaults.Host = %q, want default", cfg.Defaults.Host)
	}
	if cfg.Verbosity != VerbosityDebug {
		t.Errorf("Verbosity = %q", cfg.Verbosity)
	}
	if cfg.Channel.PromptTimeout != 90*time.Second {
		t.Errorf("PromptTimeout = %s, want 1m30s", cfg.Channel.PromptTimeout)
	}
	if cfg.Container.Engine != "podman" || cfg.Container.Image != DefaultImage {
		t.Errorf("Container = %+v", cfg.Container)
	}
	if cfg.Cluster.Placement != PlacementRandom {
		t.Errorf("Placement = %q", cfg.Cluster.Placement)
	}
	if cfg.SSH.Port != 2022 || cfg.SSH.Host != "127.0.0.1" {
		t.Errorf("SSH = %+v", cfg.SSH)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantSub string
	}{
		{"syntax", `defaults: {`, "config.cue"},
		{"unknown key", `colour: "blue"`, "colour"},
		{"bad verbosity", `verbosity: "loud"`, "verbosity"},
		{"bad engine", `container: engine: "lxc"`, "container.engine"},
		{"bad port", `ssh: port: 0`, "ssh.port"},
		{"bad duration", `channel: prompt_timeout: "soon"`, "prompt_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeConfig(t, tt.content)
			_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
			var ae *issue.ActionableError
			if !errors.As(err, &ae) {
				t.Fatalf("error type = %T, want *issue.ActionableError", err)
			}
			if ae.Issue != issue.ConfigLoadFailedId {
				t.Errorf("Issue = %v, want %v", ae.Issue, issue.ConfigLoadFailedId)
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "nope.cue")
	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: missing})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("Load() error = %v, want not found", err)
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewProvider().Load(ctx, LoadOptions{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

//nolint:paralleltest // t.Setenv
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NESTNET_CONTAINER_ENGINE", "docker")
	t.Setenv("NESTNET_CHANNEL_PROMPT_TIMEOUT", "5s")
	t.Setenv("NESTNET_SSH_PORT", "2200")

	cfg, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Container.Engine != "docker" {
		t.Errorf("Container.Engine = %q, want docker", cfg.Container.Engine)
	}
	if cfg.Channel.PromptTimeout != 5*time.Second {
		t.Errorf("PromptTimeout = %s, want 5s", cfg.Channel.PromptTimeout)
	}
	if cfg.SSH.Port != 2200 {
		t.Errorf("SSH.Port = %d, want 2200", cfg.SSH.Port)
	}
}

//nolint:paralleltest // t.Setenv
func TestLoad_EnvInvalidPlacement(t *testing.T) {
	t.Setenv("NESTNET_CLUSTER_PLACEMENT", "spread")

	_, err := NewProvider().Load(context.Background(), LoadOptions{ConfigDirPath: t.TempDir()})
	if !errors.Is(err, ErrInvalidPlacement) {
		t.Errorf("Load() error = %v, want ErrInvalidPlacement", err)
	}
}

func TestGenerateCUE_RoundTrip(t *testing.T) {
	t.Parallel()

	want := DefaultConfig()
	want.Defaults.Topo = "tree"
	want.Channel.PromptTimeout = 45 * time.Second

	path := writeConfig(t, GenerateCUE(want))
	got, err := NewProvider().Load(context.Background(), LoadOptions{ConfigFilePath: path})
	if err != nil {
		t.Fatalf("Load(GenerateCUE()) error = %v", err)
	}
	if *got != *want {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, want)
	}
}

//nolint:paralleltest // mutates the config dir override
func TestCreateDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	SetConfigDirOverride(dir)
	t.Cleanup(Reset)

	path, err := CreateDefaultConfig()
	if err != nil {
		t.Fatalf("CreateDefaultConfig() error = %v", err)
	}
	if path != filepath.Join(dir, "config.cue") {
		t.Errorf("path = %q", path)
	}
	if err := os.WriteFile(path, []byte(`verbosity: "error"`), 0o644); err != nil {
		t.Fatal(err)
	}
	// An existing file is left alone.
	if _, err := CreateDefaultConfig(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != `verbosity: "error"` {
		t.Errorf("existing config overwritten: %q", data)
	}
}

func TestVerbosityIsValid(t *testing.T) {
	t.Parallel()

	for _, v := range Verbosities() {
		if ok, _ := v.IsValid(); !ok {
			t.Errorf("%q.IsValid() = false", v)
		}
	}
	ok, errs := Verbosity("chatty").IsValid()
	if ok || len(errs) != 1 || !errors.Is(errs[0], ErrInvalidVerbosity) {
		t.Errorf("IsValid(chatty) = %v, %v", ok, errs)
	}
}

// The schema lists exactly the keys Config decodes.
func TestSchemaMatchesStruct(t *testing.T) {
	t.Parallel()

	ctx := cuecontext.New()
	schema := ctx.CompileBytes(configSchema)
	if schema.Err() != nil {
		t.Fatalf("schema: %v", schema.Err())
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	iter, err := def.Fields(cue.Optional(true))
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for iter.Next() {
		got = append(got, strings.TrimSuffix(iter.Selector().String(), "?"))
	}
	want := []string{"defaults", "verbosity", "channel", "container", "cluster", "ssh"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("schema fields = %v, want %v", got, want)
	}
}
