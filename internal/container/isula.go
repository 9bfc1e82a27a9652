// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// IsulaEngine drives the iSulad CLI. It accepts the docker argument
// syntax for the subset used here.
type IsulaEngine struct {
	*BaseCLIEngine
}

// NewIsulaEngine creates an isula engine.
func NewIsulaEngine(opts ...BaseCLIEngineOption) *IsulaEngine {
	path, _ := exec.LookPath("isula")
	opts = append([]BaseCLIEngineOption{WithName("isula")}, opts...)
	return &IsulaEngine{BaseCLIEngine: NewBaseCLIEngine(path, opts...)}
}

// Name returns the engine name.
func (e *IsulaEngine) Name() string {
	return string(EngineTypeIsula)
}

// Available checks whether the isulad daemon answers.
func (e *IsulaEngine) Available() bool {
	if e.BinaryPath() == "" {
		return false
	}
	return e.CreateCommand(context.Background(), "version").Run() == nil
}

// Version returns the first line of "isula version".
func (e *IsulaEngine) Version(ctx context.Context) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "version")
	if err != nil {
		return "", fmt.Errorf("failed to get isula version: %w", err)
	}
	first, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	return first, nil
}
