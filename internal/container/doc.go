// SPDX-License-Identifier: MPL-2.0

// Package container drives container engines (docker, podman, isula) for
// container-backed hosts.
//
// A container host is a long running container started detached with no
// network of its own; the emulator moves the host's interfaces into the
// container's network namespace and talks to it through "exec -it" shells.
// All engines are used through their CLIs and share BaseCLIEngine for
// argument construction and command execution.
package container
