// SPDX-License-Identifier: MPL-2.0

package netemu

import (
	"context"
	"errors"
	"fmt"
	"path"
	"runtime"
	"strconv"

	"github.com/nestnet/nestnet/internal/container"
)

// cgroupRoot holds the per-host cgroups of CPU limited hosts.
const cgroupRoot = "/sys/fs/cgroup/" + tag

type (
	hostDriver interface {
		// launch returns the argv that starts shell inside the host.
		launch(ctx context.Context, n *Network, h *Node, shell []string) ([]string, error)
		setup(ctx context.Context, n *Network, h *Node) error
		teardown(ctx context.Context, n *Network, h *Node) error
	}

	// procHost runs the shell in fresh network and mount namespaces.
	// A non-empty sched limits its CPU share through a cgroup.
	procHost struct {
		sched string
	}

	// containerHost runs the shell inside a container whose namespaces
	// receive the host's interfaces.
	containerHost struct{}
)

func (p *procHost) launch(_ context.Context, _ *Network, h *Node, shell []string) ([]string, error) {
	argv := append([]string{"unshare", "--net", "--mount", "--"}, shell...)
	if !isLocal(h.Server) {
		argv = SSHArgv(h.Server, true, append([]string{"sudo", "-E"}, argv...))
	}
	return argv, nil
}

func (p *procHost) setup(ctx context.Context, n *Network, h *Node) error {
	if p.sched == "" && !n.opts.AutoPinCPUs {
		return nil
	}
	cg := path.Join(cgroupRoot, h.Name)
	writes := [][2]string{}
	switch p.sched {
	case "cfs":
		if frac := h.Params.Float("cpu", -1); frac > 0 {
			period := h.Params.Int("period_us", 100000)
			quota := int(frac * float64(period) * float64(runtime.NumCPU()))
			writes = append(writes, [2]string{"cpu.max", fmt.Sprintf("%d %d", quota, period)})
		}
	case "rt":
		// cgroup v2 has no RT budget; the shell gets a real-time policy
		// that its children inherit.
		if _, err := n.rootExec(ctx, h.Server, "chrt", "--rr", "--pid", "1", strconv.Itoa(h.pid)); err != nil {
			return err
		}
	}
	if n.opts.AutoPinCPUs {
		cores := h.Params.String("cores", strconv.Itoa(h.index%runtime.NumCPU()))
		writes = append(writes, [2]string{"cpuset.cpus", cores})
	}
	if len(writes) == 0 {
		return nil
	}
	if _, err := n.rootExec(ctx, h.Server, "mkdir", "-p", cg); err != nil {
		return err
	}
	writes = append(writes, [2]string{"cgroup.procs", strconv.Itoa(h.pid)})
	for _, w := range writes {
		script := "echo " + QuoteArgv([]string{w[1]}) + " > " + QuoteArgv([]string{path.Join(cg, w[0])})
		if _, err := n.rootExec(ctx, h.Server, "sh", "-c", script); err != nil {
			return err
		}
	}
	return nil
}

func (p *procHost) teardown(ctx context.Context, n *Network, h *Node) error {
	if p.sched == "" && !n.opts.AutoPinCPUs {
		return nil
	}
	// The cgroup only empties once the shell is gone.
	_, _ = n.rootExec(ctx, h.Server, "rmdir", path.Join(cgroupRoot, h.Name))
	return nil
}

func containerName(h *Node) string {
	return container.NamePrefix + h.Name
}

func (containerHost) launch(ctx context.Context, n *Network, h *Node, shell []string) ([]string, error) {
	if !isLocal(h.Server) {
		return nil, errors.New("container hosts cannot run on cluster servers")
	}
	engine, err := n.engine()
	if err != nil {
		return nil, err
	}
	opts := container.RunOptions{
		Image:      h.Params.String("dimage", n.image()),
		Name:       containerName(h),
		Hostname:   h.Name,
		Network:    "none",
		Privileged: true,
		CPUs:       h.Params.Float("cpus", 0),
		Memory:     h.Params.String("mem_limit", ""),
		Volumes:    h.Params.Strings("volumes"),
		Labels:     map[string]string{tag: "1"},
		Command:    []string{"sleep", "infinity"},
	}
	id, err := container.StartWithRetry(ctx, engine, opts, 3)
	if err != nil {
		return nil, err
	}
	h.containerID = id
	if h.pid, err = engine.Pid(ctx, id); err != nil {
		return nil, err
	}
	return engine.ExecArgv(id, shell), nil
}

func (containerHost) setup(context.Context, *Network, *Node) error { return nil }

func (containerHost) teardown(ctx context.Context, n *Network, h *Node) error {
	if h.containerID == "" {
		return nil
	}
	engine, err := n.engine()
	if err != nil {
		return err
	}
	return engine.Remove(ctx, h.containerID, true)
}

func (n *Network) engine() (container.Engine, error) {
	if n.opts.Engine == nil {
		e, err := container.AutoDetectEngine()
		if err != nil {
			return nil, err
		}
		n.opts.Engine = e
	}
	return n.opts.Engine, nil
}

func (n *Network) image() string {
	if n.opts.Image != "" {
		return n.opts.Image
	}
	return container.DefaultImage
}
