// SPDX-License-Identifier: MPL-2.0

package netemu

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nestnet/nestnet/internal/container"
)

// cleanupKill lists the processes a crashed run may leave behind.
var cleanupKill = []string{
	"controller", "ovs-controller", "test-controller", "ovs-testcontroller",
	"ofprotocol", "ofdatapath", "ivs", "nox_core", "ryu-manager", "nestnet:",
}

// Cleanup removes what earlier runs left on the machine c runs commands
// on: stray controller and switch processes, node shells, tagged bridges
// and interfaces, temporary files, cgroups and containers. engine may be
// nil. Every step runs; failures are joined.
func Cleanup(ctx context.Context, c Commander, engine container.Engine, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	var errs []error

	logger.Info("*** Removing excess controllers/ofprotocols/ofdatapaths/pings/noxes")
	for _, name := range cleanupKill {
		// pkill exits 1 when nothing matched.
		_, _ = c.Run(ctx, "pkill", "-9", "-f", name)
	}

	logger.Info("*** Removing junk from /tmp")
	if _, err := c.Run(ctx, "sh", "-c", "rm -f /tmp/"+tag+"-*"); err != nil {
		errs = append(errs, err)
	}

	logger.Info("*** Removing old bridges")
	if out, err := c.Run(ctx, "ovs-vsctl", "--bare", "--columns=name", "find", "Bridge", "external-ids:"+tag+"=1"); err == nil {
		for _, br := range strings.Fields(out) {
			logger.Debug("removing bridge", "bridge", br)
			if _, err := c.Run(ctx, "ovs-vsctl", "--if-exists", "del-br", br); err != nil {
				errs = append(errs, err)
			}
		}
	} else {
		logger.Debug("ovs-vsctl unavailable, skipping bridges", "error", err)
	}

	logger.Info("*** Removing all links of the pattern foo-ethX")
	out, err := c.Run(ctx, "ip", "-o", "link", "show")
	if err != nil {
		errs = append(errs, err)
	}
	for _, name := range TaggedLinks(out) {
		logger.Debug("removing link", "link", name)
		if _, err := ignoreMissingRun(c.Run(ctx, "ip", "link", "del", "dev", name)); err != nil {
			errs = append(errs, err)
		}
	}

	logger.Info("*** Removing cgroups")
	_, _ = c.Run(ctx, "sh", "-c", "rmdir "+cgroupRoot+"/* "+cgroupRoot+" 2>/dev/null")

	if engine != nil && engine.Available() {
		logger.Info("*** Removing containers", "engine", engine.Name())
		ids, err := engine.List(ctx, container.NamePrefix)
		if err != nil {
			errs = append(errs, err)
		}
		for _, id := range ids {
			if err := engine.Remove(ctx, id, true); err != nil {
				errs = append(errs, err)
			}
		}
	}

	logger.Info("*** Cleanup complete.")
	return errors.Join(errs...)
}

// TaggedLinks returns the interfaces in "ip -o link show" output whose
// alias marks them as created by nestnet.
func TaggedLinks(out string) []string {
	var names []string
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, "alias "+tag) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := strings.TrimSuffix(fields[1], ":")
		if at := strings.IndexByte(name, '@'); at >= 0 {
			name = name[:at]
		}
		names = append(names, name)
	}
	return names
}

func ignoreMissingRun(out string, err error) (string, error) {
	return out, ignoreMissing(out, err)
}
