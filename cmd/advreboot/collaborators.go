// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"grimm.is/advreboot/internal/config"
	"grimm.is/advreboot/internal/logging"
	"grimm.is/advreboot/internal/report"
)

// sshRemoteControl is the minimal RemoteControl implementation this
// harness ships: it shells out to ssh, the same transport the original
// ptf test's ansible_host fixture ultimately rides on. Real deployments
// are expected to swap this for whatever remote-execution layer their
// lab uses; reboot.Coordinator only depends on the RemoteControl
// interface, never on this type.
type sshRemoteControl struct {
	logger *logging.Logger
	host   string
	user   string

	rebootCommands map[config.RebootType]string
	counterIfaces  []string
}

func newSSHRemoteControl(logger *logging.Logger, host, user string, rebootCommands map[config.RebootType]string, counterIfaces []string) *sshRemoteControl {
	return &sshRemoteControl{
		logger:         logger,
		host:           host,
		user:           user,
		rebootCommands: rebootCommands,
		counterIfaces:  counterIfaces,
	}
}

func (r *sshRemoteControl) target() string {
	if r.user == "" {
		return r.host
	}
	return r.user + "@" + r.host
}

// SnapshotCounters reads each configured interface's rx_packets counter
// with one ssh round trip per interface, mirroring the original test's pre-reboot
// interface_facts gather.
func (r *sshRemoteControl) SnapshotCounters(ctx context.Context) (map[string]uint64, error) {
	counters := make(map[string]uint64, len(r.counterIfaces))
	for _, iface := range r.counterIfaces {
		cmd := exec.CommandContext(ctx, "ssh", r.target(), fmt.Sprintf("cat /sys/class/net/%s/statistics/rx_packets", iface))
		var out bytes.Buffer
		cmd.Stdout = &out
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("remote: snapshot %s: %w", iface, err)
		}
		n, err := strconv.ParseUint(strings.TrimSpace(out.String()), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("remote: parse %s counter: %w", iface, err)
		}
		counters[iface] = n
	}
	return counters, nil
}

// TriggerReboot dispatches the reboot_type's configured command over
// ssh and returns as soon as the connection drops, without waiting for
// a reply — the device is expected to go away mid-command.
func (r *sshRemoteControl) TriggerReboot(ctx context.Context, rebootType config.RebootType) error {
	command, ok := r.rebootCommands[rebootType]
	if !ok {
		return fmt.Errorf("remote: no command configured for reboot type %q", rebootType)
	}
	cmd := exec.CommandContext(ctx, "ssh", r.target(), command)
	err := cmd.Run()
	if ctx.Err() != nil {
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		r.logger.Warn("remote: reboot command returned before connection dropped", "exit", exitErr.ExitCode())
		return nil
	}
	return err
}

// sshNeighborTelemetry polls a fixed set of neighbor hosts for their
// worst LACPDU gap over the measurement window, each over its own ssh
// round trip, corresponding to the original test's per-neighbor
// fanout_handlers threads (spec.md §1's "external collaborator").
type sshNeighborTelemetry struct {
	logger    *logging.Logger
	neighbors []string
	user      string
	command   string
}

func newSSHNeighborTelemetry(logger *logging.Logger, neighbors []string, user, command string) *sshNeighborTelemetry {
	return &sshNeighborTelemetry{logger: logger, neighbors: neighbors, user: user, command: command}
}

func (n *sshNeighborTelemetry) target(host string) string {
	if n.user == "" {
		return host
	}
	return n.user + "@" + host
}

// LACPSessions polls every configured neighbor in turn and returns its
// reported worst gap; a neighbor that fails to respond is recorded with
// a nil gap rather than aborting the whole collection.
func (n *sshNeighborTelemetry) LACPSessions(ctx context.Context) ([]report.LACPSession, error) {
	sessions := make([]report.LACPSession, 0, len(n.neighbors))
	for _, host := range n.neighbors {
		cmd := exec.CommandContext(ctx, "ssh", n.target(host), n.command)
		var out bytes.Buffer
		cmd.Stdout = &out
		if err := cmd.Run(); err != nil {
			n.logger.Warn("neighbor telemetry poll failed", "host", host, "error", err)
			sessions = append(sessions, report.LACPSession{IP: host})
			continue
		}
		gap, err := strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
		if err != nil {
			sessions = append(sessions, report.LACPSession{IP: host})
			continue
		}
		sessions = append(sessions, report.LACPSession{IP: host, MaxGapSeconds: &gap})
	}
	return sessions, nil
}
