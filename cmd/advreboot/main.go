// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command advreboot drives one dataplane-disruption measurement run
// against a device under test: it loads its topology and timing
// parameters from an HCL file, wires up the Watcher/Sender/Capture/
// Coordinator, triggers the configured reboot over ssh, and writes the
// resulting report to /tmp alongside a human-readable log.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"grimm.is/advreboot/internal/capture"
	"grimm.is/advreboot/internal/config"
	"grimm.is/advreboot/internal/logging"
	"grimm.is/advreboot/internal/metrics"
	"grimm.is/advreboot/internal/reboot"
	"grimm.is/advreboot/internal/report"
	"grimm.is/advreboot/internal/sender"
)

func main() {
	configPath := flag.String("config", "", "path to the harness's HCL configuration file")
	rebootTypeFlag := flag.String("reboot-type", "", "override reboot_type from the config file")
	sshHost := flag.String("ssh-host", "", "device under test's management address")
	sshUser := flag.String("ssh-user", "admin", "ssh user for the device and its neighbors")
	neighborsFlag := flag.String("neighbors", "", "comma-separated neighbor host list polled for LACP telemetry")
	rebootCmdFlag := flag.String("reboot-cmd", "", "command dispatched over ssh to trigger the reboot")
	lacpCmdFlag := flag.String("lacp-cmd", "teamshow -j", "command each neighbor runs to report its worst LACP gap")
	verboseFlag := flag.Bool("verbose", false, "override verbose from the config file")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("advreboot: -config is required")
	}

	exitCode, err := run(*configPath, runFlags{
		rebootType: *rebootTypeFlag,
		sshHost:    *sshHost,
		sshUser:    *sshUser,
		neighbors:  *neighborsFlag,
		rebootCmd:  *rebootCmdFlag,
		lacpCmd:    *lacpCmdFlag,
		verbose:    *verboseFlag,
	})
	if err != nil {
		log.Fatalf("advreboot: %v", err)
	}
	os.Exit(exitCode)
}

type runFlags struct {
	rebootType string
	sshHost    string
	sshUser    string
	neighbors  string
	rebootCmd  string
	lacpCmd    string
	verbose    bool
}

// run loads configPath, assembles the full topology, executes one
// measurement, writes the report, and returns the process exit code
// spec.md §6 specifies.
func run(configPath string, flags runFlags) (int, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return 1, err
	}
	cfg.RunID = uuid.New()
	if flags.rebootType != "" {
		cfg.RebootType = config.RebootType(flags.rebootType)
	}
	if flags.verbose {
		cfg.Verbose = true
	}
	if !cfg.RebootType.Valid() {
		return 1, fmt.Errorf("invalid reboot_type %q: must be fast-reboot, warm-reboot, or service-warm-restart", cfg.RebootType)
	}

	reportPath, logPath := report.Paths(cfg.RebootType, cfg.LogfileSuffix)
	logger, err := logging.New(logPath, cfg.Verbose)
	if err != nil {
		return 1, err
	}
	defer logger.Close()
	logger = logger.With("run_id", cfg.RunID.String(), "reboot_type", string(cfg.RebootType))

	topo, err := buildTopology(cfg, logger)
	if err != nil {
		return 1, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	collector := metrics.NewCollector(reg, logger, []metrics.Dimension{
		{Name: "dataplane", State: topo.dataplaneState},
		{Name: "controlplane", State: topo.controlPlaneState},
		{Name: "vlan_arp", State: topo.vlanARPState},
		{Name: "vlan_gateway", State: topo.vlanGatewayState},
	})
	go collector.Run(ctx)
	defer collector.Stop()

	if cfg.MetricsListenAddr != "" {
		srv := metrics.NewServer(cfg.MetricsListenAddr, reg)
		go func() {
			if err := srv.Serve(ctx); err != nil {
				logger.Warn("metrics server exited", "error", err)
			}
		}()
	}

	topo.watcher.Start()
	go topo.watcher.Run(ctx)
	defer topo.engine.Close()

	pcapPath := strings.TrimSuffix(reportPath, "-report.json") + ".pcap"
	allIfaces := append(append([]string{}, cfg.VlanInterfaces...), cfg.T1Interfaces...)

	// neighbors is left nil (not a typed-nil *sshNeighborTelemetry) when no
	// neighbor hosts are configured, so reboot.Coordinator's "Neighbors !=
	// nil" check behaves correctly.
	var neighbors reboot.NeighborTelemetry
	if flags.neighbors != "" {
		neighbors = newSSHNeighborTelemetry(logger, strings.Split(flags.neighbors, ","), flags.sshUser, flags.lacpCmd)
	}

	coordinator := reboot.New(reboot.Config{
		Logger:            logger,
		Params:            *cfg,
		DataplaneState:    topo.dataplaneState,
		ControlPlaneState: topo.controlPlaneState,
		Watcher:           topo.watcher,
		Interlock:         topo.interlock,
		Remote: newSSHRemoteControl(logger, flags.sshHost, flags.sshUser,
			map[config.RebootType]string{
				config.FastReboot:         flags.rebootCmd,
				config.WarmReboot:         flags.rebootCmd,
				config.ServiceWarmRestart: flags.rebootCmd,
			}, allIfaces),
		Neighbors: neighbors,
		NewCapture: func() *capture.Capture {
			return capture.New(capture.Config{Logger: logger, Interfaces: allIfaces, OutputPath: pcapPath})
		},
		NewSender: func() *sender.Sender {
			return buildSender(cfg, topo, logger)
		},
		PcapPath: pcapPath,
		DUTMAC:   topo.dutMAC,
		VlanMAC:  topo.vlanMAC,
		Metrics:  collector,
	})

	rep, deadlinesMet, err := coordinator.Run(ctx)
	if err != nil {
		logger.Error("measurement run failed", "error", err)
		return 1, err
	}

	for _, msg := range coordinator.Faults().Device() {
		logger.Warn("device fault recorded", "message", msg)
	}
	for _, msg := range coordinator.Faults().Infrastructure() {
		logger.Warn("infrastructure fault recorded", "message", msg)
	}

	if err := report.WriteJSON(reportPath, rep); err != nil {
		return 1, err
	}
	logger.Info("report written", "path", reportPath, "deadlines_met", deadlinesMet)

	return report.ExitCode(rep, deadlinesMet), nil
}
