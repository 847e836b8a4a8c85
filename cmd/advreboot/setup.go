// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"fmt"
	"net"
	"time"

	"grimm.is/advreboot/internal/clock"
	"grimm.is/advreboot/internal/config"
	"grimm.is/advreboot/internal/interlock"
	"grimm.is/advreboot/internal/logging"
	"grimm.is/advreboot/internal/probe"
	"grimm.is/advreboot/internal/probetpl"
	"grimm.is/advreboot/internal/sender"
	"grimm.is/advreboot/internal/state"
	"grimm.is/advreboot/internal/watcher"
)

// topology is every piece of template/engine state setup derives from
// cfg, assembled once and shared between the Watcher and the Sender.
type topology struct {
	dutMAC  net.HardwareAddr
	vlanMAC net.HardwareAddr

	vlanHosts     []probetpl.HostAddress
	upstreamHosts []probetpl.HostAddress

	dataplaneState    *state.LabeledState
	controlPlaneState *state.LabeledState
	vlanARPState      *state.LabeledState
	vlanGatewayState  *state.LabeledState

	watcher   *watcher.Watcher
	interlock *interlock.Interlock
	engine    *probe.Engine
}

// buildTopology synthesizes the probe templates and reachability state
// machines spec.md §6 describes, and wires them into a Watcher.
func buildTopology(cfg *config.Config, logger *logging.Logger) (*topology, error) {
	dutMAC, err := net.ParseMAC(cfg.DUTMAC)
	if err != nil {
		return nil, fmt.Errorf("dut_mac: %w", err)
	}
	vlanMAC, err := net.ParseMAC(cfg.VlanMAC)
	if err != nil {
		return nil, fmt.Errorf("vlan_mac: %w", err)
	}

	vlanHosts, err := probetpl.GenerateVLANServers(cfg.VlanInterfaces, cfg.VlanIPRange, cfg.MaxNrVLPkts)
	if err != nil {
		return nil, err
	}
	upstreamHosts, err := probetpl.GenerateUpstreamHosts(cfg.T1Interfaces, cfg.DefaultIPRange, len(vlanHosts))
	if err != nil {
		return nil, err
	}

	loopbackIP, err := netutilLoopback(cfg)
	if err != nil {
		return nil, err
	}
	gatewayIP := net.ParseIP(cfg.VlanGatewayIP)
	if gatewayIP == nil {
		return nil, fmt.Errorf("vlan_gateway_ip: invalid address %q", cfg.VlanGatewayIP)
	}

	serverToUpstream, err := probetpl.BuildServerToUpstreamClass(vlanHosts, upstreamHosts[0].IP, vlanMAC)
	if err != nil {
		return nil, err
	}
	upstreamToServer, err := probetpl.BuildUpstreamToServerClass(upstreamHosts, vlanHosts, dutMAC)
	if err != nil {
		return nil, err
	}
	icmpToLoopback, err := probetpl.BuildICMPToLoopbackClass(vlanHosts, dutMAC, loopbackIP, cfg.AllowMacJumping)
	if err != nil {
		return nil, err
	}
	arpToGateway, err := probetpl.BuildARPToVLANGatewayClass(vlanHosts, gatewayIP, vlanMAC)
	if err != nil {
		return nil, err
	}

	clk := clock.Real{}
	dataplaneState := state.New(clk)
	controlPlaneState := state.New(clk)
	vlanARPState := state.New(clk)
	vlanGatewayState := state.New(clk)

	engine := probe.New(logger)
	lock := interlock.New()

	w := watcher.New(watcher.Config{
		Logger:    logger,
		Engine:    engine,
		Interlock: lock,
		ServerToUpstream: watcher.Dimension{
			Class:        serverToUpstream,
			ListenIfaces: cfg.T1Interfaces,
			State:        dataplaneState,
		},
		UpstreamToServer: watcher.Dimension{
			Class:        upstreamToServer,
			ListenIfaces: cfg.VlanInterfaces,
			State:        dataplaneState,
		},
		NrPCPkts: cfg.NrPCPkts,
		ControlPlane: watcher.Dimension{
			Class:        icmpToLoopback,
			ListenIfaces: cfg.VlanInterfaces,
			State:        controlPlaneState,
		},
		VlanARP: watcher.Dimension{
			Class:        arpToGateway,
			ListenIfaces: cfg.VlanInterfaces,
			State:        vlanARPState,
		},
		VlanGateway: watcher.Dimension{
			Class:        arpToGateway,
			ListenIfaces: cfg.VlanInterfaces,
			State:        vlanGatewayState,
		},
	})

	return &topology{
		dutMAC:            dutMAC,
		vlanMAC:           vlanMAC,
		vlanHosts:         vlanHosts,
		upstreamHosts:     upstreamHosts,
		dataplaneState:    dataplaneState,
		controlPlaneState: controlPlaneState,
		vlanARPState:      vlanARPState,
		vlanGatewayState:  vlanGatewayState,
		watcher:           w,
		interlock:         lock,
		engine:            engine,
	}, nil
}

// netutilLoopback derives the device's loopback address from LoPrefix:
// the address part of the CIDR as written, or 10.0.0.1 when LoPrefix is
// unset.
func netutilLoopback(cfg *config.Config) (net.IP, error) {
	if cfg.LoPrefix == "" {
		return net.ParseIP("10.0.0.1"), nil
	}
	ip, _, err := net.ParseCIDR(cfg.LoPrefix)
	if err != nil {
		return nil, fmt.Errorf("lo_prefix: %w", err)
	}
	return ip, nil
}

// buildSender constructs a sender.Sender wired to t.'s addressing and
// cfg's timing, emitting on every dataplane interface.
func buildSender(cfg *config.Config, t *topology, logger *logging.Logger) *sender.Sender {
	allIfaces := append(append([]string{}, cfg.VlanInterfaces...), cfg.T1Interfaces...)
	interval := sender.DefaultInterval
	if cfg.SendIntervalSeconds > 0 {
		interval = time.Duration(cfg.SendIntervalSeconds * float64(time.Second))
	}
	return sender.New(sender.Config{
		Logger:    logger,
		Interlock: t.interlock,
		VlanEndpoint: sender.Endpoint{
			Iface: t.vlanHosts[0].Iface,
			MAC:   t.vlanHosts[0].MAC,
			IP:    t.vlanHosts[0].IP,
		},
		T1Endpoint: sender.Endpoint{
			Iface: t.upstreamHosts[0].Iface,
			MAC:   t.upstreamHosts[0].MAC,
			IP:    t.upstreamHosts[0].IP,
		},
		DUTMAC:          t.dutMAC,
		VlanMAC:         t.vlanMAC,
		DataplaneIfaces: allIfaces,
		Interval:        interval,
	})
}
