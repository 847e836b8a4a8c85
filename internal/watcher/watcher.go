// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package watcher implements the Reachability Watcher: a background
// loop that, while enabled, probes all four reachability dimensions
// (dataplane, control plane, VLAN ARP, VLAN gateway) every tick and
// feeds the results into their LabeledState machines.
package watcher

import (
	"context"
	"sync"
	"time"

	"grimm.is/advreboot/internal/interlock"
	"grimm.is/advreboot/internal/logging"
	"grimm.is/advreboot/internal/probe"
	"grimm.is/advreboot/internal/probetpl"
	"grimm.is/advreboot/internal/state"
)

// Tick is the fixed interval between watcher iterations (spec.md §4.3).
const Tick = 500 * time.Millisecond

const reachableThreshold = 0.7

// Dimension bundles one probe class with the interfaces a reply may
// arrive on and the LabeledState it drives.
type Dimension struct {
	Class        probetpl.ProbeClass
	ListenIfaces []string
	State        *state.LabeledState
}

// Watcher owns the four reachability dimensions and runs their probes
// on a fixed tick, contending with the Sender only on the dataplane
// dimension via the shared interlock.
type Watcher struct {
	logger    *logging.Logger
	engine    *probe.Engine
	interlock *interlock.Interlock

	serverToUpstream Dimension
	upstreamToServer Dimension
	nrPCPkts         int
	sendCursor       int

	controlPlane Dimension
	vlanARP      Dimension
	vlanGateway  Dimension

	window time.Duration

	mu      sync.Mutex
	enabled bool
	running chan struct{}
	stopped chan struct{}
}

// Config is everything New needs to wire a Watcher.
type Config struct {
	Logger    *logging.Logger
	Engine    *probe.Engine
	Interlock *interlock.Interlock

	ServerToUpstream Dimension
	UpstreamToServer Dimension
	NrPCPkts         int

	ControlPlane Dimension
	VlanARP      Dimension
	VlanGateway  Dimension

	// Window is the per-tick reply-collection deadline; defaults to Tick
	// if zero.
	Window time.Duration
}

func New(cfg Config) *Watcher {
	window := cfg.Window
	if window == 0 {
		window = Tick
	}
	return &Watcher{
		logger:           cfg.Logger,
		engine:           cfg.Engine,
		interlock:        cfg.Interlock,
		serverToUpstream: cfg.ServerToUpstream,
		upstreamToServer: cfg.UpstreamToServer,
		nrPCPkts:         cfg.NrPCPkts,
		controlPlane:     cfg.ControlPlane,
		vlanARP:          cfg.VlanARP,
		vlanGateway:      cfg.VlanGateway,
		window:           window,
		running:          make(chan struct{}, 1),
		stopped:          make(chan struct{}, 1),
	}
}

// Start marks the watcher enabled; Run will keep iterating until Stop.
func (w *Watcher) Start() {
	w.mu.Lock()
	w.enabled = true
	w.mu.Unlock()
}

// Stop disables the watcher; the next iteration boundary exits Run.
func (w *Watcher) Stop() {
	w.mu.Lock()
	w.enabled = false
	w.mu.Unlock()
}

func (w *Watcher) isEnabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enabled
}

// Running signals once per Run invocation, after the first iteration
// has started.
func (w *Watcher) Running() <-chan struct{} { return w.running }

// Stopped signals once Run has exited because Stop was called.
func (w *Watcher) Stopped() <-chan struct{} { return w.stopped }

// Run drives the watcher loop until ctx is cancelled or Stop is called.
// It implements spec.md §4.3's iteration exactly: a non-blocking
// dataplane probe when the interlock is free, unconditional control-side
// probes, then a fixed sleep.
func (w *Watcher) Run(ctx context.Context) {
	first := true
	for {
		if !w.isEnabled() {
			select {
			case w.stopped <- struct{}{}:
			default:
			}
			return
		}
		if first {
			select {
			case w.running <- struct{}{}:
			default:
			}
			first = false
		}

		if w.interlock.TryAcquire() {
			w.probeDataplane(ctx)
			w.interlock.Release()
		}
		w.probeControlSide(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(Tick):
		}
	}
}

func ratio(recv, sent int) float64 {
	if sent == 0 {
		return 0
	}
	return float64(recv) / float64(sent)
}

func classify(recv, sent int) (reachable, partial, flooding bool) {
	r := ratio(recv, sent)
	reachable = r > reachableThreshold
	partial = reachable && r < 1.0
	flooding = reachable && r > 1.0
	return
}

func (w *Watcher) probeDataplane(ctx context.Context) {
	upstreamClass := w.serverToUpstream.Class
	sample := upstreamClass
	if w.nrPCPkts > 0 && w.nrPCPkts < len(upstreamClass.Packets) {
		sample.Packets = cyclicSample(upstreamClass.Packets, w.nrPCPkts, &w.sendCursor)
	}

	jobs := []probe.Job{
		{Class: sample, ListenIfaces: w.serverToUpstream.ListenIfaces},
		{Class: w.upstreamToServer.Class, ListenIfaces: w.upstreamToServer.ListenIfaces},
	}
	counts, err := w.engine.SendAndCount(ctx, jobs, w.window)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("dataplane probe failed", "error", err)
		}
		return
	}

	reachA, partialA, floodA := classify(counts[sample.Name], len(sample.Packets))
	reachB, partialB, floodB := classify(counts[w.upstreamToServer.Class.Name], len(w.upstreamToServer.Class.Packets))
	reachable := reachA && reachB
	partial := reachable && (partialA || partialB)
	flooding := reachable && (floodA || floodB)

	w.serverToUpstream.State.Classify(reachable, partial, flooding, w.logTransition("dataplane"))
}

func (w *Watcher) probeControlSide(ctx context.Context) {
	jobs := []probe.Job{
		{Class: w.controlPlane.Class, ListenIfaces: w.controlPlane.ListenIfaces},
		{Class: w.vlanARP.Class, ListenIfaces: w.vlanARP.ListenIfaces},
		{Class: w.vlanGateway.Class, ListenIfaces: w.vlanGateway.ListenIfaces},
	}
	counts, err := w.engine.SendAndCount(ctx, jobs, w.window)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("control-side probe failed", "error", err)
		}
		return
	}

	reachable, partial, flooding := classify(counts[w.controlPlane.Class.Name], len(w.controlPlane.Class.Packets))
	w.controlPlane.State.Classify(reachable, partial, flooding, w.logTransition("controlplane"))

	arpReachable := counts[w.vlanARP.Class.Name] >= 1
	w.vlanARP.State.Classify(arpReachable, false, false, w.logTransition("vlan_arp"))

	gwReachable, gwPartial, gwFlooding := classify(counts[w.vlanGateway.Class.Name], len(w.vlanGateway.Class.Packets))
	w.vlanGateway.State.Classify(gwReachable, gwPartial, gwFlooding, w.logTransition("vlan_gateway"))
}

func (w *Watcher) logTransition(dimension string) func(old, new string) {
	return func(old, new string) {
		if w.logger != nil {
			w.logger.Info("reachability state change", "dimension", dimension, "from", old, "to", new)
		}
	}
}

// cyclicSample returns the next n packets from pkts, wrapping around and
// advancing cursor, so repeated ticks eventually sample every host.
func cyclicSample(pkts []probetpl.ProbePacket, n int, cursor *int) []probetpl.ProbePacket {
	out := make([]probetpl.ProbePacket, n)
	for i := 0; i < n; i++ {
		out[i] = pkts[(*cursor+i)%len(pkts)]
	}
	*cursor = (*cursor + n) % len(pkts)
	return out
}
