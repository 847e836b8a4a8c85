// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package reboot implements the Reboot Coordinator: the state machine
// that drives one measurement run end to end, from confirming the
// device is stable through triggering the reboot, supervising Capture
// and Sender across the outage window, and producing the final report.
//
// Everything that reaches outside this process — invoking the reboot,
// reading interface counters, polling neighbor LACP sessions — is
// delegated to the two narrow collaborator interfaces below, per
// spec.md §9's "the Coordinator is the only component that knows all
// four [components: Watcher, Sender, Capture and itself]" and §5's "per-neighbor SSH threads (external
// collaborator)".
package reboot

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"grimm.is/advreboot/internal/analyzer"
	"grimm.is/advreboot/internal/capture"
	"grimm.is/advreboot/internal/config"
	"grimm.is/advreboot/internal/errors"
	"grimm.is/advreboot/internal/interlock"
	"grimm.is/advreboot/internal/logging"
	"grimm.is/advreboot/internal/metrics"
	"grimm.is/advreboot/internal/report"
	"grimm.is/advreboot/internal/sender"
	"grimm.is/advreboot/internal/state"
	"grimm.is/advreboot/internal/timeoututil"
	"grimm.is/advreboot/internal/watcher"
)

// Phase is one state of the coordinator's state machine (spec.md §4.6).
type Phase string

const (
	PhaseInit      Phase = "init"
	PhaseWarmingUp Phase = "warming_up"
	PhaseArmed     Phase = "armed"
	PhaseRebooting Phase = "rebooting"
	PhaseMeasuring Phase = "measuring"
	PhaseAnalyzing Phase = "analyzing"
	PhaseReported  Phase = "reported"
	PhaseFailed    Phase = "failed"
)

// pollInterval is how often warm-up and control-plane transition waits
// re-check the watched LabeledStates; it matches the watcher's own tick
// so a wait never resolves a stale read between ticks.
const pollInterval = watcher.Tick

// RemoteControl is the external collaborator that reaches the device
// itself: reading its interface counters and dispatching the reboot
// command. Production implementations do this over SSH; this package
// only depends on the interface.
type RemoteControl interface {
	SnapshotCounters(ctx context.Context) (map[string]uint64, error)
	TriggerReboot(ctx context.Context, rebootType config.RebootType) error
}

// NeighborTelemetry is the external collaborator that polls each
// directly-connected neighbor's LACPDU timing during the measurement
// window, keyed by neighbor IP.
type NeighborTelemetry interface {
	LACPSessions(ctx context.Context) ([]report.LACPSession, error)
}

// lacpFlapThreshold is the LACP session gap spec.md §7 names as a
// device fault ("LACP session gap ≥ 150 s").
const lacpFlapThreshold = 150 * time.Second

// Config wires a Coordinator to one run's topology, timing parameters,
// and collaborators.
type Config struct {
	Logger *logging.Logger
	Params config.Config

	DataplaneState    *state.LabeledState
	ControlPlaneState *state.LabeledState

	Watcher   *watcher.Watcher
	Interlock *interlock.Interlock

	Remote    RemoteControl
	Neighbors NeighborTelemetry

	NewCapture func() *capture.Capture
	NewSender  func() *sender.Sender
	PcapPath   string

	DUTMAC  net.HardwareAddr
	VlanMAC net.HardwareAddr

	// Metrics, if set, receives the sent-packet count and analyzer
	// result from every run.
	Metrics *metrics.Collector

	// Analyze defaults to analyzer.Analyze; overridable in tests.
	Analyze func(analyzer.Input) (*analyzer.Result, error)
}

// Coordinator runs one measurement from warm-up through report.
type Coordinator struct {
	cfg    Config
	faults *errors.Collector

	mu    sync.Mutex
	phase Phase
}

// New constructs a Coordinator from cfg, defaulting Analyze to
// analyzer.Analyze when unset.
func New(cfg Config) *Coordinator {
	if cfg.Analyze == nil {
		cfg.Analyze = analyzer.Analyze
	}
	return &Coordinator{cfg: cfg, faults: errors.NewCollector(), phase: PhaseInit}
}

// Phase returns the coordinator's current state.
func (c *Coordinator) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Coordinator) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
	if c.cfg.Logger != nil {
		c.cfg.Logger.Info("coordinator phase change", "phase", string(p))
	}
}

// Run drives the entire sequence spec.md §4.6 specifies and returns the
// final report together with a bool reporting whether every deadline
// was met and no device or infrastructure fault was collected
// (report.ExitCode's second argument).
func (c *Coordinator) Run(ctx context.Context) (report.Report, bool, error) {
	var zero report.Report

	if err := c.waitWarmUp(ctx); err != nil {
		c.setPhase(PhaseFailed)
		return zero, false, errors.Wrap(err, errors.KindDevice, "device never reached a stable warmed-up state")
	}
	c.setPhase(PhaseArmed)

	if _, err := timeoututil.Run(ctx, c.cfg.Params.TaskTimeoutSecs, "snapshot_counters",
		func(cctx context.Context) (map[string]uint64, error) { return c.cfg.Remote.SnapshotCounters(cctx) }); err != nil {
		c.faults.AddDevice(fmt.Sprintf("counter snapshot failed: %v", err))
	}

	rebootErrCh := make(chan error, 1)
	go func() {
		rebootErrCh <- c.cfg.Remote.TriggerReboot(ctx, c.cfg.Params.RebootType)
	}()
	c.setPhase(PhaseRebooting)

	select {
	case err := <-rebootErrCh:
		if err != nil {
			c.setPhase(PhaseFailed)
			return zero, false, errors.Wrap(err, errors.KindDevice, "reboot invocation failed to dispatch")
		}
	default:
		// dispatch is asynchronous by design (spec.md §4.6 step 3); an
		// error arriving later is recorded as a device fault, not fatal.
		go func() {
			if err := <-rebootErrCh; err != nil {
				c.faults.AddDevice(fmt.Sprintf("reboot invocation reported an error: %v", err))
			}
		}()
	}

	rebootStart, err := c.waitControlPlane(ctx, state.Down, c.cfg.Params.ControlPlaneDownTimeoutSecs)
	if err != nil {
		c.setPhase(PhaseFailed)
		return zero, false, errors.Wrap(err, errors.KindDevice, "control plane never went down")
	}
	c.setPhase(PhaseMeasuring)

	capturer := c.cfg.NewCapture()
	snd := c.cfg.NewSender()

	captureErrCh := make(chan error, 1)
	go func() { captureErrCh <- capturer.Run(ctx, c.captureCeiling()) }()

	select {
	case <-capturer.Ready():
	case <-time.After(10 * time.Second):
		c.faults.AddInfrastructure("capture did not become ready within 10s")
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}

	senderErrCh := make(chan error, 1)
	go func() { senderErrCh <- snd.Run(ctx) }()

	go func() {
		<-snd.KillSniffer()
		capturer.Kill()
	}()

	controlPlaneUp, err := c.waitControlPlane(ctx, state.Up, c.cfg.Params.TaskTimeoutSecs)
	if err != nil {
		c.faults.AddDevice(fmt.Sprintf("control plane never came back up: %v", err))
		controlPlaneUp = time.Now()
	}

	snd.Stop()
	<-snd.Done()
	if err := <-senderErrCh; err != nil && ctx.Err() == nil {
		c.faults.AddInfrastructure(fmt.Sprintf("sender exited with error: %v", err))
	}
	<-capturer.Done()
	if err := <-captureErrCh; err != nil && ctx.Err() == nil {
		c.faults.AddInfrastructure(fmt.Sprintf("capture exited with error: %v", err))
	}
	if !capturer.SawPacket() {
		c.faults.AddInfrastructure("capture produced no traffic at all")
	}

	if c.cfg.Watcher != nil {
		c.cfg.Watcher.Stop()
		<-c.cfg.Watcher.Stopped()
	}

	c.setPhase(PhaseAnalyzing)
	result, err := c.cfg.Analyze(analyzer.Input{
		PcapPath:                c.cfg.PcapPath,
		DUTMAC:                  c.cfg.DUTMAC,
		VlanMAC:                 c.cfg.VlanMAC,
		SentPacketCount:         snd.SentCount(),
		RebootIsFast:            c.cfg.Params.RebootType == config.FastReboot,
		AllowedFloodedOriginals: c.cfg.Params.AllowedFloodedOriginals,
	})
	if err != nil {
		c.setPhase(PhaseFailed)
		return zero, false, errors.Wrap(err, errors.KindInfrastructure, "disruption analysis failed")
	}
	if !result.CheckedSuccessfully {
		c.faults.AddInfrastructure(result.FailureReason)
	}
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordSentCount(snd.SentCount())
		c.cfg.Metrics.RecordAnalysis(result)
	}

	lacpSessions, deadlinesMet := c.evaluateDeadlines(ctx, rebootStart, controlPlaneUp, result)

	rep := report.Build(report.Input{
		RebootType:           c.cfg.Params.RebootType,
		Dataplane:            result,
		DataplaneRebootStart: float64(rebootStart.UnixNano()) / 1e9,
		DataplaneUpAt:        float64(controlPlaneUp.UnixNano()) / 1e9,
		ControlPlaneDownAt:   float64(rebootStart.UnixNano()) / 1e9,
		ControlPlaneUpAt:     float64(controlPlaneUp.UnixNano()) / 1e9,
		LACPSessions:         lacpSessions,
	})

	c.setPhase(PhaseReported)
	return rep, deadlinesMet && !c.faults.HasFaults(), nil
}

// waitWarmUp blocks until both the dataplane and control-plane states
// have read Up, with no flooding, continuously for dut_stabilize_secs;
// any transition away from Up during the window is fatal (spec.md §4.6
// step 1). If allow_vlan_flooding is set and the device is still Up but
// flooding when warm_up_timeout expires, the wait succeeds instead of
// failing (spec.md §6).
func (c *Coordinator) waitWarmUp(ctx context.Context) error {
	c.setPhase(PhaseWarmingUp)
	required := time.Duration(c.cfg.Params.DutStabilizeSecs * float64(time.Second))

	_, err := timeoututil.Run(ctx, c.cfg.Params.WarmUpTimeoutSecs, "warm_up", func(cctx context.Context) (struct{}, error) {
		var stableSince time.Time
		var flooding bool
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			dp, cp := c.cfg.DataplaneState.Get(), c.cfg.ControlPlaneState.Get()
			flooding = false
			if dp != state.Up || cp != state.Up {
				if !stableSince.IsZero() {
					return struct{}{}, fmt.Errorf("reachability dropped away from up (dataplane=%s, controlplane=%s)", dp, cp)
				}
			} else if c.cfg.DataplaneState.IsFlooding() || c.cfg.ControlPlaneState.IsFlooding() {
				stableSince = time.Time{}
				flooding = true
			} else {
				if stableSince.IsZero() {
					stableSince = time.Now()
				} else if time.Since(stableSince) >= required {
					return struct{}{}, nil
				}
			}
			select {
			case <-cctx.Done():
				if c.cfg.Params.AllowVlanFlooding && dp == state.Up && cp == state.Up && flooding {
					return struct{}{}, nil
				}
				return struct{}{}, cctx.Err()
			case <-ticker.C:
			}
		}
	})
	if err != nil && ctx.Err() == nil && c.cfg.Params.AllowVlanFlooding &&
		c.cfg.DataplaneState.Get() == state.Up && c.cfg.ControlPlaneState.Get() == state.Up &&
		(c.cfg.DataplaneState.IsFlooding() || c.cfg.ControlPlaneState.IsFlooding()) {
		// timeoututil.Run reports its own timeout error without waiting
		// for fn, so the flooding allowance is applied here.
		return nil
	}
	return err
}

// waitControlPlane blocks until the control-plane LabeledState reads
// want, returning the time it was first observed in that label.
func (c *Coordinator) waitControlPlane(ctx context.Context, want string, timeoutSecs float64) (time.Time, error) {
	return timeoututil.Run(ctx, timeoutSecs, "control_plane_"+want, func(cctx context.Context) (time.Time, error) {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			if c.cfg.ControlPlaneState.Get() == want {
				if t, err := c.cfg.ControlPlaneState.EnteredAt(want); err == nil {
					return t, nil
				}
				return time.Now(), nil
			}
			select {
			case <-cctx.Done():
				return time.Time{}, cctx.Err()
			case <-ticker.C:
			}
		}
	})
}

// captureCeiling is the wall-clock bound on Capture's run regardless of
// whether kill_sniffer ever fires (spec.md §4.5).
func (c *Coordinator) captureCeiling() time.Duration {
	secs := c.cfg.Params.TimeToListenSeconds + c.cfg.Params.SniffTimeIncrSeconds
	return time.Duration(secs * float64(time.Second))
}

// evaluateDeadlines checks the measured disruption against
// reboot_limit_in_seconds, the control-plane-down-to-up window against
// graceful_limit, and polls neighbor LACP sessions for flaps, recording
// device faults for any violation (spec.md §6/§7/§8). reboot_limit_in_seconds
// bounds both the longest single outage and the total downtime; graceful_limit
// bounds the full control-plane-down-to-up window.
func (c *Coordinator) evaluateDeadlines(ctx context.Context, rebootStart, controlPlaneUp time.Time, result *analyzer.Result) ([]report.LACPSession, bool) {
	deadlinesMet := true

	rebootLimit := c.cfg.Params.RebootLimitSeconds
	if result != nil {
		if result.MaxDisruptTime > rebootLimit {
			c.faults.AddDevice(fmt.Sprintf("longest outage exceeded its %.0fs deadline (took %.1fs)", rebootLimit, result.MaxDisruptTime))
			deadlinesMet = false
		}
		if result.TotalDisruptTime > rebootLimit {
			c.faults.AddDevice(fmt.Sprintf("total downtime exceeded its %.0fs deadline (took %.1fs)", rebootLimit, result.TotalDisruptTime))
			deadlinesMet = false
		}
	}

	gracefulLimit := c.cfg.Params.GracefulLimitSeconds
	if elapsed := controlPlaneUp.Sub(rebootStart).Seconds(); elapsed > gracefulLimit {
		c.faults.AddDevice(fmt.Sprintf("control plane was down %.1fs, exceeding its %.0fs graceful deadline", elapsed, gracefulLimit))
		deadlinesMet = false
	}

	var sessions []report.LACPSession
	if c.cfg.Neighbors != nil {
		var err error
		sessions, err = c.cfg.Neighbors.LACPSessions(ctx)
		if err != nil {
			c.faults.AddDevice(fmt.Sprintf("neighbor telemetry collection failed: %v", err))
			deadlinesMet = false
		}
		for _, s := range sessions {
			if s.MaxGapSeconds != nil && time.Duration(*s.MaxGapSeconds*float64(time.Second)) >= lacpFlapThreshold {
				c.faults.AddDevice(fmt.Sprintf("LACP session to %s gapped %.1fs", s.IP, *s.MaxGapSeconds))
				deadlinesMet = false
			}
		}
	}
	return sessions, deadlinesMet
}

// Faults returns the device and infrastructure faults collected over
// the run.
func (c *Coordinator) Faults() *errors.Collector { return c.faults }
