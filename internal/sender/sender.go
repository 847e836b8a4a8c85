// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package sender implements the Sender: once Capture is ready, it holds
// the dataplane interlock and emits a mixed stream of T1->vlan and
// vlan->T1 tagged TCP packets at a fixed interval, each carrying a
// monotonically increasing sequence number as its payload tail.
package sender

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"golang.org/x/net/bpf"

	"grimm.is/advreboot/internal/interlock"
	"grimm.is/advreboot/internal/logging"
	"grimm.is/advreboot/internal/probe"
	"grimm.is/advreboot/internal/probetpl"
)

// DefaultInterval is the 3.5ms inter-packet tick spec.md §4.4 specifies.
const DefaultInterval = 3500 * time.Microsecond

// payloadPrefixLen is the fixed 60-byte zero prefix spec.md §6 requires
// before the decimal sequence number.
const payloadPrefixLen = 60

// Endpoint is one simulated host the Sender originates packets from:
// the interface it sends on and the source MAC/IP it uses.
type Endpoint struct {
	Iface   string
	MAC     net.HardwareAddr
	IP      net.IP
}

// Config wires a Sender to a single run's addressing and timing.
type Config struct {
	Logger    *logging.Logger
	Interlock *interlock.Interlock

	// VlanEndpoint originates vlan->T1 packets; T1Endpoint originates
	// T1->vlan packets.
	VlanEndpoint Endpoint
	T1Endpoint   Endpoint

	DUTMAC  net.HardwareAddr
	VlanMAC net.HardwareAddr

	// DataplaneIfaces lists every interface the idle BPF filter is
	// installed on for the run's duration (spec.md §4.4 step 1).
	DataplaneIfaces []string

	Interval time.Duration

	OpenSocket func(string) (probe.Socket, error)
}

// Sender emits the tagged sequence stream described by spec.md §3's
// SequenceStream entity.
type Sender struct {
	cfg      Config
	sent     int
	killCh   chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New constructs a Sender from cfg, defaulting Interval and OpenSocket
// when unset.
func New(cfg Config) *Sender {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.OpenSocket == nil {
		cfg.OpenSocket = probe.OpenSocket
	}
	return &Sender{
		cfg:    cfg,
		killCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
}

// Stop requests the send loop end at the next iteration boundary.
func (s *Sender) Stop() {
	select {
	case s.stopCh <- struct{}{}:
	default:
	}
}

// KillSniffer signals once the Sender has drained and is done, the
// event Capture's supervising thread polls for (spec.md §4.5).
func (s *Sender) KillSniffer() <-chan struct{} { return s.killCh }

// Done signals once Run has returned.
func (s *Sender) Done() <-chan struct{} { return s.doneCh }

// SentCount returns the number of packets emitted so far; stable once
// Done has fired.
func (s *Sender) SentCount() int { return s.sent }

// Run acquires the dataplane interlock, installs the idle filter on
// every dataplane interface, then loops emitting the tagged stream until
// Stop is called or ctx is cancelled. It mirrors spec.md §4.4 exactly:
// direction by seq%5, sleep Interval per iteration, a 1s drain before
// signalling kill_sniffer.
func (s *Sender) Run(ctx context.Context) error {
	defer close(s.doneCh)

	s.cfg.Interlock.Acquire()
	defer s.cfg.Interlock.Release()

	filter, err := idleFilter()
	if err != nil {
		return fmt.Errorf("sender: compile idle filter: %w", err)
	}
	idleSockets := make(map[string]probe.Socket, len(s.cfg.DataplaneIfaces))
	for _, iface := range s.cfg.DataplaneIfaces {
		sock, err := s.cfg.OpenSocket(iface)
		if err != nil {
			return fmt.Errorf("sender: open %q: %w", iface, err)
		}
		if setter, ok := sock.(interface{ SetBPF([]bpf.RawInstruction) error }); ok {
			if err := setter.SetBPF(filter); err != nil && s.cfg.Logger != nil {
				s.cfg.Logger.Warn("install idle filter failed", "iface", iface, "error", err)
			}
		}
		idleSockets[iface] = sock
	}
	defer func() {
		for _, sock := range idleSockets {
			sock.Close()
		}
	}()

	sendSockets := map[string]probe.Socket{}
	sendOn := func(iface string) (probe.Socket, error) {
		if sock, ok := sendSockets[iface]; ok {
			return sock, nil
		}
		sock, ok := idleSockets[iface]
		if !ok {
			var err error
			sock, err = s.cfg.OpenSocket(iface)
			if err != nil {
				return nil, err
			}
		}
		sendSockets[iface] = sock
		return sock, nil
	}

	seq := 0
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drainAndKill()
			s.sent = seq
			return ctx.Err()
		case <-s.stopCh:
			s.sent = seq
			s.drainAndKill()
			return nil
		case <-ticker.C:
			if err := s.emit(seq, sendOn); err != nil {
				if s.cfg.Logger != nil {
					s.cfg.Logger.Warn("sender emit failed", "seq", seq, "error", err)
				}
			}
			seq++
		}
	}
}

func (s *Sender) emit(seq int, sendOn func(string) (probe.Socket, error)) error {
	payload := make([]byte, payloadPrefixLen+len(strconv.Itoa(seq)))
	copy(payload[payloadPrefixLen:], strconv.Itoa(seq))

	var ep Endpoint
	var dstMAC net.HardwareAddr
	var dstIP net.IP
	var ttl uint8
	if seq%5 == 0 {
		ep = s.cfg.VlanEndpoint
		dstMAC = s.cfg.VlanMAC
		dstIP = s.cfg.T1Endpoint.IP
		ttl = 64
	} else {
		ep = s.cfg.T1Endpoint
		dstMAC = s.cfg.DUTMAC
		dstIP = s.cfg.VlanEndpoint.IP
		ttl = 255
	}

	frame, err := probetpl.BuildTCPPacket(ep.MAC, dstMAC, ep.IP, dstIP, ttl, 0, 0, payload)
	if err != nil {
		return err
	}
	sock, err := sendOn(ep.Iface)
	if err != nil {
		return err
	}
	return sock.Send(frame)
}

// drainAndKill sleeps 1s to let in-flight packets be captured, then
// signals kill_sniffer (spec.md §4.4 step 3).
func (s *Sender) drainAndKill() {
	time.Sleep(1 * time.Second)
	select {
	case s.killCh <- struct{}{}:
	default:
	}
}
