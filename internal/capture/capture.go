// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package capture implements the Capture component: it records every
// packet matching a narrow BPF filter on every dataplane interface into
// a single pcap file, from setup until either the Sender's kill_sniffer
// signal or a wall-clock ceiling, whichever comes first.
//
// SPEC_FULL.md documents a deliberate deviation from the original
// harness here: rather than shelling out to dumpcap and polling for its
// output file to appear, Capture opens gopacket/pcap live handles
// in-process and writes a merged pcapgo stream itself. Every externally
// observable behavior — the readiness signal, the kill_sniffer race, the
// wall-clock ceiling, graceful-then-forced termination — is preserved.
package capture

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/pcap"
	"github.com/gopacket/gopacket/pcapgo"

	"grimm.is/advreboot/internal/logging"
)

// Filter is the exact BPF text spec.md §6 specifies for Capture.
const Filter = "tcp and tcp dst port 5000 and tcp src port 1234 and not icmp"

const snaplen = 262144

// gracefulTimeout bounds how long Run waits for live handles to close
// cleanly before abandoning them (spec.md §4.5's "5s" forced-kill bound).
const gracefulTimeout = 5 * time.Second

// Config wires a Capture run.
type Config struct {
	Logger     *logging.Logger
	Interfaces []string
	OutputPath string
}

// Capture owns the pcap file for the duration of one run.
type Capture struct {
	cfg Config

	readyCh chan struct{}
	doneCh  chan struct{}
	killCh  chan struct{}

	mu        sync.Mutex
	sawPacket bool
}

// New constructs a Capture for cfg. Callers must call Run exactly once.
func New(cfg Config) *Capture {
	return &Capture{
		cfg:     cfg,
		readyCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
		killCh:  make(chan struct{}, 1),
	}
}

// Ready signals once the pcap file exists and every interface handle is
// open and filtered — the event the Sender waits on before emitting its
// first packet (spec.md §5's Capture-starts-before-Sender ordering
// guarantee).
func (c *Capture) Ready() <-chan struct{} { return c.readyCh }

// Done signals once Run has returned.
func (c *Capture) Done() <-chan struct{} { return c.doneCh }

// Kill requests Run stop recording; it is wired to the Sender's
// kill_sniffer event.
func (c *Capture) Kill() {
	select {
	case c.killCh <- struct{}{}:
	default:
	}
}

// SawPacket reports whether at least one packet was ever recorded,
// feeding the "Capture produced no traffic at all" infrastructure fault
// (spec.md §7).
func (c *Capture) SawPacket() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sawPacket
}

// Run opens a live handle per interface, merges their packet streams
// into a single pcap at cfg.OutputPath, and records until ctx is
// cancelled, Kill is called, or ceiling elapses.
func (c *Capture) Run(ctx context.Context, ceiling time.Duration) error {
	defer close(c.doneCh)

	f, err := os.Create(c.cfg.OutputPath)
	if err != nil {
		return fmt.Errorf("capture: create %q: %w", c.cfg.OutputPath, err)
	}
	defer f.Close()

	writer := pcapgo.NewWriter(f)
	if err := writer.WriteFileHeader(snaplen, gopacket.LinkTypeEthernet); err != nil {
		return fmt.Errorf("capture: write pcap header: %w", err)
	}

	handles := make([]*pcap.Handle, 0, len(c.cfg.Interfaces))
	defer func() {
		closeHandles(handles, c.cfg.Logger)
	}()

	frames := make(chan capturedFrame, 4096)

	for _, iface := range c.cfg.Interfaces {
		handle, err := pcap.OpenLive(iface, snaplen, true, pcap.BlockForever)
		if err != nil {
			return fmt.Errorf("capture: open live handle on %q: %w", iface, err)
		}
		if err := handle.SetBPFFilter(Filter); err != nil {
			handle.Close()
			return fmt.Errorf("capture: set filter on %q: %w", iface, err)
		}
		handles = append(handles, handle)

		go func(iface string, h *pcap.Handle) {
			for {
				data, ci, err := h.ReadPacketData()
				if err != nil {
					return
				}
				select {
				case frames <- capturedFrame{data: data, ci: ci}:
				case <-ctx.Done():
					return
				}
			}
		}(iface, handle)
	}

	close(c.readyCh)

	ceilingTimer := time.NewTimer(ceiling)
	defer ceilingTimer.Stop()

	var writeErr error
	for {
		select {
		case fr := <-frames:
			if err := writer.WritePacket(fr.ci, fr.data); err != nil {
				writeErr = err
				continue
			}
			c.mu.Lock()
			c.sawPacket = true
			c.mu.Unlock()
		case <-c.killCh:
			c.drainAndStop(frames, writer)
			return writeErr
		case <-ceilingTimer.C:
			c.drainAndStop(frames, writer)
			return writeErr
		case <-ctx.Done():
			c.drainAndStop(frames, writer)
			return ctx.Err()
		}
	}
}

// capturedFrame is one packet pulled off a live handle, queued for the
// merge loop to write in arrival order.
type capturedFrame struct {
	data []byte
	ci   gopacket.CaptureInfo
}

// drainAndStop flushes any frames already queued before returning, so a
// burst that arrived right at the termination boundary isn't lost.
func (c *Capture) drainAndStop(frames chan capturedFrame, writer *pcapgo.Writer) {
	for {
		select {
		case fr := <-frames:
			if err := writer.WritePacket(fr.ci, fr.data); err == nil {
				c.mu.Lock()
				c.sawPacket = true
				c.mu.Unlock()
			}
		default:
			return
		}
	}
}

// closeHandles closes every live handle, logging (rather than blocking
// indefinitely) if any one takes longer than gracefulTimeout — pcap's
// Close can block on the kernel socket teardown.
func closeHandles(handles []*pcap.Handle, logger *logging.Logger) {
	var wg sync.WaitGroup
	for _, h := range handles {
		wg.Add(1)
		go func(h *pcap.Handle) {
			defer wg.Done()
			h.Close()
		}(h)
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(gracefulTimeout):
		if logger != nil {
			logger.Warn("capture: live handles did not close within grace period, abandoning")
		}
	}
}
