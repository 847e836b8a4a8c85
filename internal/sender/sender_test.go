// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package sender

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"grimm.is/advreboot/internal/interlock"
	"grimm.is/advreboot/internal/probe"
)

type recordingSocket struct {
	mu    sync.Mutex
	sent  [][]byte
}

func (s *recordingSocket) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.sent = append(s.sent, cp)
	return nil
}
func (s *recordingSocket) SetReadDeadline(time.Time) error { return nil }
func (s *recordingSocket) Recv([]byte) (int, error)        { return 0, nil }
func (s *recordingSocket) Close() error                    { return nil }

func mustMAC(t *testing.T, str string) net.HardwareAddr {
	t.Helper()
	mac, err := net.ParseMAC(str)
	if err != nil {
		t.Fatalf("ParseMAC: %v", err)
	}
	return mac
}

// TestDirectionSplit implements spec.md scenario S1: with enough
// sequence numbers emitted, exactly every fifth (0,5,10,...) goes
// vlan->T1 and all others go T1->vlan.
func TestDirectionSplit(t *testing.T) {
	sock := &recordingSocket{}
	cfg := Config{
		Interlock: interlock.New(),
		VlanEndpoint: Endpoint{Iface: "eth1", MAC: mustMAC(t, "72:06:00:01:00:00"), IP: net.ParseIP("172.0.0.2")},
		T1Endpoint:   Endpoint{Iface: "eth2", MAC: mustMAC(t, "5c:01:02:03:00:00"), IP: net.ParseIP("192.168.0.2")},
		DUTMAC:       mustMAC(t, "4c:76:25:f5:48:80"),
		VlanMAC:      mustMAC(t, "00:11:22:33:44:55"),
		Interval:     time.Millisecond,
		OpenSocket:   func(string) (probe.Socket, error) { return sock, nil },
	}
	s := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	time.Sleep(30 * time.Millisecond)
	s.Stop()
	<-s.Done()
	cancel()

	sock.mu.Lock()
	defer sock.mu.Unlock()
	if len(sock.sent) < 25 {
		t.Skipf("not enough packets emitted under test timing (%d), skipping direction check", len(sock.sent))
	}
	for i := 0; i < 25; i++ {
		frame := sock.sent[i]
		dstMAC := net.HardwareAddr(frame[0:6])
		if i%5 == 0 {
			if dstMAC.String() != cfg.VlanMAC.String() {
				t.Errorf("seq %d: dst MAC = %s, want vlan_mac %s (vlan->T1)", i, dstMAC, cfg.VlanMAC)
			}
		} else {
			if dstMAC.String() != cfg.DUTMAC.String() {
				t.Errorf("seq %d: dst MAC = %s, want dut_mac %s (T1->vlan)", i, dstMAC, cfg.DUTMAC)
			}
		}
	}
}

func TestKillSnifferFiresAfterStop(t *testing.T) {
	sock := &recordingSocket{}
	cfg := Config{
		Interlock:    interlock.New(),
		VlanEndpoint: Endpoint{Iface: "eth1", MAC: mustMAC(t, "72:06:00:01:00:00"), IP: net.ParseIP("172.0.0.2")},
		T1Endpoint:   Endpoint{Iface: "eth2", MAC: mustMAC(t, "5c:01:02:03:00:00"), IP: net.ParseIP("192.168.0.2")},
		DUTMAC:       mustMAC(t, "4c:76:25:f5:48:80"),
		VlanMAC:      mustMAC(t, "00:11:22:33:44:55"),
		Interval:     time.Millisecond,
		OpenSocket:   func(string) (probe.Socket, error) { return sock, nil },
	}
	s := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	time.Sleep(5 * time.Millisecond)
	s.Stop()

	select {
	case <-s.KillSniffer():
	case <-time.After(2 * time.Second):
		t.Fatal("kill_sniffer never fired")
	}
}
