// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package probe implements the probe engine: sending the packet
// templates internal/probetpl builds onto raw AF_PACKET sockets and
// counting matching replies within a deadline. This is the
// "send_and_count" primitive the reachability watcher builds on; the
// sender loop reuses only its raw sockets (OpenSocket).
package probe

import (
	"fmt"
	"net"
	"time"

	"github.com/mdlayher/packet"
	"golang.org/x/net/bpf"
	"golang.org/x/sys/unix"
)

// Socket is the minimal raw-link interface the engine needs; it exists
// so tests can substitute an in-memory fake instead of opening a real
// AF_PACKET socket.
type Socket interface {
	Send(frame []byte) error
	SetReadDeadline(t time.Time) error
	Recv(buf []byte) (int, error)
	Close() error
}

// rawSocket wraps an mdlayher/packet.Conn bound to a single interface in
// SOCK_RAW/ETH_P_ALL mode, so it can both emit fully-formed frames
// (bypassing the kernel's normal IP stack) and observe everything
// arriving on the link, mirroring the original harness's scapy
// sendp()/sniff() pairing.
type rawSocket struct {
	conn *packet.Conn
	ifi  *net.Interface
}

// OpenSocket binds a raw socket to the named interface, receiving every
// frame that arrives on the link regardless of destination address.
func OpenSocket(ifaceName string) (Socket, error) {
	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("probe: interface %q: %w", ifaceName, err)
	}
	conn, err := packet.Listen(ifi, packet.Raw, unix.ETH_P_ALL, nil)
	if err != nil {
		return nil, fmt.Errorf("probe: listen on %q: %w", ifaceName, err)
	}
	return &rawSocket{conn: conn, ifi: ifi}, nil
}

func (s *rawSocket) Send(frame []byte) error {
	_, err := s.conn.WriteTo(frame, &packet.Addr{HardwareAddr: s.ifi.HardwareAddr})
	return err
}

func (s *rawSocket) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *rawSocket) Recv(buf []byte) (int, error) {
	n, _, err := s.conn.ReadFrom(buf)
	return n, err
}

func (s *rawSocket) Close() error {
	return s.conn.Close()
}

// SetBPF installs a classic-BPF filter on the socket. It is exposed via
// a type assertion (not the Socket interface) since it's only needed by
// the Sender's idle-filter install step.
func (s *rawSocket) SetBPF(filter []bpf.RawInstruction) error {
	return s.conn.SetBPF(filter)
}
