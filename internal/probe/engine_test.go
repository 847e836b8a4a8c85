// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probe

import (
	"context"
	"sync"
	"testing"
	"time"

	"grimm.is/advreboot/internal/probetpl"
)

// fakeSocket is an in-memory Socket: Send on one end appends to a shared
// buffer that the paired fakeSocket's Recv drains, letting tests exercise
// the engine's send/listen plumbing without opening real AF_PACKET
// sockets.
type fakeSocket struct {
	mu   sync.Mutex
	cond *sync.Cond
	inbox [][]byte
	closed bool
}

func newFakeSocket() *fakeSocket {
	s := &fakeSocket{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *fakeSocket) deliver(frame []byte) {
	s.mu.Lock()
	s.inbox = append(s.inbox, frame)
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *fakeSocket) Send(frame []byte) error { return nil }

func (s *fakeSocket) SetReadDeadline(t time.Time) error { return nil }

func (s *fakeSocket) Recv(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.inbox) == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && len(s.inbox) == 0 {
		return 0, context.Canceled
	}
	frame := s.inbox[0]
	s.inbox = s.inbox[1:]
	n := copy(buf, frame)
	return n, nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	return nil
}

func TestSendAndCountMatchesDeliveredFrame(t *testing.T) {
	listen := newFakeSocket()
	sockets := map[string]Socket{
		"send0":   newFakeSocket(),
		"listen0": listen,
	}
	e := newWithOpener(nil, func(name string) (Socket, error) { return sockets[name], nil })
	defer e.Close()

	class := probetpl.ProbeClass{
		Name:    "test_class",
		Packets: []probetpl.ProbePacket{{Iface: "send0", Bytes: []byte{1, 2, 3}}},
		Expect:  probetpl.ExpectedMask{Template: []byte{9, 9}},
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		listen.deliver([]byte{9, 9, 0, 0})
		listen.deliver([]byte{1, 1, 0, 0})
		time.Sleep(20 * time.Millisecond)
		listen.Close()
	}()

	counts, err := e.SendAndCount(context.Background(), []Job{{Class: class, ListenIfaces: []string{"listen0"}}}, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("SendAndCount: %v", err)
	}
	if counts["test_class"] != 1 {
		t.Errorf("counts[test_class] = %d, want 1", counts["test_class"])
	}
}

func TestSendAndCountNoMatches(t *testing.T) {
	listen := newFakeSocket()
	sockets := map[string]Socket{"send0": newFakeSocket(), "listen0": listen}
	e := newWithOpener(nil, func(name string) (Socket, error) { return sockets[name], nil })
	defer e.Close()

	class := probetpl.ProbeClass{
		Name:    "empty_class",
		Packets: []probetpl.ProbePacket{{Iface: "send0", Bytes: []byte{1}}},
		Expect:  probetpl.ExpectedMask{Template: []byte{9, 9}},
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		listen.Close()
	}()
	counts, err := e.SendAndCount(context.Background(), []Job{{Class: class, ListenIfaces: []string{"listen0"}}}, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("SendAndCount: %v", err)
	}
	if counts["empty_class"] != 0 {
		t.Errorf("counts[empty_class] = %d, want 0", counts["empty_class"])
	}
}
