// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package probe

import (
	"context"
	"sync"
	"time"

	"grimm.is/advreboot/internal/logging"
	"grimm.is/advreboot/internal/probetpl"
)

// Job pairs one probe class with the set of interfaces a matching reply
// may arrive on. Send and listen interfaces are specified separately
// because a reply to a probe entering on a VLAN port legitimately exits
// on a T1 port, and vice versa.
type Job struct {
	Class        probetpl.ProbeClass
	ListenIfaces []string
}

// Engine owns the raw sockets send_and_count opens and reuses across
// calls, keyed by interface name, so repeated ticks of the reachability
// watcher don't pay bind/listen overhead every 0.5s.
type Engine struct {
	logger  *logging.Logger
	open    func(string) (Socket, error)
	mu      sync.Mutex
	sockets map[string]Socket
}

// New constructs an Engine that opens real AF_PACKET sockets.
func New(logger *logging.Logger) *Engine {
	return &Engine{logger: logger, open: OpenSocket, sockets: map[string]Socket{}}
}

// newWithOpener is used by tests to inject a fake socket opener.
func newWithOpener(logger *logging.Logger, open func(string) (Socket, error)) *Engine {
	return &Engine{logger: logger, open: open, sockets: map[string]Socket{}}
}

func (e *Engine) socketFor(iface string) (Socket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.sockets[iface]; ok {
		return s, nil
	}
	s, err := e.open(iface)
	if err != nil {
		return nil, err
	}
	e.sockets[iface] = s
	return s, nil
}

// Close releases every socket the engine has opened.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for iface, s := range e.sockets {
		if err := s.Close(); err != nil && e.logger != nil {
			e.logger.Warn("closing probe socket", "iface", iface, "error", err)
		}
	}
	e.sockets = map[string]Socket{}
}

// SendAndCount emits every packet in each job's probe class and counts,
// per class name, how many frames observed on that job's listen
// interfaces within window match the class's ExpectedMask. It is the
// "send_and_count" contract spec.md §4.2 describes for the probe
// engine: a single fire-then-listen round trip shared by the
// reachability watcher's per-tick probes.
func (e *Engine) SendAndCount(ctx context.Context, jobs []Job, window time.Duration) (map[string]int, error) {
	counts := make(map[string]int, len(jobs))
	var mu sync.Mutex

	listenCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	var wg sync.WaitGroup
	for _, job := range jobs {
		job := job
		for _, iface := range job.ListenIfaces {
			sock, err := e.socketFor(iface)
			if err != nil {
				return nil, err
			}
			wg.Add(1)
			go func(sock Socket, job Job) {
				defer wg.Done()
				n := e.countMatches(listenCtx, sock, job.Class.Expect)
				mu.Lock()
				counts[job.Class.Name] += n
				mu.Unlock()
			}(sock, job)
		}
	}

	for _, job := range jobs {
		for _, pkt := range job.Class.Packets {
			sock, err := e.socketFor(pkt.Iface)
			if err != nil {
				return nil, err
			}
			if err := sock.Send(pkt.Bytes); err != nil && e.logger != nil {
				e.logger.Warn("probe send failed", "iface", pkt.Iface, "class", job.Class.Name, "error", err)
			}
		}
	}

	wg.Wait()
	return counts, nil
}

func (e *Engine) countMatches(ctx context.Context, sock Socket, expect probetpl.ExpectedMask) int {
	deadline, _ := ctx.Deadline()
	if err := sock.SetReadDeadline(deadline); err != nil && e.logger != nil {
		e.logger.Warn("set read deadline failed", "error", err)
	}
	buf := make([]byte, 65536)
	count := 0
	for {
		select {
		case <-ctx.Done():
			return count
		default:
		}
		n, err := sock.Recv(buf)
		if err != nil {
			return count
		}
		if expect.Match(buf[:n]) {
			count++
		}
	}
}
