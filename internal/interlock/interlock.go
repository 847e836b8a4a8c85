// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package interlock implements the single mutual-exclusion primitive
// spec.md §5 names: the dataplane_interlock shared between the
// Reachability Watcher's dataplane probe and the Sender. The Watcher
// acquires non-blockingly and skips its probe on contention; the Sender
// acquires blockingly and holds the interlock for its entire run.
package interlock

// Interlock is a one-slot mutual-exclusion gate implemented with a
// buffered channel: a full channel means the slot is free, an empty one
// means it is held.
type Interlock struct {
	slot chan struct{}
}

// New returns a free Interlock.
func New() *Interlock {
	l := &Interlock{slot: make(chan struct{}, 1)}
	l.slot <- struct{}{}
	return l
}

// TryAcquire attempts to take the slot without blocking, returning
// false on contention. Used by the Watcher: "if it can immediately
// acquire the dataplane interlock... If not acquired, skip."
func (l *Interlock) TryAcquire() bool {
	select {
	case <-l.slot:
		return true
	default:
		return false
	}
}

// Acquire blocks until the slot is free. Used by the Sender, which
// "acquires the dataplane interlock for the duration of its run."
func (l *Interlock) Acquire() {
	<-l.slot
}

// Release returns the slot. Calling Release without a matching acquire
// blocks until some other caller takes the slot, since the channel has
// capacity 1 and is already full.
func (l *Interlock) Release() {
	l.slot <- struct{}{}
}
