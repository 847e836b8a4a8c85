// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package state implements the small, thread-safe labeled state
// container shared by the four reachability observers (dataplane,
// control plane, VLAN ARP, VLAN gateway) and read by the reboot
// coordinator. It records the current label, the timestamp of the most
// recent transition into each label, and a boolean flooding flag.
package state

import (
	"fmt"
	"sync"
	"time"

	"grimm.is/advreboot/internal/clock"
)

const (
	// Init is the label every LabeledState starts in.
	Init = "init"
	// Up, Partial, Down are the three labels the watcher's
	// classification logic drives a LabeledState through.
	Up      = "up"
	Partial = "partial"
	Down    = "down"
)

// LabeledState is a mutex-guarded label with entry-timestamp history and
// a flooding flag. It is safe for concurrent use; every operation runs
// under a single critical section.
type LabeledState struct {
	mu        sync.RWMutex
	label     string
	enteredAt map[string]time.Time
	flooding  bool
	clock     clock.Clock
}

// New returns a LabeledState initialized to Init, using clk as its time
// source (clock.Real{} in production, a clock.Mock in tests).
func New(clk clock.Clock) *LabeledState {
	s := &LabeledState{
		enteredAt: make(map[string]time.Time),
		clock:     clk,
	}
	s.Set(Init)
	return s
}

// Set records label as current and stamps its entry time. Transitions
// are unconstrained; the caller (the watcher's classification logic)
// decides which labels are reachable from which.
func (s *LabeledState) Set(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label = label
	s.enteredAt[label] = s.clock.Now()
}

// Get returns the current label.
func (s *LabeledState) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.label
}

// EnteredAt returns the timestamp of the most recent transition into
// label, and an error if label has never been entered.
func (s *LabeledState) EnteredAt(label string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.enteredAt[label]
	if !ok {
		return time.Time{}, fmt.Errorf("state: label %q was never entered", label)
	}
	return t, nil
}

// SetFlooding records the current flooding condition.
func (s *LabeledState) SetFlooding(flooding bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flooding = flooding
}

// IsFlooding reports the current flooding condition.
func (s *LabeledState) IsFlooding() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flooding
}

// Classify derives the {up, partial, down} label from the
// reachable/partial/flooding booleans the watcher computes per
// spec.md §4.2, logging (via the supplied sink, which may
// be nil) only on actual transitions and always updating the flooding
// flag, matching the original's log_*_state_change functions.
func (s *LabeledState) Classify(reachable, partial, flooding bool, onTransition func(old, new string)) {
	label := Down
	if reachable {
		label = Up
		if partial {
			label = Partial
		}
	}

	s.mu.Lock()
	old := s.label
	s.flooding = flooding
	changed := old != label
	if changed {
		s.label = label
		s.enteredAt[label] = s.clock.Now()
	}
	s.mu.Unlock()

	if changed && onTransition != nil {
		onTransition(old, label)
	}
}
