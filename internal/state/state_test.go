// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package state

import (
	"testing"
	"time"

	"grimm.is/advreboot/internal/clock"
)

func TestInitialLabel(t *testing.T) {
	s := New(clock.Real{})
	if got := s.Get(); got != Init {
		t.Errorf("Get() = %q, want %q", got, Init)
	}
}

func TestEnteredAtUnknownLabel(t *testing.T) {
	s := New(clock.Real{})
	if _, err := s.EnteredAt("never-entered"); err == nil {
		t.Fatal("expected error for unentered label")
	}
}

func TestEnteredAtNonDecreasing(t *testing.T) {
	mock := clock.NewMock(time.Unix(0, 0))
	s := New(mock)

	mock.Set(time.Unix(10, 0))
	s.Set(Up)
	first, err := s.EnteredAt(Up)
	if err != nil {
		t.Fatal(err)
	}

	mock.Set(time.Unix(5, 0))
	s.Set(Down)
	mock.Set(time.Unix(20, 0))
	s.Set(Up)
	second, err := s.EnteredAt(Up)
	if err != nil {
		t.Fatal(err)
	}

	if !second.After(first) {
		t.Errorf("second entry %v is not after first %v", second, first)
	}
}

// TestWatcherTransitionScenario implements spec.md S6: feeding the
// watcher's (t1_to_vlan, vlan_to_t1) = (10,10), (0,0), (8,10) should
// drive the dataplane label init -> up -> down -> partial with strictly
// increasing entered_at timestamps.
func TestWatcherTransitionScenario(t *testing.T) {
	const nrVLPkts, nrPCPkts = 10, 10
	mock := clock.NewMock(time.Unix(0, 0))
	s := New(mock)

	classify := func(t1ToVlan, vlanToT1 int) {
		reachable := float64(t1ToVlan) > float64(nrVLPkts)*0.7 && float64(vlanToT1) > float64(nrPCPkts)*0.7
		partial := reachable && (t1ToVlan < nrVLPkts || vlanToT1 < nrPCPkts)
		flooding := reachable && (t1ToVlan > nrVLPkts || vlanToT1 > nrPCPkts)
		s.Classify(reachable, partial, flooding, nil)
	}

	if got := s.Get(); got != Init {
		t.Fatalf("initial = %q, want %q", got, Init)
	}

	mock.Advance(time.Second)
	classify(10, 10)
	if got := s.Get(); got != Up {
		t.Fatalf("after (10,10): got %q, want %q", got, Up)
	}
	upTime, _ := s.EnteredAt(Up)

	mock.Advance(time.Second)
	classify(0, 0)
	if got := s.Get(); got != Down {
		t.Fatalf("after (0,0): got %q, want %q", got, Down)
	}
	downTime, _ := s.EnteredAt(Down)
	if !downTime.After(upTime) {
		t.Fatal("down entered_at did not increase")
	}

	mock.Advance(time.Second)
	classify(8, 10)
	if got := s.Get(); got != Partial {
		t.Fatalf("after (8,10): got %q, want %q", got, Partial)
	}
	partialTime, _ := s.EnteredAt(Partial)
	if !partialTime.After(downTime) {
		t.Fatal("partial entered_at did not increase")
	}
}

func TestFlooding(t *testing.T) {
	s := New(clock.Real{})
	if s.IsFlooding() {
		t.Fatal("new state should not be flooding")
	}
	s.SetFlooding(true)
	if !s.IsFlooding() {
		t.Fatal("expected flooding after SetFlooding(true)")
	}
}
