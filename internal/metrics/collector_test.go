// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"grimm.is/advreboot/internal/analyzer"
	"grimm.is/advreboot/internal/clock"
	"grimm.is/advreboot/internal/state"
)

func TestSetReachabilityEncodesLabels(t *testing.T) {
	reg := NewRegistry()
	reg.SetReachability("dataplane", state.Up, false)
	if got := testutil.ToFloat64(reg.ReachabilityState.WithLabelValues("dataplane")); got != stateValueUp {
		t.Errorf("ReachabilityState = %v, want %v", got, stateValueUp)
	}

	reg.SetReachability("dataplane", state.Partial, true)
	if got := testutil.ToFloat64(reg.ReachabilityState.WithLabelValues("dataplane")); got != stateValuePartial {
		t.Errorf("ReachabilityState = %v, want %v", got, stateValuePartial)
	}
	if got := testutil.ToFloat64(reg.Flooding.WithLabelValues("dataplane")); got != 1 {
		t.Errorf("Flooding = %v, want 1", got)
	}
}

func TestCollectorRunSamplesUntilStopped(t *testing.T) {
	reg := NewRegistry()
	dp := state.New(clock.Real{})
	dp.Set(state.Up)

	c := NewCollector(reg, nil, []Dimension{{Name: "dataplane", State: dp}})
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	time.Sleep(10 * time.Millisecond)
	cancel()
	<-c.doneCh

	if got := testutil.ToFloat64(reg.ReachabilityState.WithLabelValues("dataplane")); got != stateValueUp {
		t.Errorf("ReachabilityState = %v, want %v", got, stateValueUp)
	}
}

func TestRecordAnalysisUpdatesCounters(t *testing.T) {
	reg := NewRegistry()
	c := NewCollector(reg, nil, nil)
	c.RecordAnalysis(&analyzer.Result{SentCounter: 100, TotalDisruptPackets: 10, MaxDisruptTime: 0.1, TotalDisruptTime: 0.1})

	if got := testutil.ToFloat64(reg.PacketsReceived); got != 90 {
		t.Errorf("PacketsReceived = %v, want 90", got)
	}
	if got := testutil.ToFloat64(reg.PacketsLost); got != 10 {
		t.Errorf("PacketsLost = %v, want 10", got)
	}
	if got := testutil.ToFloat64(reg.MaxDisruptSeconds); got != 0.1 {
		t.Errorf("MaxDisruptSeconds = %v, want 0.1", got)
	}
}
