// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package reboot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/advreboot/internal/analyzer"
	"grimm.is/advreboot/internal/clock"
	"grimm.is/advreboot/internal/config"
	"grimm.is/advreboot/internal/report"
	"grimm.is/advreboot/internal/state"
)

type fakeRemote struct {
	rebootErr error
}

func (f *fakeRemote) SnapshotCounters(ctx context.Context) (map[string]uint64, error) {
	return map[string]uint64{"eth0": 100}, nil
}

func (f *fakeRemote) TriggerReboot(ctx context.Context, rebootType config.RebootType) error {
	return f.rebootErr
}

type fakeNeighbors struct {
	sessions []report.LACPSession
	err      error
}

func (f *fakeNeighbors) LACPSessions(ctx context.Context) ([]report.LACPSession, error) {
	return f.sessions, f.err
}

func testParams() config.Config {
	p := config.Default()
	p.DutStabilizeSecs = 0.05
	p.WarmUpTimeoutSecs = 1
	p.ControlPlaneDownTimeoutSecs = 1
	p.TaskTimeoutSecs = 1
	return p
}

func TestWaitWarmUpSucceedsWhenBothUpAndStable(t *testing.T) {
	dp := state.New(clock.Real{})
	cp := state.New(clock.Real{})
	dp.Set(state.Up)
	cp.Set(state.Up)

	c := New(Config{
		Params:            testParams(),
		DataplaneState:    dp,
		ControlPlaneState: cp,
	})
	err := c.waitWarmUp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseWarmingUp, c.Phase()) // Run() itself advances past this; waitWarmUp alone doesn't
}

func TestWaitWarmUpFailsOnFlapAwayFromUp(t *testing.T) {
	dp := state.New(clock.Real{})
	cp := state.New(clock.Real{})
	dp.Set(state.Up)
	cp.Set(state.Up)

	params := testParams()
	params.DutStabilizeSecs = 5 // long enough that the flap below lands mid-window

	c := New(Config{
		Params:            params,
		DataplaneState:    dp,
		ControlPlaneState: cp,
	})

	go func() {
		time.Sleep(2 * pollInterval)
		dp.Set(state.Down)
	}()

	err := c.waitWarmUp(context.Background())
	assert.Error(t, err)
}

func TestWaitWarmUpTimesOutWhenNeverUp(t *testing.T) {
	dp := state.New(clock.Real{})
	cp := state.New(clock.Real{})

	c := New(Config{
		Params:            testParams(),
		DataplaneState:    dp,
		ControlPlaneState: cp,
	})
	err := c.waitWarmUp(context.Background())
	assert.Error(t, err)
}

func TestWaitControlPlaneResolvesOnMatch(t *testing.T) {
	cp := state.New(clock.Real{})
	c := New(Config{Params: testParams(), ControlPlaneState: cp})

	go func() {
		time.Sleep(2 * pollInterval)
		cp.Set(state.Down)
	}()

	start := time.Now()
	got, err := c.waitControlPlane(context.Background(), state.Down, 1)
	require.NoError(t, err)
	assert.WithinDuration(t, start, got, time.Second)
}

func TestEvaluateDeadlinesFlagsLACPFlap(t *testing.T) {
	gap := 200.0
	c := New(Config{
		Params:    testParams(),
		Neighbors: &fakeNeighbors{sessions: []report.LACPSession{{IP: "10.0.0.1", MaxGapSeconds: &gap}}},
	})
	now := time.Now()
	sessions, ok := c.evaluateDeadlines(context.Background(), now, now, nil)
	assert.False(t, ok)
	assert.Len(t, sessions, 1)
	assert.True(t, c.Faults().HasFaults())
}

func TestEvaluateDeadlinesCleanWhenNoNeighborIssues(t *testing.T) {
	gap := 1.0
	c := New(Config{
		Params:    testParams(),
		Neighbors: &fakeNeighbors{sessions: []report.LACPSession{{IP: "10.0.0.1", MaxGapSeconds: &gap}}},
	})
	now := time.Now()
	_, ok := c.evaluateDeadlines(context.Background(), now, now, nil)
	assert.True(t, ok)
	assert.False(t, c.Faults().HasFaults())
}

func TestEvaluateDeadlinesFlagsExceededOutageDuration(t *testing.T) {
	params := testParams()
	params.RebootType = config.FastReboot
	params.RebootLimitSeconds = 0.01
	c := New(Config{Params: params})
	now := time.Now()
	_, ok := c.evaluateDeadlines(context.Background(), now, now, &analyzer.Result{MaxDisruptTime: 1.5})
	assert.False(t, ok)
	assert.True(t, c.Faults().HasFaults())
}

func TestEvaluateDeadlinesFlagsExceededTotalDowntime(t *testing.T) {
	params := testParams()
	params.RebootType = config.FastReboot
	params.RebootLimitSeconds = 0.01
	c := New(Config{Params: params})
	now := time.Now()
	_, ok := c.evaluateDeadlines(context.Background(), now, now, &analyzer.Result{TotalDisruptTime: 1.5})
	assert.False(t, ok)
}

func TestEvaluateDeadlinesFlagsExceededGracefulWindow(t *testing.T) {
	params := testParams()
	params.GracefulLimitSeconds = 0.01
	c := New(Config{Params: params})
	rebootStart := time.Now()
	controlPlaneUp := rebootStart.Add(time.Second)
	_, ok := c.evaluateDeadlines(context.Background(), rebootStart, controlPlaneUp, nil)
	assert.False(t, ok)
}
