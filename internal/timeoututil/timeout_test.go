// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package timeoututil

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunReturnsBeforeDeadline(t *testing.T) {
	got, err := Run(context.Background(), 1, "quick", func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("got %d, want 42", got)
	}
}

func TestRunPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	_, err := Run(context.Background(), 1, "erroring", func(ctx context.Context) (int, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want %v", err, wantErr)
	}
}

func TestRunTimesOut(t *testing.T) {
	_, err := Run(context.Background(), 0.05, "slow-thing", func(ctx context.Context) (int, error) {
		select {
		case <-time.After(2 * time.Second):
			return 1, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}
