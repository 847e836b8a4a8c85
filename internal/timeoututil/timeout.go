// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package timeoututil provides the one generic timeout wrapper every
// blocking operation in the harness is required to go through (spec §5,
// §9): run a function on a worker goroutine, and if it hasn't returned
// within the deadline, cancel its context and report a tagged timeout
// fault instead of blocking forever.
package timeoututil

import (
	"context"
	"fmt"
	"time"
)

// Run executes fn with a context that is canceled after seconds elapse.
// If fn returns before the deadline, its value and error are returned
// unchanged. If the deadline elapses first, Run returns the zero value
// and an error identifying tag and the elapsed time; fn's context is
// canceled but Run does not wait for fn to observe the cancellation
// before returning.
func Run[T any](ctx context.Context, seconds float64, tag string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	deadline := time.Duration(seconds * float64(time.Second))
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(cctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-cctx.Done():
		return zero, fmt.Errorf("%s: timed out after %s", tag, deadline)
	}
}
