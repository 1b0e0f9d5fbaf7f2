// Package poller runs fixed-interval polling with a terminal predicate and a
// hard wall-clock timeout.
//
// Reaching the timeout is not an error: Poll resolves with the last value it
// saw and TimedOut set, leaving it to the caller to decide what a job that is
// still running after the deadline means. Cancellation of ctx is an error.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Result is the outcome of a Poll call.
type Result[T any] struct {
	// Value is the last successfully fetched value.
	Value T
	// Attempts counts fetches, failed ones included.
	Attempts int
	// Elapsed is measured from the first fetch.
	Elapsed time.Duration
	// TimedOut is set when the deadline passed before done reported true.
	TimedOut bool
}

// Poll calls fetch immediately and then every interval until done reports
// true, the timeout elapses, ctx is canceled or fetch fails too often.
func Poll[T any](
	ctx context.Context,
	fetch func(context.Context) (T, error),
	done func(T) bool,
	opts ...Option[T],
) (Result[T], error) {
	cfg := config[T]{
		interval:  DefaultInterval,
		timeout:   DefaultTimeout,
		maxErrors: DefaultMaxErrors,
		clock:     RealClock{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if fetch == nil || done == nil {
		return Result[T]{}, fmt.Errorf("%w: fetch and done are required", ErrInvalidConfig)
	}

	var res Result[T]
	start := cfg.clock.Now()
	deadline := start.Add(cfg.timeout)
	consecutive := 0

	for {
		if err := ctx.Err(); err != nil {
			res.Elapsed = cfg.clock.Now().Sub(start)
			return res, fmt.Errorf("%w: %w", ErrCanceled, err)
		}

		res.Attempts++
		v, expired, err := fetchBefore(ctx, fetch, deadline.Sub(cfg.clock.Now()))
		if expired {
			res.Elapsed = cfg.clock.Now().Sub(start)
			res.TimedOut = true
			return res, nil
		}
		switch {
		case err == nil:
			consecutive = 0
			res.Value = v
			if cfg.observer != nil {
				cfg.observer(v)
			}
			if done(v) {
				res.Elapsed = cfg.clock.Now().Sub(start)
				return res, nil
			}
		case ctx.Err() != nil:
			res.Elapsed = cfg.clock.Now().Sub(start)
			return res, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
		case cfg.permanent != nil && cfg.permanent(err):
			res.Elapsed = cfg.clock.Now().Sub(start)
			return res, err
		default:
			consecutive++
			if cfg.onError != nil {
				cfg.onError(err, consecutive)
			}
			if consecutive > cfg.maxErrors {
				res.Elapsed = cfg.clock.Now().Sub(start)
				return res, fmt.Errorf("%w (%d): %w", ErrTooManyErrors, consecutive, err)
			}
		}

		now := cfg.clock.Now()
		remaining := deadline.Sub(now)
		if remaining <= 0 {
			res.Elapsed = now.Sub(start)
			res.TimedOut = true
			return res, nil
		}

		wait := min(cfg.interval, remaining)
		select {
		case <-ctx.Done():
			res.Elapsed = cfg.clock.Now().Sub(start)
			return res, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
		case <-cfg.clock.After(wait):
		}

		if now = cfg.clock.Now(); !now.Before(deadline) {
			res.Elapsed = now.Sub(start)
			res.TimedOut = true
			return res, nil
		}
	}
}

type outcome[T any] struct {
	v   T
	err error
}

// fetchBefore runs fetch with a context that ends after remaining. expired
// reports that the bound passed first; the fetch is then abandoned. The bound
// uses the runtime timer so a fetch stuck on the network cannot outlive the
// deadline.
func fetchBefore[T any](
	ctx context.Context,
	fetch func(context.Context) (T, error),
	remaining time.Duration,
) (T, bool, error) {
	var zero T
	if remaining <= 0 {
		return zero, true, nil
	}
	fctx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()

	ch := make(chan outcome[T], 1)
	go func() {
		v, err := fetch(fctx)
		ch <- outcome[T]{v: v, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil && ctx.Err() == nil && errors.Is(fctx.Err(), context.DeadlineExceeded) {
			return zero, true, nil
		}
		return o.v, false, o.err
	case <-fctx.Done():
		if ctx.Err() != nil {
			return zero, false, ctx.Err()
		}
		select {
		case o := <-ch:
			if o.err == nil {
				return o.v, false, nil
			}
		default:
		}
		return zero, true, nil
	}
}
