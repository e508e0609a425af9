package retry

import (
	"context"
	"errors"
	"time"
)

var ErrRetry = errors.New("retry")

// Backoff is a (blocking) function returns when to retry.
//
// # Args
//
// - context: context. If context is canceled, Backoff should return ctx.Err().
//
// # Returns
//
// - error: nil if retry, non-nil if not.
type Backoff func(context.Context) error

// StaticBackoff returns a Backoff function that waits for a fixed interval.
var StaticBackoff = func(interval time.Duration) Backoff {
	return ExponentialBackoff(interval, 1)
}

// ExponentialBackoff returns a Backoff function that waits with exponential backoff.
//
// # Args
//
// - initialInterval: initial interval.
//
// - r: multiplier of interval.
//
// # Returns
//
// Backoff function.
// For N-th call, it waits for `initialInterval * r^N` or context to be done.
var ExponentialBackoff = func(initialInterval time.Duration, r float64) Backoff {
	interval := initialInterval
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer func() {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			i := float64(interval) * r
			interval = time.Duration(int64(i))
			return nil
		}
	}
}

// NoBackoff returns a Backoff which never waits (beyond a context check).
//
// The first attempt of a retried operation should not pay the initial
// interval; wrap a Backoff with SkipFirst for that.
func NoBackoff() Backoff {
	return func(ctx context.Context) error {
		return ctx.Err()
	}
}

// SkipFirst wraps b so that its first invocation returns immediately.
func SkipFirst(b Backoff) Backoff {
	first := true
	return func(ctx context.Context) error {
		if first {
			first = false
			return ctx.Err()
		}
		return b(ctx)
	}
}

// Blocking calls f until it returns nil or non-retry error,
// or at most limit times when limit > 0.
//
// # Args
//
// - ctx: context
//
// - b: backoff function, called before each attempt
//
// - limit: max attempts. Non-positive limit means unbounded.
//
// - f: function to be called. If f returns ErrRetry (possibly wrapped),
// Blocking calls f again after backoff.
//
// # Returns
//
// - T: last return value of f
//
// - error: error returned by f
func Blocking[T any](ctx context.Context, b Backoff, limit int, f func() (T, error)) (T, error) {
	last := *new(T)
	var lastErr error
	for attempt := 0; limit <= 0 || attempt < limit; attempt++ {
		if err := b(ctx); err != nil {
			return last, err
		}

		last, lastErr = f()
		if lastErr == nil {
			return last, nil
		}
		if errors.Is(lastErr, ErrRetry) {
			continue
		}
		return last, lastErr
	}
	return last, lastErr
}
