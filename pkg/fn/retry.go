// Package fn holds small generic helpers: bounded retries, bounded
// concurrency and slice utilities.
package fn

import (
	"context"
	"math/rand"
	"time"
)

// RetryOpts configures retry behavior.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
	// Retryable filters which errors are retried. Nil retries every error.
	Retryable func(error) bool
	// OnRetry is called before each new attempt with the failed attempt's error.
	OnRetry func(attempt int, err error)
}

// DefaultRetry provides sensible retry defaults.
var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: time.Second,
	MaxWait:     30 * time.Second,
	Jitter:      true,
}

// Retry calls f up to MaxAttempts times with exponential backoff, passing the
// zero-based attempt number. It returns the first success, the first
// non-retryable error, or the last error once attempts are exhausted.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var (
		val T
		err error
	)
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	wait := opts.InitialWait

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		val, err = f(ctx, attempt)
		if err == nil {
			return val, nil
		}
		if opts.Retryable != nil && !opts.Retryable(err) {
			return val, err
		}
		if attempt == opts.MaxAttempts-1 {
			break
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, err)
		}
		if wait <= 0 {
			if ctx.Err() != nil {
				return val, ctx.Err()
			}
			continue
		}

		sleepDur := wait
		if opts.Jitter {
			sleepDur = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if opts.MaxWait > 0 && sleepDur > opts.MaxWait {
			sleepDur = opts.MaxWait
		}

		select {
		case <-ctx.Done():
			return val, ctx.Err()
		case <-time.After(sleepDur):
		}

		wait *= 2
		if opts.MaxWait > 0 && wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
	return val, err
}
