// Package backoffx centralizes the retry policy used by the keepalive
// emitter. Spec.md §4.1 leaves exponential
// backoff "the responsibility of the surrounding supervisor"; this package
// is that supervisor-level policy, shared so every caller backs off
// identically.
package backoffx

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy returns the standard retry policy: the library's default
// exponential backoff settings, with no overall time limit (the caller's
// context governs cancellation).
func Policy() backoff.BackOff {
	return backoff.NewExponentialBackOff()
}

// RetryNotify runs op with exponential backoff until it succeeds, ctx is
// cancelled, or maxElapsed passes. notify is called (possibly) on every
// failed attempt with the error and the delay before the next try.
func RetryNotify(ctx context.Context, maxElapsed time.Duration, op func() error, notify func(err error, next time.Duration)) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			if notify != nil {
				notify(err, next)
			}
		}),
	)
	return err
}
