// Package retry holds the backoff helper the tally reconciler uses to
// ride out transient database errors during a recompute.
package retry

import (
	"context"
	"time"
)

// DoWithRetry runs fn up to attempts times, doubling the delay between
// tries. Returns the last error when every attempt fails, or the
// context error if the context is canceled first.
func DoWithRetry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < attempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err = fn(); err == nil {
			return nil
		}

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
