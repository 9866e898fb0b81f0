package retry

import (
	"context"
	"time"

	"github.com/spetersoncode/tally"
)

// effectiveDelay honors a server supplied Retry-After when it is longer than
// the configured backoff.
func effectiveDelay(configured time.Duration, err error) time.Duration {
	if server := tally.RetryAfterOf(err); server > configured {
		return server
	}
	return configured
}

// Do calls fn until it succeeds, returns a non-transient error, or the
// attempts run out. Backoff waits end early when ctx is cancelled.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := cfg.attempts()
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		delay := effectiveDelay(cfg.Delay(attempt), err)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, lastErr
}
