package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryConfig configures a blocking Retry.
type RetryConfig struct {
	// MaxAttempts counts the first call. Zero or less means one attempt.
	MaxAttempts int
	Backoff     BackoffConfig
	// Jitter spreads each sleep by up to +/- this fraction of it.
	Jitter  float64
	RetryIf func(error) bool
	// OnRetry runs before each sleep with the attempt that just failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryIf retries anything but an ended context.
func DefaultRetryIf(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Retry calls fn until it succeeds or gives up. Sleeps come from a Backoff
// built from cfg.Backoff. On failure the zero T is returned with either the
// last error from fn or ctx.Err().
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	backoff := NewBackoff(cfg.Backoff)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := fn()
		switch {
		case err == nil:
			return result, nil
		case attempt >= attempts || !retryIf(err):
			return zero, err
		}

		delay := withJitter(backoff.ScheduleRetry(), cfg.Jitter)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func withJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	spread := float64(d) * min(jitter, 1)
	return max(time.Duration(float64(d)+(rand.Float64()*2-1)*spread), 0)
}
