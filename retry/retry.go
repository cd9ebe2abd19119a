// Package retry runs an operation a bounded number of times with a fixed
// pause between attempts. Attempts stop early when the context is done.
package retry

import (
	"context"
	"time"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int           // Maximum number of attempts, including the first
	Delay       time.Duration // Pause before each retry
}

// SettleConfig is the policy for settlement: one retry after one second.
var SettleConfig = Config{
	MaxAttempts: 2,
	Delay:       time.Second,
}

// ShouldRetry inspects the outcome of an attempt and reports whether another
// attempt should be made.
type ShouldRetry[T any] func(result T, err error) bool

// OnError retries whenever the attempt returned an error.
func OnError[T any](_ T, err error) bool { return err != nil }

// WithRetry calls fn until shouldRetry returns false or the attempts are used
// up, and returns the outcome of the last attempt. fn receives the 1-based
// attempt number. If ctx ends while waiting between attempts, the previous
// outcome is returned together with the context error when it had none.
func WithRetry[T any](
	ctx context.Context,
	config Config,
	shouldRetry ShouldRetry[T],
	fn func(attempt int) (T, error),
) (T, error) {
	attempts := max(config.MaxAttempts, 1)

	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = fn(attempt)
		if attempt == attempts || !shouldRetry(result, err) {
			break
		}

		if waitErr := wait(ctx, config.Delay); waitErr != nil {
			if err == nil {
				err = waitErr
			}
			break
		}
	}
	return result, err
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
