package photolala

import (
	"context"
	"time"
)

// RetryPolicy is the single retry policy shared by every component that
// touches the network. Attempts are bounded; delays grow exponentially
// from BaseDelay up to MaxDelay. Non-transient errors abort immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the tuning used across the sync engine and
// backup pipeline: three attempts, half-second initial backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// Do runs fn until it succeeds, returns a non-transient error, or the
// attempt budget is exhausted. The last error is returned in the final
// case. ctx cancellation interrupts both fn and the backoff sleep.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := p.BaseDelay
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
	}
	return err
}
