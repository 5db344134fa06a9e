package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/a2aforge/meshbus/core"
)

// BackoffDelay computes the delay before retry attempt k (1-based) under
// the linear or exponential strategy, capped at maxDelay: linear grows
// baseDelay*k; exponential grows baseDelay*2^(k-1). The "custom"
// strategy carries its own schedule state; callers draw those delays
// from CustomBackoff.Next instead.
func BackoffDelay(strategy core.BackoffStrategy, k int, baseDelay, maxDelay time.Duration) time.Duration {
	var delay time.Duration
	switch strategy {
	case core.BackoffExponential:
		delay = baseDelay * time.Duration(1<<uint(k-1))
	default: // linear, and the fallback for any unrecognized strategy
		delay = baseDelay * time.Duration(k)
	}
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// CustomBackoff supplies delays from cenkalti/backoff's randomized
// exponential algorithm, for retryPolicy.backoffStrategy == "custom",
// the one strategy that is not formula-fixed. The bus's direct
// executor draws per-attempt delays from Next; Run wraps a whole
// operation for hosts that prefer the library's own retry loop.
type CustomBackoff struct {
	baseDelay time.Duration
	maxDelay  time.Duration
	eb        *backoff.ExponentialBackOff
}

// NewCustomBackoff builds a CustomBackoff seeded from baseDelay/maxDelay.
func NewCustomBackoff(baseDelay, maxDelay time.Duration) *CustomBackoff {
	return &CustomBackoff{
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		eb:        newExponential(baseDelay, maxDelay),
	}
}

func newExponential(baseDelay, maxDelay time.Duration) *backoff.ExponentialBackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = baseDelay
	eb.MaxInterval = maxDelay
	return eb
}

// Next returns the delay to wait before the next retry attempt. Each
// call advances the underlying exponential schedule.
func (c *CustomBackoff) Next() time.Duration {
	return c.eb.NextBackOff()
}

// Run executes operation under backoff/v5's exponential retry loop,
// giving up after maxRetries attempts or when ctx is cancelled. Run
// uses a fresh schedule so it does not consume Next's state.
func (c *CustomBackoff) Run(ctx context.Context, maxRetries int, operation func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, backoff.WithBackOff(newExponential(c.baseDelay, c.maxDelay)), backoff.WithMaxTries(uint(maxRetries)))
	return err
}

// Sleep blocks for d or until ctx is cancelled, whichever comes first.
// It returns ctx.Err() on cancellation.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
