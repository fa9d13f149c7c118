// Package retry provides the bounded retry policy and rate limiter wrapped around provider calls.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy retries an operation with exponential backoff up to MaxAttempts total attempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// OnRetry, when set, is called before sleeping ahead of attempt+1.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy returns three attempts starting at one second, capped at ten.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
}

// Permanent marks err as not worth retrying. Do returns the wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// newBackOff returns the delay schedule: BaseDelay doubling on every retry, capped at MaxDelay,
// without jitter.
func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = max(p.BaseDelay, 0)
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(math.MaxInt64)
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Do calls fn until it succeeds, returns a permanent error, the context ends, or attempts run out.
// The last error is returned, joined with the context error on cancellation.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var bo backoff.BackOff = &backoff.StopBackOff{}
	if p.MaxAttempts > 1 {
		bo = backoff.WithMaxRetries(p.newBackOff(), uint64(p.MaxAttempts-1))
	}
	b := backoff.WithContext(bo, ctx)

	var last error
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		last = fn(ctx)
		return last
	}, b, func(err error, delay time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && last != nil && !errors.Is(last, ctxErr) {
		return errors.Join(last, ctxErr)
	}
	return err
}
