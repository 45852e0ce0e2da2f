package remitlib

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the exponential backoff used for idempotent reads.
// MaxAttempts counts the first try.
type RetryPolicy struct {
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:   300 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    2 * time.Second,
		MaxAttempts: 3,
	}
}

// backOff yields the waits between attempts: BaseDelay, growing by
// Multiplier up to MaxDelay, then backoff.Stop once MaxAttempts is spent.
func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = p.Multiplier
	b.MaxInterval = p.MaxDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	retries := 0
	if p.MaxAttempts > 1 {
		retries = p.MaxAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}
