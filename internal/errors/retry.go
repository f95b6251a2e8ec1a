package errors

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures exponential backoff for retryable operations.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxElapsed   time.Duration
	Multiplier   float64
	Jitter       float64 // randomization factor, 0 disables
}

// DefaultRetryConfig returns 3 retries from 500ms, capped at 10s per wait
// and 30s overall.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		MaxElapsed:   30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

func (c RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialDelay
	b.MaxInterval = c.MaxDelay
	b.MaxElapsedTime = c.MaxElapsed
	b.Multiplier = c.Multiplier
	b.RandomizationFactor = c.Jitter
	b.Reset()

	var bo backoff.BackOff = b
	if c.MaxRetries >= 0 {
		bo = backoff.WithMaxRetries(bo, uint64(c.MaxRetries))
	}
	return backoff.WithContext(bo, ctx)
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// retries are exhausted, or ctx is done.
//
// Only errors for which IsRetryable is true are retried.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := fn()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, cfg.backOff(ctx))
}

// RetryWithResult is Retry for functions returning a value.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var result T
	err := Retry(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
