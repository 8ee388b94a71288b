/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

// Package retry provides backoff policies and a retry controller for repeating
// failed operations with exponentially growing, jittered delays.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// IsRetryable defines a func that can tell if error is retryable as opposed to persistent.
type IsRetryable func(error) bool

// RetryableFunc is function that does some work and can be potentially retried.
type RetryableFunc func(ctx context.Context) error

// Policy defines backoff strategy.
type Policy interface {
	NewBackOff() backoff.BackOff
}

// DoWithRetry executes fn with retry according to policy p and with respect to context ctx.
// IsRetryable defines which errors lead to retry attempt (can be nil for any error).
// Notify can be used to receive notification on every retry with error and backoff delay
// (can be nil if no notifications required).
func DoWithRetry(ctx context.Context, p Policy, isRetryable IsRetryable, notify backoff.Notify, fn RetryableFunc) error {
	b := p.NewBackOff()
	bctx := backoff.WithContext(b, ctx)
	var op backoff.Operation = func() error {
		err := fn(bctx.Context())
		if err != nil &&
			(isRetryable != nil && !isRetryable(err)) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.RetryNotify(op, bctx, notify)
}

// The PolicyFunc type is an adapter to allow the use of ordinary functions as retry.Policy.
type PolicyFunc func() backoff.BackOff

// NewBackOff implements retry.Policy.
func (f PolicyFunc) NewBackOff() backoff.BackOff {
	return f()
}

// ExponentialBackoffPolicy produces delays growing as baseDelay*2^(n-1) for attempt n,
// capped by maxDelay, with random jitter in [0, jitterFraction*delay] added on top
// to avoid synchronized retry storms across callers.
type ExponentialBackoffPolicy struct {
	baseDelay      time.Duration
	maxDelay       time.Duration
	jitterFraction float64
	maxAttempts    int
}

// NewExponentialBackoffPolicy returns an exponential backoff policy.
// maxRetryAttempts == 0 means no limit on the number of retries.
func NewExponentialBackoffPolicy(
	baseDelay, maxDelay time.Duration, jitterFraction float64, maxRetryAttempts int,
) (ExponentialBackoffPolicy, error) {
	if baseDelay <= 0 {
		return ExponentialBackoffPolicy{}, fmt.Errorf("base delay must be positive, got %s", baseDelay)
	}
	if maxDelay < baseDelay {
		return ExponentialBackoffPolicy{}, fmt.Errorf("max delay must not be less than base delay, got %s", maxDelay)
	}
	if jitterFraction < 0 || jitterFraction > 1 {
		return ExponentialBackoffPolicy{}, fmt.Errorf("jitter fraction must be in [0, 1], got %g", jitterFraction)
	}
	if maxRetryAttempts < 0 {
		return ExponentialBackoffPolicy{}, fmt.Errorf("max retry attempts must not be negative, got %d", maxRetryAttempts)
	}
	return ExponentialBackoffPolicy{baseDelay, maxDelay, jitterFraction, maxRetryAttempts}, nil
}

// Delay returns the capped exponential delay before retry attempt n (1-based), without jitter.
func (p ExponentialBackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := p.baseDelay
	for i := 1; i < attempt; i++ {
		if delay > p.maxDelay/2 {
			return p.maxDelay
		}
		delay *= 2
	}
	if delay > p.maxDelay {
		return p.maxDelay
	}
	return delay
}

// NewBackOff implements retry.Policy.
func (p ExponentialBackoffPolicy) NewBackOff() backoff.BackOff {
	var bf backoff.BackOff = &exponentialBackOff{policy: p}
	if p.maxAttempts > 0 {
		bf = backoff.WithMaxRetries(bf, uint64(p.maxAttempts))
	}
	bf.Reset()
	return bf
}

// exponentialBackOff implements backoff.BackOff with the exact capped schedule
// of ExponentialBackoffPolicy. The library's built-in exponential backoff uses
// symmetric randomization around the delay and cannot express the
// [delay, delay*(1+jitterFraction)] schedule.
type exponentialBackOff struct {
	policy  ExponentialBackoffPolicy
	attempt int
}

func (b *exponentialBackOff) NextBackOff() time.Duration {
	b.attempt++
	delay := b.policy.Delay(b.attempt)
	if b.policy.jitterFraction > 0 {
		delay += time.Duration(rand.Float64() * b.policy.jitterFraction * float64(delay)) // nolint: gosec
	}
	return delay
}

func (b *exponentialBackOff) Reset() {
	b.attempt = 0
}

// ConstantBackoffPolicy means repeat up to max times with constant interval delays.
type ConstantBackoffPolicy struct {
	interval    time.Duration
	maxAttempts int
}

// NewConstantBackoffPolicy returns a constant backoff policy with given interval and max retry attempt count.
func NewConstantBackoffPolicy(interval time.Duration, maxRetryAttempts int) ConstantBackoffPolicy {
	return ConstantBackoffPolicy{interval, maxRetryAttempts}
}

// NewBackOff implements retry.Policy.
func (p ConstantBackoffPolicy) NewBackOff() backoff.BackOff {
	var bf backoff.BackOff = backoff.NewConstantBackOff(p.interval)
	if p.maxAttempts > 0 {
		bf = backoff.WithMaxRetries(bf, uint64(p.maxAttempts))
	}
	bf.Reset()
	return bf
}
