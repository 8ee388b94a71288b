/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/apifetch/go-apifetch/internal/keystore"
)

// TokenBucketLimiter implements token bucket rate limiting algorithm
// on top of golang.org/x/time/rate.
type TokenBucketLimiter struct {
	getLimiter func(key string) *rate.Limiter
}

// NewTokenBucketLimiter creates a new token bucket rate limiter.
// maxBurst is the bucket capacity, i.e. how many requests may be served instantly.
// maxKeys bounds the per-key state; 0 means a single bucket shared by all keys.
func NewTokenBucketLimiter(maxRate Rate, maxBurst, maxKeys int) (*TokenBucketLimiter, error) {
	if maxRate.Count <= 0 {
		return nil, fmt.Errorf("rate count must be positive, got %d", maxRate.Count)
	}
	if maxRate.Duration <= 0 {
		return nil, fmt.Errorf("rate duration must be positive, got %s", maxRate.Duration)
	}
	if maxBurst < 0 {
		return nil, fmt.Errorf("max burst must not be negative, got %d", maxBurst)
	}

	limit := rate.Every(maxRate.EmissionInterval())
	newLimiter := func() *rate.Limiter {
		return rate.NewLimiter(limit, maxBurst+1)
	}

	if maxKeys == 0 {
		lim := newLimiter()
		return &TokenBucketLimiter{
			getLimiter: func(_ string) *rate.Limiter { return lim },
		}, nil
	}

	store, err := keystore.New[*rate.Limiter](maxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("new keyed state store: %w", err)
	}
	return &TokenBucketLimiter{
		getLimiter: func(key string) *rate.Limiter {
			return store.GetOrCreate(key, newLimiter)
		},
	}, nil
}

// Allow checks if the request should be allowed based on the rate limit.
func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	reservation := l.getLimiter(key).Reserve()
	if !reservation.OK() {
		return false, 0, fmt.Errorf("reservation cannot be satisfied")
	}
	delay := reservation.Delay()
	if delay == 0 {
		return true, 0, nil
	}
	reservation.Cancel()
	return false, delay, nil
}
