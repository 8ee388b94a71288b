/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/apifetch/go-apifetch/internal/keystore"
)

// SlidingWindowLimiter implements sliding window rate limiting algorithm.
// Unlike GCRA it admits up to maxRate.Count requests within every window
// without pacing them, which may produce window-aligned bursts.
type SlidingWindowLimiter struct {
	getLimiter func(key string) *slidingwindow.Limiter
	maxRate    Rate
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
// maxKeys bounds the per-key state; 0 means a single window shared by all keys.
func NewSlidingWindowLimiter(maxRate Rate, maxKeys int) (*SlidingWindowLimiter, error) {
	if maxRate.Count <= 0 {
		return nil, fmt.Errorf("rate count must be positive, got %d", maxRate.Count)
	}
	if maxRate.Duration <= 0 {
		return nil, fmt.Errorf("rate duration must be positive, got %s", maxRate.Duration)
	}

	newLimiter := func() *slidingwindow.Limiter {
		lim, _ := slidingwindow.NewLimiter(
			maxRate.Duration, int64(maxRate.Count), func() (slidingwindow.Window, slidingwindow.StopFunc) {
				return slidingwindow.NewLocalWindow()
			})
		return lim
	}

	if maxKeys == 0 {
		lim := newLimiter()
		return &SlidingWindowLimiter{
			maxRate:    maxRate,
			getLimiter: func(_ string) *slidingwindow.Limiter { return lim },
		}, nil
	}

	store, err := keystore.New[*slidingwindow.Limiter](maxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("new keyed state store: %w", err)
	}
	return &SlidingWindowLimiter{
		maxRate: maxRate,
		getLimiter: func(key string) *slidingwindow.Limiter {
			return store.GetOrCreate(key, newLimiter)
		},
	}, nil
}

// Allow checks if the request should be allowed based on the rate limit.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	if l.getLimiter(key).Allow() {
		return true, 0, nil
	}
	now := time.Now()
	retryAfter = now.Truncate(l.maxRate.Duration).Add(l.maxRate.Duration).Sub(now)
	return false, retryAfter, nil
}
