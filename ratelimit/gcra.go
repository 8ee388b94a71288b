/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apifetch/go-apifetch/internal/keystore"
)

// DefaultMaxKeys is the default number of keys the GCRA limiter keeps state for.
const DefaultMaxKeys = 10000

// GCRALimiter implements GCRA (Generic Cell Rate Algorithm). It's a leaky bucket variant algorithm.
// More details and good explanation of this alg is provided here: https://brandur.org/rate-limiting#gcra.
//
// Each key holds a single theoretical arrival time (TAT). A request is admitted
// while its arrival does not run ahead of the TAT by more than the burst tolerance,
// so short bursts are served instantly and the steady rate is paced smoothly
// without a bucket-refill timer.
type GCRALimiter struct {
	emissionInterval time.Duration
	burstTolerance   time.Duration
	getState         func(key string) *gcraState
	now              func() time.Time
}

// gcraState is mutated only under its own mutex, one writer per key at a time.
// Admission decisions for a single key are applied in lock acquisition order.
type gcraState struct {
	mu  sync.Mutex
	tat time.Time
}

// GCRAOptions represents options for GCRALimiter.
type GCRAOptions struct {
	// NowProvider is a function that returns the current time. time.Now is used if nil.
	NowProvider func() time.Time

	// KeysMetrics is a collector of metrics about tracked keys. May be nil.
	KeysMetrics MetricsCollector
}

// NewGCRALimiter creates a new GCRA rate limiter.
// maxBurst is the number of requests above the steady rate that may be served instantly.
// maxKeys bounds the per-key state; 0 means a single state shared by all keys.
func NewGCRALimiter(maxRate Rate, maxBurst, maxKeys int) (*GCRALimiter, error) {
	return NewGCRALimiterWithOpts(maxRate, maxBurst, maxKeys, GCRAOptions{})
}

// NewGCRALimiterWithOpts creates a new GCRA rate limiter with the provided options.
func NewGCRALimiterWithOpts(maxRate Rate, maxBurst, maxKeys int, opts GCRAOptions) (*GCRALimiter, error) {
	if maxRate.Count <= 0 {
		return nil, fmt.Errorf("rate count must be positive, got %d", maxRate.Count)
	}
	if maxRate.Duration <= 0 {
		return nil, fmt.Errorf("rate duration must be positive, got %s", maxRate.Duration)
	}
	if maxBurst < 0 {
		return nil, fmt.Errorf("max burst must not be negative, got %d", maxBurst)
	}
	if maxKeys < 0 {
		return nil, fmt.Errorf("max keys must not be negative, got %d", maxKeys)
	}

	emissionInterval := maxRate.EmissionInterval()
	if emissionInterval <= 0 {
		return nil, fmt.Errorf("rate %d per %s is too high", maxRate.Count, maxRate.Duration)
	}

	l := &GCRALimiter{
		emissionInterval: emissionInterval,
		burstTolerance:   time.Duration(maxBurst) * emissionInterval,
		now:              opts.NowProvider,
	}
	if l.now == nil {
		l.now = time.Now
	}

	if maxKeys == 0 {
		state := &gcraState{}
		l.getState = func(_ string) *gcraState { return state }
		return l, nil
	}

	store, err := keystore.New[*gcraState](maxKeys, opts.KeysMetrics)
	if err != nil {
		return nil, fmt.Errorf("new keyed state store: %w", err)
	}
	l.getState = func(key string) *gcraState {
		return store.GetOrCreate(key, func() *gcraState { return &gcraState{} })
	}
	return l, nil
}

// Allow checks if the request should be allowed based on the rate limit.
func (l *GCRALimiter) Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN checks if a request with the given cost (in rate units) should be allowed.
// A cost that can never fit into the burst tolerance plus one emission interval
// is a configuration mistake and is reported as an error instead of denying forever.
func (l *GCRALimiter) AllowN(_ context.Context, key string, n int) (allow bool, retryAfter time.Duration, err error) {
	if n <= 0 {
		return false, 0, fmt.Errorf("cost must be a positive integer, got %d", n)
	}
	increment := time.Duration(n) * l.emissionInterval
	if increment > l.burstTolerance+l.emissionInterval {
		return false, 0, fmt.Errorf("cost %d exceeds the maximum admittable cost %d",
			n, int(l.burstTolerance/l.emissionInterval)+1)
	}

	state := l.getState(key)
	state.mu.Lock()
	defer state.mu.Unlock()

	now := l.now()
	if !state.tat.After(now) {
		state.tat = now.Add(increment)
		return true, 0, nil
	}

	allowAt := state.tat.Add(-l.burstTolerance)
	if !now.Before(allowAt) {
		state.tat = state.tat.Add(increment)
		return true, 0, nil
	}

	return false, allowAt.Sub(now), nil
}
