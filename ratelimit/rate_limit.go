/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

// Package ratelimit provides local (single-process) rate limiting for outgoing requests.
// Several algorithms are available; GCRA is the recommended one since it paces requests
// smoothly instead of admitting them in window-aligned batches.
package ratelimit

import (
	"context"
	"time"
)

// Rate describes the frequency of requests.
type Rate struct {
	Count    int
	Duration time.Duration
}

// EmissionInterval returns the minimal interval between two requests
// conforming to the rate.
func (r Rate) EmissionInterval() time.Duration {
	return r.Duration / time.Duration(r.Count)
}

// Limiter interface defines the rate limiting contract.
// Denial is a normal scheduling outcome, not an error: retryAfter tells
// the caller how long to wait before the next admission attempt.
type Limiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}
