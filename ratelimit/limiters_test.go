/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSlidingWindowLimiter(t *testing.T) {
	limiter, err := NewSlidingWindowLimiter(Rate{Count: 2, Duration: time.Minute}, 0)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		allow, _, allowErr := limiter.Allow(context.Background(), "key")
		require.NoError(t, allowErr)
		require.True(t, allow, "request #%d must be allowed", i)
	}

	allow, retryAfter, allowErr := limiter.Allow(context.Background(), "key")
	require.NoError(t, allowErr)
	require.False(t, allow)
	require.Greater(t, retryAfter, time.Duration(0))
	require.LessOrEqual(t, retryAfter, time.Minute)
}

func TestSlidingWindowLimiterInvalidConfig(t *testing.T) {
	_, err := NewSlidingWindowLimiter(Rate{Count: 0, Duration: time.Second}, 0)
	require.Error(t, err)
	_, err = NewSlidingWindowLimiter(Rate{Count: 1}, 0)
	require.Error(t, err)
}

func TestTokenBucketLimiter(t *testing.T) {
	limiter, err := NewTokenBucketLimiter(Rate{Count: 1, Duration: time.Minute}, 1, 0)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		allow, _, allowErr := limiter.Allow(context.Background(), "key")
		require.NoError(t, allowErr)
		require.True(t, allow, "request #%d must be allowed", i)
	}

	allow, retryAfter, allowErr := limiter.Allow(context.Background(), "key")
	require.NoError(t, allowErr)
	require.False(t, allow)
	require.Greater(t, retryAfter, time.Duration(0))
}

func TestTokenBucketLimiterKeysAreIndependent(t *testing.T) {
	limiter, err := NewTokenBucketLimiter(Rate{Count: 1, Duration: time.Minute}, 0, 100)
	require.NoError(t, err)

	allow, _, err := limiter.Allow(context.Background(), "host-a")
	require.NoError(t, err)
	require.True(t, allow)

	allow, _, err = limiter.Allow(context.Background(), "host-a")
	require.NoError(t, err)
	require.False(t, allow)

	allow, _, err = limiter.Allow(context.Background(), "host-b")
	require.NoError(t, err)
	require.True(t, allow)
}
