/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestControllerRetriesUntilSuccess(t *testing.T) {
	var callsCount int
	ctrl := NewController(NewConstantBackoffPolicy(time.Millisecond, 5), nil)
	err := ctrl.Do(context.Background(), func(ctx context.Context) error {
		callsCount++
		if callsCount < 3 {
			return errors.New("temporary glitch")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, callsCount)
}

func TestControllerNonRetryableErrorEscapes(t *testing.T) {
	fatalErr := errors.New("bad request")

	var callsCount int
	ctrl := NewController(NewConstantBackoffPolicy(time.Millisecond, 5), func(err error) bool {
		return !errors.Is(err, fatalErr)
	})
	err := ctrl.Do(context.Background(), func(ctx context.Context) error {
		callsCount++
		return fatalErr
	})
	require.ErrorIs(t, err, fatalErr)
	require.Equal(t, 1, callsCount, "non-retryable error must not consume further attempts")

	var exhaustedErr *ExhaustedError
	require.False(t, errors.As(err, &exhaustedErr), "non-retryable error must be returned as is")
}

func TestControllerExhaustedCarriesAttemptHistory(t *testing.T) {
	lastErr := errors.New("still failing")

	ctrl := NewController(NewConstantBackoffPolicy(time.Millisecond, 2), nil)
	err := ctrl.Do(context.Background(), func(ctx context.Context) error {
		return lastErr
	})

	var exhaustedErr *ExhaustedError
	require.ErrorAs(t, err, &exhaustedErr)
	require.ErrorIs(t, err, lastErr)
	require.Len(t, exhaustedErr.Attempts, 3, "initial attempt plus two retries")
	for i, attempt := range exhaustedErr.Attempts {
		require.Equal(t, i+1, attempt.Number)
		require.False(t, attempt.StartedAt.IsZero())
		require.False(t, attempt.FinishedAt.Before(attempt.StartedAt))
		require.ErrorIs(t, attempt.Err, lastErr)
	}
}

func TestControllerDoesNotWaitPastDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	policy, err := NewExponentialBackoffPolicy(time.Second, time.Second, 0, 0)
	require.NoError(t, err)

	start := time.Now()
	var callsCount int
	ctrl := NewController(policy, nil)
	doErr := ctrl.Do(ctx, func(ctx context.Context) error {
		callsCount++
		return errors.New("temporary glitch")
	})

	var exhaustedErr *ExhaustedError
	require.ErrorAs(t, doErr, &exhaustedErr)
	require.Equal(t, 1, callsCount, "a backoff wait ending after the deadline must not be started")
	require.Less(t, time.Since(start), 500*time.Millisecond, "controller must give up without sleeping out the backoff")
}

func TestControllerCancellationAbortsBackoffWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	policy := NewConstantBackoffPolicy(10*time.Second, 0)
	ctrl := NewController(policy, nil)

	done := make(chan error, 1)
	go func() {
		done <- ctrl.Do(ctx, func(ctx context.Context) error {
			return errors.New("temporary glitch")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		var exhaustedErr *ExhaustedError
		require.ErrorAs(t, err, &exhaustedErr)
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancellation must abort the backoff wait immediately")
	}
}
