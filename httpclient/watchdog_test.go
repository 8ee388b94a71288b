/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchdogReturnsResultBeforeDeadline(t *testing.T) {
	watchdog := NewWatchdog()

	wantResp := &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}
	resp, err := watchdog.Run(time.Now().Add(time.Second), func() (*http.Response, error) {
		return wantResp, nil
	})
	require.NoError(t, err)
	require.Same(t, wantResp, resp)
	require.False(t, watchdog.FinishedLate())
}

func TestWatchdogReturnsOperationError(t *testing.T) {
	watchdog := NewWatchdog()

	wantErr := errors.New("connection reset")
	resp, err := watchdog.Run(time.Now().Add(time.Second), func() (*http.Response, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)
	require.Nil(t, resp)
}

func TestWatchdogTimesOutSlowOperation(t *testing.T) {
	watchdog := NewWatchdog()

	opDone := make(chan struct{})
	resp, err := watchdog.Run(time.Now().Add(5*time.Millisecond), func() (*http.Response, error) {
		defer close(opDone)
		time.Sleep(10 * time.Millisecond)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte("too late"))),
		}, nil
	})
	require.Nil(t, resp)

	var timedOutErr *TimedOutError
	require.ErrorAs(t, err, &timedOutErr)
	require.GreaterOrEqual(t, timedOutErr.Elapsed, 5*time.Millisecond)
	require.True(t, timedOutErr.Timeout())
	require.True(t, timedOutErr.Temporary())

	// The operation finishes in the background and is recorded as a late finisher.
	<-opDone
	require.Eventually(t, watchdog.FinishedLate, time.Second, time.Millisecond)
}

func TestWatchdogLateSuccessIsStillTimedOut(t *testing.T) {
	watchdog := NewWatchdog()

	// The operation completes right around the deadline. No matter which way
	// the race resolves, the result is exactly one of: the real response, or
	// a timeout with the response reclaimed.
	resp, err := watchdog.Run(time.Now().Add(5*time.Millisecond), func() (*http.Response, error) {
		time.Sleep(5 * time.Millisecond)
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})
	if err != nil {
		var timedOutErr *TimedOutError
		require.ErrorAs(t, err, &timedOutErr)
		require.Nil(t, resp)
		require.Eventually(t, watchdog.FinishedLate, time.Second, time.Millisecond)
		return
	}
	require.NotNil(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWatchdogLateFinishIsNotAttributedToNextRun(t *testing.T) {
	watchdog := NewWatchdog()

	releaseFirst := make(chan struct{})
	_, err := watchdog.Run(time.Now().Add(5*time.Millisecond), func() (*http.Response, error) {
		<-releaseFirst
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})
	var timedOutErr *TimedOutError
	require.ErrorAs(t, err, &timedOutErr)

	// The next run resolves in time while the first operation is still pending.
	resp, err := watchdog.Run(time.Now().Add(time.Second), func() (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody}, nil
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The first operation completing now belongs to the timed-out run, not to
	// the one that resolved in time.
	close(releaseFirst)
	require.Never(t, watchdog.FinishedLate, 100*time.Millisecond, 5*time.Millisecond)
}

func TestWatchdogRejectsConcurrentRun(t *testing.T) {
	watchdog := NewWatchdog()

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = watchdog.Run(time.Now().Add(time.Second), func() (*http.Response, error) {
			close(firstStarted)
			<-releaseFirst
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		})
	}()

	<-firstStarted
	_, err := watchdog.Run(time.Now().Add(time.Second), func() (*http.Response, error) {
		return nil, nil
	})
	require.EqualError(t, err, "watchdog is already armed")

	close(releaseFirst)
	wg.Wait()

	// The watchdog is reusable after the previous run resolves.
	resp, err := watchdog.Run(time.Now().Add(time.Second), func() (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody}, nil
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}
