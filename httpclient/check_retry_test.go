/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type temporaryNetErr struct{ temporary bool }

func (e *temporaryNetErr) Error() string   { return "net err" }
func (e *temporaryNetErr) Temporary() bool { return e.temporary }

func TestDefaultCheckRetry(t *testing.T) {
	tests := []struct {
		name         string
		resp         *http.Response
		roundTripErr error
		wantRetry    bool
		wantErr      bool
	}{
		{name: "200 is not retried", resp: &http.Response{StatusCode: http.StatusOK}},
		{name: "404 is not retried", resp: &http.Response{StatusCode: http.StatusNotFound}},
		{name: "429 is retried", resp: &http.Response{StatusCode: http.StatusTooManyRequests}, wantRetry: true},
		{name: "500 is retried", resp: &http.Response{StatusCode: http.StatusInternalServerError}, wantRetry: true},
		{name: "503 is retried", resp: &http.Response{StatusCode: http.StatusServiceUnavailable}, wantRetry: true},
		{name: "temporary error is retried", roundTripErr: &temporaryNetErr{temporary: true}, wantRetry: true},
		{name: "non-temporary error is not retried", roundTripErr: &temporaryNetErr{temporary: false}},
		{name: "eof is retried", roundTripErr: fmt.Errorf("read: %w", io.EOF), wantRetry: true},
		{name: "attempt timeout is retried", roundTripErr: &TimedOutError{Elapsed: time.Second}, wantRetry: true},
		{name: "nil response and nil error is a bug", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			needRetry, err := DefaultCheckRetry(context.Background(), tt.resp, tt.roundTripErr, 0)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantRetry, needRetry)
		})
	}
}

func TestNewStatusCodeCheckRetry(t *testing.T) {
	t.Run("invalid patterns", func(t *testing.T) {
		for _, pattern := range []string{"", "4", "44", "4444", "4y4", "xx", "-40"} {
			_, err := NewStatusCodeCheckRetry([]string{pattern}, nil)
			require.EqualError(t, err, fmt.Sprintf("invalid status code pattern %q", pattern))
		}
	})

	t.Run("pattern matching", func(t *testing.T) {
		checkRetry, err := NewStatusCodeCheckRetry([]string{"2xx", "30x"}, []string{"404"})
		require.NoError(t, err)

		tests := []struct {
			statusCode int
			wantRetry  bool
		}{
			{statusCode: http.StatusOK, wantRetry: false},
			{statusCode: http.StatusCreated, wantRetry: false},
			{statusCode: http.StatusMovedPermanently, wantRetry: false},
			{statusCode: http.StatusTeapot, wantRetry: true},
			{statusCode: http.StatusNotFound, wantRetry: false},
			{statusCode: http.StatusInternalServerError, wantRetry: true},
			{statusCode: http.StatusBadGateway, wantRetry: true},
		}
		for _, tt := range tests {
			needRetry, checkErr := checkRetry(context.Background(), &http.Response{StatusCode: tt.statusCode}, nil, 0)
			require.NoError(t, checkErr)
			require.Equal(t, tt.wantRetry, needRetry, "status code %d", tt.statusCode)
		}
	})

	t.Run("transport errors", func(t *testing.T) {
		checkRetry, err := NewStatusCodeCheckRetry([]string{"2xx"}, nil)
		require.NoError(t, err)

		needRetry, checkErr := checkRetry(context.Background(), nil, &temporaryNetErr{temporary: true}, 0)
		require.NoError(t, checkErr)
		require.True(t, needRetry)

		needRetry, checkErr = checkRetry(context.Background(), nil, errors.New("fatal"), 0)
		require.NoError(t, checkErr)
		require.False(t, needRetry)
	})
}

func TestParseRetryAfterFromResponse(t *testing.T) {
	makeResp := func(retryAfter string) *http.Response {
		header := http.Header{}
		if retryAfter != "" {
			header.Set("Retry-After", retryAfter)
		}
		return &http.Response{Header: header}
	}

	retryAfter, ok := parseRetryAfterFromResponse(makeResp("7"))
	require.True(t, ok)
	require.Equal(t, 7*time.Second, retryAfter)

	retryAfter, ok = parseRetryAfterFromResponse(makeResp(time.Now().Add(time.Minute).UTC().Format(time.RFC1123)))
	require.True(t, ok)
	require.InDelta(t, time.Minute, retryAfter, float64(5*time.Second))

	_, ok = parseRetryAfterFromResponse(makeResp(""))
	require.False(t, ok)

	_, ok = parseRetryAfterFromResponse(makeResp("-1"))
	require.False(t, ok)

	_, ok = parseRetryAfterFromResponse(makeResp("soon"))
	require.False(t, ok)
}
