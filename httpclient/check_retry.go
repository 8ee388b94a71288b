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
	"strconv"
	"time"
)

// CheckRetryFunc is a function that is called right after a request attempt
// and determines if the next retry attempt is needed.
type CheckRetryFunc func(ctx context.Context, resp *http.Response, roundTripErr error, doneRetryAttempts int) (bool, error)

// DefaultCheckRetry represents default function to determine either retry is needed or not.
// Temporary network errors, attempt timeouts, 429 and 5xx responses are retried.
func DefaultCheckRetry(
	ctx context.Context, resp *http.Response, roundTripErr error, doneRetryAttempts int,
) (needRetry bool, err error) {
	if roundTripErr != nil {
		return CheckErrorIsTemporary(roundTripErr), nil
	}
	if resp == nil {
		return false, fmt.Errorf("both response and round trip error are nil")
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError, nil
}

// CheckErrorIsTemporary checks either error is temporary or not.
func CheckErrorIsTemporary(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var terr interface{ Temporary() bool }
	ok := errors.As(err, &terr)
	return ok && terr.Temporary()
}

// NewStatusCodeCheckRetry builds a CheckRetryFunc driven by status code patterns.
// A pattern is either an exact code ("404") or a digit class where "x" matches
// any digit ("4xx", "40x"). Codes matching normalCodes are accepted as final
// outcomes and not retried; codes matching fatalCodes stop the retry loop
// immediately as well (the caller distinguishes the two by the status code
// of the returned response). All other codes are retried. Transport errors
// and attempt timeouts are retried like in DefaultCheckRetry.
func NewStatusCodeCheckRetry(normalCodes, fatalCodes []string) (CheckRetryFunc, error) {
	for _, pattern := range append(append([]string{}, normalCodes...), fatalCodes...) {
		if !isValidStatusCodePattern(pattern) {
			return nil, fmt.Errorf("invalid status code pattern %q", pattern)
		}
	}
	return func(ctx context.Context, resp *http.Response, roundTripErr error, doneRetryAttempts int) (bool, error) {
		if roundTripErr != nil {
			return CheckErrorIsTemporary(roundTripErr), nil
		}
		if resp == nil {
			return false, fmt.Errorf("both response and round trip error are nil")
		}
		if matchesAnyStatusCodePattern(normalCodes, resp.StatusCode) {
			return false, nil
		}
		if matchesAnyStatusCodePattern(fatalCodes, resp.StatusCode) {
			return false, nil
		}
		return true, nil
	}, nil
}

func isValidStatusCodePattern(pattern string) bool {
	if len(pattern) != 3 {
		return false
	}
	for _, c := range pattern {
		if c != 'x' && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

func matchesAnyStatusCodePattern(patterns []string, code int) bool {
	codeStr := strconv.Itoa(code)
	if len(codeStr) != 3 {
		return false
	}
	for _, pattern := range patterns {
		matched := true
		for i := 0; i < 3; i++ {
			if pattern[i] != 'x' && pattern[i] != codeStr[i] {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func parseRetryAfterFromResponse(resp *http.Response) (retryAfter time.Duration, ok bool) {
	retryAfterVal := resp.Header.Get("Retry-After")
	if retryAfterVal == "" {
		return 0, false
	}

	parsedInt, parseIntErr := strconv.Atoi(retryAfterVal)
	if parseIntErr != nil {
		parsedTime, parsedTimeErr := time.Parse(time.RFC1123, retryAfterVal)
		if parsedTimeErr != nil {
			return 0, false
		}
		return time.Until(parsedTime), true
	}
	if parsedInt < 0 {
		return 0, false
	}
	return time.Duration(parsedInt) * time.Second, true
}
