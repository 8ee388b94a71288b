/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Attempt is an immutable record of one try of a retried operation.
type Attempt struct {
	// Number is the 1-based attempt number.
	Number     int
	StartedAt  time.Time
	FinishedAt time.Time

	// Err is the attempt's outcome, nil on success.
	Err error
}

// ExhaustedError is returned when all retry attempts or the deadline
// were consumed without success. It carries the full attempt history
// and unwraps to the last attempt's error.
type ExhaustedError struct {
	Attempts []Attempt
	LastErr  error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempt(s), last error: %v", len(e.Attempts), e.LastErr)
}

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// Controller repeats an operation according to a backoff policy and keeps
// the history of attempts. Unlike DoWithRetry, it respects the deadline of
// the passed context proactively: a retry whose backoff wait would end after
// the deadline is not started at all, the controller reports exhaustion instead.
type Controller struct {
	policy      Policy
	isRetryable IsRetryable

	// Notify is called before every backoff wait with the attempt's error
	// and the wait duration. May be nil.
	Notify backoff.Notify
}

// NewController creates a new Controller.
// IsRetryable defines which errors lead to retry attempt (can be nil for any error).
func NewController(policy Policy, isRetryable IsRetryable) *Controller {
	return &Controller{policy: policy, isRetryable: isRetryable}
}

// Do executes fn until it succeeds, returns a non-retryable error,
// exhausts the policy's attempts, or runs out of the context's deadline.
// On exhaustion the returned error is *ExhaustedError.
// A non-retryable error is returned as is, without consuming further attempts.
func (c *Controller) Do(ctx context.Context, fn RetryableFunc) error {
	b := c.policy.NewBackOff()
	var attempts []Attempt

	for attemptNum := 1; ; attemptNum++ {
		startedAt := time.Now()
		err := fn(ctx)
		attempts = append(attempts, Attempt{Number: attemptNum, StartedAt: startedAt, FinishedAt: time.Now(), Err: err})

		if err == nil {
			return nil
		}
		if c.isRetryable != nil && !c.isRetryable(err) {
			return err
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return &ExhaustedError{Attempts: attempts, LastErr: err}
		}

		// Do not start a wait that cannot end before the deadline.
		if deadline, ok := ctx.Deadline(); ok && time.Now().Add(delay).After(deadline) {
			return &ExhaustedError{Attempts: attempts, LastErr: err}
		}

		if c.Notify != nil {
			c.Notify(err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &ExhaustedError{Attempts: attempts, LastErr: ctx.Err()}
		case <-timer.C:
		}
	}
}
