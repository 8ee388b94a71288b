/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/atomic"
)

// TimedOutError is returned by Watchdog.Run when the deadline fires before
// the operation delivers its result. It is a normal, retryable outcome,
// distinct from transport errors.
type TimedOutError struct {
	// Elapsed is how long the caller waited before giving up.
	Elapsed time.Duration
}

// Error implements the error interface.
func (e *TimedOutError) Error() string {
	return fmt.Sprintf("operation timed out after %s", e.Elapsed)
}

// Timeout reports that the error is a timeout. Implements net.Error partially
// so that the error is classified as temporary by retry checks.
func (e *TimedOutError) Timeout() bool { return true }

// Temporary reports that the error is temporary.
func (e *TimedOutError) Temporary() bool { return true }

// Watchdog bounds how long a caller waits on a round trip that cannot be
// preempted reliably. The operation runs on its own goroutine and is raced
// against a deadline timer; the caller observes exactly one of the two
// outcomes. An operation that overruns the deadline keeps running in the
// background, its response body is drained and closed when it eventually
// completes.
//
// Only one run may be armed at a time on a given Watchdog. Concurrent
// callers must each create their own instance.
type Watchdog struct {
	armed   atomic.Bool
	lastRun atomic.Pointer[watchdogRun]
}

// NewWatchdog creates a new Watchdog.
func NewWatchdog() *Watchdog {
	return &Watchdog{}
}

// watchdogRun is the state of a single run. It is kept per run so that an
// operation finishing in the background cannot be attributed to a run armed
// after the one it belongs to.
type watchdogRun struct {
	finished     atomic.Bool
	finishedLate atomic.Bool
}

// FinishedLate reports whether the operation of the most recent run timed out
// and then completed in the background since the caller gave up on it.
func (w *Watchdog) FinishedLate() bool {
	run := w.lastRun.Load()
	return run != nil && run.finishedLate.Load()
}

type watchdogOutcome struct {
	resp *http.Response
	err  error
}

// Run executes op and returns its result, unless the deadline fires first,
// in which case *TimedOutError is returned. A result that becomes ready only
// after the deadline fired is reported as timed out even if it was a success:
// the operation's completion flag is checked after the race resolves.
func (w *Watchdog) Run(deadline time.Time, op func() (*http.Response, error)) (*http.Response, error) {
	if !w.armed.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("watchdog is already armed")
	}
	defer w.armed.Store(false)

	run := &watchdogRun{}
	w.lastRun.Store(run)

	outcomeCh := make(chan watchdogOutcome, 1)
	startedAt := time.Now()
	go func() {
		resp, err := op()
		run.finished.Store(true)
		outcomeCh <- watchdogOutcome{resp, err}
	}()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case outcome := <-outcomeCh:
		return outcome.resp, outcome.err
	case <-timer.C:
	}

	// The deadline fired first. The operation may have finished in the gap
	// between the timer firing and the select resolving; it is still reported
	// as timed out, only its resources are reclaimed right away.
	if run.finished.Load() {
		reclaim(run, <-outcomeCh)
	} else {
		go func() {
			reclaim(run, <-outcomeCh)
		}()
	}
	return nil, &TimedOutError{Elapsed: time.Since(startedAt)}
}

func reclaim(run *watchdogRun, outcome watchdogOutcome) {
	run.finishedLate.Store(true)
	if outcome.resp != nil && outcome.resp.Body != nil {
		_, _ = io.Copy(io.Discard, outcome.resp.Body)
		_ = outcome.resp.Body.Close()
	}
}
