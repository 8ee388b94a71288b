/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/apifetch/go-apifetch/log"
	"github.com/apifetch/go-apifetch/ratelimit"
	"github.com/apifetch/go-apifetch/retry"
)

// Default parameter values for RequestPipeline.
const (
	DefaultMaxRetryAttempts = 10

	DefaultBackoffBaseDelay      = time.Second
	DefaultBackoffMaxDelay       = 2 * time.Minute
	DefaultBackoffJitterFraction = 0.2
)

// UnlimitedRetryAttempts should be used as RequestPipelineOpts.MaxRetryAttempts value
// when we want to stop retries only by the backoff policy.
const UnlimitedRetryAttempts = -1

// RetryAttemptNumberHeader is an HTTP header name that will contain the serial number of the retry attempt.
const RetryAttemptNumberHeader = "X-Retry-Attempt"

// admissionWaitPadding is added on top of the limiter's retryAfter before re-polling,
// so that the next admission attempt does not race the state it is waiting for.
const admissionWaitPadding = 50 * time.Millisecond

// KeyProvider returns the rate limiting key for a request.
type KeyProvider func(r *http.Request) string

// HostKeyProvider keys rate limiting by the target host. It is the default.
func HostKeyProvider(r *http.Request) string {
	if host := r.URL.Hostname(); host != "" {
		return host
	}
	return r.Host
}

// RequestPipeline wraps an object that implements http.RoundTripper interface
// and executes requests through admission, per-attempt timeout, and retry stages:
// every attempt first waits for the rate limiter's admission, then runs the
// delegate under the attempt timeout watchdog, and the outcome decides whether
// another attempt is made. All waiting respects the deadline of the request's
// context: a backoff or admission wait that cannot end before the deadline is
// not started.
type RequestPipeline struct {
	// Delegate is an object that implements http.RoundTripper interface
	// and is used for sending HTTP requests under the hood.
	Delegate http.RoundTripper

	// Limiter paces outgoing requests. May be nil, in this case no pacing is done.
	Limiter ratelimit.Limiter

	// KeyProvider returns the rate limiting key for a request. HostKeyProvider by default.
	KeyProvider KeyProvider

	// AttemptTimeout bounds a single attempt (0 means attempts are bounded
	// only by the request context). The effective per-attempt deadline is
	// clamped to the context's deadline when the latter is closer.
	AttemptTimeout time.Duration

	// Logger is used for logging.
	// When it's necessary to use context-specific logger, LoggerProvider should be used instead.
	Logger log.FieldLogger

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// MaxRetryAttempts determines how many maximum retry attempts can be done.
	// The total number of sending HTTP request may be MaxRetryAttempts + 1 (the first request is not a retry attempt).
	// If its value is UnlimitedRetryAttempts, it's supposed that retry mechanism will be stopped by BackoffPolicy.
	// By default, DefaultMaxRetryAttempts const is used.
	MaxRetryAttempts int

	// CheckRetry is called right after each attempt and determines if the next retry attempt is needed.
	// By default, DefaultCheckRetry function is used.
	CheckRetry CheckRetryFunc

	// IgnoreRetryAfter determines if Retry-After HTTP header of the response is parsed and
	// used as a wait time before doing the next retry attempt.
	// If it's true or response doesn't contain Retry-After HTTP header, BackoffPolicy will be used for computing delay.
	IgnoreRetryAfter bool

	// BackoffPolicy is used for computing wait time before doing the next retry attempt
	// when the given response doesn't contain Retry-After HTTP header or IgnoreRetryAfter is true.
	// By default, DefaultBackoffPolicy is used.
	BackoffPolicy retry.Policy
}

// RequestPipelineOpts represents options for RequestPipeline.
type RequestPipelineOpts struct {
	Limiter          ratelimit.Limiter
	KeyProvider      KeyProvider
	AttemptTimeout   time.Duration
	Logger           log.FieldLogger
	LoggerProvider   func(ctx context.Context) log.FieldLogger
	MaxRetryAttempts int
	CheckRetryFunc   CheckRetryFunc
	IgnoreRetryAfter bool
	BackoffPolicy    retry.Policy
}

// DefaultBackoffPolicy is a default backoff policy.
var DefaultBackoffPolicy = retry.PolicyFunc(func() backoff.BackOff {
	policy, err := retry.NewExponentialBackoffPolicy(
		DefaultBackoffBaseDelay, DefaultBackoffMaxDelay, DefaultBackoffJitterFraction, 0)
	if err != nil {
		panic(err)
	}
	return policy.NewBackOff()
})

// NewRequestPipeline returns a new instance of RequestPipeline with default options.
func NewRequestPipeline(delegate http.RoundTripper) (*RequestPipeline, error) {
	return NewRequestPipelineWithOpts(delegate, RequestPipelineOpts{})
}

// NewRequestPipelineWithOpts creates a new instance of RequestPipeline with specified options.
func NewRequestPipelineWithOpts(delegate http.RoundTripper, opts RequestPipelineOpts) (*RequestPipeline, error) {
	if opts.MaxRetryAttempts < 0 && opts.MaxRetryAttempts != UnlimitedRetryAttempts {
		return nil, fmt.Errorf("incorrect max retry attempts")
	}
	if opts.MaxRetryAttempts == 0 {
		opts.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if opts.AttemptTimeout < 0 {
		return nil, fmt.Errorf("attempt timeout must not be negative")
	}
	if opts.KeyProvider == nil {
		opts.KeyProvider = HostKeyProvider
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.CheckRetryFunc == nil {
		opts.CheckRetryFunc = DefaultCheckRetry
	}
	if opts.BackoffPolicy == nil {
		opts.BackoffPolicy = DefaultBackoffPolicy
	}

	return &RequestPipeline{
		Delegate:         delegate,
		Limiter:          opts.Limiter,
		KeyProvider:      opts.KeyProvider,
		AttemptTimeout:   opts.AttemptTimeout,
		Logger:           opts.Logger,
		LoggerProvider:   opts.LoggerProvider,
		MaxRetryAttempts: opts.MaxRetryAttempts,
		CheckRetry:       opts.CheckRetryFunc,
		IgnoreRetryAfter: opts.IgnoreRetryAfter,
		BackoffPolicy:    opts.BackoffPolicy,
	}, nil
}

// RoundTrip executes the request through admission, timeout and retry stages.
// When all attempts are consumed and the last one failed with an error,
// *retry.ExhaustedError carrying the attempt history is returned.
// nolint: gocyclo
func (p *RequestPipeline) RoundTrip(req *http.Request) (*http.Response, error) {
	hasReqBody := req.Body != nil
	getFreshReqBody := func() (io.ReadCloser, error) { return nil, nil }
	if hasReqBody {
		originalReqBody := req.Body
		defer func() {
			_ = originalReqBody.Close() // Per RoundTripper contract.
		}()

		var err error
		getFreshReqBody, err = makeRequestBodyProvider(req)
		if err != nil {
			return nil, &RequestPipelineError{Inner: err}
		}
	}

	getNextWaitTime := p.makeNextWaitTimeProvider()
	reqCtx := req.Context()
	rateLimitKey := p.KeyProvider(req)
	watchdog := NewWatchdog()

	var attempts []retry.Attempt
	var resp *http.Response
	var roundTripErr error
	for curRetryAttemptNum := 0; ; curRetryAttemptNum++ {
		// Discard and close response body before next retry.
		if resp != nil && roundTripErr == nil {
			p.drainResponseBody(reqCtx, resp)
		}

		// Every attempt gets its own request object and its own body reader.
		// An attempt that overran its timeout may still be using the previous
		// ones in the background, so neither is ever touched again.
		attemptReq := req
		if hasReqBody || curRetryAttemptNum > 0 {
			attemptReq = req.Clone(reqCtx) // Per RoundTripper contract.
		}
		if hasReqBody {
			freshReqBody, bodyErr := getFreshReqBody()
			if bodyErr != nil {
				if curRetryAttemptNum == 0 {
					return nil, &RequestPipelineError{Inner: bodyErr}
				}
				p.logger(reqCtx).Error(fmt.Sprintf(
					"failed to get request body for the next retry attempt, %d request(s) done", curRetryAttemptNum),
					log.Error(bodyErr))
				return resp, roundTripErr
			}
			attemptReq.Body = freshReqBody
		}
		if curRetryAttemptNum > 0 {
			attemptReq.Header.Set(RetryAttemptNumberHeader, strconv.Itoa(curRetryAttemptNum))
		}

		// Wait for the rate limiter's admission.
		if admissionErr := p.waitForAdmission(reqCtx, rateLimitKey); admissionErr != nil {
			if curRetryAttemptNum == 0 {
				return nil, admissionErr
			}
			attempts = append(attempts, retry.Attempt{
				Number: curRetryAttemptNum + 1, StartedAt: time.Now(), FinishedAt: time.Now(), Err: admissionErr})
			return nil, &retry.ExhaustedError{Attempts: attempts, LastErr: admissionErr}
		}

		// Perform request attempt under the attempt timeout watchdog.
		attemptStartedAt := time.Now()
		resp, roundTripErr = p.doAttempt(attemptReq, watchdog)
		attempts = append(attempts, retry.Attempt{
			Number: curRetryAttemptNum + 1, StartedAt: attemptStartedAt, FinishedAt: time.Now(), Err: roundTripErr})

		// Check if another retry attempt should be done.
		needRetry, checkRetryErr := p.CheckRetry(reqCtx, resp, roundTripErr, curRetryAttemptNum)
		if checkRetryErr != nil {
			p.logger(reqCtx).Error(fmt.Sprintf(
				"failed to check if retry is needed, %d request(s) done", curRetryAttemptNum+1),
				log.Error(checkRetryErr))
			return resp, roundTripErr
		}
		if !needRetry {
			return resp, roundTripErr
		}

		// Check should we stop (max attempts exceeded or by backoff policy).
		if p.MaxRetryAttempts > 0 && curRetryAttemptNum >= p.MaxRetryAttempts {
			p.logger(reqCtx).Warnf("max retry attempts exceeded (%d), %d request(s) done",
				p.MaxRetryAttempts, curRetryAttemptNum+1)
			return p.finalResult(resp, roundTripErr, attempts)
		}
		waitTime, stop := getNextWaitTime(resp)
		if stop {
			return p.finalResult(resp, roundTripErr, attempts)
		}

		// Do not start a backoff wait that cannot end before the deadline.
		if deadline, ok := reqCtx.Deadline(); ok && time.Now().Add(waitTime).After(deadline) {
			p.logger(reqCtx).Warnf(
				"deadline would pass during the backoff wait (%s), %d request(s) done",
				waitTime, curRetryAttemptNum+1)
			return p.finalResult(resp, roundTripErr, attempts)
		}

		select {
		case <-reqCtx.Done():
			p.logger(reqCtx).Warnf("context canceled (%v) while waiting for the next retry attempt, %d request(s) done",
				reqCtx.Err(), curRetryAttemptNum+1)
			return p.finalResult(resp, roundTripErr, attempts)
		case <-time.After(waitTime):
		}
	}
}

// finalResult reports a terminal outcome after retries are over. A response is
// returned as is so that the caller can inspect the status code; a bare
// transport error is wrapped into *retry.ExhaustedError with the attempt history.
func (p *RequestPipeline) finalResult(
	resp *http.Response, roundTripErr error, attempts []retry.Attempt,
) (*http.Response, error) {
	if roundTripErr == nil {
		return resp, nil
	}
	return resp, &retry.ExhaustedError{Attempts: attempts, LastErr: roundTripErr}
}

// doAttempt runs a single round trip, bounded by AttemptTimeout clamped to
// the context's deadline.
func (p *RequestPipeline) doAttempt(req *http.Request, watchdog *Watchdog) (*http.Response, error) {
	attemptDeadline, hasAttemptDeadline := time.Time{}, false
	if p.AttemptTimeout > 0 {
		attemptDeadline, hasAttemptDeadline = time.Now().Add(p.AttemptTimeout), true
	}
	if ctxDeadline, ok := req.Context().Deadline(); ok {
		if !hasAttemptDeadline || ctxDeadline.Before(attemptDeadline) {
			attemptDeadline, hasAttemptDeadline = ctxDeadline, true
		}
	}
	if !hasAttemptDeadline {
		return p.Delegate.RoundTrip(req)
	}
	return watchdog.Run(attemptDeadline, func() (*http.Response, error) {
		return p.Delegate.RoundTrip(req)
	})
}

// waitForAdmission polls the rate limiter until the request is admitted.
// Denial is a scheduling signal: the pipeline sleeps out retryAfter and
// re-polls instead of failing, unless the wait cannot end before the deadline.
func (p *RequestPipeline) waitForAdmission(ctx context.Context, key string) error {
	if p.Limiter == nil {
		return nil
	}
	for {
		allow, retryAfter, err := p.Limiter.Allow(ctx, key)
		if err != nil {
			return &RequestPipelineError{Inner: fmt.Errorf("rate limit admission: %w", err)}
		}
		if allow {
			return nil
		}

		waitTime := retryAfter + admissionWaitPadding
		if deadline, ok := ctx.Deadline(); ok && time.Now().Add(waitTime).After(deadline) {
			return &RateLimitWaitError{Inner: fmt.Errorf(
				"admission wait %s would pass the deadline", waitTime)}
		}

		p.logger(ctx).Debug("request denied by rate limiter, waiting",
			log.String("rate_limit_key", key), log.Duration("retry_after", retryAfter))

		timer := time.NewTimer(waitTime)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &RateLimitWaitError{Inner: ctx.Err()}
		case <-timer.C:
		}
	}
}

type waitTimeProvider func(resp *http.Response) (waitTime time.Duration, stop bool)

func (p *RequestPipeline) makeNextWaitTimeProvider() waitTimeProvider {
	bf := p.BackoffPolicy.NewBackOff()
	return func(resp *http.Response) (waitTime time.Duration, stop bool) {
		if resp != nil && !p.IgnoreRetryAfter {
			if retryAfter, ok := parseRetryAfterFromResponse(resp); ok {
				return retryAfter, false
			}
		}
		waitTime = bf.NextBackOff()
		return waitTime, waitTime == backoff.Stop
	}
}

func (p *RequestPipeline) drainResponseBody(ctx context.Context, resp *http.Response) {
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.logger(ctx).Error("failed to close previous response body between retry attempts", log.Error(closeErr))
		}
	}()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		p.logger(ctx).Error("failed to discard previous response body between retry attempts", log.Error(err))
	}
}

func (p *RequestPipeline) logger(ctx context.Context) log.FieldLogger {
	if p.LoggerProvider != nil {
		return p.LoggerProvider(ctx)
	}
	return p.Logger
}

// RequestPipelineError is returned in RoundTrip method of RequestPipeline
// when the original request cannot be potentially retried.
type RequestPipelineError struct {
	Inner error
}

func (e *RequestPipelineError) Error() string {
	return fmt.Sprintf("request pipeline: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RequestPipelineError) Unwrap() error {
	return e.Inner
}

// RateLimitWaitError is returned when waiting out a rate limit denial
// cannot be completed: the request's deadline would pass during the wait
// or its context was canceled.
type RateLimitWaitError struct {
	Inner error
}

func (e *RateLimitWaitError) Error() string {
	return fmt.Sprintf("wait due to client side rate limiting: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RateLimitWaitError) Unwrap() error {
	return e.Inner
}
