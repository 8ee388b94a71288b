/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/apifetch/go-apifetch/log"
)

// LoggingMode represents a mode of logging.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid checks if the logging mode is valid.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripper implements http.RoundTripper for logging requests.
type LoggingRoundTripper struct {
	// Delegate is the next RoundTripper in the chain.
	Delegate http.RoundTripper

	// ReqType is a type of request. e.g. service 'auth-service', an action 'login' or specific information to correlate.
	ReqType string

	// Opts are the options for the logging round tripper.
	Opts LoggingRoundTripperOpts
}

// LoggingRoundTripperOpts represents options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// Logger is used for logging.
	// When it's necessary to use context-specific logger, LoggerProvider should be used instead.
	Logger log.FieldLogger

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Mode of logging: none, all, failed.
	Mode LoggingMode

	// SlowRequestThreshold is a threshold for slow requests.
	// Requests faster than the threshold are not logged.
	SlowRequestThreshold time.Duration

	// Dumper dumps raw requests and responses into the log. May be nil.
	Dumper *Dumper
}

// NewLoggingRoundTripper creates an HTTP transport that logs requests.
func NewLoggingRoundTripper(delegate http.RoundTripper, reqType string) http.RoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, reqType, LoggingRoundTripperOpts{})
}

// NewLoggingRoundTripperWithOpts creates an HTTP transport that logs requests with options.
func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, reqType string, opts LoggingRoundTripperOpts,
) http.RoundTripper {
	return &LoggingRoundTripper{
		Delegate: delegate,
		ReqType:  reqType,
		Opts:     opts,
	}
}

func (rt *LoggingRoundTripper) getLogger(ctx context.Context) log.FieldLogger {
	if rt.Opts.LoggerProvider != nil {
		return rt.Opts.LoggerProvider(ctx)
	}
	return rt.Opts.Logger
}

// RoundTrip adds logging capabilities to the HTTP transport.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	ctx := r.Context()
	logger := rt.getLogger(ctx)
	if logger == nil {
		return rt.Delegate.RoundTrip(r)
	}

	var reqDump string
	if rt.Opts.Dumper != nil {
		reqDump = rt.Opts.Dumper.DumpRequest(r)
	}

	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	if elapsed < rt.Opts.SlowRequestThreshold {
		return resp, err
	}
	failed := err != nil || (resp != nil && resp.StatusCode >= http.StatusBadRequest)
	if rt.Opts.Mode == LoggingModeFailed && !failed {
		return resp, err
	}

	fields := []log.Field{
		log.String("method", r.Method),
		log.String("url", r.URL.String()),
		log.String("request_type", rt.requestType(ctx)),
		log.DurationIn(elapsed, time.Millisecond),
	}
	if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
		fields = append(fields, log.String("request_id", requestID))
	}
	if resp != nil {
		fields = append(fields, log.Int("status_code", resp.StatusCode))
	}
	if reqDump != "" {
		fields = append(fields, log.String("request_dump", reqDump))
	}
	if rt.Opts.Dumper != nil && resp != nil {
		respDump, dumpedResp := rt.Opts.Dumper.DumpResponse(resp)
		resp = dumpedResp
		fields = append(fields, log.String("response_dump", respDump))
	}

	if err != nil {
		logger.Error("external request failed", append(fields, log.Error(err))...)
		return resp, err
	}
	logger.Info("external request done", fields...)
	return resp, err
}

func (rt *LoggingRoundTripper) requestType(ctx context.Context) string {
	if reqType := GetRequestTypeFromContext(ctx); reqType != "" {
		return reqType
	}
	return rt.ReqType
}
