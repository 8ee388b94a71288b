/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

// Package httpclient provides an HTTP client that survives flaky APIs:
// outgoing requests pass through client-side rate limiting, a per-attempt
// timeout watchdog and retries with exponential backoff, and can be logged,
// measured and augmented with User-Agent, X-Request-ID and Authorization
// headers on the way.
package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/apifetch/go-apifetch/log"
)

// Opts provides options for creating a new HTTP client.
type Opts struct {
	// UserAgent is a user agent string set in all outgoing requests.
	UserAgent string

	// RequestType is a type of request, used as a label in metrics and logs,
	// e.g. service 'auth-service' or an action 'login'.
	RequestType string

	// Delegate is the transport that actually performs requests.
	// A clone of http.DefaultTransport is used if nil.
	Delegate http.RoundTripper

	// Logger is used for logging.
	// When it's necessary to use context-specific logger, LoggerProvider should be used instead.
	Logger log.FieldLogger

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// RequestIDProvider is a function that provides a request ID
	// for the X-Request-ID header. A new xid is generated if nil.
	RequestIDProvider func(ctx context.Context) string

	// Collector is a metrics collector.
	Collector MetricsCollector

	// AuthProvider provides a token for bearer authorization of outgoing requests.
	// No Authorization header is set if nil.
	AuthProvider AuthProvider
}

// New creates a new HTTP client with the given configuration.
func New(cfg *Config, userAgent string) (*http.Client, error) {
	return NewWithOpts(cfg, Opts{UserAgent: userAgent})
}

// Must creates a new HTTP client with the given configuration.
// It panics if the configuration is invalid.
func Must(cfg *Config, userAgent string) *http.Client {
	client, err := New(cfg, userAgent)
	if err != nil {
		panic(err)
	}
	return client
}

// NewWithOpts creates a new HTTP client with the given configuration and options.
// The transport chain, from the wire up: the delegate, then logging, metrics,
// X-Request-ID, User-Agent and (optionally) bearer authorization round trippers,
// with the request pipeline (rate limiting, attempt timeout, retries) outermost,
// so that every retry attempt is paced, stamped and logged individually.
func NewWithOpts(cfg *Config, opts Opts) (*http.Client, error) {
	if cfg == nil {
		cfg = NewConfig()
	}

	var transport http.RoundTripper = opts.Delegate
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	if cfg.Logger.Enabled {
		loggingOpts := cfg.Logger.TransportOpts()
		loggingOpts.Logger = opts.Logger
		loggingOpts.LoggerProvider = opts.LoggerProvider
		if cfg.Logger.DumpRequests {
			loggingOpts.Dumper = &Dumper{
				Masker:      log.NewMasker(log.DefaultMasks),
				MaxBodySize: int(cfg.Logger.DumpMaxBodySize),
			}
		}
		transport = NewLoggingRoundTripperWithOpts(transport, opts.RequestType, loggingOpts)
	}

	if cfg.Metrics.Enabled {
		transport = NewMetricsRoundTripperWithOpts(transport, MetricsRoundTripperOpts{
			RequestType: opts.RequestType,
			Collector:   opts.Collector,
		})
	}

	transport = NewRequestIDRoundTripperWithOpts(transport, RequestIDRoundTripperOpts{
		RequestIDProvider: opts.RequestIDProvider,
	})

	if opts.UserAgent != "" {
		transport = NewUserAgentRoundTripper(transport, opts.UserAgent)
	}

	if opts.AuthProvider != nil {
		transport = NewAuthBearerRoundTripper(transport, opts.AuthProvider)
	}

	pipelineOpts := RequestPipelineOpts{
		AttemptTimeout: cfg.AttemptTimeout,
		Logger:         opts.Logger,
		LoggerProvider: opts.LoggerProvider,
	}

	if cfg.Retries.Enabled {
		policy, err := cfg.Retries.GetPolicy()
		if err != nil {
			return nil, fmt.Errorf("make retry policy: %w", err)
		}
		pipelineOpts.BackoffPolicy = policy
		pipelineOpts.MaxRetryAttempts = cfg.Retries.MaxAttempts
	} else {
		pipelineOpts.MaxRetryAttempts = UnlimitedRetryAttempts
		pipelineOpts.CheckRetryFunc = func(
			_ context.Context, _ *http.Response, _ error, _ int,
		) (bool, error) {
			return false, nil
		}
	}

	if cfg.RateLimits.Enabled {
		limiter, err := cfg.RateLimits.MakeLimiter()
		if err != nil {
			return nil, fmt.Errorf("make rate limiter: %w", err)
		}
		pipelineOpts.Limiter = limiter
	}

	pipeline, err := NewRequestPipelineWithOpts(transport, pipelineOpts)
	if err != nil {
		return nil, fmt.Errorf("make request pipeline: %w", err)
	}

	return &http.Client{Transport: pipeline, Timeout: cfg.Timeout}, nil
}

// MustWithOpts creates a new HTTP client with the given configuration and options.
// It panics if the configuration is invalid.
func MustWithOpts(cfg *Config, opts Opts) *http.Client {
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		panic(err)
	}
	return client
}

// CloneHTTPRequest creates a shallow copy of the request along with a deep copy of its headers.
func CloneHTTPRequest(req *http.Request) *http.Request {
	r := new(http.Request)
	*r = *req
	r.Header = CloneHTTPHeader(req.Header)
	return r
}

// CloneHTTPHeader creates a deep copy of an http.Header.
func CloneHTTPHeader(in http.Header) http.Header {
	out := make(http.Header, len(in))
	for key, values := range in {
		newValues := make([]string, len(values))
		copy(newValues, values)
		out[key] = newValues
	}
	return out
}
