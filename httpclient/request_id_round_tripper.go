/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"net/http"

	"github.com/rs/xid"
)

// RequestIDHeader is an HTTP header name for the request ID.
const RequestIDHeader = "X-Request-ID"

// RequestIDRoundTripper sets X-Request-ID header to the request.
type RequestIDRoundTripper struct {
	// Delegate is the next RoundTripper in the chain.
	Delegate http.RoundTripper

	// RequestIDProvider is a function that provides a request ID.
	// A new xid is generated if nil.
	RequestIDProvider func(ctx context.Context) string
}

// RequestIDRoundTripperOpts represents options for RequestIDRoundTripper.
type RequestIDRoundTripperOpts struct {
	// RequestIDProvider is a function that provides a request ID.
	// A new xid is generated if nil.
	RequestIDProvider func(ctx context.Context) string
}

// NewRequestIDRoundTripper creates an HTTP transport with X-Request-ID header support.
func NewRequestIDRoundTripper(delegate http.RoundTripper) http.RoundTripper {
	return NewRequestIDRoundTripperWithOpts(delegate, RequestIDRoundTripperOpts{})
}

// NewRequestIDRoundTripperWithOpts creates an HTTP transport with X-Request-ID header support with options.
func NewRequestIDRoundTripperWithOpts(
	delegate http.RoundTripper, opts RequestIDRoundTripperOpts,
) http.RoundTripper {
	return &RequestIDRoundTripper{
		Delegate:          delegate,
		RequestIDProvider: opts.RequestIDProvider,
	}
}

// RoundTrip adds X-Request-ID header to the request if it is not set yet.
func (rt *RequestIDRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get(RequestIDHeader) != "" {
		return rt.Delegate.RoundTrip(r)
	}

	requestID := ""
	if rt.RequestIDProvider != nil {
		requestID = rt.RequestIDProvider(r.Context())
	}
	if requestID == "" {
		requestID = xid.New().String()
	}

	r = CloneHTTPRequest(r)
	r.Header.Set(RequestIDHeader, requestID)
	return rt.Delegate.RoundTrip(r)
}
