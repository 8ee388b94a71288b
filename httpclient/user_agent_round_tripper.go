/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package httpclient

import "net/http"

// UserAgentUpdateStrategy determines how the client-wide user agent string is
// combined with a User-Agent header already present on the outgoing request.
type UserAgentUpdateStrategy int

const (
	// UserAgentUpdateStrategySetIfEmpty sets the user agent only when the
	// request carries none. It is the default strategy.
	UserAgentUpdateStrategySetIfEmpty UserAgentUpdateStrategy = iota

	// UserAgentUpdateStrategyAppend adds the user agent after the one already
	// present on the request.
	UserAgentUpdateStrategyAppend

	// UserAgentUpdateStrategyPrepend adds the user agent before the one
	// already present on the request.
	UserAgentUpdateStrategyPrepend
)

// UserAgentRoundTripper sets the User-Agent HTTP header in outgoing requests.
type UserAgentRoundTripper struct {
	// Delegate is the next RoundTripper in the chain.
	Delegate http.RoundTripper

	// UserAgent is the client-wide user agent string.
	UserAgent string

	// UpdateStrategy determines how UserAgent is combined with a header
	// already set on the request.
	UpdateStrategy UserAgentUpdateStrategy
}

// UserAgentRoundTripperOpts represents options for UserAgentRoundTripper.
type UserAgentRoundTripperOpts struct {
	UpdateStrategy UserAgentUpdateStrategy
}

// NewUserAgentRoundTripper creates a new UserAgentRoundTripper.
func NewUserAgentRoundTripper(delegate http.RoundTripper, userAgent string) *UserAgentRoundTripper {
	return NewUserAgentRoundTripperWithOpts(delegate, userAgent, UserAgentRoundTripperOpts{})
}

// NewUserAgentRoundTripperWithOpts creates a new UserAgentRoundTripper with specified options.
func NewUserAgentRoundTripperWithOpts(
	delegate http.RoundTripper, userAgent string, opts UserAgentRoundTripperOpts,
) *UserAgentRoundTripper {
	return &UserAgentRoundTripper{delegate, userAgent, opts.UpdateStrategy}
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *UserAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	current := req.Header.Get("User-Agent")
	if rt.UpdateStrategy == UserAgentUpdateStrategySetIfEmpty && current != "" {
		return rt.Delegate.RoundTrip(req)
	}

	userAgent := rt.UserAgent
	if current != "" {
		switch rt.UpdateStrategy {
		case UserAgentUpdateStrategyAppend:
			userAgent = current + " " + rt.UserAgent
		case UserAgentUpdateStrategyPrepend:
			userAgent = rt.UserAgent + " " + current
		}
	}

	req = req.Clone(req.Context()) // Per RoundTripper contract.
	req.Header.Set("User-Agent", userAgent)
	return rt.Delegate.RoundTrip(req)
}
