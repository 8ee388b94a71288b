/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package httpclient

import "context"

type ctxKey int

const ctxKeyRequestType ctxKey = iota

// NewContextWithRequestType creates a new context with request type.
// The request type is used as a label in metrics and logs of a single call,
// overriding the client-wide one.
func NewContextWithRequestType(ctx context.Context, requestType string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestType, requestType)
}

// GetRequestTypeFromContext extracts request type from the context.
func GetRequestTypeFromContext(ctx context.Context) string {
	value := ctx.Value(ctxKeyRequestType)
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}
