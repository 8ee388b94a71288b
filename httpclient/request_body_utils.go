/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// makeRequestBodyProvider returns a function that produces an independent
// body reader for every attempt. A previous attempt's reader is never rewound
// or reused: an attempt that overran its timeout may still be draining it in
// the background.
func makeRequestBodyProvider(req *http.Request) (func() (io.ReadCloser, error), error) {
	// GetBody is set by http.NewRequest for the common in-memory body types
	// and hands out a fresh reader on every call.
	if req.GetBody != nil {
		return req.GetBody, nil
	}

	bufferedReqBody, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("read all request body before doing first request: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(bufferedReqBody)), nil
	}, nil
}
