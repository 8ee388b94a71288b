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
	"net/http/httputil"
)

// DefaultDumpMaxBodySize limits how much of a dumped body ends up in the log.
const DefaultDumpMaxBodySize = 64 * 1024

// StringMasker masks secrets in a string. *log.Masker satisfies it.
type StringMasker interface {
	Mask(s string) string
}

// Dumper renders raw HTTP requests and responses for logging,
// masking credentials and truncating oversized bodies.
type Dumper struct {
	// Masker removes secrets (Authorization header, tokens in bodies) from dumps. May be nil.
	Masker StringMasker

	// MaxBodySize is the maximum number of body bytes included in a dump.
	// DefaultDumpMaxBodySize is used if 0.
	MaxBodySize int
}

// DumpRequest returns the wire representation of the request.
// The body is dumped only when it fits into MaxBodySize.
func (d *Dumper) DumpRequest(r *http.Request) string {
	withBody := r.ContentLength >= 0 && r.ContentLength <= int64(d.maxBodySize())
	dump, err := httputil.DumpRequestOut(r, withBody)
	if err != nil {
		return fmt.Sprintf("<failed to dump request: %v>", err)
	}
	return d.mask(string(dump))
}

// DumpResponse returns the wire representation of the response along with
// a response whose body is restored and can be read again by the caller.
func (d *Dumper) DumpResponse(resp *http.Response) (string, *http.Response) {
	if resp.Body == nil || resp.ContentLength > int64(d.maxBodySize()) {
		dump, err := httputil.DumpResponse(resp, false)
		if err != nil {
			return fmt.Sprintf("<failed to dump response: %v>", err), resp
		}
		return d.mask(string(dump)), resp
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, int64(d.maxBodySize())+1))
	if err != nil {
		return fmt.Sprintf("<failed to read response body: %v>", err), resp
	}
	_ = resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	withBody := len(bodyBytes) <= d.maxBodySize()
	dump, dumpErr := httputil.DumpResponse(resp, withBody)
	// DumpResponse consumed the restored body, restore it once more.
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	if dumpErr != nil {
		return fmt.Sprintf("<failed to dump response: %v>", dumpErr), resp
	}
	return d.mask(string(dump)), resp
}

func (d *Dumper) maxBodySize() int {
	if d.MaxBodySize > 0 {
		return d.MaxBodySize
	}
	return DefaultDumpMaxBodySize
}

func (d *Dumper) mask(s string) string {
	if d.Masker == nil {
		return s
	}
	return d.Masker.Mask(s)
}
