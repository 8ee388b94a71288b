/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package log_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/apifetch/go-apifetch/log"
	"github.com/apifetch/go-apifetch/log/logtest"
)

func TestMaskerDefaultRules(t *testing.T) {
	masker := NewMasker(DefaultMasks)

	tests := []struct {
		Name string
		In   string
		Want string
	}{
		{
			Name: "authorization header",
			In:   "GET /items HTTP/1.1\r\nAuthorization: Bearer c2VjcmV0\r\nAccept: */*\r\n\r\n",
			Want: "GET /items HTTP/1.1\r\nAuthorization: ***\r\nAccept: */*\r\n\r\n",
		},
		{
			Name: "cookie header",
			In:   "GET / HTTP/1.1\r\nCookie: session=abc123\r\n\r\n",
			Want: "GET / HTTP/1.1\r\nCookie: ***\r\n\r\n",
		},
		{
			Name: "password in json body",
			In:   `{"user": "bob", "password": "hunter2"}`,
			Want: `{"user": "bob", "password": "***"}`,
		},
		{
			Name: "api key in query string",
			In:   "GET /items?api_key=deadbeef&page=2 HTTP/1.1",
			Want: "GET /items?api_key=***&page=2 HTTP/1.1",
		},
		{
			Name: "tokens in form body",
			In:   "access_token=aaa&refresh_token=bbb",
			Want: "access_token=***&refresh_token=***",
		},
		{
			Name: "case insensitive field",
			In:   "AUTHORIZATION: Basic dXNlcjpwYXNz\r\n",
			Want: "AUTHORIZATION: ***\r\n",
		},
		{
			Name: "nothing to mask",
			In:   "GET /items HTTP/1.1\r\nAccept: */*\r\n\r\n",
			Want: "GET /items HTTP/1.1\r\nAccept: */*\r\n\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			require.Equal(t, tt.Want, masker.Mask(tt.In))
		})
	}
}

func TestMaskerCustomRule(t *testing.T) {
	masker := NewMasker([]MaskingRuleConfig{
		{
			Field: "ssn",
			Masks: []MaskConfig{{RegExp: `\d{3}-\d{2}-\d{4}`, Mask: "***-**-****"}},
		},
	})
	require.Equal(t, `{"ssn": "***-**-****"}`, masker.Mask(`{"ssn": "123-45-6789"}`))
}

func TestMaskingLogger(t *testing.T) {
	recorder := logtest.NewRecorder()
	logger := NewMaskingLogger(recorder, NewMasker(DefaultMasks))

	logger.Info("request dump", String("dump", "Authorization: Bearer c2VjcmV0\r\n"))
	entry, found := recorder.FindEntry("request dump")
	require.True(t, found)
	field, fieldFound := entry.FindField("dump")
	require.True(t, fieldFound)
	require.Equal(t, "Authorization: ***\r\n", string(field.Bytes))

	logger.Error("request failed", Error(errors.New(`post form failed: password=qwerty`)))
	entry, found = recorder.FindEntry("request failed")
	require.True(t, found)
	field, fieldFound = entry.FindField("error")
	require.True(t, fieldFound)
	require.Equal(t, "post form failed: password=***", field.Any.(error).Error())

	logger.Info("masked message, client_secret=s3cr3t")
	_, found = recorder.FindEntry("masked message, client_secret=***")
	require.True(t, found)
}
