/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package payload

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateJSON(t *testing.T) {
	require.NoError(t, ValidateJSON([]byte(`{"items": [1, 2, 3], "next": null}`)))
	require.NoError(t, ValidateJSON([]byte(`[]`)))
	require.NoError(t, ValidateJSON([]byte(`"just a string"`)))

	err := ValidateJSON([]byte(`{"items": [1, 2`))
	var invalidErr *InvalidPayloadError
	require.ErrorAs(t, err, &invalidErr)
	require.Equal(t, KindJSON, invalidErr.Kind)
}

func TestValidateXML(t *testing.T) {
	require.NoError(t, ValidateXML([]byte(`<items><item id="1"/><item id="2"/></items>`)))

	err := ValidateXML([]byte(`<items><item></items>`))
	var invalidErr *InvalidPayloadError
	require.ErrorAs(t, err, &invalidErr)
	require.Equal(t, KindXML, invalidErr.Kind)
}

func TestValidateJPEG(t *testing.T) {
	require.NoError(t, ValidateJPEG([]byte{0xff, 0xd8, 0x01, 0x02, 0xff, 0xd9}))

	err := ValidateJPEG([]byte{0xff, 0xd8, 0x01, 0x02})
	var invalidErr *InvalidPayloadError
	require.ErrorAs(t, err, &invalidErr)
	require.Equal(t, KindJPEG, invalidErr.Kind)
	require.EqualError(t, err, "payload is not valid JPEG: last 2 bytes were 0102")

	require.Error(t, ValidateJPEG([]byte{0xd9}))
	require.Error(t, ValidateJPEG(nil))
}

func TestValidatePNG(t *testing.T) {
	require.NoError(t, ValidatePNG([]byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00}))

	err := ValidatePNG([]byte("not a png at all"))
	var invalidErr *InvalidPayloadError
	require.ErrorAs(t, err, &invalidErr)
	require.Equal(t, KindPNG, invalidErr.Kind)
	require.Error(t, ValidatePNG(nil))
}

func TestValidateGIF(t *testing.T) {
	require.NoError(t, ValidateGIF([]byte("GIF87a......")))
	require.NoError(t, ValidateGIF([]byte("GIF89a......")))

	err := ValidateGIF([]byte("GIF90a......"))
	var invalidErr *InvalidPayloadError
	require.ErrorAs(t, err, &invalidErr)
	require.Equal(t, KindGIF, invalidErr.Kind)
	require.Error(t, ValidateGIF(nil))
}

func TestValidateDispatch(t *testing.T) {
	require.NoError(t, Validate([]byte(`{}`), KindJSON))
	require.NoError(t, Validate([]byte(`<a/>`), KindXML))
	require.EqualError(t, Validate([]byte(`{}`), Kind("yaml")), `unknown payload kind "yaml"`)
}
