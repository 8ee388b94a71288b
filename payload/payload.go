/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

// Package payload validates fetched response bodies against the format
// the caller expects. Validation is pure and happens after the transport
// work is done: a body that arrived intact but holds garbage is a caller
// policy decision, not something to retry.
package payload

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// Kind is a payload format that can be validated.
type Kind string

// Supported payload kinds.
const (
	KindJSON Kind = "json"
	KindXML  Kind = "xml"
	KindJPEG Kind = "jpeg"
	KindPNG  Kind = "png"
	KindGIF  Kind = "gif"
)

// InvalidPayloadError is returned when a payload does not conform to the expected format.
type InvalidPayloadError struct {
	Kind   Kind
	Reason string
}

// Error implements the error interface.
func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("payload is not valid %s: %s", strings.ToUpper(string(e.Kind)), e.Reason)
}

var (
	pngSignature = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	jpegTrailer  = []byte{0xff, 0xd9}
	gifHeader87  = []byte("GIF87a")
	gifHeader89  = []byte("GIF89a")
)

// Validate checks that the payload conforms to the given kind.
func Validate(b []byte, kind Kind) error {
	switch kind {
	case KindJSON:
		return ValidateJSON(b)
	case KindXML:
		return ValidateXML(b)
	case KindJPEG:
		return ValidateJPEG(b)
	case KindPNG:
		return ValidatePNG(b)
	case KindGIF:
		return ValidateGIF(b)
	}
	return fmt.Errorf("unknown payload kind %q", kind)
}

// ValidateJSON checks that the payload is well-formed JSON.
func ValidateJSON(b []byte) error {
	if !json.Valid(b) {
		return &InvalidPayloadError{Kind: KindJSON, Reason: "malformed document"}
	}
	return nil
}

// ValidateXML checks that the payload is a well-formed XML document
// with at least one element.
func ValidateXML(b []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(b))
	seenElement := false
	for {
		token, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				if !seenElement {
					return &InvalidPayloadError{Kind: KindXML, Reason: "no elements found"}
				}
				return nil
			}
			return &InvalidPayloadError{Kind: KindXML, Reason: err.Error()}
		}
		if _, ok := token.(xml.StartElement); ok {
			seenElement = true
		}
	}
}

// ValidateJPEG checks that the payload ends with the JPEG EOI marker (ff d9).
func ValidateJPEG(b []byte) error {
	if len(b) < len(jpegTrailer) || !bytes.Equal(b[len(b)-len(jpegTrailer):], jpegTrailer) {
		return &InvalidPayloadError{
			Kind:   KindJPEG,
			Reason: fmt.Sprintf("last 2 bytes were %x", tail(b, len(jpegTrailer))),
		}
	}
	return nil
}

// ValidatePNG checks that the payload starts with the 8-byte PNG file signature.
func ValidatePNG(b []byte) error {
	if len(b) < len(pngSignature) || !bytes.Equal(b[:len(pngSignature)], pngSignature) {
		return &InvalidPayloadError{
			Kind:   KindPNG,
			Reason: fmt.Sprintf("first 8 bytes were %x", head(b, len(pngSignature))),
		}
	}
	return nil
}

// ValidateGIF checks that the payload starts with a GIF87a or GIF89a header.
func ValidateGIF(b []byte) error {
	if len(b) < len(gifHeader87) ||
		(!bytes.Equal(b[:len(gifHeader87)], gifHeader87) && !bytes.Equal(b[:len(gifHeader89)], gifHeader89)) {
		return &InvalidPayloadError{
			Kind:   KindGIF,
			Reason: fmt.Sprintf("first 6 bytes were %x", head(b, len(gifHeader87))),
		}
	}
	return nil
}

func head(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}

func tail(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[len(b)-n:]
}
