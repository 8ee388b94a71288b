/*
Copyright © 2026 ApiFetch Authors.

Released under MIT license.
*/

package log

import (
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Mask is used to mask a secret in strings.
type Mask struct {
	RegExp *regexp.Regexp
	Mask   string
}

func NewMask(cfg MaskConfig) Mask {
	return Mask{regexp.MustCompile(cfg.RegExp), cfg.Mask}
}

// FieldMasker is used to mask a field in different formats.
type FieldMasker struct {
	Field string // Field is a name of a field used in RegExp, must be lowercase.
	Masks []Mask
}

func NewFieldMasker(cfg MaskingRuleConfig) FieldMasker {
	fMask := FieldMasker{Field: strings.ToLower(cfg.Field), Masks: make([]Mask, 0, len(cfg.Masks))}

	for _, repCfg := range cfg.Masks {
		fMask.Masks = append(fMask.Masks, NewMask(repCfg))
	}
	for _, format := range cfg.Formats {
		switch format {
		case FieldMaskFormatHTTPHeader:
			fMask.Masks = append(fMask.Masks, NewMask(MaskConfig{`(?i)` + cfg.Field + `: .+?\r\n`, cfg.Field + ": ***\r\n"}))
		case FieldMaskFormatJSON:
			fMask.Masks = append(fMask.Masks, NewMask(MaskConfig{`(?i)"` + cfg.Field + `"\s*:\s*".*?[^\\]"`, `"` + cfg.Field + `": "***"`}))
		case FieldMaskFormatURLEncoded:
			fMask.Masks = append(fMask.Masks, NewMask(MaskConfig{`(?i)` + cfg.Field + `\s*=\s*[^&\s]+`, cfg.Field + "=***"}))
		}
	}
	return fMask
}

// Masker is used to mask various secrets in strings.
// Field names of all rules are compiled into a single Aho-Corasick matcher,
// so the per-field regexps run only for fields that actually occur in the string.
type Masker struct {
	FieldMasks []FieldMasker
	matcher    *ahocorasick.Matcher
}

func NewMasker(rules []MaskingRuleConfig) *Masker {
	r := &Masker{FieldMasks: make([]FieldMasker, 0, len(rules))}
	fields := make([]string, 0, len(rules))
	for _, rule := range rules {
		fm := NewFieldMasker(rule)
		r.FieldMasks = append(r.FieldMasks, fm)
		fields = append(fields, fm.Field)
	}
	r.matcher = ahocorasick.NewStringMatcher(fields)
	return r
}

func (r *Masker) Mask(s string) string {
	hits := r.matcher.Match([]byte(strings.ToLower(s)))
	for _, i := range hits {
		for _, rep := range r.FieldMasks[i].Masks {
			s = rep.RegExp.ReplaceAllString(s, rep.Mask)
		}
	}
	return s
}

// DefaultMasks covers the credentials that are most likely to appear in
// dumped requests and responses: the Authorization header and the usual
// OAuth2/password fields in JSON and form-encoded bodies.
var DefaultMasks = []MaskingRuleConfig{
	{
		Field:   "Authorization",
		Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader},
	},
	{
		Field:   "Cookie",
		Formats: []FieldMaskFormat{FieldMaskFormatHTTPHeader},
	},
	{
		Field:   "password",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "client_secret",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "access_token",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "refresh_token",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
	{
		Field:   "api_key",
		Formats: []FieldMaskFormat{FieldMaskFormatJSON, FieldMaskFormatURLEncoded},
	},
}
