package main

import (
	"strings"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"github.com/rotisserie/eris"
)

// HTMLMarker ends the header region of a document
const HTMLMarker = "<!DOCTYPE html"

// HeaderFallback selects what sliceHeader returns when HTMLMarker is absent
type HeaderFallback string

const (
	// FallbackWhole returns the whole document.
	FallbackWhole HeaderFallback = "whole"
	// FallbackTrimLast returns the document without its last character,
	// which is what slicing up to a "not found" index of -1 produced in the
	// tool this one replaces.
	FallbackTrimLast HeaderFallback = "trim-last"
)

func parseHeaderFallback(s string) (HeaderFallback, error) {
	switch HeaderFallback(strings.ToLower(s)) {
	case FallbackWhole:
		return FallbackWhole, nil
	case FallbackTrimLast:
		return FallbackTrimLast, nil
	}
	return "", inputError(eris.Errorf("unknown header fallback %q (want %q or %q)", s, FallbackWhole, FallbackTrimLast))
}

// sliceHeader returns the part of document before the first HTMLMarker
func sliceHeader(document string, fallback HeaderFallback) string {
	if idx := strings.Index(document, HTMLMarker); idx >= 0 {
		return document[:idx]
	}
	if fallback == FallbackTrimLast {
		_, size := utf8.DecodeLastRuneInString(document)
		return document[:len(document)-size]
	}
	return document
}

// HeaderQuery selects the header search mode. Exactly one field is set.
type HeaderQuery struct {
	Substring string `json:"substring,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
}

// Enabled reports whether any search was requested
func (q HeaderQuery) Enabled() bool {
	return q.Substring != "" || q.Pattern != ""
}

// Validate enforces that exactly one search mode is active
func (q HeaderQuery) Validate() error {
	switch {
	case q.Substring != "" && q.Pattern != "":
		return conflictError(eris.New("it could be only one type of search: pattern or substring"))
	case q.Substring == "" && q.Pattern == "":
		return conflictError(eris.New("header search needs a non-empty pattern or substring"))
	}
	return nil
}

// Expression returns the effective pattern. Substrings are interpolated
// unescaped, so metacharacters keep their regex meaning.
func (q HeaderQuery) Expression() string {
	if q.Pattern != "" {
		return q.Pattern
	}
	return ".*" + q.Substring + ".*"
}

// searchHeader applies q to the header region of document and returns the
// matches in order. No match is an empty slice.
func searchHeader(document string, q HeaderQuery, fallback HeaderFallback) ([]string, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if !utf8.ValidString(document) {
		return nil, inputError(eris.New("email content has incorrect type: not UTF-8 text"))
	}

	re, err := regexp2.Compile(q.Expression(), regexp2.None)
	if err != nil {
		return nil, inputError(eris.Wrapf(err, "invalid header pattern %q", q.Expression()))
	}
	re.MatchTimeout = MatchTimeout

	return findAll(re, sliceHeader(document, fallback))
}
