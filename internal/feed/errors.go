package feed

import (
	"errors"
	"fmt"
)

// ErrNotModified is returned by the fetcher when the source answers a
// conditional GET with 304. The sync pass still counts as a success.
var ErrNotModified = errors.New("feed not modified")

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

const (
	FetchNetworkUnavailable FetchErrorKind = "network_unavailable"
	FetchHTTPStatus         FetchErrorKind = "http_status"
	FetchTimeout            FetchErrorKind = "timeout"
)

// FetchError is a failure retrieving a raw feed document.
type FetchError struct {
	Kind FetchErrorKind
	Code int // HTTP status, set for FetchHTTPStatus
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchHTTPStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Code)
	case FetchTimeout:
		return fmt.Sprintf("fetch %s: timed out: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: network unavailable: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseErrorKind classifies parse failures.
type ParseErrorKind string

const (
	ParseMalformedDocument ParseErrorKind = "malformed_document"
	ParseUnsupportedFormat ParseErrorKind = "unsupported_format"
)

// ParseError is a failure converting a raw document into items.
type ParseError struct {
	Kind ParseErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse feed (%s): %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
