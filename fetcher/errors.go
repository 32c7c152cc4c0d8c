package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies why a fetch failed.
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindRateLimited ErrorKind = "rate_limited"
	KindTimeout     ErrorKind = "timeout"
	KindNonHTML     ErrorKind = "non_html"
	KindHTTPStatus  ErrorKind = "http_status"
	KindBlocked     ErrorKind = "blocked"
)

// FetchError is the error returned by engines and the PageFetcher.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Detail     string
	Err        error
}

func (e *FetchError) Error() string {
	msg := string(e.Kind)
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Definitive reports whether another engine would see the same outcome,
// so racing further engines is pointless.
func (e *FetchError) Definitive() bool {
	switch e.Kind {
	case KindNonHTML, KindBlocked:
		return true
	case KindHTTPStatus:
		return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
	}
	return false
}

// KindOf returns the kind of err. Errors that are not *FetchError are
// classified as timeouts when a deadline expired and network failures
// otherwise.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindNetwork
}

// statusError maps a non-success HTTP status to a FetchError.
func statusError(rawURL string, code int) *FetchError {
	kind := KindHTTPStatus
	if code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable {
		kind = KindRateLimited
	}
	return &FetchError{Kind: kind, URL: rawURL, StatusCode: code}
}

// transportError wraps a transport failure, recognising expired deadlines.
func transportError(rawURL string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	kind := KindNetwork
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &FetchError{Kind: kind, URL: rawURL, Err: err}
}
