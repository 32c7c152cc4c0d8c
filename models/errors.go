package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidInput      = "INVALID_INPUT"
	ErrCodeInvalidURL        = "INVALID_URL"
	ErrCodeInvalidRange      = "INVALID_RANGE"
	ErrCodeFetchFailed       = "FETCH_FAILED"
	ErrCodeResourceExhausted = "RESOURCE_EXHAUSTED"
	ErrCodeIOFailure         = "IO_FAILURE"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// Sentinels for errors.Is matching. Only the Code is compared.
var (
	ErrInvalidInput      = &CrawlError{Code: ErrCodeInvalidInput}
	ErrFetchFailed       = &CrawlError{Code: ErrCodeFetchFailed}
	ErrResourceExhausted = &CrawlError{Code: ErrCodeResourceExhausted}
	ErrIOFailure         = &CrawlError{Code: ErrCodeIOFailure}
	ErrNotFound          = &CrawlError{Code: ErrCodeNotFound}
	ErrConflict          = &CrawlError{Code: ErrCodeConflict}
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CrawlError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type CrawlError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *CrawlError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CrawlError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a CrawlError of the same category.
// INVALID_URL and INVALID_RANGE both belong to INVALID_INPUT.
func (e *CrawlError) Is(target error) bool {
	t, ok := target.(*CrawlError)
	if !ok {
		return false
	}
	if t.Code == e.Code {
		return true
	}
	return t.Code == ErrCodeInvalidInput &&
		(e.Code == ErrCodeInvalidURL || e.Code == ErrCodeInvalidRange)
}

// NewCrawlError creates a new CrawlError.
func NewCrawlError(code, message string, err error) *CrawlError {
	return &CrawlError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *CrawlError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}
