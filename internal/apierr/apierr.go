// Package apierr defines the client-facing outcome taxonomy of the API and
// the fixed mapping from outcome code to HTTP status.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"ourchants/internal/storage"
)

// Code is the machine-readable error code sent to clients
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeInvalidRequest    Code = "INVALID_REQUEST"
	CodeInvalidLimit      Code = "INVALID_LIMIT"
	CodeInvalidOffset     Code = "INVALID_OFFSET"
	CodeInvalidBucketName Code = "INVALID_BUCKET_NAME"
	CodeInvalidObjectKey  Code = "INVALID_OBJECT_KEY"
	CodeNotFound          Code = "NOT_FOUND"
	CodeSongNotFound      Code = "SONG_NOT_FOUND"
	CodeBucketNotFound    Code = "BUCKET_NOT_FOUND"
	CodeObjectNotFound    Code = "OBJECT_NOT_FOUND"
	CodeMethodNotAllowed  Code = "METHOD_NOT_ALLOWED"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// DefaultRetryAfter is the retry hint sent with RATE_LIMIT_EXCEEDED
const DefaultRetryAfter = 5 * time.Second

// Status returns the HTTP status code for c
func (c Code) Status() int {
	switch c {
	case CodeValidation, CodeInvalidRequest, CodeInvalidLimit, CodeInvalidOffset,
		CodeInvalidBucketName, CodeInvalidObjectKey:
		return http.StatusBadRequest
	case CodeNotFound, CodeSongNotFound, CodeBucketNotFound, CodeObjectNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a client-facing outcome. Err, when set, is the underlying cause and
// is never serialized.
type Error struct {
	Code       Code
	Message    string
	Details    interface{}
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for the error's code
func (e *Error) Status() int {
	return e.Code.Status()
}

// New creates an Error without details
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithDetails creates an Error carrying structured details
func WithDetails(code Code, message string, details interface{}) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// Validation wraps per-field complaints
func Validation(fields map[string][]string) *Error {
	return &Error{Code: CodeValidation, Message: "Validation failed", Details: fields}
}

// RateLimited creates a RATE_LIMIT_EXCEEDED error with a retry hint
func RateLimited(retryAfter time.Duration, cause error) *Error {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	return &Error{
		Code:       CodeRateLimitExceeded,
		Message:    "Rate limit exceeded. Please try again later.",
		Details:    map[string]interface{}{"retry_after": int(retryAfter.Seconds())},
		RetryAfter: retryAfter,
		Err:        cause,
	}
}

// Internal hides cause behind an opaque INTERNAL_ERROR
func Internal(message string, cause error) *Error {
	if message == "" {
		message = "Internal server error"
	}
	return &Error{Code: CodeInternal, Message: message, Err: cause}
}

// Classify turns any error into an *Error. Throttled backends become
// RATE_LIMIT_EXCEEDED; anything unrecognized becomes INTERNAL_ERROR.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, storage.ErrThrottled) {
		return RateLimited(DefaultRetryAfter, err)
	}

	return Internal("", err)
}
