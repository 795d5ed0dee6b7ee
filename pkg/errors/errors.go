package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuth        ErrorType = "auth"
	ErrorTypeConfig      ErrorType = "config"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error represents a categorized failure from one of the bot's collaborators
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, code int, message string) *Error {
	return &Error{Type: t, Code: code, Message: message}
}

// Wrap creates a typed error around an underlying cause
func Wrap(t ErrorType, err error, message string) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// TypeOf returns the type of the first *Error in err's chain, or
// ErrorTypeUnknown when there is none.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// Is reports whether err carries the given type
func Is(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsRetryableType checks if an error type should be retried
func IsRetryableType(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is worth another attempt
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return IsRetryableType(TypeOf(err))
}

// IsFatal reports whether err must stop the process: a missing or rejected
// credential will not fix itself between cycles.
func IsFatal(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeAuth, ErrorTypeConfig:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case http.StatusTooManyRequests:
		return true
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return false
	default:
		return statusCode >= 500
	}
}

// FromStatus maps an HTTP status code to a typed error
func FromStatus(statusCode int, message string) *Error {
	t := ErrorTypeUnknown
	switch {
	case statusCode == http.StatusTooManyRequests:
		t = ErrorTypeRateLimit
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		t = ErrorTypeAuth
	case statusCode == http.StatusNotFound:
		t = ErrorTypeNotFound
	case statusCode >= 500:
		t = ErrorTypeServerError
	}
	return New(t, statusCode, message)
}
