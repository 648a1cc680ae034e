package provider

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a provider failure. Callers match on kind, never on
// concrete types.
type ErrorKind string

const (
	KindGeneric   ErrorKind = "generic"
	KindTimeout   ErrorKind = "timeout"
	KindRateLimit ErrorKind = "rate_limit"
)

// Error is the tagged failure every provider surfaces. StatusCode and
// RetryAfter are optional; Err carries the underlying cause for unwrapping.
type Error struct {
	Provider   string
	Operation  string
	Kind       ErrorKind
	Message    string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Operation, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a generic provider error.
func NewError(providerName, operation, message string, statusCode int, cause error) *Error {
	return &Error{
		Provider:   providerName,
		Operation:  operation,
		Kind:       KindGeneric,
		Message:    message,
		StatusCode: statusCode,
		Err:        cause,
	}
}

// NewTimeoutError marks an operation that exceeded its configured timeout.
func NewTimeoutError(providerName, operation string, cause error) *Error {
	return &Error{
		Provider:  providerName,
		Operation: operation,
		Kind:      KindTimeout,
		Message:   "operation timed out",
		Err:       cause,
	}
}

// NewRateLimitError marks an upstream throttle. retryAfter may be zero when
// the upstream did not say.
func NewRateLimitError(providerName, operation string, retryAfter time.Duration) *Error {
	return &Error{
		Provider:   providerName,
		Operation:  operation,
		Kind:       KindRateLimit,
		Message:    "rate limited by upstream",
		StatusCode: 429,
		RetryAfter: retryAfter,
	}
}

// AsError extracts the tagged provider error from err's chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable reports whether err is a transient failure worth another
// attempt: timeouts, throttles, and 5xx responses.
func IsRetryable(err error) bool {
	pe, ok := AsError(err)
	if !ok {
		return false
	}
	switch pe.Kind {
	case KindTimeout, KindRateLimit:
		return true
	default:
		return pe.StatusCode >= 500
	}
}
