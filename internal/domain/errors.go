package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind labels an outcome's failure class for callers deciding on
// manual retry.
type ErrorKind string

const (
	KindConfiguration    ErrorKind = "configuration"
	KindSessionExhausted ErrorKind = "session_exhausted"
	KindCircuitOpen      ErrorKind = "circuit_open"
	KindBackendCall      ErrorKind = "backend_call"
	KindValidation       ErrorKind = "validation"
)

// ConfigurationError is fatal: no backend satisfies a required capability or
// the deployment is otherwise unusable. It is never retried and aborts a job
// before any item is dispatched when raised at the job level.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// SessionExhaustedError is returned once a session's call budget is spent.
// The caller recovers by creating a new session; it is never retried
// internally.
type SessionExhaustedError struct {
	SessionID string
	MaxCalls  int
}

func (e *SessionExhaustedError) Error() string {
	return fmt.Sprintf("session %s exhausted (max %d calls)", e.SessionID, e.MaxCalls)
}

// CircuitOpenError is returned when a backend's circuit rejects a call
// without invoking the backend.
type CircuitOpenError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for %s (retry after %s)", e.Key, e.RetryAfter)
}

// BackendCallError wraps a failed backend invocation. RateLimited and
// Transient drive the retry policy; both false means the call must not be
// retried.
type BackendCallError struct {
	BackendID   string
	StatusCode  int
	RateLimited bool
	Transient   bool
	Err         error
}

func (e *BackendCallError) Error() string {
	msg := fmt.Sprintf("backend %s call failed", e.BackendID)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendCallError) Unwrap() error { return e.Err }

// ValidationError marks a malformed work item. It is surfaced immediately
// and never retried.
type ValidationError struct {
	ItemID string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid work item %q: %s", e.ItemID, e.Reason)
}

// KindOf maps an error to its outcome kind. Unrecognized errors are treated
// as backend call failures.
func KindOf(err error) ErrorKind {
	switch {
	case IsConfiguration(err):
		return KindConfiguration
	case IsSessionExhausted(err):
		return KindSessionExhausted
	case IsCircuitOpen(err):
		return KindCircuitOpen
	case IsValidation(err):
		return KindValidation
	default:
		return KindBackendCall
	}
}

// IsRetryable reports whether the retry policy may schedule another attempt
// for this error. Only rate-limited and transient backend failures qualify.
func IsRetryable(err error) bool {
	var be *BackendCallError
	if errors.As(err, &be) {
		return be.RateLimited || be.Transient
	}
	return false
}

// IsRateLimited reports whether the error is a backend throttling response.
func IsRateLimited(err error) bool {
	var be *BackendCallError
	return errors.As(err, &be) && be.RateLimited
}

func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func IsSessionExhausted(err error) bool {
	var se *SessionExhaustedError
	return errors.As(err, &se)
}

func IsCircuitOpen(err error) bool {
	var oe *CircuitOpenError
	return errors.As(err, &oe)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
