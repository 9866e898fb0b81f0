package tally

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCategory classifies errors by how callers should react to them.
type ErrorCategory string

const (
	// ErrorTransient marks a temporary failure such as a rate limit or an
	// overloaded upstream. The operation may be retried.
	ErrorTransient ErrorCategory = "transient"

	// ErrorPermanent marks a failure retrying cannot fix: bad credentials,
	// missing resources, unknown models.
	ErrorPermanent ErrorCategory = "permanent"

	// ErrorUserInput marks a request the caller must correct before retrying.
	ErrorUserInput ErrorCategory = "user_input"
)

// CategorizedError is implemented by errors that carry handling metadata.
type CategorizedError interface {
	error
	Category() ErrorCategory
	Retryable() bool
	StatusCode() int
	RetryAfter() time.Duration
}

// Error is the concrete CategorizedError returned by providers and clients.
type Error struct {
	Msg        string
	Cat        ErrorCategory
	Code       int           // HTTP status code, 0 if not applicable
	RetryDelay time.Duration // from Retry-After, 0 if unknown
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Category returns the error category.
func (e *Error) Category() ErrorCategory { return e.Cat }

// Retryable reports whether the error is transient.
func (e *Error) Retryable() bool { return e.Cat == ErrorTransient }

// StatusCode returns the HTTP status code, or 0.
func (e *Error) StatusCode() int { return e.Code }

// RetryAfter returns the server suggested delay, or 0.
func (e *Error) RetryAfter() time.Duration { return e.RetryDelay }

// NewTransientError creates a retryable error.
func NewTransientError(msg string, statusCode int, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorTransient, Code: statusCode, Cause: cause}
}

// NewTransientErrorWithRetry creates a retryable error with a server suggested delay.
func NewTransientErrorWithRetry(msg string, statusCode int, retryAfter time.Duration, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorTransient, Code: statusCode, RetryDelay: retryAfter, Cause: cause}
}

// NewPermanentError creates an error that must not be retried.
func NewPermanentError(msg string, statusCode int, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorPermanent, Code: statusCode, Cause: cause}
}

// NewUserInputError creates an error describing an invalid request.
func NewUserInputError(msg string, statusCode int, cause error) *Error {
	return &Error{Msg: msg, Cat: ErrorUserInput, Code: statusCode, Cause: cause}
}

// CategoryOf returns the category of the first CategorizedError in err's
// chain, or the empty category when none is present.
func CategoryOf(err error) ErrorCategory {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category()
	}
	return ""
}

// IsTransient reports whether err is categorized as transient.
func IsTransient(err error) bool { return CategoryOf(err) == ErrorTransient }

// IsPermanent reports whether err is categorized as permanent.
func IsPermanent(err error) bool { return CategoryOf(err) == ErrorPermanent }

// IsUserInput reports whether err is categorized as a user input error.
func IsUserInput(err error) bool { return CategoryOf(err) == ErrorUserInput }

// StatusCodeOf returns the HTTP status code carried by err, or 0.
func StatusCodeOf(err error) int {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.StatusCode()
	}
	return 0
}

// RetryAfterOf returns the retry delay carried by err, or 0.
func RetryAfterOf(err error) time.Duration {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.RetryAfter()
	}
	return 0
}

// CategorizeStatus maps an HTTP status code onto an error category.
func CategorizeStatus(code int) ErrorCategory {
	switch {
	case code == 429, code == 408:
		return ErrorTransient
	case code >= 500 && code < 600:
		return ErrorTransient
	case code == 400 || code == 404 || code == 409 || code == 422:
		return ErrorUserInput
	default:
		return ErrorPermanent
	}
}

// NewStatusError builds a categorized error from an HTTP status code.
func NewStatusError(msg string, code int, retryAfter time.Duration, cause error) *Error {
	return &Error{Msg: msg, Cat: CategorizeStatus(code), Code: code, RetryDelay: retryAfter, Cause: cause}
}
