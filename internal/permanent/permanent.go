package permanent

import (
	"errors"
	"fmt"
	"net/http"
)

// Error wraps a delivery failure that retry loops must not repeat.
type Error struct {
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return "permanent failure"
	}
	return e.cause.Error()
}

// Unwrap exposes the cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Mark wraps err as non-retryable.
// Params: source error.
// Returns: wrapped error, or nil for nil input.
func Mark(err error) error {
	if err == nil {
		return nil
	}
	return &Error{cause: err}
}

// Markf formats a new non-retryable error; %w verbs keep their cause.
func Markf(format string, args ...any) error {
	return &Error{cause: fmt.Errorf(format, args...)}
}

// Is reports whether any error in the chain is marked non-retryable.
func Is(err error) bool {
	var target *Error
	return errors.As(err, &target)
}

// Status reports whether an HTTP response code is final for a retry loop.
// Params: response status code.
// Returns: true for 4xx other than 408 and 429.
func Status(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

// FromStatus marks err permanent when code is final, leaving retryable codes untouched.
func FromStatus(code int, err error) error {
	if Status(code) {
		return Mark(err)
	}
	return err
}
