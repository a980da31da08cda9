package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	// ErrConfig marks fatal configuration problems: missing credentials,
	// unreadable input, duplicate identifiers, unreadable ledger. Runs
	// abort before any work is submitted and exit with code 2.
	ErrConfig = errors.New("configuration error")
	// ErrAuth marks a credential rejection from a remote service. The
	// worker pool treats it as catastrophic and stops dispatching new work.
	ErrAuth = errors.New("authentication rejected")
	// ErrInvalidInput marks malformed caller-supplied values.
	ErrInvalidInput = errors.New("invalid input")
	// ErrLedgerWrite marks a failed durable write; the transcript may have
	// succeeded remotely even though the local record was lost.
	ErrLedgerWrite = errors.New("ledger write failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ConfigErrorf builds a fatal configuration error (exit code 2).
func ConfigErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// IsConfigError reports whether err belongs to the fatal configuration class.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}

// IsAuthError reports whether err is a remote credential rejection.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}
