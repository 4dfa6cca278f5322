package errors

import (
	stderrors "errors"
	"fmt"
)

// EmberError is the structured error type for Emberboard.
// It provides rich context for error handling, logging, and user presentation.
type EmberError struct {
	// Code is the unique error code (e.g., "ERR_202_FILTER_REJECTED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Validation, Engine, Storage, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *EmberError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *EmberError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with EmberError.
func (e *EmberError) Is(target error) bool {
	if t, ok := target.(*EmberError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *EmberError) WithDetail(key, value string) *EmberError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *EmberError) WithSuggestion(suggestion string) *EmberError {
	e.Suggestion = suggestion
	return e
}

// New creates a new EmberError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *EmberError {
	return &EmberError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an EmberError from an existing error.
// The error's message becomes the EmberError message.
func Wrap(code string, err error) *EmberError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ParseFailed creates a synonym parse error. The cause is expected to
// carry the per-line detail so editors can fix every bad line at once.
func ParseFailed(message string, cause error) *EmberError {
	return New(ErrCodeSynonymParse, message, cause)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *EmberError {
	return New(ErrCodeInvalidInput, message, cause)
}

// IndexUnavailable creates a transient engine availability error.
// These are retryable.
func IndexUnavailable(message string, cause error) *EmberError {
	return New(ErrCodeIndexUnavailable, message, cause)
}

// FilterRejected creates a permanent filter rejection error.
// These must reach an operator; retrying cannot fix them.
func FilterRejected(message string, cause error) *EmberError {
	return New(ErrCodeFilterRejected, message, cause)
}

// StoreError creates a database error.
func StoreError(message string, cause error) *EmberError {
	return New(ErrCodeStore, message, cause)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *EmberError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *EmberError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if any error in the chain is an EmberError with the
// Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ee *EmberError
	if stderrors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ee *EmberError
	if stderrors.As(err, &ee) {
		return ee.Severity == SeverityFatal
	}
	return false
}

// HasCode reports whether any error in the chain carries the code.
func HasCode(err error, code string) bool {
	for err != nil {
		var ee *EmberError
		if !stderrors.As(err, &ee) {
			return false
		}
		if ee.Code == code {
			return true
		}
		err = ee.Unwrap()
	}
	return false
}

// GetCode extracts the error code from an EmberError.
// Returns empty string if the chain holds no EmberError.
func GetCode(err error) string {
	var ee *EmberError
	if stderrors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// GetCategory extracts the category from an EmberError.
// Returns empty string if the chain holds no EmberError.
func GetCategory(err error) Category {
	var ee *EmberError
	if stderrors.As(err, &ee) {
		return ee.Category
	}
	return ""
}
