package errors

import (
	"fmt"
)

// Error is the structured error type for podseek. It carries the context
// the pipeline and the query layer need to pick a recovery policy
// (retry smaller batch vs. degrade to empty) without string matching.
type Error struct {
	// Code is the unique error code (e.g. "ERR_301_FEED_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Feed, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// StorageError creates an index-storage error.
func StorageError(message string, cause error) *Error {
	return New(ErrCodeWriteFailed, message, cause)
}

// FeedError creates a feed fetch error. Feed errors are retryable.
func FeedError(message string, cause error) *Error {
	return New(ErrCodeFeedUnavailable, message, cause)
}

// QueryError creates a search-query error.
func QueryError(message string, cause error) *Error {
	return New(ErrCodeQueryFailed, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is an *Error with the Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetCode extracts the error code from an *Error.
// Returns empty string otherwise.
func GetCode(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// GetCategory extracts the category from an *Error.
// Returns empty string otherwise.
func GetCategory(err error) Category {
	if e, ok := err.(*Error); ok {
		return e.Category
	}
	return ""
}
