package errors

import (
	"fmt"
)

// EngineError is the structured error type for empire-search.
// It provides context for error handling, logging, and user presentation.
type EngineError struct {
	// Code is the unique error code (e.g., "ERR_103_INVALID_WEIGHTS").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Retriever, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the caller may retry the operation.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with EngineError.
func (e *EngineError) Is(target error) bool {
	if t, ok := target.(*EngineError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *EngineError) WithDetail(key, value string) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *EngineError) WithSuggestion(suggestion string) *EngineError {
	e.Suggestion = suggestion
	return e
}

// New creates a new EngineError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an EngineError from an existing error.
// The error's message becomes the EngineError message.
func Wrap(code string, err error) *EngineError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigurationError creates a configuration-related error.
// Used for malformed weight vectors and invalid filter trees: rejected
// before any back-end call.
func ConfigurationError(message string, cause error) *EngineError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// WeightsError creates an invalid-weights configuration error.
func WeightsError(message string) *EngineError {
	return New(ErrCodeInvalidWeights, message, nil)
}

// FilterError creates an invalid-filter configuration error.
func FilterError(message string, cause error) *EngineError {
	return New(ErrCodeInvalidFilter, message, cause)
}

// RetrieverTimeout creates a retriever timeout error for one method.
func RetrieverTimeout(method string, cause error) *EngineError {
	return New(ErrCodeRetrieverTimeout, fmt.Sprintf("retriever %q timed out", method), cause).
		WithDetail("method", method)
}

// RetrieverUnavailable creates a retriever back-end fault error.
func RetrieverUnavailable(method string, cause error) *EngineError {
	return New(ErrCodeRetrieverUnavailable, fmt.Sprintf("retriever %q unavailable", method), cause).
		WithDetail("method", method)
}

// NoRetrieversAvailable creates the terminal error for a request where
// every retrieval path failed.
func NoRetrieversAvailable(cause error) *EngineError {
	return New(ErrCodeNoRetrievers, "all retrieval methods failed", cause).
		WithSuggestion("check index availability and retry")
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *EngineError {
	return New(ErrCodeInvalidInput, message, cause)
}

// CacheUnavailable creates a cache back-end error. The engine recovers
// locally by bypassing the cache.
func CacheUnavailable(cause error) *EngineError {
	return New(ErrCodeCacheUnavailable, "semantic cache unavailable", cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *EngineError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ee, ok := err.(*EngineError); ok {
		return ee.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current request before any back-end call.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ee, ok := err.(*EngineError); ok {
		return ee.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an EngineError.
// Returns empty string if not an EngineError.
func GetCode(err error) string {
	if ee, ok := err.(*EngineError); ok {
		return ee.Code
	}
	return ""
}

// GetCategory extracts the category from an EngineError.
func GetCategory(err error) Category {
	if ee, ok := err.(*EngineError); ok {
		return ee.Category
	}
	return ""
}
