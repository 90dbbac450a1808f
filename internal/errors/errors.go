package errors

import (
	"fmt"
)

// FuseError is the structured error type for rankfuse.
// It provides rich context for error handling, logging, and user presentation.
type FuseError struct {
	// Code is the unique error code (e.g., "ERR_401_EMPTY_QUERY").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Retrieval, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Recoverable indicates the orchestrator degrades instead of failing.
	Recoverable bool
}

// Error implements the error interface.
func (e *FuseError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *FuseError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with FuseError.
func (e *FuseError) Is(target error) bool {
	if t, ok := target.(*FuseError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *FuseError) WithDetail(key, value string) *FuseError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new FuseError with the given code and message.
// Category, severity, and recoverable flag are derived from the code.
func New(code string, message string, cause error) *FuseError {
	return &FuseError{
		Code:        code,
		Message:     message,
		Category:    categoryFromCode(code),
		Severity:    severityFromCode(code),
		Cause:       cause,
		Recoverable: isRecoverableCode(code),
	}
}

// Wrap creates a FuseError from an existing error.
// The error's message becomes the FuseError message.
func Wrap(code string, err error) *FuseError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinel errors for the error taxonomy. Callers compare with errors.Is.
var (
	// ErrEmptyQuery rejects zero-length or whitespace-only queries.
	ErrEmptyQuery = New(ErrCodeEmptyQuery, "query is empty", nil)

	// ErrInvalidWeights rejects weights that do not sum to a positive value.
	ErrInvalidWeights = New(ErrCodeInvalidWeights, "fusion weights do not sum to a positive value", nil)

	// ErrModelUnavailable signals an inference model that failed to load or run.
	ErrModelUnavailable = New(ErrCodeModelUnavailable, "inference model unavailable", nil)

	// ErrRetrieverTimeout signals a retrieval method that exceeded its budget.
	ErrRetrieverTimeout = New(ErrCodeRetrieverTimeout, "retriever exceeded its time budget", nil)

	// ErrRetrieverBackend signals a search backend failure.
	ErrRetrieverBackend = New(ErrCodeRetrieverBackend, "retriever backend error", nil)

	// ErrAllRetrieversFailed is surfaced only when all three methods failed.
	ErrAllRetrieversFailed = New(ErrCodeAllRetrieversFailed, "all retrieval methods failed", nil)
)

// EmptyQueryError creates an empty-query validation error.
func EmptyQueryError() *FuseError {
	return New(ErrCodeEmptyQuery, "query is empty", nil)
}

// InvalidWeightsError creates an invalid-weights validation error.
func InvalidWeightsError(message string) *FuseError {
	return New(ErrCodeInvalidWeights, message, nil)
}

// ModelUnavailableError creates a model-unavailable error.
func ModelUnavailableError(model string, cause error) *FuseError {
	e := New(ErrCodeModelUnavailable, fmt.Sprintf("model %s unavailable", model), cause)
	return e.WithDetail("model", model)
}

// IsRecoverable checks if an error is recovered by degradation.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if fe, ok := err.(*FuseError); ok {
		return fe.Recoverable
	}
	return false
}

// GetCode extracts the error code from a FuseError.
// Returns empty string if not a FuseError.
func GetCode(err error) string {
	if fe, ok := err.(*FuseError); ok {
		return fe.Code
	}
	return ""
}

// GetCategory extracts the category from a FuseError.
// Returns empty string if not a FuseError.
func GetCategory(err error) Category {
	if fe, ok := err.(*FuseError); ok {
		return fe.Category
	}
	return ""
}
