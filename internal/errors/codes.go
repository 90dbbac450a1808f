// Package errors provides structured error handling for rankfuse.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage/index errors
//   - 3XX: Retrieval errors (timeouts, backend failures)
//   - 4XX: Validation errors
//   - 5XX: Model and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates index and document-store errors.
	CategoryStorage Category = "STORAGE"
	// CategoryRetrieval indicates retrieval-method errors.
	CategoryRetrieval Category = "RETRIEVAL"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates model and unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeCorruptIndex  = "ERR_201_CORRUPT_INDEX"
	ErrCodeDocumentStore = "ERR_202_DOCUMENT_STORE"

	// Retrieval errors (300-399)
	ErrCodeRetrieverTimeout = "ERR_301_RETRIEVER_TIMEOUT"
	ErrCodeRetrieverBackend = "ERR_302_RETRIEVER_BACKEND"

	// Validation errors (400-499)
	ErrCodeEmptyQuery     = "ERR_401_EMPTY_QUERY"
	ErrCodeInvalidWeights = "ERR_402_INVALID_WEIGHTS"
	ErrCodeInvalidInput   = "ERR_403_INVALID_INPUT"

	// Model and internal errors (500-599)
	ErrCodeModelUnavailable     = "ERR_501_MODEL_UNAVAILABLE"
	ErrCodeAllRetrieversFailed  = "ERR_502_ALL_RETRIEVERS_FAILED"
	ErrCodeInternal             = "ERR_503_INTERNAL"
	ErrCodeSparseGeneration     = "ERR_504_SPARSE_GENERATION"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryRetrieval
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex:
		return SeverityFatal
	case ErrCodeRetrieverTimeout, ErrCodeRetrieverBackend, ErrCodeModelUnavailable:
		// Recovered locally per the degradation policy, so only a warning.
		return SeverityWarning
	}
	return SeverityError
}

// isRecoverableCode reports whether an error of this code is recovered
// locally by the orchestrator (degraded result) rather than surfaced.
func isRecoverableCode(code string) bool {
	switch code {
	case ErrCodeRetrieverTimeout, ErrCodeRetrieverBackend, ErrCodeModelUnavailable:
		return true
	default:
		return false
	}
}
