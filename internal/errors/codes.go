// Package errors provides structured error handling for empire-search.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (index files, disk)
//   - 3XX: Retriever errors (timeout, back-end unavailable)
//   - 4XX: Validation errors
//   - 5XX: Internal errors (cache, fusion)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates index file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryRetriever indicates retriever back-end errors.
	CategoryRetriever Category = "RETRIEVER"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
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
	ErrCodeInvalidWeights = "ERR_103_INVALID_WEIGHTS"
	ErrCodeInvalidFilter  = "ERR_104_INVALID_FILTER"

	// IO errors (200-299)
	ErrCodeIndexNotFound = "ERR_201_INDEX_NOT_FOUND"
	ErrCodeIndexLocked   = "ERR_202_INDEX_LOCKED"
	ErrCodeCorruptIndex  = "ERR_203_CORRUPT_INDEX"

	// Retriever errors (300-399)
	ErrCodeRetrieverTimeout     = "ERR_301_RETRIEVER_TIMEOUT"
	ErrCodeRetrieverUnavailable = "ERR_302_RETRIEVER_UNAVAILABLE"
	ErrCodeNoRetrievers         = "ERR_303_NO_RETRIEVERS_AVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_402_QUERY_EMPTY"
	ErrCodeInvalidRange = "ERR_403_INVALID_RANGE"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed  = "ERR_502_EMBEDDING_FAILED"
	ErrCodeCacheUnavailable = "ERR_503_CACHE_UNAVAILABLE"
	ErrCodeFusionFailed     = "ERR_504_FUSION_FAILED"
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
		return CategoryIO
	case '3':
		return CategoryRetriever
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from error code.
// Configuration and validation problems abort the request; retriever and
// cache problems degrade it.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryConfig, CategoryValidation:
		return SeverityFatal
	case CategoryRetriever:
		if code == ErrCodeNoRetrievers {
			return SeverityError
		}
		return SeverityWarning
	default:
		if code == ErrCodeCacheUnavailable {
			return SeverityWarning
		}
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code may be
// retried by the caller. Retries are never performed inside the engine.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeRetrieverTimeout, ErrCodeRetrieverUnavailable, ErrCodeCacheUnavailable:
		return true
	default:
		return false
	}
}
