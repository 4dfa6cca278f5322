// Package errors provides structured error handling for Emberboard.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Synonym and input validation errors
//   - 2XX: Search engine errors (index, filter, query)
//   - 3XX: Storage errors (SQLite)
//   - 4XX: Configuration errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryValidation indicates synonym or input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryEngine indicates search-engine errors.
	CategoryEngine Category = "ENGINE"
	// CategoryStorage indicates database errors.
	CategoryStorage Category = "STORAGE"
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
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
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Synonym and validation errors (100-199)
	ErrCodeSynonymParse   = "ERR_101_SYNONYM_PARSE"
	ErrCodeSynonymInvalid = "ERR_102_SYNONYM_INVALID"
	ErrCodeInvalidInput   = "ERR_103_INVALID_INPUT"
	ErrCodeQueryEmpty     = "ERR_104_QUERY_EMPTY"

	// Engine errors (200-299)
	ErrCodeIndexUnavailable = "ERR_201_INDEX_UNAVAILABLE"
	ErrCodeFilterRejected   = "ERR_202_FILTER_REJECTED"
	ErrCodeIndexCorrupt     = "ERR_203_INDEX_CORRUPT"
	ErrCodeSearchFailed     = "ERR_204_SEARCH_FAILED"

	// Storage errors (300-399)
	ErrCodeStore    = "ERR_301_STORE"
	ErrCodeNotFound = "ERR_302_NOT_FOUND"

	// Config errors (400-499)
	ErrCodeConfigInvalid  = "ERR_401_CONFIG_INVALID"
	ErrCodeConfigNotFound = "ERR_402_CONFIG_NOT_FOUND"

	// Internal errors (500-599)
	ErrCodeInternal   = "ERR_501_INTERNAL"
	ErrCodeSyncFailed = "ERR_502_SYNC_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "201" from "ERR_201_INDEX_UNAVAILABLE")
	numStr := code[4:7]
	if len(numStr) < 1 {
		return CategoryInternal
	}

	switch numStr[0] {
	case '1':
		return CategoryValidation
	case '2':
		return CategoryEngine
	case '3':
		return CategoryStorage
	case '4':
		return CategoryConfig
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// A corrupt index aborts the operation; recovery rebuilds from the store.
	if code == ErrCodeIndexCorrupt {
		return SeverityFatal
	}

	// Retryable engine errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	// Default to error severity
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Only transient engine unavailability qualifies; a rejected filter is
// permanent until an operator changes the rules.
func isRetryableCode(code string) bool {
	return code == ErrCodeIndexUnavailable
}
