// Package errors provides structured error handling for the search service.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Not found (route, resource, document)
//   - 4XX: Validation errors (bad or unknown request parameters)
//   - 5XX: Engine failures (full-text index, columnar store, build)
package errors

import "net/http"

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryNotFound indicates an unknown route or resource.
	CategoryNotFound Category = "NOT_FOUND"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryEngine indicates failures of the index or store engines.
	CategoryEngine Category = "ENGINE"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates a client mistake; the service is healthy.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Not found (200-299)
	ErrCodeResourceNotFound = "ERR_201_RESOURCE_NOT_FOUND"

	// Validation errors (400-499)
	ErrCodeInvalidParameter = "ERR_401_INVALID_PARAMETER"
	ErrCodeUnknownIndex     = "ERR_402_UNKNOWN_INDEX"
	ErrCodeInvalidQuery     = "ERR_403_INVALID_QUERY"
	ErrCodeMissingMetadata  = "ERR_404_MISSING_METADATA"
	ErrCodeMissingParameter = "ERR_405_MISSING_PARAMETER"

	// Engine errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeIndexOpen    = "ERR_502_INDEX_OPEN"
	ErrCodeSearchFailed = "ERR_503_SEARCH_FAILED"
	ErrCodeStoreFailed  = "ERR_504_STORE_FAILED"
	ErrCodeBuildFailed  = "ERR_505_BUILD_FAILED"
	ErrCodeCorruptIndex = "ERR_506_CORRUPT_INDEX"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryEngine
	}

	// Extract numeric portion (e.g., "402" from "ERR_402_UNKNOWN_INDEX")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryNotFound
	case '4':
		return CategoryValidation
	default:
		return CategoryEngine
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	if code == ErrCodeCorruptIndex {
		return SeverityFatal
	}

	switch categoryFromCode(code) {
	case CategoryValidation, CategoryNotFound:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// HTTPStatus maps an error to the status code of the HTTP response.
// Errors that are not MosaicErrors are treated as engine failures.
func HTTPStatus(err error) int {
	switch GetCategory(err) {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
