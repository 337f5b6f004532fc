package errors

import (
	"errors"
	"fmt"
)

// MosaicError is the structured error type for the search service.
// It carries enough context to pick an HTTP status, log the failure and
// render a short message to CLI users.
type MosaicError struct {
	// Code is the unique error code (e.g., "ERR_402_UNKNOWN_INDEX").
	Code string

	// Message is the human-readable error message. It becomes the "title"
	// of an HTTP error body.
	Message string

	// Category is the error category (Validation, NotFound, Engine, ...).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error
}

// Error implements the error interface.
func (e *MosaicError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *MosaicError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with MosaicError.
func (e *MosaicError) Is(target error) bool {
	if t, ok := target.(*MosaicError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *MosaicError) WithDetail(key, value string) *MosaicError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new MosaicError with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *MosaicError {
	return &MosaicError{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates a MosaicError from an existing error.
// The error's message becomes the MosaicError message.
func Wrap(code string, err error) *MosaicError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *MosaicError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates an error for a bad or unknown request parameter.
func ValidationError(message string) *MosaicError {
	return New(ErrCodeInvalidParameter, message, nil)
}

// UnknownIndexError creates a validation error naming the offending index.
func UnknownIndexError(name string) *MosaicError {
	return New(ErrCodeUnknownIndex, fmt.Sprintf("The selected index %s could not be found", name), nil).
		WithDetail("index", name)
}

// NotFoundError creates an error for an unknown route or resource.
func NotFoundError(message string) *MosaicError {
	return New(ErrCodeResourceNotFound, message, nil)
}

// EngineError creates an error for a failing index, store or query engine.
func EngineError(code, message string, cause error) *MosaicError {
	return New(code, message, cause)
}

// As finds the first MosaicError in err's chain.
func As(err error) (*MosaicError, bool) {
	var me *MosaicError
	if errors.As(err, &me) {
		return me, true
	}
	return nil, false
}

// IsValidation reports whether err is (or wraps) a validation error.
func IsValidation(err error) bool {
	return GetCategory(err) == CategoryValidation
}

// IsNotFound reports whether err is (or wraps) a not-found error.
func IsNotFound(err error) bool {
	return GetCategory(err) == CategoryNotFound
}

// GetCode extracts the error code from a MosaicError.
// Returns empty string if err does not wrap one.
func GetCode(err error) string {
	if me, ok := As(err); ok {
		return me.Code
	}
	return ""
}

// GetCategory extracts the category from a MosaicError.
// Returns empty string if err does not wrap one.
func GetCategory(err error) Category {
	if me, ok := As(err); ok {
		return me.Category
	}
	return ""
}
