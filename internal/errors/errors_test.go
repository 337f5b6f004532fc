package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TS01: Error wrapping preserves original error
func TestMosaicError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("disk I/O error")

	// When: wrapping with MosaicError
	err := New(ErrCodeStoreFailed, "metadata lookup failed", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, err)
	assert.Equal(t, originalErr, errors.Unwrap(err))
	assert.True(t, errors.Is(err, originalErr))
}

func TestMosaicError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigInvalid,
			message:  "index_dir must be set",
			expected: "[ERR_102_CONFIG_INVALID] index_dir must be set",
		},
		{
			name:     "validation error",
			code:     ErrCodeInvalidParameter,
			message:  "The pw parameter 0 is invalid and must be a positive value",
			expected: "[ERR_401_INVALID_PARAMETER] The pw parameter 0 is invalid and must be a positive value",
		},
		{
			name:     "engine error",
			code:     ErrCodeSearchFailed,
			message:  "search failed",
			expected: "[ERR_503_SEARCH_FAILED] search failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestMosaicError_Is_MatchesByCode(t *testing.T) {
	// Given: two errors with same code
	err1 := UnknownIndexError("news")
	err2 := UnknownIndexError("blogs")

	// Then: they match by code
	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, ValidationError("limit")))
}

func TestCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
		severity Severity
	}{
		{ErrCodeConfigNotFound, CategoryConfig, SeverityError},
		{ErrCodeResourceNotFound, CategoryNotFound, SeverityWarning},
		{ErrCodeUnknownIndex, CategoryValidation, SeverityWarning},
		{ErrCodeInvalidQuery, CategoryValidation, SeverityWarning},
		{ErrCodeStoreFailed, CategoryEngine, SeverityError},
		{ErrCodeCorruptIndex, CategoryEngine, SeverityFatal},
		{"BAD", CategoryEngine, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", ValidationError("bad limit"), http.StatusBadRequest},
		{"unknown index", UnknownIndexError("x"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("plan: %w", ValidationError("bad")), http.StatusBadRequest},
		{"not found", NotFoundError("nope"), http.StatusNotFound},
		{"engine", EngineError(ErrCodeIndexOpen, "open failed", nil), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestUnknownIndexError_NamesIndex(t *testing.T) {
	err := UnknownIndexError("cc-news")

	assert.Equal(t, "The selected index cc-news could not be found", err.Message)
	assert.Equal(t, "cc-news", err.Details["index"])
	assert.True(t, IsValidation(err))
	assert.False(t, IsNotFound(err))
}

func TestGetCode_NonMosaicError(t *testing.T) {
	assert.Empty(t, GetCode(errors.New("plain")))
	assert.Empty(t, string(GetCategory(nil)))
	assert.Equal(t, ErrCodeUnknownIndex, GetCode(fmt.Errorf("wrapped: %w", UnknownIndexError("a"))))
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}
