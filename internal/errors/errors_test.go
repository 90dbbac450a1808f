package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
		severity Severity
		recover  bool
	}{
		{"empty query", ErrCodeEmptyQuery, CategoryValidation, SeverityError, false},
		{"invalid weights", ErrCodeInvalidWeights, CategoryValidation, SeverityError, false},
		{"retriever timeout", ErrCodeRetrieverTimeout, CategoryRetrieval, SeverityWarning, true},
		{"retriever backend", ErrCodeRetrieverBackend, CategoryRetrieval, SeverityWarning, true},
		{"model unavailable", ErrCodeModelUnavailable, CategoryInternal, SeverityWarning, true},
		{"all retrievers failed", ErrCodeAllRetrieversFailed, CategoryInternal, SeverityError, false},
		{"corrupt index", ErrCodeCorruptIndex, CategoryStorage, SeverityFatal, false},
		{"config invalid", ErrCodeConfigInvalid, CategoryConfig, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.recover, err.Recoverable)
		})
	}
}

func TestFuseError_ErrorFormat(t *testing.T) {
	err := New(ErrCodeEmptyQuery, "query is empty", nil)
	assert.Equal(t, "[ERR_401_EMPTY_QUERY] query is empty", err.Error())
}

func TestFuseError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("search: %w", EmptyQueryError())
	assert.True(t, stderrors.Is(err, ErrEmptyQuery))
	assert.False(t, stderrors.Is(err, ErrInvalidWeights))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(ErrCodeRetrieverBackend, cause)
	require.NotNil(t, err)
	assert.Equal(t, cause, stderrors.Unwrap(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeRetrieverBackend, nil))
}

func TestModelUnavailableError_Detail(t *testing.T) {
	err := ModelUnavailableError("splade-v3", stderrors.New("no such file"))
	assert.Equal(t, "splade-v3", err.Details["model"])
	assert.True(t, stderrors.Is(err, ErrModelUnavailable))
	assert.True(t, IsRecoverable(err))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeEmptyQuery, GetCode(EmptyQueryError()))
	assert.Equal(t, "", GetCode(stderrors.New("plain")))
	assert.Equal(t, "", GetCode(nil))
}
