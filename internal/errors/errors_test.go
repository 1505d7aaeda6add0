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
		retry    bool
	}{
		{"invalid weights", ErrCodeInvalidWeights, CategoryConfig, SeverityFatal, false},
		{"invalid filter", ErrCodeInvalidFilter, CategoryConfig, SeverityFatal, false},
		{"index locked", ErrCodeIndexLocked, CategoryIO, SeverityError, false},
		{"retriever timeout", ErrCodeRetrieverTimeout, CategoryRetriever, SeverityWarning, true},
		{"no retrievers", ErrCodeNoRetrievers, CategoryRetriever, SeverityError, false},
		{"query empty", ErrCodeQueryEmpty, CategoryValidation, SeverityFatal, false},
		{"cache unavailable", ErrCodeCacheUnavailable, CategoryInternal, SeverityWarning, true},
		{"internal", ErrCodeInternal, CategoryInternal, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
			assert.Equal(t, tt.retry, err.Retryable)
		})
	}
}

func TestEngineError_Unwrap(t *testing.T) {
	cause := stderrors.New("disk on fire")
	err := Wrap(ErrCodeCorruptIndex, fmt.Errorf("open index: %w", cause))

	require.NotNil(t, err)
	assert.True(t, stderrors.Is(err, cause))
}

func TestEngineError_IsMatchesByCode(t *testing.T) {
	a := WeightsError("sum is 0.7")
	b := New(ErrCodeInvalidWeights, "different message", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, New(ErrCodeInternal, "x", nil)))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestWithDetail_Chaining(t *testing.T) {
	err := RetrieverTimeout("dense", nil).WithDetail("budget_ms", "800")

	assert.Equal(t, "dense", err.Details["method"])
	assert.Equal(t, "800", err.Details["budget_ms"])
	assert.True(t, IsRetryable(err))
	assert.False(t, IsFatal(err))
}

func TestIsFatal_ConfigurationErrors(t *testing.T) {
	assert.True(t, IsFatal(WeightsError("bad")))
	assert.True(t, IsFatal(FilterError("bad op", nil)))
	assert.False(t, IsFatal(NoRetrieversAvailable(nil)))
	assert.False(t, IsFatal(stderrors.New("plain")))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrCodeNoRetrievers, GetCode(NoRetrieversAvailable(nil)))
	assert.Equal(t, "", GetCode(stderrors.New("plain")))
}
