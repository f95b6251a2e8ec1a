package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
)

func TestMapError_NilError(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_ContextErrors(t *testing.T) {
	// Given: a deadline and a cancellation
	deadline := MapError(context.DeadlineExceeded)
	canceled := MapError(fmt.Errorf("search: %w", context.Canceled))

	// Then: both map to the timeout code
	require.NotNil(t, deadline)
	assert.Equal(t, ErrCodeTimeout, deadline.Code)
	assert.Contains(t, deadline.Message, "timed out")
	require.NotNil(t, canceled)
	assert.Equal(t, ErrCodeTimeout, canceled.Code)
	assert.Contains(t, canceled.Message, "canceled")
}

func TestMapError_UnknownError_IsInternal(t *testing.T) {
	result := MapError(errors.New("boom"))

	require.NotNil(t, result)
	assert.Equal(t, ErrCodeInternalError, result.Code)
	assert.NotContains(t, result.Message, "boom")
}

func TestMapError_PassesThroughMCPError(t *testing.T) {
	orig := NewInvalidParamsError("bad limit")

	result := MapError(fmt.Errorf("wrapped: %w", orig))

	assert.Same(t, orig, result)
}

func TestMapError_KBErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"document not found", kberrors.DocumentNotFoundError("doc-1"), ErrCodeDocumentNotFound},
		{"store unavailable", kberrors.New(kberrors.ErrCodeStoreUnavailable, "engine is closed", nil), ErrCodeStoreUnavailable},
		{"data dir locked", kberrors.New(kberrors.ErrCodeDataDirLocked, "locked", nil), ErrCodeStoreUnavailable},
		{"search failed", kberrors.New(kberrors.ErrCodeSearchFailed, "ranking failed", nil), ErrCodeRetrievalFailed},
		{"invalid query", kberrors.New(kberrors.ErrCodeInvalidQuery, "query is empty", nil), ErrCodeInvalidParams},
		{"network", kberrors.NetworkError("ollama unreachable", nil), ErrCodeTimeout},
		{"internal", kberrors.InternalError("oops", nil), ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MapError(fmt.Errorf("op: %w", tt.err))

			require.NotNil(t, result)
			assert.Equal(t, tt.code, result.Code)
		})
	}
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	err := kberrors.New(kberrors.ErrCodeDataDirLocked, "data directory is locked", nil).
		WithSuggestion("Stop the other knowbase process.")

	result := MapError(err)

	assert.Equal(t, "data directory is locked Stop the other knowbase process.", result.Message)
}

func TestMCPError_Error(t *testing.T) {
	err := &MCPError{Code: ErrCodeInvalidParams, Message: "query is required"}

	assert.Equal(t, "MCP error -32602: query is required", err.Error())
}

func TestNewErrors(t *testing.T) {
	assert.Equal(t, ErrCodeMethodNotFound, NewMethodNotFoundError("x").Code)
	assert.Contains(t, NewMethodNotFoundError("x").Message, "'x'")
	assert.Equal(t, ErrCodeDocumentNotFound, NewResourceNotFoundError("knowbase://documents/").Code)
}
