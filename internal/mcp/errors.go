// Package mcp implements the Model Context Protocol server that exposes the
// knowledge base to agents.
package mcp

import (
	"context"
	"errors"
	"fmt"

	kberrors "github.com/Aman-CERP/knowbase/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeStoreUnavailable indicates the knowledge base is closed or its
	// data directory cannot be used.
	ErrCodeStoreUnavailable = -32001

	// ErrCodeRetrievalFailed indicates search or context assembly failed.
	ErrCodeRetrievalFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeDocumentNotFound indicates an unknown document ID.
	ErrCodeDocumentNotFound = -32004

	// Standard JSON-RPC error codes.
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var kbErr *kberrors.KBError
	if errors.As(err, &kbErr) {
		return mapKBError(kbErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeDocumentNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

func mapKBError(ke *kberrors.KBError) *MCPError {
	message := ke.Message
	if ke.Suggestion != "" {
		message = fmt.Sprintf("%s %s", ke.Message, ke.Suggestion)
	}

	switch ke.Code {
	case kberrors.ErrCodeDocumentNotFound:
		return &MCPError{Code: ErrCodeDocumentNotFound, Message: message}
	case kberrors.ErrCodeStoreUnavailable, kberrors.ErrCodeDataDirLocked:
		return &MCPError{Code: ErrCodeStoreUnavailable, Message: message}
	case kberrors.ErrCodeSearchFailed, kberrors.ErrCodeIndexUnavailable, kberrors.ErrCodeIndexFailed:
		return &MCPError{Code: ErrCodeRetrievalFailed, Message: message}
	}

	switch ke.Category {
	case kberrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case kberrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
