// Package errors provides the structured error taxonomy used across knowbase.
//
// Every error carries a stable code (ERR_<family><nn>_<NAME>) from which its
// category, severity and retry policy are derived.
package errors

import (
	"errors"
	"fmt"
)

// KBError is a structured error with a stable code.
type KBError struct {
	Code       string
	Message    string
	Category   Category
	Severity   Severity
	Details    map[string]string
	Cause      error
	Retryable  bool
	Suggestion string
}

func (e *KBError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *KBError) Unwrap() error {
	return e.Cause
}

// Is matches any KBError with the same code.
func (e *KBError) Is(target error) bool {
	var t *KBError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithDetail attaches a key/value to the error and returns it.
func (e *KBError) WithDetail(key, value string) *KBError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion sets a user-facing hint.
func (e *KBError) WithSuggestion(suggestion string) *KBError {
	e.Suggestion = suggestion
	return e
}

// New creates a KBError, deriving category, severity and retryability from code.
func New(code string, message string, cause error) *KBError {
	return &KBError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a KBError from an existing error using its message.
func Wrap(code string, err error) *KBError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

func ConfigError(message string, cause error) *KBError {
	return New(ErrCodeConfigInvalid, message, cause)
}

func IOError(message string, cause error) *KBError {
	return New(ErrCodeFileUnreadable, message, cause)
}

// NetworkError is retryable by default.
func NetworkError(message string, cause error) *KBError {
	return New(ErrCodeNetworkUnreachable, message, cause)
}

func ValidationError(message string, cause error) *KBError {
	return New(ErrCodeInvalidInput, message, cause)
}

func InternalError(message string, cause error) *KBError {
	return New(ErrCodeInternal, message, cause)
}

// ChunkingError reports a malformed or unreadable document.
// The document is marked failed and is not retried automatically.
func ChunkingError(message string, cause error) *KBError {
	return New(ErrCodeChunking, message, cause).
		WithSuggestion("check that the document is non-empty UTF-8 text")
}

// IndexUnavailableError reports a vector backend that cannot be used.
func IndexUnavailableError(message string, cause error) *KBError {
	return New(ErrCodeIndexUnavailable, message, cause)
}

// EnhancementTimeoutError reports a primary query expansion that did not
// complete in time.
func EnhancementTimeoutError(message string, cause error) *KBError {
	return New(ErrCodeEnhancementTimeout, message, cause)
}

// DuplicateContentError reports a content-identity conflict: a document
// with the same content hash already exists.
func DuplicateContentError(hash, existingID string) *KBError {
	return New(ErrCodeDuplicateContent, "document with identical content already exists", nil).
		WithDetail("content_hash", hash).
		WithDetail("existing_id", existingID)
}

// DocumentNotFoundError reports an unknown document id.
func DocumentNotFoundError(id string) *KBError {
	return New(ErrCodeDocumentNotFound, fmt.Sprintf("document %q not found", id), nil).
		WithDetail("document_id", id)
}

// IsRetryable reports whether err is a KBError marked retryable.
func IsRetryable(err error) bool {
	var ke *KBError
	if errors.As(err, &ke) {
		return ke.Retryable
	}
	return false
}

// IsFatal reports whether err is a KBError with fatal severity.
func IsFatal(err error) bool {
	var ke *KBError
	if errors.As(err, &ke) {
		return ke.Severity == SeverityFatal
	}
	return false
}

// IsDuplicateContent reports a content-identity conflict.
func IsDuplicateContent(err error) bool {
	return GetCode(err) == ErrCodeDuplicateContent
}

// IsChunking reports a ChunkingError.
func IsChunking(err error) bool {
	return GetCode(err) == ErrCodeChunking
}

// IsNotFound reports an unknown document.
func IsNotFound(err error) bool {
	return GetCode(err) == ErrCodeDocumentNotFound
}

// GetCode returns the code of the first KBError in the chain, or "".
func GetCode(err error) string {
	var ke *KBError
	if errors.As(err, &ke) {
		return ke.Code
	}
	return ""
}

// GetCategory returns the category of the first KBError in the chain.
func GetCategory(err error) Category {
	var ke *KBError
	if errors.As(err, &ke) {
		return ke.Category
	}
	return CategoryInternal
}

// FormatForCLI renders err for terminal display with its suggestion.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}
	var ke *KBError
	if !errors.As(err, &ke) {
		return "Error: " + err.Error()
	}
	msg := fmt.Sprintf("Error: %s [%s]", ke.Message, ke.Code)
	if ke.Suggestion != "" {
		msg += "\n  Suggestion: " + ke.Suggestion
	}
	return msg
}
