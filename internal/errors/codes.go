package errors

// Category groups error codes by subsystem.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryNetwork    Category = "NETWORK"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
	CategoryRetrieval  Category = "RETRIEVAL"
)

// Severity indicates how the caller should treat the error.
type Severity string

const (
	SeverityFatal   Severity = "FATAL"
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Config errors (1xx)
const (
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
)

// IO errors (2xx)
const (
	ErrCodeFileNotFound     = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFileUnreadable   = "ERR_202_FILE_UNREADABLE"
	ErrCodeStoreUnavailable = "ERR_203_STORE_UNAVAILABLE"
	ErrCodeDataDirLocked    = "ERR_204_DATA_DIR_LOCKED"
)

// Network errors (3xx)
const (
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnreachable = "ERR_302_NETWORK_UNREACHABLE"
)

// Validation errors (4xx)
const (
	ErrCodeInvalidInput    = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidQuery    = "ERR_402_INVALID_QUERY"
	ErrCodeInvalidDocument = "ERR_403_INVALID_DOCUMENT"
)

// Internal errors (5xx)
const (
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed     = "ERR_504_INDEX_FAILED"
)

// Retrieval errors (6xx)
const (
	ErrCodeChunking           = "ERR_601_CHUNKING"
	ErrCodeIndexUnavailable   = "ERR_602_INDEX_UNAVAILABLE"
	ErrCodeEnhancementTimeout = "ERR_603_ENHANCEMENT_TIMEOUT"
	ErrCodeDuplicateContent   = "ERR_604_DUPLICATE_CONTENT"
	ErrCodeDocumentNotFound   = "ERR_605_DOCUMENT_NOT_FOUND"
)

// categoryFromCode reads the family digit: ERR_<family>xx_...
func categoryFromCode(code string) Category {
	if len(code) < 5 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	case '6':
		return CategoryRetrieval
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeDataDirLocked:
		return SeverityFatal
	case ErrCodeIndexUnavailable, ErrCodeEnhancementTimeout:
		// Recovered locally by degrading.
		return SeverityWarning
	case ErrCodeDuplicateContent:
		return SeverityInfo
	}
	switch categoryFromCode(code) {
	case CategoryValidation:
		return SeverityWarning
	default:
		return SeverityError
	}
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnreachable, ErrCodeStoreUnavailable, ErrCodeEmbeddingFailed:
		return true
	default:
		return false
	}
}
