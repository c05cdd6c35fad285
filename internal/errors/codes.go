// Package errors provides structured error handling for podseek.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (index file, transactions)
//   - 3XX: Feed errors (network, parse)
//   - 4XX: Query errors
//   - 5XX: Internal errors
package errors

import "strings"

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates index storage and transaction errors.
	CategoryStorage Category = "STORAGE"
	// CategoryFeed indicates feed fetch and parse errors.
	CategoryFeed Category = "FEED"
	// CategoryQuery indicates search query errors.
	CategoryQuery Category = "QUERY"
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
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeIndexOpen     = "ERR_201_INDEX_OPEN"
	ErrCodeIndexCorrupt  = "ERR_202_INDEX_CORRUPT"
	ErrCodeIndexClosed   = "ERR_203_INDEX_CLOSED"
	ErrCodeWriteFailed   = "ERR_204_WRITE_FAILED"
	ErrCodeOutOfMemory   = "ERR_205_OUT_OF_MEMORY"
	ErrCodeIndexLocked   = "ERR_206_INDEX_LOCKED"

	// Feed errors (300-399)
	ErrCodeFeedUnavailable = "ERR_301_FEED_UNAVAILABLE"
	ErrCodeFeedParse       = "ERR_302_FEED_PARSE"

	// Query errors (400-499)
	ErrCodeQueryFailed = "ERR_401_QUERY_FAILED"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode derives the category from the numeric range of a code.
func categoryFromCode(code string) Category {
	switch {
	case strings.HasPrefix(code, "ERR_1"):
		return CategoryConfig
	case strings.HasPrefix(code, "ERR_2"):
		return CategoryStorage
	case strings.HasPrefix(code, "ERR_3"):
		return CategoryFeed
	case strings.HasPrefix(code, "ERR_4"):
		return CategoryQuery
	default:
		return CategoryInternal
	}
}

// severityFromCode derives the default severity for a code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeIndexCorrupt, ErrCodeIndexOpen, ErrCodeIndexLocked:
		return SeverityFatal
	case ErrCodeQueryFailed, ErrCodeFeedParse, ErrCodeOutOfMemory:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code should
// be retried. Feed availability and memory pressure are transient; corrupt
// or locked index files are not.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeFeedUnavailable, ErrCodeOutOfMemory, ErrCodeWriteFailed:
		return true
	default:
		return false
	}
}
