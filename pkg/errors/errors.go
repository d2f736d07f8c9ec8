// Package errors provides a structured error system for strata with error codes,
// categories, and retry hints.
package errors

import (
	"context"
	stderr "errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrorCode identifies a class of failure.
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"

	// Connection errors
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"

	// Storage errors
	ErrCodeObjectNotFound ErrorCode = "OBJECT_NOT_FOUND"
	ErrCodeBucketNotFound ErrorCode = "BUCKET_NOT_FOUND"
	ErrCodeStorageWrite   ErrorCode = "STORAGE_WRITE"
	ErrCodeStorageRead    ErrorCode = "STORAGE_READ"
	ErrCodeAccessDenied   ErrorCode = "ACCESS_DENIED"

	// Cache errors
	ErrCodeEntryCorrupted ErrorCode = "ENTRY_CORRUPTED"
	ErrCodeEncodeFailed   ErrorCode = "ENCODE_FAILED"
	ErrCodeLockTimeout    ErrorCode = "LOCK_TIMEOUT"

	// Operation errors
	ErrCodeOperationTimeout  ErrorCode = "OPERATION_TIMEOUT"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"

	// Provider errors
	ErrCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrCodeProviderResponse    ErrorCode = "PROVIDER_RESPONSE"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory groups error codes for reporting.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryConnection    ErrorCategory = "connection"
	CategoryStorage       ErrorCategory = "storage"
	CategoryCache         ErrorCategory = "cache"
	CategoryOperation     ErrorCategory = "operation"
	CategoryProvider      ErrorCategory = "provider"
	CategoryInternal      ErrorCategory = "internal"
)

// StrataError is a structured error with a code, category, and retry hint.
type StrataError struct {
	Code      ErrorCode     `json:"code"`
	Category  ErrorCategory `json:"category"`
	Message   string        `json:"message"`
	Component string        `json:"component,omitempty"`
	Operation string        `json:"operation,omitempty"`
	Cause     error         `json:"-"`
	Timestamp time.Time     `json:"timestamp"`
	Retryable bool          `json:"retryable"`
}

// Error implements the error interface.
func (e *StrataError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *StrataError) Unwrap() error {
	return e.Cause
}

// Is matches on error code.
func (e *StrataError) Is(target error) bool {
	if se, ok := target.(*StrataError); ok {
		return e.Code == se.Code
	}
	return false
}

// New creates a StrataError with category and retry hint derived from the code.
func New(code ErrorCode, message string) *StrataError {
	return &StrataError{
		Code:      code,
		Category:  categoryOf(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: retryableByDefault(code),
	}
}

// Wrap creates a StrataError wrapping a cause.
func Wrap(code ErrorCode, message string, cause error) *StrataError {
	e := New(code, message)
	e.Cause = cause
	return e
}

// WithComponent annotates the error with its originating component and operation.
func (e *StrataError) WithComponent(component, operation string) *StrataError {
	e.Component = component
	e.Operation = operation
	return e
}

// Code extracts the error code from err, or ErrCodeInternalError if it carries none.
func Code(err error) ErrorCode {
	var se *StrataError
	if stderr.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternalError
}

// IsNotFound reports whether err represents a missing object.
func IsNotFound(err error) bool {
	var se *StrataError
	if stderr.As(err, &se) {
		return se.Code == ErrCodeObjectNotFound
	}
	return false
}

// IsTransient classifies an error as worth retrying. StrataErrors carry an
// explicit hint; other errors are classified by standard network and context
// timeout conditions plus a small set of known transient message fragments.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *StrataError
	if stderr.As(err, &se) {
		return se.Retryable
	}
	if stderr.Is(err, context.DeadlineExceeded) {
		return true
	}
	if stderr.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	if stderr.As(err, &ne) && ne.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, frag := range []string{"timeout", "timed out", "connection reset", "connection refused", "temporary", "disconnect", "broken pipe"} {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

func categoryOf(code ErrorCode) ErrorCategory {
	s := string(code)
	switch {
	case strings.HasPrefix(s, "INVALID_CONFIG") || strings.HasPrefix(s, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(s, "CONNECTION_") || strings.HasPrefix(s, "NETWORK_"):
		return CategoryConnection
	case strings.HasPrefix(s, "OBJECT_") || strings.HasPrefix(s, "BUCKET_") ||
		strings.HasPrefix(s, "STORAGE_") || strings.HasPrefix(s, "ACCESS_"):
		return CategoryStorage
	case strings.HasPrefix(s, "ENTRY_") || strings.HasPrefix(s, "ENCODE_") || strings.HasPrefix(s, "LOCK_"):
		return CategoryCache
	case strings.HasPrefix(s, "OPERATION_") || strings.HasPrefix(s, "RETRY_"):
		return CategoryOperation
	case strings.HasPrefix(s, "PROVIDER_"):
		return CategoryProvider
	default:
		return CategoryInternal
	}
}

func retryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeConnectionTimeout, ErrCodeConnectionFailed, ErrCodeNetworkError,
		ErrCodeOperationTimeout, ErrCodeProviderUnavailable:
		return true
	}
	return false
}
