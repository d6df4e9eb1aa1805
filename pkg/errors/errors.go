// Package errors provides the structured error type used across s3harness, with error codes, categories, and context.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for harness operations.
type ErrorCode string

// Error code constants grouped by category.
const (
	// Configuration errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig    ErrorCode = "MISSING_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"

	// Connection errors
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	ErrCodeNetworkError     ErrorCode = "NETWORK_ERROR"

	// Object store errors
	ErrCodeObjectNotFound ErrorCode = "OBJECT_NOT_FOUND"
	ErrCodeBucketNotFound ErrorCode = "BUCKET_NOT_FOUND"
	ErrCodeStorageWrite   ErrorCode = "STORAGE_WRITE"
	ErrCodeStorageRead    ErrorCode = "STORAGE_READ"
	ErrCodeStorageDelete  ErrorCode = "STORAGE_DELETE"

	// Local mirror errors
	ErrCodeFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrCodeMirrorWrite  ErrorCode = "MIRROR_WRITE"
	ErrCodeInvalidKey   ErrorCode = "INVALID_KEY"
	ErrCodeInvalidRange ErrorCode = "INVALID_RANGE"
	ErrCodeRegionClosed ErrorCode = "REGION_CLOSED"

	// Cluster errors
	ErrCodeInvalidState     ErrorCode = "INVALID_STATE"
	ErrCodeClusterStatus    ErrorCode = "CLUSTER_STATUS"
	ErrCodeNodeNotFound     ErrorCode = "NODE_NOT_FOUND"
	ErrCodeNodeCommand      ErrorCode = "NODE_COMMAND"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryConnection    ErrorCategory = "connection"
	CategoryStorage       ErrorCategory = "storage"
	CategoryMirror        ErrorCategory = "mirror"
	CategoryCluster       ErrorCategory = "cluster"
	CategoryInternal      ErrorCategory = "internal"
)

// HarnessError represents a structured error with context and metadata.
type HarnessError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"`
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component"`
	Operation string `json:"operation,omitempty"`
}

// Error implements the error interface.
func (e *HarnessError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Component != "" {
		if e.Operation != "" {
			msg = fmt.Sprintf("[%s:%s] %s", e.Component, e.Operation, msg)
		} else {
			msg = fmt.Sprintf("[%s] %s", e.Component, msg)
		}
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *HarnessError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *HarnessError) Is(target error) bool {
	if harnessErr, ok := target.(*HarnessError); ok {
		return e.Code == harnessErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *HarnessError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if len(e.Context) > 0 {
		ctx, _ := json.Marshal(e.Context)
		parts = append(parts, fmt.Sprintf("Context=%s", ctx))
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("HarnessError{%s}", strings.Join(parts, ", "))
}

// NewError creates a new harness error with default values.
func NewError(code ErrorCode, message string) *HarnessError {
	return &HarnessError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
		Context:   make(map[string]string),
	}
}

// GetCategory determines the category based on the error code. Codes outside
// the known prefixes are internal.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "MISSING_CONFIG") ||
		strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "CONNECTION_") || strings.HasPrefix(codeStr, "NETWORK_"):
		return CategoryConnection
	case strings.HasPrefix(codeStr, "OBJECT_") || strings.HasPrefix(codeStr, "BUCKET_") ||
		strings.HasPrefix(codeStr, "STORAGE_"):
		return CategoryStorage
	case strings.HasPrefix(codeStr, "FILE_") || strings.HasPrefix(codeStr, "MIRROR_") ||
		strings.HasPrefix(codeStr, "INVALID_RANGE") || strings.HasPrefix(codeStr, "INVALID_KEY") ||
		strings.HasPrefix(codeStr, "REGION_"):
		return CategoryMirror
	case strings.HasPrefix(codeStr, "INVALID_STATE") || strings.HasPrefix(codeStr, "CLUSTER_") ||
		strings.HasPrefix(codeStr, "NODE_") || strings.HasPrefix(codeStr, "VALIDATION_"):
		return CategoryCluster
	default:
		return CategoryInternal
	}
}

// HasCode reports whether err, or any error it wraps, is a HarnessError with the given code.
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &HarnessError{Code: code})
}

// WithContext adds contextual information to an error
func (e *HarnessError) WithContext(key, value string) *HarnessError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *HarnessError) WithDetail(key string, value interface{}) *HarnessError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *HarnessError) WithComponent(component string) *HarnessError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *HarnessError) WithOperation(operation string) *HarnessError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause
func (e *HarnessError) WithCause(cause error) *HarnessError {
	e.Cause = cause
	return e
}
