// Package errors provides structured error handling for AdLens.
// It implements coded errors with context and cause chains so callers can
// distinguish validation rejections, mid-stream processing failures, and
// bulk-load failures programmatically.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies an error class for programmatic handling.
type Code string

const (
	// Validation errors (1xx) - rejected before any row is read
	CodeFileNotFound  Code = "E101"
	CodeFileTooLarge  Code = "E102"
	CodeBadExtension  Code = "E103"
	CodeMissingColumn Code = "E104"
	CodeEmptyFile     Code = "E105"
	CodeDuplicateJob  Code = "E106"

	// Processing errors (2xx) - abort the job mid-stream
	CodeReadFailed   Code = "E201"
	CodeDecodeFailed Code = "E202"
	CodeStatusWrite  Code = "E203"
	CodeResultWrite  Code = "E204"

	// Load errors (3xx) - bulk loader path
	CodeCopyFailed     Code = "E301"
	CodeMergeFailed    Code = "E302"
	CodeBatchFailed    Code = "E303"
	CodeRetryExhausted Code = "E304"

	// System errors (4xx)
	CodeContextCanceled Code = "E401"
	CodeTimeout         Code = "E402"
	CodePanic           Code = "E403"

	// Store errors (5xx)
	CodeStoreInit  Code = "E501"
	CodeStoreQuery Code = "E502"
	CodeStoreWrite Code = "E503"

	// Unknown
	CodeUnknown Code = "E999"
)

// Error is the base error type for all AdLens errors.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" (")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, v))
			first = false
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Sanitized returns a message safe to surface to external callers: the coded
// message without cause chains, file paths, or raw driver errors.
func (e *Error) Sanitized() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// New creates a new coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps an existing error with a code and message. Returns nil when err
// is nil.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// --- Convenience constructors ---

// FileTooLarge creates a validation error for an oversized upload.
func FileTooLarge(size, limit int64) *Error {
	return New(CodeFileTooLarge, "file exceeds the maximum accepted size").
		WithContext("size", size).
		WithContext("limit", limit)
}

// MissingColumns creates a validation error for absent required header
// columns.
func MissingColumns(columns []string) *Error {
	return New(CodeMissingColumn, "required columns not found in header").
		WithContext("columns", strings.Join(columns, ","))
}

// ContextCanceled creates a cancellation error.
func ContextCanceled(operation string) *Error {
	return New(CodeContextCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks whether an error carries a specific code.
func IsCode(err error, code Code) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// GetCode extracts the code from an error chain.
func GetCode(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// IsValidation reports whether the error belongs to the validation class,
// i.e. it was rejected before any row processing and should surface
// synchronously to the caller.
func IsValidation(err error) bool {
	switch GetCode(err) {
	case CodeFileNotFound, CodeFileTooLarge, CodeBadExtension,
		CodeMissingColumn, CodeEmptyFile, CodeDuplicateJob:
		return true
	}
	return false
}

// IsRetryable reports whether a bulk-write failure should be retried.
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case CodeTimeout, CodeCopyFailed, CodeBatchFailed, CodeStoreWrite:
		return true
	}
	return false
}

// Sanitize returns a user-safe description for any error. Coded errors keep
// their code and message; everything else collapses to a generic description
// so raw system errors never leak to external callers.
func Sanitize(err error) string {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Sanitized()
	}
	return "internal processing error"
}
