// Package errors provides structured error types for netcut.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the library, CLI and HTTP API
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures (malformed graphs, bad config)
//   - *_REFERENCE, MISSING_*, TYPE_MISMATCH: Structural rewrite failures
//   - CONVERSION_FAILED: The converter rejected a partition
//   - PRUNE_INCONSISTENT: Weight pruning found a still-referenced weight
//   - INTERNAL_*: Unexpected internal errors
//
// Structural, conversion and pruning errors are fatal to a rewrite. Callers
// never observe a partially rewritten graph when one of them is returned.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeMissingShape, "partition %d: no shape for %q", idx, name)
//	if errors.Is(err, errors.ErrCodeMissingShape) {
//	    // Supply more input hints and retry
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeConversion, origErr, "partition %d", idx)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput      Code = "INVALID_INPUT"
	ErrCodeInvalidGraph      Code = "INVALID_GRAPH"
	ErrCodeInvalidConfig     Code = "INVALID_CONFIG"
	ErrCodeInvalidTensorName Code = "INVALID_TENSOR_NAME"

	// Structural rewrite errors
	ErrCodeDanglingReference Code = "DANGLING_REFERENCE"
	ErrCodeMissingShape      Code = "MISSING_SHAPE"
	ErrCodeTypeMismatch      Code = "TYPE_MISMATCH"

	// Conversion and pruning errors
	ErrCodeConversion        Code = "CONVERSION_FAILED"
	ErrCodePruneInconsistent Code = "PRUNE_INCONSISTENT"

	// Resource not found errors
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
// Only the outermost *Error is consulted.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// HTTPStatus maps an error code to an HTTP status for the API server.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeInvalidInput, ErrCodeInvalidGraph, ErrCodeInvalidConfig,
		ErrCodeInvalidTensorName,
		ErrCodeDanglingReference, ErrCodeMissingShape, ErrCodeTypeMismatch:
		return 400
	case ErrCodeNotFound, ErrCodeFileNotFound:
		return 404
	case ErrCodeConversion, ErrCodePruneInconsistent:
		return 422
	case ErrCodeUnsupported:
		return 501
	default:
		return 500
	}
}
