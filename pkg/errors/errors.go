// Package errors provides structured error types for the ccgo resolver.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across all resolver stages
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Every resolution failure carries one of the codes below. A run either
// fully succeeds with a complete, cycle-free, conflict-resolved graph, or
// fails with exactly one of these diagnosable kinds.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeNoMatchingVersion, "no version of %s satisfies %s", name, cons)
//	if errors.Is(err, errors.ErrCodeNoMatchingVersion) {
//	    // Handle unsatisfiable constraint
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeSourceUnavailable, origErr, "fetch %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different failure categories.
const (
	// Manifest and constraint parsing
	ErrCodeInvalidManifest   Code = "INVALID_MANIFEST"
	ErrCodeInvalidConstraint Code = "INVALID_CONSTRAINT"
	ErrCodeInvalidVersion    Code = "INVALID_VERSION"
	ErrCodeAmbiguousGitRef   Code = "AMBIGUOUS_GIT_REF"
	ErrCodeInvalidLockfile   Code = "INVALID_LOCKFILE"

	// Resolution failures
	ErrCodeNoMatchingVersion Code = "NO_MATCHING_VERSION"
	ErrCodeVersionConflict   Code = "VERSION_CONFLICT"
	ErrCodeDependencyCycle   Code = "DEPENDENCY_CYCLE"
	ErrCodeMaxDepthExceeded  Code = "MAX_DEPTH_EXCEEDED"
	ErrCodeLockfileMismatch  Code = "LOCKFILE_MISMATCH"

	// External collaborators
	ErrCodeSourceUnavailable Code = "SOURCE_UNAVAILABLE"
	ErrCodeNotFound          Code = "NOT_FOUND"
	ErrCodeNetwork           Code = "NETWORK_ERROR"
	ErrCodeTimeout           Code = "TIMEOUT"

	// Internal invariant violations (bugs, not user errors)
	ErrCodeDanglingDependency Code = "DANGLING_DEPENDENCY"
	ErrCodeInternal           Code = "INTERNAL_ERROR"
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

// Is reports whether err carries the given error code anywhere in its chain.
func Is(err error, code Code) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if ce, ok := e.(*Error); ok && ce.Code == code {
			return true
		}
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
