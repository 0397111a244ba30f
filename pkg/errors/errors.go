// Package errors provides structured error types for nftgen.
//
// Every failure raised by the generation engine carries a machine-readable
// [Code] so callers can branch on the failure class (a bad layer directory, a
// corrupt PNG, a metadata file that no longer parses) without matching on
// message text. Messages always name the offending path, category, or
// operation.
//
// # Error Codes
//
//   - IO_ERROR, INVALID_DIRECTORY: filesystem failures
//   - DECODE_ERROR, ENCODE_ERROR, DIMENSION_MISMATCH: image codec and compositing
//   - INVALID_FILENAME, INVALID_LAYER_PATH, UNKNOWN_LAYER, DUPLICATE_LAYER, EMPTY_LAYER: catalog
//   - JSON_ERROR: metadata (de)serialization
//   - UPSTREAM_TRANSFER: upload collaborators (ipfs, NFT.Storage)
//
// # Usage
//
//	err := errors.New(errors.ErrCodeUnknownLayer, "layer %q not found in layers order", name)
//	if errors.Is(err, errors.ErrCodeUnknownLayer) {
//	    // Handle misconfigured order
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeDecode, origErr, "decode %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Filesystem errors
	ErrCodeIO               Code = "IO_ERROR"
	ErrCodeInvalidDirectory Code = "INVALID_DIRECTORY"

	// Image errors
	ErrCodeDecode            Code = "DECODE_ERROR"
	ErrCodeEncode            Code = "ENCODE_ERROR"
	ErrCodeDimensionMismatch Code = "DIMENSION_MISMATCH"

	// Layer catalog errors
	ErrCodeInvalidFilename  Code = "INVALID_FILENAME"
	ErrCodeInvalidLayerPath Code = "INVALID_LAYER_PATH"
	ErrCodeUnknownLayer     Code = "UNKNOWN_LAYER"
	ErrCodeDuplicateLayer   Code = "DUPLICATE_LAYER"
	ErrCodeEmptyLayer       Code = "EMPTY_LAYER"

	// Metadata errors
	ErrCodeJSON Code = "JSON_ERROR"

	// Collaborator errors
	ErrCodeUpstreamTransfer Code = "UPSTREAM_TRANSFER"

	// Input and internal errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeInternal     Code = "INTERNAL_ERROR"
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
// Only the outermost *Error in the chain is consulted, so a wrapped
// DECODE_ERROR inside an IO_ERROR reports IO_ERROR.
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
// For *Error types, returns the message without the code prefix, followed
// by the cause when there is one.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + e.Cause.Error()
		}
		return e.Message
	}
	return err.Error()
}
