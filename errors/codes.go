package errors

import (
	"context"
	"errors"
)

// ErrorCode identifies a failure category in a form suitable for logs and API responses.
// Error codes are string-based for debuggability and natural JSON serialization.
type ErrorCode string

const (
	// CodeInvalidConfig indicates the bucket or region could not be resolved.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeMissingInput indicates neither a payload nor a fallback reference was supplied.
	CodeMissingInput ErrorCode = "MISSING_INPUT"

	// CodeTransferFailed indicates the object store rejected an upload or delete.
	CodeTransferFailed ErrorCode = "TRANSFER_FAILED"

	// CodeCanceled indicates the caller's context ended before the operation finished.
	CodeCanceled ErrorCode = "CANCELED"

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Code classifies err. A nil error has an empty code.
func Code(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfigMissing):
		return CodeInvalidConfig
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrMissingInput):
		return CodeMissingInput
	case errors.Is(err, ErrTransferFailed):
		return CodeTransferFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	default:
		return CodeUnknown
	}
}
