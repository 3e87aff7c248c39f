// Package errors provides error types and handling for upload and deletion operations.
package errors

import (
	"errors"
	"fmt"
)

// Error represents a failed operation with context about the object involved.
// It wraps the underlying store or validation error with additional context for better debugging.
type Error struct {
	// Op is the operation that failed (e.g., "uploadOne", "deleteOne")
	Op string

	// Bucket is the bucket name (if applicable)
	Bucket string

	// Key is the storage key (if applicable)
	Key string

	// Err is the underlying error
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("uploads.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("uploads.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("uploads.%s object %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("uploads.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithBucket adds bucket context to an existing error.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey adds key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewObjectError creates a new Error with bucket and key context.
func NewObjectError(op, bucket, key string, err error) *Error {
	return &Error{
		Op:     op,
		Bucket: bucket,
		Key:    key,
		Err:    err,
	}
}

// TransferFailed marks cause as a store failure. Both ErrTransferFailed and
// cause remain reachable through errors.Is and errors.As.
func TransferFailed(cause error) error {
	if cause == nil || errors.Is(cause, ErrTransferFailed) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrTransferFailed, cause)
}

// Sentinel errors for the failure categories surfaced to callers.
// These can be used with errors.Is() for error checking.
var (
	// ErrConfigMissing indicates that the bucket or region could not be resolved
	ErrConfigMissing = errors.New("uploads: configuration missing")

	// ErrInvalidInput indicates a malformed filename, key, or reference shape
	ErrInvalidInput = errors.New("uploads: invalid input")

	// ErrMissingInput indicates that neither a file nor a fallback reference was supplied
	ErrMissingInput = errors.New("uploads: missing input")

	// ErrTransferFailed indicates that the object store rejected an upload or delete
	ErrTransferFailed = errors.New("uploads: transfer failed")
)

// IsConfigMissing checks if an error indicates unresolved configuration.
func IsConfigMissing(err error) bool {
	return errors.Is(err, ErrConfigMissing)
}

// IsInvalidInput checks if an error indicates invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsMissingInput checks if an error indicates that no input and no fallback were given.
func IsMissingInput(err error) bool {
	return errors.Is(err, ErrMissingInput)
}

// IsTransferFailed checks if an error originated from the object store.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsTransferFailed(err error) bool {
	return errors.Is(err, ErrTransferFailed)
}
