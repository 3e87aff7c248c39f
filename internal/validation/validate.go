// Package validation provides centralized input validation logic.
// This includes bucket name validation, object key validation, and content type checks.
//
// All caller inputs are validated before any request reaches the object store.
package validation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/input-output-hk/catalyst-forge-libs/uploads/errors"
)

const maxKeyLength = 1024

var mimePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9\-+.]*\/[a-zA-Z0-9][a-zA-Z0-9\-+.]*(\s*;.*)?$`)

// ValidateBucketName validates that a bucket name is DNS-compliant according to S3 rules.
// Returns ErrInvalidInput if the bucket name is invalid.
func ValidateBucketName(bucket string) error {
	if err := validateBucketNameBasics(bucket); err != nil {
		return err
	}

	if err := validateBucketNameCharacters(bucket); err != nil {
		return err
	}

	return validateBucketNameStructure(bucket)
}

// ValidateFilename checks that an uploaded file carries a usable name.
func ValidateFilename(filename string) error {
	if strings.TrimSpace(filename) == "" {
		return errors.NewError("validateFilename", errors.ErrInvalidInput).
			WithMessage("filename cannot be empty")
	}
	if hasControlCharacters(filename) {
		return errors.NewError("validateFilename", errors.ErrInvalidInput).
			WithMessage("filename cannot contain control characters")
	}
	return nil
}

// ValidateObjectKey validates that a storage key is acceptable.
// This includes preventing path traversal and ensuring valid characters.
func ValidateObjectKey(key string) error {
	if key == "" {
		return errors.NewError("validateObjectKey", errors.ErrInvalidInput).
			WithKey(key).
			WithMessage("object key cannot be empty")
	}

	if hasPathTraversal(key) {
		return errors.NewError("validateObjectKey", errors.ErrInvalidInput).
			WithKey(key).
			WithMessage("object key cannot contain path traversal sequences")
	}

	// S3 supports keys up to 1024 bytes
	if len(key) > maxKeyLength {
		return errors.NewError("validateObjectKey", errors.ErrInvalidInput).
			WithKey(key).
			WithMessage("object key cannot exceed 1024 characters")
	}

	if hasControlCharacters(key) {
		return errors.NewError("validateObjectKey", errors.ErrInvalidInput).
			WithKey(key).
			WithMessage("object key cannot contain control characters")
	}

	return nil
}

// ValidateContentType validates that a content type is a well-formed MIME type.
func ValidateContentType(contentType string) error {
	if contentType == "" {
		return nil // detected later
	}

	if !mimePattern.MatchString(contentType) {
		return errors.NewError("validateContentType", errors.ErrInvalidInput).
			WithMessage("content type must be a valid MIME type")
	}

	return nil
}

// validateBucketNameBasics validates basic bucket name requirements
func validateBucketNameBasics(bucket string) error {
	if bucket == "" {
		return errors.NewError("validateBucketName", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithMessage("bucket name cannot be empty")
	}

	if len(bucket) < 3 || len(bucket) > 63 {
		return errors.NewError("validateBucketName", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithMessage("bucket name must be between 3 and 63 characters long")
	}

	return nil
}

// validateBucketNameCharacters validates allowed characters in bucket names
func validateBucketNameCharacters(bucket string) error {
	for _, char := range bucket {
		if !isValidBucketChar(char) {
			return errors.NewError("validateBucketName", errors.ErrInvalidInput).
				WithBucket(bucket).
				WithMessage("bucket name can only contain lowercase letters, numbers, dots, and hyphens")
		}
	}

	return nil
}

// validateBucketNameStructure validates bucket name structural requirements
func validateBucketNameStructure(bucket string) error {
	first, last := bucket[0], bucket[len(bucket)-1]
	if first == '-' || first == '.' || last == '-' || last == '.' {
		return errors.NewError("validateBucketName", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithMessage("bucket name cannot start or end with a hyphen or dot")
	}

	if strings.Contains(bucket, "..") || strings.Contains(bucket, "--") {
		return errors.NewError("validateBucketName", errors.ErrInvalidInput).
			WithBucket(bucket).
			WithMessage("bucket name cannot contain two adjacent periods or hyphens")
	}

	return nil
}

// isValidBucketChar checks if a character is valid in a bucket name
func isValidBucketChar(char rune) bool {
	return (char >= '0' && char <= '9') || (char >= 'a' && char <= 'z') || char == '.' || char == '-'
}

// hasPathTraversal reports keys that are absolute or contain a ".." segment.
// Dots inside a name ("photo..png") are allowed.
func hasPathTraversal(key string) bool {
	if strings.HasPrefix(key, "/") || strings.HasPrefix(key, "\\") {
		return true
	}

	// Windows-style absolute paths
	if len(key) >= 3 && key[1] == ':' && (key[2] == '\\' || key[2] == '/') {
		return true
	}

	for _, segment := range strings.FieldsFunc(key, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return true
		}
	}

	return false
}

// hasControlCharacters checks for control characters in the key
func hasControlCharacters(key string) bool {
	for _, char := range key {
		if unicode.IsControl(char) {
			return true
		}
	}
	return false
}
