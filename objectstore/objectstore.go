// Package objectstore defines the storage capability consumed by the uploads client.
//
// A Store accepts streaming uploads and deletes objects by key. Implementations
// must guarantee that a failed upload leaves no partial object behind and that
// deleting a missing key succeeds.
package objectstore

import (
	"context"
	"io"
	"net/url"
	"strings"
)

// ACL is a canned access control list applied to new objects.
type ACL string

const (
	// ACLPrivate grants private access
	ACLPrivate ACL = "private"

	// ACLPublicRead grants public read access
	ACLPublicRead ACL = "public-read"
)

// UploadInput describes one object to create.
type UploadInput struct {
	Bucket      string
	Key         string
	Body        io.Reader
	ContentType string
	ACL         ACL
}

// Result is returned once per successful upload.
type Result struct {
	// Locator is the public pointer of the stored object
	Locator string

	// Key is the storage key the object was written under
	Key string

	// ETag is the entity tag reported by the store, if any
	ETag string

	// Size is the number of bytes written
	Size int64
}

// Upload is an in-progress upload returned by BeginUpload.
type Upload interface {
	// Complete drains the body into the store and finalizes the object.
	// On error every uploaded part has been aborted.
	Complete(ctx context.Context) (*Result, error)

	// Abort discards the upload. It is a no-op once Complete has returned.
	Abort(ctx context.Context) error
}

// Store is the object storage capability.
type Store interface {
	// BeginUpload prepares an upload. The body is not read until Complete.
	BeginUpload(ctx context.Context, in UploadInput) (Upload, error)

	// Delete removes the object at key. Missing keys are not an error.
	Delete(ctx context.Context, bucket, key string) error

	// BaseURL returns the default public prefix for objects in bucket,
	// without a trailing slash.
	BaseURL(bucket string) string
}

// KeyError reports a key that a batch delete could not remove.
type KeyError struct {
	Key string
	Err error
}

// BatchDeleter is implemented by stores that can remove many keys per request.
type BatchDeleter interface {
	// DeleteBatch removes keys and reports per-key failures. A non-nil error
	// means the whole request failed.
	DeleteBatch(ctx context.Context, bucket string, keys []string) ([]KeyError, error)
}

// JoinLocator appends key to base, escaping each path segment of key.
func JoinLocator(base, key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}
