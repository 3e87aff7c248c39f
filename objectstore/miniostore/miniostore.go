// Package miniostore implements objectstore.Store on MinIO and other
// S3-compatible servers through minio-go.
package miniostore

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/uploads/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/objectstore"
)

// API is the subset of *minio.Client used by the store.
type API interface {
	PutObject(
		ctx context.Context,
		bucketName, objectName string,
		reader io.Reader,
		objectSize int64,
		opts minio.PutObjectOptions,
	) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	RemoveObjects(
		ctx context.Context,
		bucketName string,
		objectsCh <-chan minio.ObjectInfo,
		opts minio.RemoveObjectsOptions,
	) <-chan minio.RemoveObjectError
}

// Config holds connection settings for a MinIO server.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool

	// PublicBase overrides the prefix used to build locators. Defaults to
	// "<scheme>://<endpoint>".
	PublicBase string

	// PartSize is the multipart chunk size for unknown-length bodies.
	PartSize uint64
}

// Store is an objectstore.Store backed by minio-go.
type Store struct {
	client     API
	publicBase string
	partSize   uint64
}

var (
	_ API                      = (*minio.Client)(nil)
	_ objectstore.Store        = (*Store)(nil)
	_ objectstore.BatchDeleter = (*Store)(nil)
)

// New connects a minio-go client described by cfg. No request is made until
// the first upload or delete.
func New(cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, uerrors.NewError("newMinioStore", err)
	}

	base := cfg.PublicBase
	if base == "" {
		base = client.EndpointURL().String()
	}
	return NewWithClient(client, base, cfg.PartSize), nil
}

// NewWithClient wraps an existing client. publicBase is the prefix under
// which buckets are served, e.g. "http://localhost:9000".
func NewWithClient(client API, publicBase string, partSize uint64) *Store {
	return &Store{
		client:     client,
		publicBase: strings.TrimRight(publicBase, "/"),
		partSize:   partSize,
	}
}

// BaseURL returns "<publicBase>/<bucket>".
func (s *Store) BaseURL(bucket string) string {
	return s.publicBase + "/" + bucket
}

func (s *Store) locator(bucket, key string) string {
	return objectstore.JoinLocator(s.BaseURL(bucket), key)
}

// BeginUpload returns a handle that streams in.Body with an unknown size.
func (s *Store) BeginUpload(_ context.Context, in objectstore.UploadInput) (objectstore.Upload, error) {
	if in.Body == nil {
		return nil, uerrors.NewObjectError("beginUpload", in.Bucket, in.Key, uerrors.ErrInvalidInput).
			WithMessage("body cannot be nil")
	}
	return &upload{store: s, in: in}, nil
}

type upload struct {
	store *Store
	in    objectstore.UploadInput
	done  atomic.Bool
}

// Complete streams the body. minio-go aborts its own multipart state when
// PutObject fails.
func (u *upload) Complete(ctx context.Context) (*objectstore.Result, error) {
	if !u.done.CompareAndSwap(false, true) {
		return nil, uerrors.NewObjectError("completeUpload", u.in.Bucket, u.in.Key,
			errors.New("upload already finished"))
	}

	opts := minio.PutObjectOptions{
		ContentType: u.in.ContentType,
		PartSize:    u.store.partSize,
	}
	if u.in.ACL != "" {
		opts.UserMetadata = map[string]string{"x-amz-acl": string(u.in.ACL)}
	}

	info, err := u.store.client.PutObject(ctx, u.in.Bucket, u.in.Key, u.in.Body, -1, opts)
	if err != nil {
		return nil, uerrors.NewObjectError("putObject", u.in.Bucket, u.in.Key, err)
	}

	return &objectstore.Result{
		Locator: u.store.locator(u.in.Bucket, u.in.Key),
		Key:     u.in.Key,
		ETag:    info.ETag,
		Size:    info.Size,
	}, nil
}

func (u *upload) Abort(context.Context) error {
	u.done.Store(true)
	return nil
}

// Delete removes key from bucket. Missing keys are reported as success.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return uerrors.NewObjectError("removeObject", bucket, key, err)
	}
	return nil
}

// DeleteBatch removes keys through RemoveObjects and reports per-key failures.
func (s *Store) DeleteBatch(ctx context.Context, bucket string, keys []string) ([]objectstore.KeyError, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	objects := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objects <- minio.ObjectInfo{Key: key}
	}
	close(objects)

	var failures []objectstore.KeyError
	for rerr := range s.client.RemoveObjects(ctx, bucket, objects, minio.RemoveObjectsOptions{}) {
		if rerr.Err == nil || minio.ToErrorResponse(rerr.Err).Code == "NoSuchKey" {
			continue
		}
		failures = append(failures, objectstore.KeyError{
			Key: rerr.ObjectName,
			Err: uerrors.NewObjectError("removeObjects", bucket, rerr.ObjectName, rerr.Err),
		})
	}
	if err := ctx.Err(); err != nil {
		return failures, uerrors.NewObjectError("removeObjects", bucket, "", err)
	}
	return failures, nil
}
