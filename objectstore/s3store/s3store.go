// Package s3store implements objectstore.Store on Amazon S3 and S3-compatible
// endpoints.
//
// Uploads stream through a multipart uploader that holds at most a bounded
// number of parts in memory. Bodies shorter than one part are sent with a
// single PutObject. Deletes use DeleteObject, and DeleteBatch groups keys into
// DeleteObjects requests of up to 1000 keys.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/uploads/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/transfer/multipart"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/objectstore"
)

const (
	// DefaultRegion is used when no region is configured.
	DefaultRegion = "us-east-1"

	// MaxBatchSize is the S3 limit on keys per DeleteObjects request.
	MaxBatchSize = 1000
)

// Option configures a Store.
type Option func(*Store)

// WithEndpoint points the store at an S3-compatible endpoint such as
// LocalStack or a private gateway.
func WithEndpoint(endpoint string) Option {
	return func(s *Store) {
		s.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithForcePathStyle addresses buckets as "<endpoint>/<bucket>".
func WithForcePathStyle(enabled bool) Option {
	return func(s *Store) {
		s.pathStyle = enabled
	}
}

// WithPartSize sets the multipart chunk size.
func WithPartSize(size int64) Option {
	return func(s *Store) {
		s.partSize = size
	}
}

// WithPartConcurrency sets how many parts of one upload may be in flight.
func WithPartConcurrency(n int) Option {
	return func(s *Store) {
		s.partConcurrency = n
	}
}

// Store is an objectstore.Store backed by S3.
type Store struct {
	client          s3api.S3API
	uploader        *multipart.Uploader
	region          string
	endpoint        string
	pathStyle       bool
	partSize        int64
	partConcurrency int
}

var (
	_ objectstore.Store        = (*Store)(nil)
	_ objectstore.BatchDeleter = (*Store)(nil)
)

// New creates a Store over an existing S3 client.
// This is primarily used for testing with mocked clients.
func New(client s3api.S3API, region string, opts ...Option) *Store {
	if region == "" {
		region = DefaultRegion
	}
	s := &Store{client: client, region: region}
	for _, opt := range opts {
		opt(s)
	}
	s.uploader = multipart.NewUploader(client, s.partSize, s.partConcurrency)
	return s
}

// NewFromConfig creates a Store and its S3 client from an AWS configuration.
// The endpoint and path-style options are applied to the client as well.
func NewFromConfig(cfg aws.Config, opts ...Option) *Store {
	probe := &Store{}
	for _, opt := range opts {
		opt(probe)
	}

	var s3Opts []func(*s3.Options)
	if probe.endpoint != "" {
		endpoint := probe.endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if probe.pathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return New(s3.NewFromConfig(cfg, s3Opts...), cfg.Region, opts...)
}

// Region returns the region used to build default locators.
func (s *Store) Region() string {
	return s.region
}

// BaseURL returns the public prefix for objects in bucket.
func (s *Store) BaseURL(bucket string) string {
	if s.endpoint == "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, s.region)
	}
	if s.pathStyle {
		return s.endpoint + "/" + bucket
	}

	u, err := url.Parse(s.endpoint)
	if err != nil || u.Host == "" {
		return s.endpoint + "/" + bucket
	}
	u.Host = bucket + "." + u.Host
	return strings.TrimRight(u.String(), "/")
}

// Locator returns the public pointer for key in bucket.
func (s *Store) Locator(bucket, key string) string {
	return objectstore.JoinLocator(s.BaseURL(bucket), key)
}

// BeginUpload returns a handle that streams in.Body when completed.
func (s *Store) BeginUpload(_ context.Context, in objectstore.UploadInput) (objectstore.Upload, error) {
	if in.Body == nil {
		return nil, uerrors.NewObjectError("beginUpload", in.Bucket, in.Key, uerrors.ErrInvalidInput).
			WithMessage("body cannot be nil")
	}
	return &upload{store: s, in: in}, nil
}

// upload defers all network work to Complete. The multipart uploader aborts
// its own server-side state on failure, so Abort has nothing left to clean.
type upload struct {
	store *Store
	in    objectstore.UploadInput
	done  atomic.Bool
}

func (u *upload) Complete(ctx context.Context) (*objectstore.Result, error) {
	if !u.done.CompareAndSwap(false, true) {
		return nil, uerrors.NewObjectError("completeUpload", u.in.Bucket, u.in.Key,
			errors.New("upload already finished"))
	}

	out, err := u.store.uploader.Upload(ctx, &multipart.Input{
		Bucket:      u.in.Bucket,
		Key:         u.in.Key,
		ContentType: u.in.ContentType,
		ACL:         awstypes.ObjectCannedACL(u.in.ACL),
		Body:        u.in.Body,
	})
	if err != nil {
		return nil, err
	}

	return &objectstore.Result{
		Locator: u.store.Locator(u.in.Bucket, u.in.Key),
		Key:     out.Key,
		ETag:    out.ETag,
		Size:    out.Size,
	}, nil
}

func (u *upload) Abort(context.Context) error {
	u.done.Store(true)
	return nil
}

// Delete removes key from bucket. Missing keys are reported as success.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return uerrors.NewObjectError("deleteObject", bucket, key, err)
	}
	return nil
}

// DeleteBatch removes keys in requests of up to MaxBatchSize keys. A failure
// of the only request is returned as an error; when several requests are
// needed, a failed request is reported against each of its keys.
func (s *Store) DeleteBatch(ctx context.Context, bucket string, keys []string) ([]objectstore.KeyError, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	if len(keys) <= MaxBatchSize {
		return s.deleteBatchDirect(ctx, bucket, keys)
	}

	var failures []objectstore.KeyError
	for i := 0; i < len(keys); i += MaxBatchSize {
		end := min(i+MaxBatchSize, len(keys))

		batchFailures, err := s.deleteBatchDirect(ctx, bucket, keys[i:end])
		if err != nil {
			for _, key := range keys[i:end] {
				failures = append(failures, objectstore.KeyError{Key: key, Err: err})
			}
			continue
		}
		failures = append(failures, batchFailures...)
	}
	return failures, nil
}

// deleteBatchDirect handles a single DeleteObjects request.
func (s *Store) deleteBatchDirect(ctx context.Context, bucket string, keys []string) ([]objectstore.KeyError, error) {
	objects := make([]awstypes.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		objects = append(objects, awstypes.ObjectIdentifier{Key: aws.String(key)})
	}

	output, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &awstypes.Delete{
			Objects: objects,
			Quiet:   aws.Bool(true),
		},
	})
	if err != nil {
		return nil, uerrors.NewObjectError("deleteObjects", bucket, "", err)
	}

	var failures []objectstore.KeyError
	for _, e := range output.Errors {
		if code := aws.ToString(e.Code); code == "NoSuchKey" {
			continue
		}
		failures = append(failures, objectstore.KeyError{
			Key: aws.ToString(e.Key),
			Err: uerrors.NewObjectError("deleteObjects", bucket, aws.ToString(e.Key),
				fmt.Errorf("%s: %s", aws.ToString(e.Code), aws.ToString(e.Message))),
		})
	}
	return failures, nil
}

// isNotFound reports S3 errors that mean the object is already gone.
func isNotFound(err error) bool {
	var nsk *awstypes.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
