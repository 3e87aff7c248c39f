// Package multipart handles streaming multipart uploads with concurrent part
// uploads and automatic abort on failure.
package multipart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/uploads/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/s3api"
)

const (
	// MinPartSize is the smallest part S3 accepts for all but the last part.
	MinPartSize = 5 * 1024 * 1024

	// DefaultPartSize is used when no part size is configured.
	DefaultPartSize = 8 * 1024 * 1024

	// DefaultConcurrency bounds in-flight parts per upload.
	DefaultConcurrency = 5

	// MaxParts is the S3 limit on parts per upload.
	MaxParts = 10000
)

// ErrTooManyParts is returned when a stream needs more than MaxParts parts.
var ErrTooManyParts = errors.New("multipart: stream exceeds maximum part count")

// Input describes one object to stream.
type Input struct {
	Bucket      string
	Key         string
	ContentType string
	ACL         awstypes.ObjectCannedACL
	Body        io.Reader
}

// Output describes a stored object.
type Output struct {
	Key       string
	ETag      string
	VersionID string
	Size      int64
	Parts     int
}

// Uploader streams readers of unknown length into S3.
// Bodies shorter than one part are sent with a single PutObject.
type Uploader struct {
	s3Client    s3api.S3API
	parts       *pool.PartPool
	concurrency int
}

// NewUploader creates a new multipart uploader. Non-positive values select
// the defaults; part sizes below MinPartSize are raised to it.
func NewUploader(s3Client s3api.S3API, partSize int64, concurrency int) *Uploader {
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	if partSize < MinPartSize {
		partSize = MinPartSize
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Uploader{
		s3Client:    s3Client,
		parts:       pool.NewPartPool(int(partSize)),
		concurrency: concurrency,
	}
}

// PartSize returns the configured part size.
func (u *Uploader) PartSize() int {
	return u.parts.Size()
}

// Upload reads in.Body to EOF and stores it under in.Key. On any failure
// after a multipart upload was created, the upload is aborted before Upload
// returns.
func (u *Uploader) Upload(ctx context.Context, in *Input) (*Output, error) {
	first := u.parts.Get()
	n, err := io.ReadFull(in.Body, first)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		defer u.parts.Put(first)
		return u.putObject(ctx, in, first[:n])
	case err != nil:
		u.parts.Put(first)
		return nil, uerrors.NewObjectError("readBody", in.Bucket, in.Key, err)
	}

	uploadID, err := u.createMultipartUpload(ctx, in)
	if err != nil {
		u.parts.Put(first)
		return nil, err
	}

	parts, size, err := u.uploadParts(ctx, in, uploadID, first)
	if err != nil {
		u.abortMultipartUpload(ctx, in.Bucket, in.Key, uploadID)
		return nil, err
	}

	out, err := u.completeMultipartUpload(ctx, in, uploadID, parts)
	if err != nil {
		u.abortMultipartUpload(ctx, in.Bucket, in.Key, uploadID)
		return nil, err
	}
	out.Size = size
	return out, nil
}

// putObject performs a simple (non-multipart) upload.
func (u *Uploader) putObject(ctx context.Context, in *Input, data []byte) (*Output, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(in.Bucket),
		Key:           aws.String(in.Key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(in.ContentType),
		ACL:           in.ACL,
	}

	output, err := u.s3Client.PutObject(ctx, input)
	if err != nil {
		return nil, uerrors.NewObjectError("putObject", in.Bucket, in.Key, err)
	}

	return &Output{
		Key:       in.Key,
		ETag:      aws.ToString(output.ETag),
		VersionID: aws.ToString(output.VersionId),
		Size:      int64(len(data)),
		Parts:     1,
	}, nil
}

// createMultipartUpload creates a new multipart upload
func (u *Uploader) createMultipartUpload(ctx context.Context, in *Input) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(in.Bucket),
		Key:         aws.String(in.Key),
		ContentType: aws.String(in.ContentType),
		ACL:         in.ACL,
	}

	output, err := u.s3Client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", uerrors.NewObjectError("createMultipartUpload", in.Bucket, in.Key, err)
	}

	return aws.ToString(output.UploadId), nil
}

// uploadParts reads the body part by part and uploads up to u.concurrency
// parts at once. first is a full part that has already been read.
func (u *Uploader) uploadParts(
	ctx context.Context,
	in *Input,
	uploadID string,
	first []byte,
) ([]awstypes.CompletedPart, int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		parts    []awstypes.CompletedPart
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	sem := make(chan struct{}, u.concurrency)
	buf, n, last := first, len(first), false
	var size int64

	for partNumber := int32(1); ; partNumber++ {
		if partNumber > MaxParts {
			u.parts.Put(buf)
			fail(uerrors.NewObjectError("uploadParts", in.Bucket, in.Key, ErrTooManyParts))
			break
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if failed() || ctx.Err() != nil {
			u.parts.Put(buf)
			fail(uerrors.NewObjectError("uploadParts", in.Bucket, in.Key, ctx.Err()))
			break
		}

		size += int64(n)
		wg.Add(1)
		go func(number int32, data []byte) {
			defer wg.Done()
			defer func() { <-sem }()
			defer u.parts.Put(data)

			etag, err := u.uploadPart(ctx, in, uploadID, number, data)
			if err != nil {
				fail(err)
				return
			}

			mu.Lock()
			parts = append(parts, awstypes.CompletedPart{
				ETag:       aws.String(etag),
				PartNumber: aws.Int32(number),
			})
			mu.Unlock()
		}(partNumber, buf[:n])

		if last || failed() {
			break
		}

		buf = u.parts.Get()
		var err error
		n, err = io.ReadFull(in.Body, buf)
		if errors.Is(err, io.EOF) {
			u.parts.Put(buf)
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			last = true
		} else if err != nil {
			u.parts.Put(buf)
			fail(uerrors.NewObjectError("readBody", in.Bucket, in.Key, err))
			break
		}
	}

	wg.Wait()

	if firstErr != nil {
		return nil, 0, firstErr
	}

	sort.Slice(parts, func(i, j int) bool {
		return aws.ToInt32(parts[i].PartNumber) < aws.ToInt32(parts[j].PartNumber)
	})
	return parts, size, nil
}

// uploadPart uploads a single part
func (u *Uploader) uploadPart(
	ctx context.Context,
	in *Input,
	uploadID string,
	partNumber int32,
	data []byte,
) (string, error) {
	input := &s3.UploadPartInput{
		Bucket:        aws.String(in.Bucket),
		Key:           aws.String(in.Key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}

	output, err := u.s3Client.UploadPart(ctx, input)
	if err != nil {
		return "", uerrors.NewObjectError("uploadPart", in.Bucket, in.Key,
			fmt.Errorf("part %d: %w", partNumber, err))
	}

	return aws.ToString(output.ETag), nil
}

// completeMultipartUpload completes the multipart upload
func (u *Uploader) completeMultipartUpload(
	ctx context.Context,
	in *Input,
	uploadID string,
	parts []awstypes.CompletedPart,
) (*Output, error) {
	input := &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(in.Bucket),
		Key:      aws.String(in.Key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &awstypes.CompletedMultipartUpload{
			Parts: parts,
		},
	}

	output, err := u.s3Client.CompleteMultipartUpload(ctx, input)
	if err != nil {
		return nil, uerrors.NewObjectError("completeMultipartUpload", in.Bucket, in.Key, err)
	}

	return &Output{
		Key:       in.Key,
		ETag:      aws.ToString(output.ETag),
		VersionID: aws.ToString(output.VersionId),
		Parts:     len(parts),
	}, nil
}

// abortMultipartUpload cleans up a failed multipart upload. It runs even when
// ctx is already cancelled so no parts outlive the failure.
func (u *Uploader) abortMultipartUpload(ctx context.Context, bucket, key, uploadID string) {
	input := &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	}
	// Ignore errors during cleanup
	_, _ = u.s3Client.AbortMultipartUpload(context.WithoutCancel(ctx), input)
}
