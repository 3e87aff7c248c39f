// Package s3api is the slice of the S3 client that the upload and delete
// paths call. Tests substitute testutil.MockS3Client.
package s3api

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is satisfied by *s3.Client.
type S3API interface {
	Uploader
	Deleter
}

// Uploader covers both the single-request path for bodies under one part
// and the multipart lifecycle used for everything larger.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)

	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput,
		optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput,
		optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput,
		optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)

	// AbortMultipartUpload discards uploaded parts; callers invoke it on
	// every failure after CreateMultipartUpload succeeded.
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput,
		optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Deleter removes objects one at a time or up to 1000 per request.
type Deleter interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput,
		optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput,
		optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

var _ S3API = (*s3.Client)(nil)
