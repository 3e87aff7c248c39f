package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awstypes "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/uploads/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/objectstore"
)

func TestStore_BaseURL(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want string
	}{
		{
			name: "virtual hosted AWS",
			want: "https://media.s3.eu-west-1.amazonaws.com",
		},
		{
			name: "path style endpoint",
			opts: []Option{WithEndpoint("http://localhost:4566/"), WithForcePathStyle(true)},
			want: "http://localhost:4566/media",
		},
		{
			name: "virtual hosted endpoint",
			opts: []Option{WithEndpoint("https://storage.example.net")},
			want: "https://media.storage.example.net",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&testutil.MockS3Client{}, "eu-west-1", tt.opts...)
			assert.Equal(t, tt.want, s.BaseURL("media"))
		})
	}
}

func TestStore_DefaultRegion(t *testing.T) {
	s := New(&testutil.MockS3Client{}, "")
	assert.Equal(t, DefaultRegion, s.Region())
}

func TestStore_Locator_EscapesSegments(t *testing.T) {
	s := New(&testutil.MockS3Client{}, "us-east-1")
	got := s.Locator("media", "avatars/1700000000000-my photo.png")
	assert.Equal(t, "https://media.s3.us-east-1.amazonaws.com/avatars/1700000000000-my%20photo.png", got)
}

func TestStore_Upload(t *testing.T) {
	var gotKey, gotType string
	var gotACL awstypes.ObjectCannedACL
	mock := &testutil.MockS3Client{
		PutObjectFunc: func(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			gotKey = aws.ToString(in.Key)
			gotType = aws.ToString(in.ContentType)
			gotACL = in.ACL
			_, _ = io.Copy(io.Discard, in.Body)
			return &s3.PutObjectOutput{ETag: aws.String("abc")}, nil
		},
	}
	s := New(mock, "us-east-1")

	up, err := s.BeginUpload(context.Background(), objectstore.UploadInput{
		Bucket:      "media",
		Key:         "docs/1-a.txt",
		Body:        strings.NewReader("content"),
		ContentType: "text/plain",
		ACL:         objectstore.ACLPublicRead,
	})
	require.NoError(t, err)

	res, err := up.Complete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://media.s3.us-east-1.amazonaws.com/docs/1-a.txt", res.Locator)
	assert.Equal(t, "docs/1-a.txt", res.Key)
	assert.Equal(t, int64(7), res.Size)
	assert.Equal(t, "abc", res.ETag)
	assert.Equal(t, "docs/1-a.txt", gotKey)
	assert.Equal(t, "text/plain", gotType)
	assert.Equal(t, awstypes.ObjectCannedACLPublicRead, gotACL)

	_, err = up.Complete(context.Background())
	assert.Error(t, err, "a handle completes once")
	assert.NoError(t, up.Abort(context.Background()))
}

func TestStore_BeginUpload_NilBody(t *testing.T) {
	s := New(&testutil.MockS3Client{}, "us-east-1")
	_, err := s.BeginUpload(context.Background(), objectstore.UploadInput{Bucket: "media", Key: "k"})
	require.Error(t, err)
	assert.True(t, uerrors.IsInvalidInput(err))
}

func TestStore_Delete(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"success", nil, false},
		{"missing key", &smithy.GenericAPIError{Code: "NoSuchKey", Message: "gone"}, false},
		{"typed missing key", &awstypes.NoSuchKey{}, false},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotKey string
			mock := &testutil.MockS3Client{
				DeleteObjectFunc: func(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
					gotKey = aws.ToString(in.Key)
					return &s3.DeleteObjectOutput{}, tt.err
				},
			}

			err := New(mock, "us-east-1").Delete(context.Background(), "media", "a/b.png")
			assert.Equal(t, "a/b.png", gotKey)
			if tt.wantErr {
				require.Error(t, err)
				var apiErr smithy.APIError
				assert.True(t, errors.As(err, &apiErr))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStore_DeleteBatch_Chunks(t *testing.T) {
	var sizes []int
	mock := &testutil.MockS3Client{
		DeleteObjectsFunc: func(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
			sizes = append(sizes, len(in.Delete.Objects))
			assert.True(t, aws.ToBool(in.Delete.Quiet))
			return &s3.DeleteObjectsOutput{}, nil
		},
	}

	keys := make([]string, 2500)
	for i := range keys {
		keys[i] = fmt.Sprintf("k/%d", i)
	}

	failures, err := New(mock, "us-east-1").DeleteBatch(context.Background(), "media", keys)
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Equal(t, []int{1000, 1000, 500}, sizes)
}

func TestStore_DeleteBatch_ReportsPerKeyErrors(t *testing.T) {
	mock := &testutil.MockS3Client{
		DeleteObjectsFunc: func(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
			return &s3.DeleteObjectsOutput{
				Errors: []awstypes.Error{
					{Key: aws.String("b"), Code: aws.String("AccessDenied"), Message: aws.String("denied")},
					{Key: aws.String("c"), Code: aws.String("NoSuchKey"), Message: aws.String("gone")},
				},
			}, nil
		},
	}

	failures, err := New(mock, "us-east-1").DeleteBatch(context.Background(), "media", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "b", failures[0].Key)
	assert.Contains(t, failures[0].Err.Error(), "AccessDenied")
}

func TestStore_DeleteBatch_RequestFailure(t *testing.T) {
	mock := &testutil.MockS3Client{
		DeleteObjectsFunc: func(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
			return nil, errors.New("network down")
		},
	}
	s := New(mock, "us-east-1")

	_, err := s.DeleteBatch(context.Background(), "media", []string{"a"})
	require.Error(t, err)

	keys := make([]string, MaxBatchSize+1)
	for i := range keys {
		keys[i] = fmt.Sprintf("k/%d", i)
	}
	failures, err := s.DeleteBatch(context.Background(), "media", keys)
	require.NoError(t, err)
	assert.Len(t, failures, len(keys))
}
