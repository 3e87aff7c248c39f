package miniostore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/uploads/objectstore"
)

type fakeMinio struct {
	putErr     error
	removeErr  error
	objects    map[string]string
	opts       minio.PutObjectOptions
	size       int64
	removeFail map[string]error
}

func (f *fakeMinio) PutObject(
	_ context.Context,
	_, objectName string,
	reader io.Reader,
	objectSize int64,
	opts minio.PutObjectOptions,
) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[objectName] = string(body)
	f.opts = opts
	f.size = objectSize
	return minio.UploadInfo{Key: objectName, ETag: "etag", Size: int64(len(body))}, nil
}

func (f *fakeMinio) RemoveObject(_ context.Context, _, objectName string, _ minio.RemoveObjectOptions) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.objects, objectName)
	return nil
}

func (f *fakeMinio) RemoveObjects(
	_ context.Context,
	_ string,
	objectsCh <-chan minio.ObjectInfo,
	_ minio.RemoveObjectsOptions,
) <-chan minio.RemoveObjectError {
	out := make(chan minio.RemoveObjectError, len(objectsCh))
	for obj := range objectsCh {
		if err, ok := f.removeFail[obj.Key]; ok {
			out <- minio.RemoveObjectError{ObjectName: obj.Key, Err: err}
			continue
		}
		delete(f.objects, obj.Key)
	}
	close(out)
	return out
}

func newFake() *fakeMinio {
	return &fakeMinio{objects: map[string]string{}, removeFail: map[string]error{}}
}

func TestStore_UploadStreamsUnknownSize(t *testing.T) {
	fake := newFake()
	s := NewWithClient(fake, "http://localhost:9000/", 16*1024*1024)

	up, err := s.BeginUpload(context.Background(), objectstore.UploadInput{
		Bucket:      "media",
		Key:         "avatars/1-me photo.png",
		Body:        strings.NewReader("png-bytes"),
		ContentType: "image/png",
		ACL:         objectstore.ACLPublicRead,
	})
	require.NoError(t, err)

	res, err := up.Complete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/media/avatars/1-me%20photo.png", res.Locator)
	assert.Equal(t, int64(9), res.Size)
	assert.Equal(t, int64(-1), fake.size)
	assert.Equal(t, "image/png", fake.opts.ContentType)
	assert.Equal(t, uint64(16*1024*1024), fake.opts.PartSize)
	assert.Equal(t, "public-read", fake.opts.UserMetadata["x-amz-acl"])
	assert.Equal(t, "png-bytes", fake.objects["avatars/1-me photo.png"])
}

func TestStore_UploadFailure(t *testing.T) {
	fake := newFake()
	fake.putErr = errors.New("connection reset")
	s := NewWithClient(fake, "http://localhost:9000", 0)

	up, err := s.BeginUpload(context.Background(), objectstore.UploadInput{
		Bucket: "media", Key: "a.txt", Body: strings.NewReader("x"),
	})
	require.NoError(t, err)

	_, err = up.Complete(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, fake.objects)
}

func TestStore_Delete(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"success", nil, false},
		{"missing key", minio.ErrorResponse{Code: "NoSuchKey"}, false},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFake()
			fake.removeErr = tt.err
			err := NewWithClient(fake, "http://localhost:9000", 0).Delete(context.Background(), "media", "a.txt")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStore_DeleteBatch(t *testing.T) {
	fake := newFake()
	fake.objects["a"], fake.objects["b"], fake.objects["c"] = "1", "2", "3"
	fake.removeFail["b"] = minio.ErrorResponse{Code: "AccessDenied"}
	fake.removeFail["c"] = minio.ErrorResponse{Code: "NoSuchKey"}

	failures, err := NewWithClient(fake, "http://localhost:9000", 0).
		DeleteBatch(context.Background(), "media", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "b", failures[0].Key)
	assert.NotContains(t, fake.objects, "a")
}

func TestNew_DefaultPublicBase(t *testing.T) {
	s, err := New(Config{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/media", s.BaseURL("media"))
}
