package memstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/uploads/objectstore"
)

func begin(t *testing.T, s *Store, key, body string) objectstore.Upload {
	t.Helper()
	up, err := s.BeginUpload(context.Background(), objectstore.UploadInput{
		Bucket:      "media",
		Key:         key,
		Body:        strings.NewReader(body),
		ContentType: "text/plain",
		ACL:         objectstore.ACLPublicRead,
	})
	require.NoError(t, err)
	return up
}

func TestStore_UploadAndDelete(t *testing.T) {
	s := New()
	res, err := begin(t, s, "docs/a b.txt", "hello").Complete(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "https://media.objects.example.com/docs/a%20b.txt", res.Locator)
	assert.Equal(t, int64(5), res.Size)

	obj, ok := s.Object("media", "docs/a b.txt")
	require.True(t, ok)
	assert.Equal(t, "hello", string(obj.Data))
	assert.Equal(t, objectstore.ACLPublicRead, obj.ACL)
	assert.Equal(t, []string{"docs/a b.txt"}, s.Begins())

	require.NoError(t, s.Delete(context.Background(), "media", "docs/a b.txt"))
	require.NoError(t, s.Delete(context.Background(), "media", "never-existed"))
	assert.Empty(t, s.Keys("media"))
	assert.Equal(t, []string{"docs/a b.txt", "never-existed"}, s.Deletes())
}

func TestStore_ReadFailureAborts(t *testing.T) {
	s := New(WithHooks(Hooks{
		OnRead: func(key string, read int64) error {
			return errors.New("disk full")
		},
	}))

	_, err := begin(t, s, "a.txt", "payload").Complete(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, []string{"a.txt"}, s.Aborts())
	assert.Empty(t, s.Keys("media"))
}

func TestStore_BeforeCompleteFailureAborts(t *testing.T) {
	s := New(WithHooks(Hooks{
		BeforeComplete: func(ctx context.Context, key string) error {
			return errors.New("quota exceeded")
		},
	}))

	_, err := begin(t, s, "a.txt", "payload").Complete(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"a.txt"}, s.Aborts())
	assert.Empty(t, s.Keys("media"))
}

func TestStore_AbortAfterCompleteIsNoop(t *testing.T) {
	s := New()
	up := begin(t, s, "a.txt", "x")
	_, err := up.Complete(context.Background())
	require.NoError(t, err)
	require.NoError(t, up.Abort(context.Background()))
	assert.Empty(t, s.Aborts())

	up = begin(t, s, "b.txt", "y")
	require.NoError(t, up.Abort(context.Background()))
	require.NoError(t, up.Abort(context.Background()))
	assert.Equal(t, []string{"b.txt"}, s.Aborts())
}

func TestStore_CancelledUploadAborts(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := begin(t, s, "a.txt", "x").Complete(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a.txt"}, s.Aborts())
}

func TestStore_DeleteHook(t *testing.T) {
	s := New(WithHooks(Hooks{
		OnDelete: func(ctx context.Context, key string) error {
			if key == "locked" {
				return errors.New("access denied")
			}
			return nil
		},
	}))
	s.Put("media", "locked", []byte("1"))
	s.Put("media", "free", []byte("2"))

	assert.Error(t, s.Delete(context.Background(), "media", "locked"))
	assert.NoError(t, s.Delete(context.Background(), "media", "free"))
	assert.Equal(t, []string{"locked"}, s.Keys("media"))
}

func TestStore_EmptyLocatorAndHost(t *testing.T) {
	s := New(WithHost("cdn.test.com"), WithEmptyLocator())
	assert.Equal(t, "https://media.cdn.test.com", s.BaseURL("media"))

	res, err := begin(t, s, "a.txt", "x").Complete(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Locator)
}
