package sweeper

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/uploads/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/internal/keycodec"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/objectstore"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/objectstore/memstore"
)

func newSweeper(store objectstore.Store, opts ...Option) *Sweeper {
	return New(store, "media", keycodec.New(store.BaseURL("media")), opts...)
}

func TestSweeper_DeleteOne(t *testing.T) {
	store := memstore.New()
	pointer := store.Put("media", "avatars/1-me.png", []byte("x"))

	s := newSweeper(store)
	require.NoError(t, s.DeleteOne(context.Background(), pointer))
	assert.Equal(t, []string{"avatars/1-me.png"}, store.Deletes())
	assert.Empty(t, store.Keys("media"))
}

func TestSweeper_DeleteOne_EmptyPointerIsNoop(t *testing.T) {
	store := memstore.New()
	require.NoError(t, newSweeper(store).DeleteOne(context.Background(), ""))
	assert.Empty(t, store.Deletes())
}

func TestSweeper_DeleteOne_LegacyAndBarePointers(t *testing.T) {
	tests := []struct {
		name    string
		pointer string
		wantKey string
	}{
		{"legacy host", "https://old-cdn.example.com/docs/a.pdf", "docs/a.pdf"},
		{"bare key", "docs/b.pdf", "docs/b.pdf"},
		{"escaped known base", "https://media.objects.example.com/docs/my%20file.pdf", "docs/my file.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			require.NoError(t, newSweeper(store).DeleteOne(context.Background(), tt.pointer))
			assert.Equal(t, []string{tt.wantKey}, store.Deletes())
		})
	}
}

func TestSweeper_DeleteOne_StoreFailure(t *testing.T) {
	store := memstore.New(memstore.WithHooks(memstore.Hooks{
		OnDelete: func(ctx context.Context, key string) error { return errors.New("access denied") },
	}))

	err := newSweeper(store).DeleteOne(context.Background(), "docs/a.pdf")
	require.Error(t, err)
	assert.True(t, uerrors.IsTransferFailed(err))
}

func TestSweeper_DeleteOne_PointerWithoutKey(t *testing.T) {
	store := memstore.New()
	err := newSweeper(store).DeleteOne(context.Background(), "https://legacy.example.com/")
	require.Error(t, err)
	assert.True(t, uerrors.IsInvalidInput(err))
	assert.Empty(t, store.Deletes())
}

func TestSweeper_DeleteMany(t *testing.T) {
	store := memstore.New()
	a := store.Put("media", "a.png", []byte("1"))
	b := store.Put("media", "b.png", []byte("2"))

	report := newSweeper(store).DeleteMany(context.Background(), []string{a, "", b, a})
	assert.Empty(t, report.Failures)
	assert.Equal(t, 2, report.Attempted)

	deletes := store.Deletes()
	sort.Strings(deletes)
	assert.Equal(t, []string{"a.png", "b.png"}, deletes)
}

func TestSweeper_DeleteMany_NilIsNoop(t *testing.T) {
	store := memstore.New()
	assert.Equal(t, Report{}, newSweeper(store).DeleteMany(context.Background(), nil))
	assert.Empty(t, store.Deletes())
}

func TestSweeper_DeleteMany_AwaitsAllAndReportsFailures(t *testing.T) {
	var finished atomic.Int32
	store := memstore.New(memstore.WithHooks(memstore.Hooks{
		OnDelete: func(ctx context.Context, key string) error {
			time.Sleep(10 * time.Millisecond)
			finished.Add(1)
			if key == "bad.png" {
				return errors.New("denied")
			}
			return nil
		},
	}))

	failures := newSweeper(store).DeleteMany(context.Background(), []string{"a.png", "bad.png", "c.png"}).Failures
	assert.Equal(t, int32(3), finished.Load(), "every delete completes before return")
	require.Len(t, failures, 1)
	assert.Equal(t, "bad.png", failures[0].Pointer)
	assert.Equal(t, "bad.png", failures[0].Key)
	assert.True(t, uerrors.IsTransferFailed(failures[0].Err))
}

func TestSweeper_DeleteMany_Limit(t *testing.T) {
	var inFlight, peak atomic.Int32
	store := memstore.New(memstore.WithHooks(memstore.Hooks{
		OnDelete: func(ctx context.Context, key string) error {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return nil
		},
	}))

	pointers := []string{"1", "2", "3", "4", "5", "6"}
	assert.Empty(t, newSweeper(store, WithLimit(2)).DeleteMany(context.Background(), pointers).Failures)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Len(t, store.Deletes(), 6)
}

// batchStore adds BatchDeleter to the in-memory store.
type batchStore struct {
	*memstore.Store

	mu      sync.Mutex
	calls   [][]string
	failKey string
	failAll error
}

func (b *batchStore) DeleteBatch(ctx context.Context, bucket string, keys []string) ([]objectstore.KeyError, error) {
	b.mu.Lock()
	b.calls = append(b.calls, keys)
	b.mu.Unlock()
	if b.failAll != nil {
		return nil, b.failAll
	}

	var out []objectstore.KeyError
	for _, k := range keys {
		if k == b.failKey {
			out = append(out, objectstore.KeyError{Key: k, Err: errors.New("denied")})
			continue
		}
		_ = b.Delete(ctx, bucket, k)
	}
	return out, nil
}

func TestSweeper_DeleteMany_UsesBatchDeleter(t *testing.T) {
	store := &batchStore{Store: memstore.New(), failKey: "docs/b.pdf"}
	s := newSweeper(store)

	report := s.DeleteMany(context.Background(), []string{
		"https://media.objects.example.com/docs/a.pdf",
		"https://media.objects.example.com/docs/b.pdf",
		"docs/a.pdf",
	})
	failures := report.Failures
	assert.Equal(t, 2, report.Attempted, "pointers sharing a key count once")

	require.Len(t, store.calls, 1)
	assert.Equal(t, []string{"docs/a.pdf", "docs/b.pdf"}, store.calls[0])
	require.Len(t, failures, 1)
	assert.Equal(t, "https://media.objects.example.com/docs/b.pdf", failures[0].Pointer)
	assert.True(t, uerrors.IsTransferFailed(failures[0].Err))
}

func TestSweeper_DeleteMany_BatchAttemptsCountKeys(t *testing.T) {
	tests := []struct {
		name        string
		pointers    []string
		wantAttempt int
		wantFailed  int
	}{
		{"store and public pointer for one object", []string{
			"https://media.objects.example.com/img/a.png",
			"https://cdn.example.com/img/a.png",
		}, 1, 0},
		{"distinct objects", []string{"img/a.png", "img/b.png"}, 2, 0},
		{"pointer without key", []string{"https://media.objects.example.com/", "img/a.png"}, 2, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &batchStore{Store: memstore.New()}
			s := New(store, "media", keycodec.New(store.BaseURL("media"), "https://cdn.example.com"))

			report := s.DeleteMany(context.Background(), tt.pointers)
			assert.Equal(t, tt.wantAttempt, report.Attempted)
			assert.Len(t, report.Failures, tt.wantFailed)
		})
	}
}

func TestSweeper_DeleteMany_BatchRequestFailure(t *testing.T) {
	store := &batchStore{Store: memstore.New(), failAll: errors.New("network down")}
	report := newSweeper(store).DeleteMany(context.Background(), []string{"a", "b"})
	assert.Len(t, report.Failures, 2)
	for _, f := range report.Failures {
		assert.True(t, uerrors.IsTransferFailed(f.Err))
	}
}
