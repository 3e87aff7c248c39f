package uploads

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	uerrors "github.com/input-output-hk/catalyst-forge-libs/uploads/errors"
	"github.com/input-output-hk/catalyst-forge-libs/uploads/objectstore/memstore"
)

func TestClient_DeleteOne(t *testing.T) {
	tests := []struct {
		name        string
		pointer     func(s *memstore.Store) string
		hooks       memstore.Hooks
		wantDeletes []string
		wantErr     func(error) bool
	}{
		{
			name:    "empty pointer makes no call",
			pointer: func(*memstore.Store) string { return "" },
		},
		{
			name:        "existing object",
			pointer:     func(s *memstore.Store) string { return s.Put("media", "a/b.png", []byte("x")) },
			wantDeletes: []string{"a/b.png"},
		},
		{
			name:        "already gone",
			pointer:     func(*memstore.Store) string { return base + "/gone.png" },
			wantDeletes: []string{"gone.png"},
		},
		{
			name:        "foreign pointer falls back to host marker",
			pointer:     func(*memstore.Store) string { return "https://legacy.example.com/old/c.png" },
			wantDeletes: []string{"old/c.png"},
		},
		{
			name:    "pointer without key",
			pointer: func(*memstore.Store) string { return base + "/" },
			wantErr: uerrors.IsInvalidInput,
		},
		{
			name:    "store rejects",
			pointer: func(*memstore.Store) string { return base + "/a.png" },
			hooks: memstore.Hooks{OnDelete: func(context.Context, string) error {
				return errors.New("access denied")
			}},
			wantDeletes: []string{"a.png"},
			wantErr:     uerrors.IsTransferFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New(memstore.WithHooks(tt.hooks))
			client := newTestClient(t, store)

			err := client.DeleteOne(context.Background(), tt.pointer(store))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "unexpected error: %v", err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantDeletes, store.Deletes())
		})
	}
}

func TestClient_DeleteMany(t *testing.T) {
	store := memstore.New()
	a := store.Put("media", "a.png", []byte("a"))
	b := store.Put("media", "b.png", []byte("b"))
	reg := prometheus.NewRegistry()
	client := newTestClient(t, store, WithMetricsRegisterer(reg))

	require.NoError(t, client.DeleteMany(context.Background(), []string{a, "", b, a}))

	deletes := store.Deletes()
	sort.Strings(deletes)
	assert.Equal(t, []string{"a.png", "b.png"}, deletes)
	assert.Empty(t, store.Keys("media"))

	expected := `
# HELP uploads_deletes_total Object deletions attempted, by outcome.
# TYPE uploads_deletes_total counter
uploads_deletes_total{result="deleted"} 2
`
	assert.NoError(t, promtestutil.GatherAndCompare(reg, strings.NewReader(expected), "uploads_deletes_total"))
}

func TestClient_DeleteMany_NoOp(t *testing.T) {
	store := memstore.New()
	client := newTestClient(t, store)

	assert.NoError(t, client.DeleteMany(context.Background(), nil))
	assert.NoError(t, client.DeleteMany(context.Background(), []string{}))
	assert.NoError(t, client.DeleteMany(context.Background(), []string{"", ""}))
	assert.Empty(t, store.Deletes())
}

func TestClient_DeleteMany_JoinsFailures(t *testing.T) {
	store := memstore.New(memstore.WithHooks(memstore.Hooks{
		OnDelete: func(_ context.Context, key string) error {
			if key == "ok.png" {
				return nil
			}
			return errors.New("access denied")
		},
	}))
	client := newTestClient(t, store)

	err := client.DeleteMany(context.Background(), []string{
		base + "/ok.png",
		base + "/x.png",
		base + "/y.png",
	})
	require.Error(t, err)
	assert.True(t, uerrors.IsTransferFailed(err))
	assert.Contains(t, err.Error(), "x.png")
	assert.Contains(t, err.Error(), "y.png")
	assert.NotContains(t, err.Error(), "ok.png")
	assert.Len(t, store.Deletes(), 3)
}
