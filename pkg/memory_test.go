package pkg

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lengthHash places keys by their length so ring order is predictable.
func lengthHash(key string) uint64 {
	return uint64(len(key))
}

func TestMemoryStorage_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(&MemoryConfig{Hash: lengthHash})
	defer storage.Close()

	tests := []struct {
		name      string
		setup     func()
		key       string
		wantValue []byte
		wantErr   error
	}{
		{
			name:    "key not found",
			setup:   func() {},
			key:     "nonexistent",
			wantErr: ErrKeyNotFound,
		},
		{
			name: "valid key",
			setup: func() {
				require.NoError(t, storage.Insert(ctx, "test-key", []byte("test-value")))
			},
			key:       "test-key",
			wantValue: []byte("test-value"),
		},
		{
			name: "empty value",
			setup: func() {
				require.NoError(t, storage.Insert(ctx, "empty", []byte{}))
			},
			key:       "empty",
			wantValue: []byte{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			value, err := storage.Get(ctx, tt.key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, value)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, value)
		})
	}
}

func TestMemoryStorage_InsertDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(nil)
	defer storage.Close()

	require.NoError(t, storage.Insert(ctx, "k", []byte("v1")))
	err := storage.Insert(ctx, "k", []byte("v2"))
	assert.ErrorIs(t, err, ErrKeyExists)

	value, err := storage.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)

	stats := storage.GetStats()
	assert.Equal(t, int64(1), stats.Inserts)
	assert.Equal(t, int64(1), stats.Conflicts)
}

func TestMemoryStorage_ValueIsCopied(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(nil)
	defer storage.Close()

	original := []byte("value")
	require.NoError(t, storage.Insert(ctx, "k", original))
	original[0] = 'X'

	value, err := storage.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	value[0] = 'Y'
	again, err := storage.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), again)
}

func TestMemoryStorage_Delete(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(&MemoryConfig{Hash: lengthHash})
	defer storage.Close()

	require.NoError(t, storage.Insert(ctx, "a", []byte("1")))
	require.NoError(t, storage.Delete(ctx, "a"))
	require.NoError(t, storage.Delete(ctx, "never-stored"))

	assert.False(t, storage.Has("a"))
	_, err := storage.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	items, err := storage.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	// a deleted key can be inserted again
	require.NoError(t, storage.Insert(ctx, "a", []byte("2")))
	assert.Equal(t, int64(1), storage.GetStats().Deletes)
}

func TestMemoryStorage_RingOrder(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(&MemoryConfig{Hash: lengthHash})
	defer storage.Close()

	for _, k := range []string{"cccc", "a", "bb", "dd", "eeeeee"} {
		require.NoError(t, storage.Insert(ctx, k, []byte(k)))
	}

	items, err := storage.GetAll(ctx)
	require.NoError(t, err)

	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.Key
		assert.Equal(t, uint64(len(it.Key)), it.ID)
		assert.Equal(t, []byte(it.Key), it.Value)
	}
	assert.Equal(t, []string{"a", "bb", "dd", "cccc", "eeeeee"}, keys)

	short, err := storage.Select(ctx, func(id uint64) bool { return id <= 2 })
	require.NoError(t, err)
	assert.Len(t, short, 3)
}

func TestMemoryStorage_Closed(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(nil)
	require.NoError(t, storage.Close())
	require.NoError(t, storage.Close())

	assert.ErrorIs(t, storage.Insert(ctx, "k", nil), ErrStorageUnavailable)
	_, err := storage.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, storage.Delete(ctx, "k"), ErrStorageUnavailable)
	_, err = storage.GetAll(ctx)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestMemoryStorage_CanceledContext(t *testing.T) {
	storage := NewMemoryStorage(nil)
	defer storage.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, storage.Insert(ctx, "k", []byte("v")), ErrContextCanceled)
	_, err := storage.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrContextCanceled)
}

func TestMemoryStorage_Concurrent(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage(&MemoryConfig{Hash: lengthHash})
	defer storage.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("key-%d", i)
				_ = storage.Insert(ctx, key, []byte(key))
				_, _ = storage.Get(ctx, key)
			}
		}(w)
	}
	wg.Wait()

	stats := storage.GetStats()
	assert.Equal(t, 100, stats.Entries)
	assert.Equal(t, int64(100), stats.Inserts)
	assert.Equal(t, int64(700), stats.Conflicts)
}
