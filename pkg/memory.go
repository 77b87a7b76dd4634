package pkg

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gobwas/avl"
)

// MemoryConfig holds configuration for in-memory storage.
type MemoryConfig struct {
	// Hash places keys on the ring. The storage keeps an index ordered by
	// this value so keys can be listed in ring order.
	Hash func(key string) uint64
}

// Item is a stored key together with its ring position.
type Item struct {
	Key   string `json:"key"`
	ID    uint64 `json:"id"`
	Value []byte `json:"value"`
}

// MemoryStorage is an insert-only, thread-safe key/value store.
// Existing keys are never overwritten; they can only be deleted.
type MemoryStorage struct {
	mu     sync.RWMutex
	data   map[string]*entry
	index  avl.Tree // tree<indexItem>
	hash   func(key string) uint64
	closed atomic.Bool

	// Metrics for monitoring
	hits      atomic.Int64
	misses    atomic.Int64
	inserts   atomic.Int64
	conflicts atomic.Int64
	deletes   atomic.Int64
}

type entry struct {
	id    uint64
	value []byte
}

// indexItem orders keys by ring id, then by key for identical ids.
type indexItem struct {
	id  uint64
	key string
}

func (a indexItem) Compare(x avl.Item) int {
	b := x.(indexItem)
	switch {
	case a.id < b.id:
		return -1
	case a.id > b.id:
		return 1
	}
	return strings.Compare(a.key, b.key)
}

// NewMemoryStorage creates a new in-memory storage instance.
// If config is nil or has no Hash, every key is indexed at position 0.
func NewMemoryStorage(config *MemoryConfig) *MemoryStorage {
	hash := func(string) uint64 { return 0 }
	if config != nil && config.Hash != nil {
		hash = config.Hash
	}

	return &MemoryStorage{
		data: make(map[string]*entry),
		hash: hash,
	}
}

func (ms *MemoryStorage) check(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ErrContextCanceled
	default:
	}

	if ms.closed.Load() {
		return ErrStorageUnavailable
	}
	return nil
}

// Get retrieves the value associated with the given key.
// Returns ErrKeyNotFound if the key doesn't exist.
func (ms *MemoryStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ms.check(ctx); err != nil {
		return nil, err
	}

	ms.mu.RLock()
	e, exists := ms.data[key]
	ms.mu.RUnlock()

	if !exists {
		ms.misses.Add(1)
		return nil, ErrKeyNotFound
	}

	ms.hits.Add(1)

	// Return a copy of the value to prevent external modification
	result := make([]byte, len(e.value))
	copy(result, e.value)
	return result, nil
}

// Has reports whether key is stored.
func (ms *MemoryStorage) Has(key string) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	_, exists := ms.data[key]
	return exists
}

// Insert stores value under key. Returns ErrKeyExists and leaves the stored
// value untouched if the key is already present.
func (ms *MemoryStorage) Insert(ctx context.Context, key string, value []byte) error {
	if err := ms.check(ctx); err != nil {
		return err
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	id := ms.hash(key)

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.data[key]; exists {
		ms.conflicts.Add(1)
		return ErrKeyExists
	}

	ms.data[key] = &entry{id: id, value: valueCopy}
	ms.index, _ = ms.index.Insert(indexItem{id: id, key: key})

	ms.inserts.Add(1)
	return nil
}

// Delete removes the key and its associated value from storage.
// No error is returned if the key doesn't exist.
func (ms *MemoryStorage) Delete(ctx context.Context, key string) error {
	if err := ms.check(ctx); err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, exists := ms.data[key]
	if !exists {
		return nil
	}
	delete(ms.data, key)
	ms.index, _ = ms.index.Delete(indexItem{id: e.id, key: key})

	ms.deletes.Add(1)
	return nil
}

// Select returns, in ring order, every item whose ring id satisfies match.
func (ms *MemoryStorage) Select(ctx context.Context, match func(id uint64) bool) ([]Item, error) {
	if err := ms.check(ctx); err != nil {
		return nil, err
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	items := make([]Item, 0)
	ms.index.InOrder(func(x avl.Item) bool {
		it := x.(indexItem)
		if match == nil || match(it.id) {
			e := ms.data[it.key]
			value := make([]byte, len(e.value))
			copy(value, e.value)
			items = append(items, Item{Key: it.key, ID: it.id, Value: value})
		}
		return true
	})

	return items, nil
}

// GetAll returns all stored items in ring order.
func (ms *MemoryStorage) GetAll(ctx context.Context) ([]Item, error) {
	return ms.Select(ctx, nil)
}

// Len returns the number of stored keys.
func (ms *MemoryStorage) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.data)
}

// Close gracefully shuts down the storage and releases resources.
func (ms *MemoryStorage) Close() error {
	if !ms.closed.CompareAndSwap(false, true) {
		return nil
	}

	ms.mu.Lock()
	ms.data = nil
	ms.index = avl.Tree{}
	ms.mu.Unlock()

	return nil
}

// Stats returns current storage statistics.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Inserts   int64 `json:"inserts"`
	Conflicts int64 `json:"conflicts"`
	Deletes   int64 `json:"deletes"`
}

// GetStats returns current storage statistics.
func (ms *MemoryStorage) GetStats() Stats {
	return Stats{
		Entries:   ms.Len(),
		Hits:      ms.hits.Load(),
		Misses:    ms.misses.Load(),
		Inserts:   ms.inserts.Load(),
		Conflicts: ms.conflicts.Load(),
		Deletes:   ms.deletes.Load(),
	}
}
