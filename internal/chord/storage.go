package chord

import (
	"context"
	"fmt"

	"github.com/zde37/chordkv/pkg"
	"github.com/zde37/chordkv/pkg/hash"
)

// ChordStorage provides a Chord-specific wrapper around the generic MemoryStorage.
// It places every key on the ring with the node's hash so keys can be
// selected by ring interval.
type ChordStorage struct {
	storage *pkg.MemoryStorage
	ring    *hash.Ring
}

// NewChordStorage creates a new ChordStorage indexed by ring.
func NewChordStorage(ring *hash.Ring) *ChordStorage {
	return &ChordStorage{
		storage: pkg.NewMemoryStorage(&pkg.MemoryConfig{Hash: ring.Hash}),
		ring:    ring,
	}
}

// HashKeyToID hashes a key to its ring position.
func (cs *ChordStorage) HashKeyToID(key string) uint64 {
	return cs.ring.Hash(key)
}

// Get retrieves a value by key.
func (cs *ChordStorage) Get(ctx context.Context, key string) ([]byte, error) {
	return cs.storage.Get(ctx, key)
}

// Put stores a value under key. An existing key is never overwritten:
// pkg.ErrKeyExists is returned instead.
func (cs *ChordStorage) Put(ctx context.Context, key string, value []byte) error {
	return cs.storage.Insert(ctx, key, value)
}

// Has reports whether key is stored locally.
func (cs *ChordStorage) Has(key string) bool {
	return cs.storage.Has(key)
}

// Delete removes a key-value pair.
func (cs *ChordStorage) Delete(ctx context.Context, key string) error {
	return cs.storage.Delete(ctx, key)
}

// Keys returns every stored item in ring order.
func (cs *ChordStorage) Keys(ctx context.Context) ([]pkg.Item, error) {
	return cs.storage.GetAll(ctx)
}

// Misplaced returns the items that fall outside (predecessorID, nodeID],
// i.e. the keys a node with that predecessor is no longer responsible for.
func (cs *ChordStorage) Misplaced(ctx context.Context, predecessorID, nodeID uint64) ([]pkg.Item, error) {
	items, err := cs.storage.Select(ctx, func(id uint64) bool {
		return !hash.InRange(id, predecessorID, nodeID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select misplaced keys: %w", err)
	}
	return items, nil
}

// Len returns the number of stored keys.
func (cs *ChordStorage) Len() int {
	return cs.storage.Len()
}

// GetStats returns storage statistics.
func (cs *ChordStorage) GetStats() pkg.Stats {
	return cs.storage.GetStats()
}

// Close closes the underlying storage.
func (cs *ChordStorage) Close() error {
	return cs.storage.Close()
}

// IsResponsibleFor reports whether a node is responsible for keyID given
// its predecessor and successor.
//
// With a known predecessor the node owns (predecessor, node]. Without one it
// owns the whole ring only while it is its own successor; otherwise it owns
// nothing and must forward.
func IsResponsibleFor(nodeID uint64, predecessor *NodeAddress, successorID uint64, keyID uint64) bool {
	if predecessor == nil {
		return successorID == nodeID
	}
	return hash.InRange(keyID, predecessor.ID, nodeID)
}
