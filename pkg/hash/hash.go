package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/cespare/xxhash/v2"
)

// Supported hash algorithms for mapping text onto the ring.
const (
	AlgorithmFNV1a  = "fnv1a"
	AlgorithmSHA256 = "sha256"
	AlgorithmXXHash = "xxhash"
)

const (
	// DefaultM is the default identifier space size in bits (ring of 1024 slots)
	DefaultM = 10

	// MaxM bounds the identifier space so ring arithmetic stays in uint64
	MaxM = 63
)

// Ring describes a cyclic identifier space of size 2^M together with the
// function used to place text on it.
type Ring struct {
	m         int
	size      uint64
	algorithm string
	sum       func(text string) uint64
}

// New creates a ring of 2^m identifiers hashed with the named algorithm.
func New(m int, algorithm string) (*Ring, error) {
	if m < 1 || m > MaxM {
		return nil, fmt.Errorf("m must be between 1 and %d, got %d", MaxM, m)
	}

	r := &Ring{
		m:         m,
		size:      uint64(1) << uint(m),
		algorithm: algorithm,
	}

	switch algorithm {
	case AlgorithmFNV1a, "":
		r.algorithm = AlgorithmFNV1a
		r.sum = r.fnv1a
	case AlgorithmSHA256:
		r.sum = sumSHA256
	case AlgorithmXXHash:
		r.sum = xxhash.Sum64String
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", algorithm)
	}

	return r, nil
}

// M returns the number of bits in the identifier space.
func (r *Ring) M() int {
	return r.m
}

// Size returns 2^M, the number of identifiers on the ring.
func (r *Ring) Size() uint64 {
	return r.size
}

// Algorithm returns the name of the hash algorithm in use.
func (r *Ring) Algorithm() string {
	return r.algorithm
}

// Hash maps arbitrary text to an identifier in [0, 2^M).
func (r *Ring) Hash(text string) uint64 {
	return r.sum(text) & (r.size - 1)
}

// Target computes (owner + 2^(i-1)) mod 2^M, the start of finger slot i.
// Slots are numbered from 1 to M.
func (r *Ring) Target(owner uint64, i int) uint64 {
	return (owner + uint64(1)<<uint(i-1)) & (r.size - 1)
}

// IsValidID checks if an ID is within the valid range [0, 2^M).
func (r *Ring) IsValidID(id uint64) bool {
	return id < r.size
}

// fnv1a uses the 32-bit variant for rings up to 2^32 so that node ids match
// the low bits of a classic 32-bit FNV-1a digest.
func (r *Ring) fnv1a(text string) uint64 {
	if r.m <= 32 {
		h := fnv.New32a()
		h.Write([]byte(text))
		return uint64(h.Sum32())
	}
	h := fnv.New64a()
	h.Write([]byte(text))
	return h.Sum64()
}

func sumSHA256(text string) uint64 {
	sum := sha256.Sum256([]byte(text))
	return binary.BigEndian.Uint64(sum[:8])
}

// InRange checks if x is in the ring interval (begin, end].
// When begin >= end the interval wraps past zero; begin == end covers the
// whole ring.
//
// Examples:
//   - InRange(5, 3, 7) = true    // 5 is in (3, 7]
//   - InRange(3, 3, 7) = false   // exclusive begin
//   - InRange(7, 3, 7) = true    // inclusive end
//   - InRange(1, 8, 3) = true    // wraparound
//   - InRange(5, 8, 3) = false
func InRange(x, begin, end uint64) bool {
	if begin < end {
		return begin < x && x <= end
	}
	return x > begin || x <= end
}

// Contains is InRange for identifiers that may be unknown, such as a node
// that has not learned its predecessor yet. It is false when any argument
// is nil.
func Contains(begin, end, x *uint64) bool {
	if begin == nil || end == nil || x == nil {
		return false
	}
	return InRange(*x, *begin, *end)
}
