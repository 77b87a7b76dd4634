package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v uint64) *uint64 {
	return &v
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		m         int
		algorithm string
		wantErr   bool
	}{
		{name: "default algorithm", m: DefaultM, algorithm: ""},
		{name: "fnv1a", m: 10, algorithm: AlgorithmFNV1a},
		{name: "sha256", m: 16, algorithm: AlgorithmSHA256},
		{name: "xxhash", m: 63, algorithm: AlgorithmXXHash},
		{name: "m too small", m: 0, algorithm: AlgorithmFNV1a, wantErr: true},
		{name: "m too large", m: 64, algorithm: AlgorithmFNV1a, wantErr: true},
		{name: "unknown algorithm", m: 10, algorithm: "md5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.m, tt.algorithm)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.m, r.M())
			assert.Equal(t, uint64(1)<<uint(tt.m), r.Size())
		})
	}

	r, err := New(10, "")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmFNV1a, r.Algorithm())
}

func TestHash(t *testing.T) {
	for _, algorithm := range []string{AlgorithmFNV1a, AlgorithmSHA256, AlgorithmXXHash} {
		t.Run(algorithm, func(t *testing.T) {
			r, err := New(10, algorithm)
			require.NoError(t, err)

			inputs := []string{"", "foo", "127.0.0.1:5000", "こんにちは", "key with spaces"}
			for _, in := range inputs {
				id := r.Hash(in)
				assert.True(t, r.IsValidID(id), "hash of %q out of range: %d", in, id)
				assert.Equal(t, id, r.Hash(in), "hash must be deterministic")
			}
		})
	}
}

func TestHash_FNV1aKnownValues(t *testing.T) {
	r, err := New(10, AlgorithmFNV1a)
	require.NoError(t, err)

	assert.Equal(t, uint64(601), r.Hash("127.0.0.1:5000"))
	assert.Equal(t, uint64(198), r.Hash("127.0.0.1:5001"))
	assert.Equal(t, uint64(727), r.Hash("foo"))
	assert.Equal(t, uint64(453), r.Hash(""))

	wide, err := New(32, AlgorithmFNV1a)
	require.NoError(t, err)
	assert.Equal(t, uint64(2851307223), wide.Hash("foo"))
}

func TestHash_SHA256KnownValue(t *testing.T) {
	r, err := New(10, AlgorithmSHA256)
	require.NoError(t, err)
	assert.Equal(t, uint64(655), r.Hash("foo"))
}

func TestHash_Distribution(t *testing.T) {
	r, err := New(4, AlgorithmXXHash)
	require.NoError(t, err)

	seen := make(map[uint64]bool)
	for i := 0; i < 512; i++ {
		seen[r.Hash(string(rune('a'+i%26))+string(rune('A'+i/26)))] = true
	}
	// 512 inputs over 16 slots should touch every slot.
	assert.Len(t, seen, 16)
}

func TestInRange(t *testing.T) {
	tests := []struct {
		name     string
		x        uint64
		begin    uint64
		end      uint64
		expected bool
	}{
		{name: "x in normal range", x: 5, begin: 3, end: 7, expected: true},
		{name: "x equals begin (exclusive)", x: 3, begin: 3, end: 7, expected: false},
		{name: "x equals end (inclusive)", x: 7, begin: 3, end: 7, expected: true},
		{name: "x outside range", x: 10, begin: 3, end: 7, expected: false},
		{name: "wraparound - x after begin", x: 9, begin: 8, end: 3, expected: true},
		{name: "wraparound - x before end", x: 1, begin: 8, end: 3, expected: true},
		{name: "wraparound - x at end", x: 3, begin: 8, end: 3, expected: true},
		{name: "wraparound - x at begin", x: 8, begin: 8, end: 3, expected: false},
		{name: "wraparound - x not in range", x: 5, begin: 8, end: 3, expected: false},
		{name: "begin equals end covers x", x: 5, begin: 3, end: 3, expected: true},
		{name: "begin equals end covers begin", x: 3, begin: 3, end: 3, expected: true},
		{name: "zero end", x: 0, begin: 1000, end: 0, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, InRange(tt.x, tt.begin, tt.end))
		})
	}
}

func TestInRange_Exhaustive(t *testing.T) {
	const size = 16
	for begin := uint64(0); begin < size; begin++ {
		for end := uint64(0); end < size; end++ {
			for x := uint64(0); x < size; x++ {
				// Walk clockwise from begin (exclusive) to end (inclusive).
				want := false
				for cur, steps := (begin+1)%size, 0; steps < size; cur, steps = (cur+1)%size, steps+1 {
					if cur == x {
						want = true
					}
					if cur == end {
						break
					}
				}
				assert.Equal(t, want, InRange(x, begin, end), "InRange(%d, %d, %d)", x, begin, end)
			}
		}
	}
}

func TestContains(t *testing.T) {
	t.Run("nil arguments are never contained", func(t *testing.T) {
		assert.False(t, Contains(nil, ptr(5), ptr(3)))
		assert.False(t, Contains(ptr(1), nil, ptr(3)))
		assert.False(t, Contains(ptr(1), ptr(5), nil))
		assert.False(t, Contains(nil, nil, nil))
	})

	t.Run("defined arguments follow InRange", func(t *testing.T) {
		assert.True(t, Contains(ptr(100), ptr(200), ptr(150)))
		assert.False(t, Contains(ptr(100), ptr(200), ptr(100)))
		assert.True(t, Contains(ptr(200), ptr(100), ptr(1000)))
		assert.True(t, Contains(ptr(200), ptr(100), ptr(50)))
		assert.False(t, Contains(ptr(200), ptr(100), ptr(150)))
	})
}

func TestTarget(t *testing.T) {
	r, err := New(10, AlgorithmFNV1a)
	require.NoError(t, err)

	assert.Equal(t, uint64(101), r.Target(100, 1))
	assert.Equal(t, uint64(102), r.Target(100, 2))
	assert.Equal(t, uint64(612), r.Target(100, 10))
	// wraps past the end of the ring
	assert.Equal(t, uint64(488), r.Target(1000, 10))
	assert.Equal(t, uint64(0), r.Target(1023, 1))
}

func TestIsValidID(t *testing.T) {
	r, err := New(10, AlgorithmFNV1a)
	require.NoError(t, err)

	assert.True(t, r.IsValidID(0))
	assert.True(t, r.IsValidID(1023))
	assert.False(t, r.IsValidID(1024))
	assert.False(t, r.IsValidID(5000))
}
