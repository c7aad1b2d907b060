package bitmap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sfsgo/simplefs/bitmap"
)

func TestSweep(t *testing.T) {
	numBits := 256 * 8
	entries := make([]byte, (numBits+7)/8)
	v := bitmap.New(entries, numBits)

	for i := 0; i < 2048; i++ {
		require.Equal(t, 0, v.Set(i, 1))
	}
	for i := 0; i < 2048; i++ {
		require.Equal(t, i, v.Find(i, 1))
	}

	for i := 0; i < 1024; i++ {
		require.Equal(t, 0, v.Set(i, 0))
	}
	require.Equal(t, 1024, v.Find(0, 1))

	require.Equal(t, -1, v.Find(10_000_000, 1))
	require.Equal(t, -1, v.Set(10_000_000, 1))
	require.Equal(t, -1, v.Get(-1))
}

func TestBoundaries(t *testing.T) {
	numBits := 16
	entries := make([]byte, (numBits+7)/8)
	v := bitmap.New(entries, numBits)

	require.Equal(t, -1, v.Find(-1, 1))
	require.Equal(t, 0, v.Find(0, 0))
	require.Equal(t, -1, v.Find(numBits, 0))
	require.Equal(t, -1, v.Set(-1, 1))
	require.Equal(t, -1, v.Set(numBits, 1))
	require.Equal(t, -1, v.Get(-1))
	require.Equal(t, -1, v.Get(numBits))

	require.Equal(t, 0, v.Set(numBits-1, 1))
	require.Equal(t, numBits-1, v.Find(0, 1))
	require.Equal(t, 1, v.Get(numBits-1))
}

func TestMutationIsVisibleInBackingSlice(t *testing.T) {
	entries := make([]byte, 1)
	v := bitmap.New(entries, 8)
	require.Equal(t, 0, v.Set(3, 1))
	require.Equal(t, byte(1<<3), entries[0])
}
