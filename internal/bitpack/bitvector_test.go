package bitpack

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitVectorRankSelect(t *testing.T) {
	// 0b...1011010 (bit 1,3,4,6 set), read low-to-high.
	bv := NewBitVectorN(8)
	set := []int{1, 3, 4, 6}
	for _, i := range set {
		bv.Set(i, true)
	}
	bv.Rebuild()

	require.Equal(t, 4, bv.Rank1(8))
	require.Equal(t, 0, bv.Rank1(0))
	require.Equal(t, 1, bv.Rank1(2)) // only bit 1 is < 2
	require.Equal(t, 2, bv.Rank1(4)) // bits 1,3 are < 4
	require.Equal(t, 4, bv.Rank0(8))

	require.Equal(t, 1, bv.Select1(1))
	require.Equal(t, 3, bv.Select1(2))
	require.Equal(t, 4, bv.Select1(3))
	require.Equal(t, 6, bv.Select1(4))
	require.Equal(t, -1, bv.Select1(5))

	require.Equal(t, 0, bv.Select0(1))
	require.Equal(t, 2, bv.Select0(2))
	require.Equal(t, 5, bv.Select0(3))
	require.Equal(t, 7, bv.Select0(4))
}

func TestBitVectorRoundTrip(t *testing.T) {
	bv := NewBitVectorN(200)
	for i := 0; i < 200; i += 7 {
		bv.Set(i, true)
	}
	bv.Rebuild()

	var buf bytes.Buffer
	_, err := bv.WriteTo(&buf)
	require.NoError(t, err)

	loaded, err := ReadBitVector(&buf)
	require.NoError(t, err)
	require.Equal(t, bv.Len(), loaded.Len())
	for i := 0; i < 200; i++ {
		require.Equal(t, bv.Get(i), loaded.Get(i), "bit %d", i)
	}
	require.Equal(t, bv.Rank1(200), loaded.Rank1(200))
}

func TestBitVectorLargeSpansMultipleSuperblocks(t *testing.T) {
	const n = 5000
	bv := NewBitVectorN(n)
	expectedOnes := 0
	for i := 0; i < n; i++ {
		if i%3 == 0 {
			bv.Set(i, true)
			expectedOnes++
		}
	}
	bv.Rebuild()
	require.Equal(t, expectedOnes, bv.Rank1(n))
	require.Equal(t, 0, bv.Select1(1)) // first multiple of 3
	require.Equal(t, 3, bv.Select1(2))
}
