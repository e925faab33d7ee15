package bitpack

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackedIntArrayGetSet(t *testing.T) {
	p := NewPackedIntArray(10, 5) // values in [0,31]
	want := []uint64{0, 31, 17, 1, 30, 2, 29, 3, 28, 15}
	for i, v := range want {
		p.Set(i, v)
	}
	for i, v := range want {
		require.Equal(t, v, p.Get(i), "index %d", i)
	}
}

func TestPackedIntArrayStraddlesWordBoundary(t *testing.T) {
	// width 13 does not divide 64, so several entries straddle words.
	p := NewPackedIntArray(20, 13)
	for i := 0; i < 20; i++ {
		p.Set(i, uint64(i*97)%(1<<13))
	}
	for i := 0; i < 20; i++ {
		require.Equal(t, uint64(i*97)%(1<<13), p.Get(i))
	}
}

func TestPackedIntArrayRoundTrip(t *testing.T) {
	p := NewPackedIntArray(100, 9)
	for i := 0; i < 100; i++ {
		p.Set(i, uint64(i*13)%(1<<9))
	}
	var buf bytes.Buffer
	_, err := p.WriteTo(&buf)
	require.NoError(t, err)

	loaded, err := ReadPackedIntArray(&buf)
	require.NoError(t, err)
	require.Equal(t, p.Len(), loaded.Len())
	require.Equal(t, p.Width(), loaded.Width())
	for i := 0; i < 100; i++ {
		require.Equal(t, p.Get(i), loaded.Get(i))
	}
}

func TestBitsForMaxValue(t *testing.T) {
	cases := []struct {
		max  uint64
		bits uint
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{255, 8},
		{256, 9},
	}
	for _, c := range cases {
		require.Equal(t, c.bits, BitsForMaxValue(c.max), "max=%d", c.max)
	}
}
