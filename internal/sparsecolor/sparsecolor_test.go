package sparsecolor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuilderFinishKeepsSmallestIDPerNode(t *testing.T) {
	b := NewBuilder(10)
	b.Add(3, 7)
	b.Add(1, 2)
	b.Add(3, 1) // duplicate node, smaller id should win after sort
	b.Add(8, 9)

	a := b.Finish()

	require.True(t, a.Has(1))
	require.True(t, a.Has(3))
	require.True(t, a.Has(8))
	require.False(t, a.Has(0))
	require.False(t, a.Has(9))

	id, ok := a.Get(3)
	require.True(t, ok)
	require.Equal(t, int64(1), id)

	id, ok = a.Get(1)
	require.True(t, ok)
	require.Equal(t, int64(2), id)

	id, ok = a.Get(8)
	require.True(t, ok)
	require.Equal(t, int64(9), id)
}

func TestArrayGetMissingNode(t *testing.T) {
	b := NewBuilder(5)
	b.Add(2, 4)
	a := b.Finish()

	_, ok := a.Get(4)
	require.False(t, ok)
	require.False(t, a.Has(-1))
	require.False(t, a.Has(100))
}

func TestArrayRoundTrip(t *testing.T) {
	b := NewBuilder(6)
	b.Add(0, 5)
	b.Add(2, 1)
	b.Add(5, 3)
	a := b.Finish()

	var buf bytes.Buffer
	_, err := a.WriteTo(&buf)
	require.NoError(t, err)

	got, err := ReadArray(&buf)
	require.NoError(t, err)

	for node := int64(0); node < 6; node++ {
		wantID, wantOK := a.Get(node)
		gotID, gotOK := got.Get(node)
		require.Equal(t, wantOK, gotOK)
		require.Equal(t, wantID, gotID)
	}
}
