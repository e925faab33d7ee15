package sbwt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func kmerSet(k int, seqs ...string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range seqs {
		b := []byte(s)
		for i := 0; i+k <= len(b); i++ {
			out[string(b[i:i+k])] = struct{}{}
		}
	}
	return out
}

func TestGraphSearchFindsEveryInputKmer(t *testing.T) {
	const k = 4
	kmers := kmerSet(k, "ACGTACGT", "GGGGCCCC")
	g := Build(k, kmers)

	require.EqualValues(t, len(kmers), g.NumberOfKmers())
	for kmer := range kmers {
		id := g.Search([]byte(kmer))
		require.NotEqual(t, int64(-1), id, "kmer %s not found", kmer)
		require.False(t, g.dummyMarks.Get(int(id)))
		require.Equal(t, kmer, g.GetNodeLabel(id))
	}
}

func TestGraphSearchRejectsAbsentKmer(t *testing.T) {
	const k = 4
	kmers := kmerSet(k, "ACGTACGT")
	g := Build(k, kmers)
	require.Equal(t, int64(-1), g.Search([]byte("TTTT")))
}

func TestGraphForwardChainsThroughOverlappingKmers(t *testing.T) {
	const k = 3
	seq := "ACGTAC"
	kmers := kmerSet(k, seq)
	g := Build(k, kmers)

	v := g.Search([]byte(seq[0:k]))
	require.NotEqual(t, int64(-1), v)
	for i := 1; i+k <= len(seq); i++ {
		v = g.Forward(v, seq[i+k-1])
		require.NotEqual(t, int64(-1), v, "forward step %d", i)
		require.Equal(t, seq[i:i+k], g.GetNodeLabel(v))
	}
}

func TestGraphStreamingSearchMatchesPerWindowSearch(t *testing.T) {
	const k = 4
	seq := "ACGTACGTTGCA"
	g := Build(k, kmerSet(k, seq))

	got := g.StreamingSearch([]byte(seq))
	require.Len(t, got, len(seq)-k+1)
	for i, id := range got {
		want := g.Search([]byte(seq[i : i+k]))
		require.Equal(t, want, id, "position %d", i)
	}
}

func TestGraphRoundTrip(t *testing.T) {
	const k = 4
	g := Build(k, kmerSet(k, "ACGTACGT", "TTTTAAAA"))

	var buf bytes.Buffer
	_, err := g.WriteTo(&buf)
	require.NoError(t, err)

	loaded, err := ReadGraph(&buf)
	require.NoError(t, err)
	require.Equal(t, g.NumberOfKmers(), loaded.NumberOfKmers())
	require.Equal(t, g.NumberOfSubsets(), loaded.NumberOfSubsets())

	id := loaded.Search([]byte("ACGT"))
	require.NotEqual(t, int64(-1), id)
}

func TestBackwardStepAtRootReturnsRoot(t *testing.T) {
	const k = 3
	g := Build(k, kmerSet(k, "ACGT"))
	b := NewBackward(g)

	root := g.rootID()
	require.Equal(t, root, b.Step(root))
	require.Equal(t, root, b.RealStep(root))
	require.Empty(t, b.InNeighbors(root))
}

func TestBackwardInNeighborsMatchesForward(t *testing.T) {
	const k = 3
	seq := "ACGTACG"
	g := Build(k, kmerSet(k, seq))
	b := NewBackward(g)

	dest := g.Search([]byte("GTA"))
	require.NotEqual(t, int64(-1), dest)
	neighbors := b.InNeighbors(dest)
	require.NotEmpty(t, neighbors)
	for _, y := range neighbors {
		lastChar := b.Label(dest)[k-1]
		require.Equal(t, dest, g.Forward(y, lastChar))
	}
}
