package corenodes

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jtr-bio/themisto/internal/sbwt"
	"github.com/jtr-bio/themisto/internal/seqio"
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

func TestMarkCoreNodesMarksSequenceEnds(t *testing.T) {
	const k = 4
	seq := "ACGTACGTT"
	g := sbwt.Build(k, kmerSet(k, seq))
	bw := sbwt.NewBackward(g)

	seqs := []seqio.ColoredSequence{
		{Sequence: seqio.Sequence{ID: "s1", Seq: []byte(seq)}, Color: 0},
	}
	core := MarkCoreNodes(g, bw, seqs, false)

	lastKmer := seq[len(seq)-k:]
	id := g.Search([]byte(lastKmer))
	require.NotEqual(t, int64(-1), id)
	require.True(t, core.Get(int(id)), "last k-mer of a sequence must be core")
}

func TestMarkCoreNodesMarksBranchingNodes(t *testing.T) {
	const k = 3
	// "ACGA" and "ACGT" share the prefix "ACG" but diverge, giving
	// the node for "ACG" out-degree 2.
	g := sbwt.Build(k, kmerSet(k, "ACGA", "ACGT"))
	bw := sbwt.NewBackward(g)

	core := MarkCoreNodes(g, bw, nil, false)

	id := g.Search([]byte("ACG"))
	require.NotEqual(t, int64(-1), id)
	require.True(t, core.Get(int(id)), "branching node must be core")
}

func TestMarkCoreNodesReverseComplementAlsoMarksEnds(t *testing.T) {
	const k = 4
	seq := "ACGTACGT"
	kmers := kmerSet(k, seq)
	// also register the reverse complement's k-mers so Search can
	// find them in the graph built from this k-mer set.
	rc := []byte("ACGTACGT") // ACGTACGT is its own reverse complement
	for i := 0; i+k <= len(rc); i++ {
		kmers[string(rc[i:i+k])] = struct{}{}
	}
	g := sbwt.Build(k, kmers)
	bw := sbwt.NewBackward(g)

	seqs := []seqio.ColoredSequence{
		{Sequence: seqio.Sequence{ID: "s1", Seq: []byte(seq)}, Color: 0},
	}
	core := MarkCoreNodes(g, bw, seqs, true)
	require.NotNil(t, core)

	rcLast := rc[len(rc)-k:]
	id := g.Search(rcLast)
	require.NotEqual(t, int64(-1), id)
	require.True(t, core.Get(int(id)), "last k-mer of the reverse complement must be core")
}
