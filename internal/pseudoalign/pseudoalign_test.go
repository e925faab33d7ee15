package pseudoalign

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jtr-bio/themisto/internal/coloring"
	"github.com/jtr-bio/themisto/internal/dnaseq"
	"github.com/jtr-bio/themisto/internal/index"
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

func buildTestIndex(t *testing.T, k int, seqs []string) *index.Index {
	return buildTestIndexRC(t, k, seqs, false)
}

func buildTestIndexRC(t *testing.T, k int, seqs []string, rc bool) *index.Index {
	t.Helper()
	kmers := kmerSet(k, seqs...)
	if rc {
		for _, s := range seqs {
			for kmer := range kmerSet(k, string(dnaseq.ReverseComplement([]byte(s)))) {
				kmers[kmer] = struct{}{}
			}
		}
	}
	g := sbwt.Build(k, kmers)
	bw := sbwt.NewBackward(g)

	colored := make([]seqio.ColoredSequence, len(seqs))
	for i, s := range seqs {
		colored[i] = seqio.ColoredSequence{
			Sequence: seqio.Sequence{ID: "seq", Seq: []byte(s)},
			Color:    uint32(i),
		}
	}

	builder := coloring.NewBuilder(g, bw, coloring.Options{SamplingDistance: 1, ReverseComplements: rc})
	col, err := builder.Build(context.Background(), colored)
	require.NoError(t, err)

	return &index.Index{Graph: g, Backward: bw, Coloring: col}
}

func TestEngineIntersectionModeFindsExactMatch(t *testing.T) {
	const k = 4
	idx := buildTestIndex(t, k, []string{"ACGTACGT", "ACGTTTTT"})

	eng := NewEngine(idx, Config{NumThreads: 2, Threshold: 1})
	in := strings.NewReader(">q0\nACGTACGT\n")
	var out bytes.Buffer
	require.NoError(t, eng.Run(context.Background(), in, &out))

	require.Equal(t, "0 0", strings.TrimSpace(out.String()))
}

func TestEngineThresholdModeVotesAcrossPositions(t *testing.T) {
	const k = 4
	idx := buildTestIndex(t, k, []string{"ACGTACGT", "ACGTTTTT"})

	eng := NewEngine(idx, Config{NumThreads: 1, Threshold: 0.5})
	in := strings.NewReader(">q0\nACGTACGT\n")
	var out bytes.Buffer
	require.NoError(t, eng.Run(context.Background(), in, &out))
	require.Contains(t, out.String(), "0")
}

func TestEngineShortQueryProducesEmptyColorLine(t *testing.T) {
	const k = 8
	idx := buildTestIndex(t, k, []string{"ACGTACGT"})

	eng := NewEngine(idx, Config{NumThreads: 1, Threshold: 1})
	in := strings.NewReader(">q0\nACG\n")
	var out bytes.Buffer
	require.NoError(t, eng.Run(context.Background(), in, &out))
	require.Equal(t, "0", strings.TrimSpace(out.String()))
}

func TestEngineSortOutputRestoresInputOrder(t *testing.T) {
	const k = 4
	idx := buildTestIndex(t, k, []string{"ACGTACGT"})

	eng := NewEngine(idx, Config{NumThreads: 4, Threshold: 1, SortOutput: true})
	in := strings.NewReader(">q0\nACGTACGT\n>q1\nACGTACGT\n>q2\nACGTACGT\n")
	var out bytes.Buffer
	require.NoError(t, eng.Run(context.Background(), in, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		require.True(t, strings.HasPrefix(line, string(rune('0'+i))))
	}
}

func TestEngineReverseComplementQueryMissesWithoutRCIndex(t *testing.T) {
	const k = 6
	seqs := []string{"ACATGACGACACATGCTGTAC", "AACTATGGTGCTAACGTAGCAC"}
	idx := buildTestIndex(t, k, seqs)

	eng := NewEngine(idx, Config{NumThreads: 1, Threshold: 1})
	var out bytes.Buffer

	in := strings.NewReader(">q0\n" + seqs[0] + "\n")
	require.NoError(t, eng.Run(context.Background(), in, &out))
	require.Equal(t, "0 0", strings.TrimSpace(out.String()))

	// The exact reverse complement of sequence 0 finds nothing when
	// neither the index nor the query was reverse-complemented.
	out.Reset()
	rcQuery := string(dnaseq.ReverseComplement([]byte(seqs[0])))
	in = strings.NewReader(">q0\n" + rcQuery + "\n")
	require.NoError(t, eng.Run(context.Background(), in, &out))
	require.Equal(t, "0", strings.TrimSpace(out.String()))
}

func TestEngineReverseComplementQueryHitsWithRCIndex(t *testing.T) {
	const k = 6
	seqs := []string{"ACATGACGACACATGCTGTAC", "AACTATGGTGCTAACGTAGCAC"}
	idx := buildTestIndexRC(t, k, seqs, true)

	eng := NewEngine(idx, Config{NumThreads: 1, Threshold: 1, ReverseComplements: true})
	var out bytes.Buffer
	rcQuery := string(dnaseq.ReverseComplement([]byte(seqs[0])))
	in := strings.NewReader(">q0\n" + rcQuery + "\n")
	require.NoError(t, eng.Run(context.Background(), in, &out))
	require.Equal(t, "0 0", strings.TrimSpace(out.String()))
}

func TestEngineResultAgreesBetweenQueryAndItsReverseComplement(t *testing.T) {
	const k = 6
	seqs := []string{"ACATGACGACACATGCTGTAC", "AACTATGGTGCTAACGTAGCAC"}
	idx := buildTestIndexRC(t, k, seqs, true)
	eng := NewEngine(idx, Config{NumThreads: 1, Threshold: 1, ReverseComplements: true})

	var fwd, rev bytes.Buffer
	require.NoError(t, eng.Run(context.Background(), strings.NewReader(">q\n"+seqs[1]+"\n"), &fwd))
	rcQuery := string(dnaseq.ReverseComplement([]byte(seqs[1])))
	require.NoError(t, eng.Run(context.Background(), strings.NewReader(">q\n"+rcQuery+"\n"), &rev))
	require.Equal(t, fwd.String(), rev.String())
}

func TestEngineReverseComplementUnionsColorSets(t *testing.T) {
	const k = 4
	// the index holds forward strands only: AAAAC's k-mers carry color 0,
	// and GTTTT (its reverse complement) carries color 1, so each query
	// position unions {0} with {1}.
	idx := buildTestIndex(t, k, []string{"AAAAC", "GTTTT"})

	eng := NewEngine(idx, Config{NumThreads: 1, Threshold: 1, ReverseComplements: true})
	in := strings.NewReader(">q0\nAAAAC\n")
	var out bytes.Buffer
	require.NoError(t, eng.Run(context.Background(), in, &out))
	require.NotEmpty(t, strings.TrimSpace(out.String()))
	require.Equal(t, "0 0 1", strings.TrimSpace(out.String()))
}
