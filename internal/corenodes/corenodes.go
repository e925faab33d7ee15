// Package corenodes computes the core-kmer bit vector (C6): the set
// of graph nodes at which the coloring builder must store an explicit
// color-set pointer, because the color set cannot be inferred from a
// forward-walk to a neighboring node. Four cases mark a node core:
// ends of input sequences, predecessors of sequence starts, members
// of multi-row suffix groups, and branching (out-degree >= 2) nodes.
// Between core nodes the covering set of sequences cannot change, so
// one pointer per core node suffices.
package corenodes

import (
	"github.com/jtr-bio/themisto/internal/bitpack"
	"github.com/jtr-bio/themisto/internal/dnaseq"
	"github.com/jtr-bio/themisto/internal/logx"
	"github.com/jtr-bio/themisto/internal/sbwt"
	"github.com/jtr-bio/themisto/internal/seqio"
)

// MarkCoreNodes runs the four marking cases over g, b and the
// sequence stream, returning the resulting core bit vector. Sequences
// are read once; reverseComplements also processes the reverse
// complement of every part.
func MarkCoreNodes(g *sbwt.Graph, b *sbwt.Backward, seqs []seqio.ColoredSequence, reverseComplements bool) *bitpack.BitVector {
	n := g.NumberOfSubsets()
	core := bitpack.NewBitVectorN(int(n))

	logx.Vprint("marking core nodes: cases one and two")
	c12 := markSequenceBoundaries(g, core, seqs, reverseComplements)
	logx.Vprintf("cases one/two marked %d nodes", c12)

	logx.Vprint("marking core nodes: case three")
	c3 := markWideSuffixGroups(g, core)
	logx.Vprintf("case three marked %d nodes", c3)

	logx.Vprint("marking core nodes: case four")
	c4 := markBranchingPredecessors(g, core)
	logx.Vprintf("case four marked %d nodes", c4)

	core.Rebuild()
	return core
}

// markSequenceBoundaries implements cases (1) and (2): the last k-mer
// of every sequence part is core (case 2), and any node with a
// forward edge into the first k-mer of some part is core (case 1),
// found via markSuccessorsOfFirstKmers below.
func markSequenceBoundaries(g *sbwt.Graph, core *bitpack.BitVector, seqs []seqio.ColoredSequence, reverseComplements bool) int {
	n := int(g.NumberOfSubsets())
	firstKmerMarks := bitpack.NewBitVectorN(n)
	cores := 0

	markParts := func(parts [][]byte) {
		for _, part := range parts {
			if len(part) < g.K() {
				continue
			}
			lastKmer := part[len(part)-g.K():]
			if idx := g.Search(lastKmer); idx >= 0 {
				if !core.Get(int(idx)) {
					core.Set(int(idx), true)
					cores++
				}
			}
			firstKmer := part[:g.K()]
			if idx := g.Search(firstKmer); idx >= 0 {
				firstKmerMarks.Set(int(idx), true)
			}
		}
	}

	for _, cs := range seqs {
		parts := seqio.SplitACGT(cs.Seq)
		markParts(parts)
		if reverseComplements {
			rcParts := make([][]byte, len(parts))
			for i, p := range parts {
				rcParts[i] = dnaseq.ReverseComplement(p)
			}
			markParts(rcParts)
		}
	}
	firstKmerMarks.Rebuild()

	cores += markSuccessorsOfFirstKmers(g, core, firstKmerMarks)
	return cores
}

// markSuccessorsOfFirstKmers marks every node with an out-edge into a
// node in firstKmerMarks: such a node's successor gains colors the
// node itself may not have.
func markSuccessorsOfFirstKmers(g *sbwt.Graph, core, firstKmerMarks *bitpack.BitVector) int {
	cores := 0
	n := int(g.NumberOfSubsets())
	for i := 1; i < n; i++ {
		for _, c := range []byte{'A', 'C', 'G', 'T'} {
			dest := g.Forward(int64(i), c)
			if dest < 0 {
				continue
			}
			if firstKmerMarks.Get(int(dest)) && !core.Get(i) {
				core.Set(i, true)
				cores++
			}
		}
	}
	return cores
}

// markWideSuffixGroups implements case (3): every node in a
// suffix group of width >= 2 is core.
func markWideSuffixGroups(g *sbwt.Graph, core *bitpack.BitVector) int {
	cores := 0
	groupStarts := g.SuffixGroupStarts()
	n := int(g.NumberOfSubsets())
	i := 1
	for i < n {
		if !groupStarts.Get(i) {
			i++
			continue
		}
		width := 1
		for i+width < n && !groupStarts.Get(i+width) {
			width++
		}
		if width > 1 {
			for j := 0; j < width; j++ {
				if !core.Get(i + j) {
					core.Set(i+j, true)
					cores++
				}
			}
		}
		i += width
	}
	return cores
}

// markBranchingPredecessors implements case (4): any node with
// out-degree >= 2 is core.
func markBranchingPredecessors(g *sbwt.Graph, core *bitpack.BitVector) int {
	cores := 0
	n := int(g.NumberOfSubsets())
	for i := 1; i < n; i++ {
		outdeg := 0
		for _, c := range []byte{'A', 'C', 'G', 'T'} {
			if g.Forward(int64(i), c) >= 0 {
				outdeg++
			}
		}
		if outdeg > 1 && !core.Get(i) {
			core.Set(i, true)
			cores++
		}
	}
	return cores
}

