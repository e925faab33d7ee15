// Package sparsecolor implements the sparse node -> color-set-id map
// (C5): color-set ids are stored only at the nodes the coloring
// builder gives a pointer (core nodes and their d-sampled non-core
// ancestors); resolving any other node is the caller's job
// (coloring.Coloring.GetColorSetID walks forward to the next node
// with a stored id).
package sparsecolor

import (
	"io"
	"sort"

	"github.com/jtr-bio/themisto/internal/bitpack"
)

// Array is the frozen, query-time sparse map: a marks bit vector over
// every node id, rank-supported, plus a packed array of the stored
// ids in marks order.
type Array struct {
	marks  *bitpack.BitVector
	values *bitpack.PackedIntArray
}

// Has reports whether node has a stored color-set id.
func (a *Array) Has(node int64) bool {
	if node < 0 || node >= int64(a.marks.Len()) {
		return false
	}
	return a.marks.Get(int(node))
}

// Get returns the stored color-set id for node, or ok=false if no id
// is stored for node.
func (a *Array) Get(node int64) (id int64, ok bool) {
	if !a.Has(node) {
		return 0, false
	}
	idx := a.marks.Rank1(int(node))
	return int64(a.values.Get(idx)), true
}

// WriteTo serializes marks then values.
func (a *Array) WriteTo(w io.Writer) (int64, error) {
	n1, err := a.marks.WriteTo(w)
	if err != nil {
		return n1, err
	}
	n2, err := a.values.WriteTo(w)
	return n1 + n2, err
}

// ReadArray deserializes an Array written by WriteTo.
func ReadArray(r io.Reader) (*Array, error) {
	marks, err := bitpack.ReadBitVector(r)
	if err != nil {
		return nil, err
	}
	values, err := bitpack.ReadPackedIntArray(r)
	if err != nil {
		return nil, err
	}
	return &Array{marks: marks, values: values}, nil
}

// pair is an (node, color-set id) observation as produced by the
// coloring builder's materialize step, before external sorting.
type pair struct {
	node int64
	id   int64
}

// Builder accepts out-of-order (node, id) pairs (the coloring
// pipeline emits one per core node per group, and possibly more than
// once if a node is revisited) and resolves duplicates by sorting on
// (node, id) and keeping the first id seen per node after the sort,
// which is the smallest because id is part of the sort key.
type Builder struct {
	numNodes int64
	pairs    []pair
}

// NewBuilder creates a Builder over a graph with numNodes nodes.
func NewBuilder(numNodes int64) *Builder {
	return &Builder{numNodes: numNodes}
}

// Add records an observation. Duplicates (including conflicting ones,
// which the coloring pipeline guarantees never happen for a given
// node) are resolved in Finish.
func (b *Builder) Add(node, id int64) {
	b.pairs = append(b.pairs, pair{node: node, id: id})
}

// Finish sorts the accumulated pairs by (node, id) lexicographically
// and keeps the first (smallest) id per distinct node, then freezes
// the result into an Array.
//
// An external-memory sort is unnecessary here: the number of
// (node, id) pairs is the number of nodes given a pointer (core nodes
// plus d-sampled ancestors, each stored once), which the coloring
// pipeline has already reduced from the much larger (node, color)
// stream that genuinely needs one. An in-memory sort.Slice keeps this
// builder's memory footprint proportional to that pointer count, not
// to the (node, color) stream.
func (b *Builder) Finish() *Array {
	sort.Slice(b.pairs, func(i, j int) bool {
		if b.pairs[i].node != b.pairs[j].node {
			return b.pairs[i].node < b.pairs[j].node
		}
		return b.pairs[i].id < b.pairs[j].id
	})

	marks := bitpack.NewBitVectorN(int(b.numNodes))
	var dedupIDs []int64
	i := 0
	for i < len(b.pairs) {
		node := b.pairs[i].node
		marks.Set(int(node), true)
		dedupIDs = append(dedupIDs, b.pairs[i].id)
		j := i + 1
		for j < len(b.pairs) && b.pairs[j].node == node {
			j++
		}
		i = j
	}
	marks.Rebuild()

	maxID := int64(0)
	for _, id := range dedupIDs {
		if id > maxID {
			maxID = id
		}
	}
	width := bitpack.BitsForMaxValue(uint64(maxID))
	values := bitpack.NewPackedIntArray(len(dedupIDs), width)
	for i, id := range dedupIDs {
		values.Set(i, uint64(id))
	}

	return &Array{marks: marks, values: values}
}
