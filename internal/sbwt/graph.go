// Package sbwt implements the succinct, node-centric de Bruijn graph
// representation (C2): a colex-sorted k-mer index supporting constant
// (in k) lookup, O(1) forward stepping, and amortized O(L) streaming
// search over a length-L string, plus an auxiliary backward-traversal
// structure built on top.
//
// Internally, nodes are colex-sorted real k-mers plus a dummy-node
// closure (every real k-mer's chain of sentinel-padded prefixes back
// to the all-sentinel root), and forward stepping uses the classical
// BOSS/SBWT C-array-plus-rank formula over four per-nucleotide
// edge-existence bit vectors. A precomputed group-start index stands
// in for a second select pass, and the dummy closure is full rather
// than minimal; both trade a little memory for simpler construction.
package sbwt

import (
	"encoding/binary"
	"io"
	"sort"

	"github.com/jtr-bio/themisto/internal/bitpack"
	"github.com/jtr-bio/themisto/internal/dnaseq"
)

const sentinel = '$'

// edgeChars is the fixed out-edge alphabet order used throughout
// (ascending, and therefore the C-array order).
var edgeChars = [4]byte{'A', 'C', 'G', 'T'}

func charIndex(c byte) int {
	switch c {
	case 'A':
		return 0
	case 'C':
		return 1
	case 'G':
		return 2
	case 'T':
		return 3
	}
	return -1
}

// Graph is the static SBWT de Bruijn graph.
type Graph struct {
	k int

	labels     []string // length n, colex-sorted, length k each
	dummyMarks *bitpack.BitVector
	groupStart []int32 // groupStart[v] = colex rank of the first row sharing v's (k-1)-suffix
	groupEnd   []int32 // one past the last row of v's suffix group

	// columns[i] is the edge-existence bit vector for edgeChars[i];
	// bit v is set only at v == groupStart[v] (the suffix-group
	// representative row), and means "this group has an out-edge
	// labeled edgeChars[i]".
	columns [4]*bitpack.BitVector

	// cArray[i] = colex rank of the first node whose label ends with
	// edgeChars[i]: the root plus one slot per edge of every smaller
	// character.
	cArray [4]int64

	numKmers int64 // number of non-dummy rows

	groupBySuffix map[string]int32 // (k-1)-suffix -> colex rank of its group's first row
}

// GroupRange returns the colex range [lo,hi) of the suffix group whose
// shared (k-1)-suffix is suf, or ok=false if no such group exists.
func (g *Graph) GroupRange(suf string) (lo, hi int, ok bool) {
	start, found := g.groupBySuffix[suf]
	if !found {
		return 0, 0, false
	}
	return int(start), int(g.groupEnd[start]), true
}

// SuffixGroupStarts returns a bit vector marking which colex
// positions begin a new suffix group.
func (g *Graph) SuffixGroupStarts() *bitpack.BitVector {
	bv := bitpack.NewBitVectorN(len(g.labels))
	for v := range g.labels {
		if int(g.groupStart[v]) == v {
			bv.Set(v, true)
		}
	}
	bv.Rebuild()
	return bv
}

// K returns the node label length.
func (g *Graph) K() int { return g.k }

// NumberOfSubsets returns the total number of colex slots (real nodes
// plus dummy prefix nodes, including the root).
func (g *Graph) NumberOfSubsets() int64 { return int64(len(g.labels)) }

// NumberOfKmers returns the count of real (non-dummy) nodes.
func (g *Graph) NumberOfKmers() int64 { return g.numKmers }

// ComputeDummyMarks returns a bit vector that is 1 at dummy (including
// root) colex positions.
func (g *Graph) ComputeDummyMarks() *bitpack.BitVector { return g.dummyMarks }

// GetNodeLabel returns the length-k label of node id, dummy-padded
// with the sentinel character where applicable.
func (g *Graph) GetNodeLabel(id int64) string {
	return g.labels[id]
}

// Forward follows the out-edge labeled c from node, returning -1 if no
// such edge exists.
func (g *Graph) Forward(node int64, c byte) int64 {
	ci := charIndex(c)
	if ci < 0 || node < 0 || int(node) >= len(g.labels) {
		return -1
	}
	start := g.groupStart[node]
	if !g.columns[ci].Get(int(start)) {
		return -1
	}
	rank := g.columns[ci].Rank1(int(start))
	return g.cArray[ci] + int64(rank)
}

// Search locates a k-mer, returning its node id or -1 if absent. Only
// real (non-dummy) matches are ever returned.
func (g *Graph) Search(kmer []byte) int64 {
	if len(kmer) != g.k {
		return -1
	}
	v := g.rootID()
	for i := 0; i < g.k; i++ {
		if dnaseq.BaseIndex(kmer[i]) < 0 {
			return -1
		}
		v = g.Forward(v, kmer[i])
		if v == -1 {
			return -1
		}
	}
	if g.dummyMarks.Get(int(v)) {
		return -1
	}
	return v
}

// rootID returns the colex rank of the all-sentinel root node, always
// 0 because the sentinel sorts before every real base.
func (g *Graph) rootID() int64 { return 0 }

// StreamingSearch returns, for a length-L string s, an array of
// length L-k+1 of node ids (or -1), amortized O(L): consecutive
// windows are advanced via a single Forward call re-using the
// previous window's node, falling back to a fresh k-step search only
// when the chain breaks (a non-ACGT character or an absent k-mer).
func (g *Graph) StreamingSearch(s []byte) []int64 {
	L := len(s)
	if L < g.k {
		return nil
	}
	out := make([]int64, L-g.k+1)
	var cur int64 = -1
	for i := 0; i <= L-g.k; i++ {
		if cur == -1 {
			out[i] = g.Search(s[i : i+g.k])
			cur = out[i]
			continue
		}
		next := s[i+g.k-1]
		if dnaseq.BaseIndex(next) < 0 {
			cur = -1
			out[i] = -1
			continue
		}
		nv := g.Forward(cur, next)
		if nv == -1 || g.dummyMarks.Get(int(nv)) {
			// The chain produced either no edge or landed on a dummy
			// row (can happen only if book-keeping above is wrong,
			// since a real predecessor's forward edge always lands
			// on a real or dummy node consistent with the input);
			// reseed from scratch for robustness.
			out[i] = g.Search(s[i : i+g.k])
			cur = out[i]
			continue
		}
		out[i] = nv
		cur = nv
	}
	return out
}

// Build constructs a Graph from the set of distinct real k-mers
// observed across the input sequences (and, if reverseComplements is
// set, their reverse complements). kmers must contain only strings of
// length k over {A,C,G,T}.
func Build(k int, kmers map[string]struct{}) *Graph {
	labelSet := make(map[string]struct{}, len(kmers)*2)
	root := sentinelString(k)
	labelSet[root] = struct{}{}
	for kmer := range kmers {
		for l := 0; l <= k; l++ {
			labelSet[dummyLabel(kmer, l, k)] = struct{}{}
		}
	}

	labels := make([]string, 0, len(labelSet))
	for l := range labelSet {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		return colexLess(labels[i], labels[j])
	})

	n := len(labels)
	idOf := make(map[string]int32, n)
	for i, l := range labels {
		idOf[l] = int32(i)
	}

	dummyMarks := bitpack.NewBitVectorN(n)
	numKmers := int64(0)
	for i, l := range labels {
		if isDummy(l) {
			dummyMarks.Set(i, true)
		} else {
			numKmers++
		}
	}
	dummyMarks.Rebuild()

	groupStart := make([]int32, n)
	groupEnd := make([]int32, n)
	groupBySuffix := make(map[string]int32)
	i := 0
	for i < n {
		j := i + 1
		suf := labels[i][1:]
		for j < n && labels[j][1:] == suf {
			j++
		}
		for x := i; x < j; x++ {
			groupStart[x] = int32(i)
			groupEnd[x] = int32(j)
		}
		groupBySuffix[suf] = int32(i)
		i = j
	}

	var columns [4]*bitpack.BitVector
	for c := range columns {
		columns[c] = bitpack.NewBitVectorN(n)
	}
	for v := 0; v < n; v++ {
		if v != int(groupStart[v]) {
			continue
		}
		suf := labels[v][1:]
		for ci, c := range edgeChars {
			dest := suf + string(c)
			if _, ok := idOf[dest]; ok {
				columns[ci].Set(v, true)
			}
		}
	}
	for c := range columns {
		columns[c].Rebuild()
	}

	// Colex order sorts by last character first, so the destination of
	// an edge labeled c lives in the contiguous block of labels ending
	// with c. cArray[c] is that block's start: the root (the only label
	// ending with the sentinel) plus one slot per edge of every smaller
	// character, since distinct suffix groups extend to distinct labels.
	var cArray [4]int64
	running := int64(1)
	for c := 0; c < 4; c++ {
		cArray[c] = running
		running += int64(columns[c].Rank1(n))
	}

	return &Graph{
		k:             k,
		labels:        labels,
		dummyMarks:    dummyMarks,
		groupStart:    groupStart,
		groupEnd:      groupEnd,
		columns:       columns,
		cArray:        cArray,
		numKmers:      numKmers,
		groupBySuffix: groupBySuffix,
	}
}

func sentinelString(k int) string {
	b := make([]byte, k)
	for i := range b {
		b[i] = sentinel
	}
	return string(b)
}

// dummyLabel returns the length-k, left-sentinel-padded label
// representing the length-l prefix of kmer (l in [0,k]); l==k returns
// kmer itself.
func dummyLabel(kmer string, l, k int) string {
	if l == k {
		return kmer
	}
	b := make([]byte, k)
	for i := 0; i < k-l; i++ {
		b[i] = sentinel
	}
	copy(b[k-l:], kmer[:l])
	return string(b)
}

func isDummy(label string) bool {
	return label[0] == sentinel
}

// colexLess orders two equal-length labels by comparing from the
// last character backward to the first, with sentinel sorting before
// every real base.
func colexLess(a, b string) bool {
	for i := len(a) - 1; i >= 0; i-- {
		if a[i] != b[i] {
			return rank(a[i]) < rank(b[i])
		}
	}
	return false
}

func rank(c byte) int {
	if c == sentinel {
		return -1
	}
	return charIndex(c)
}

// WriteTo serializes the graph: k, label count, raw labels (each
// fixed length k), the dummy-marks bit vector, the four edge column
// bit vectors, the C array, and the real k-mer count.
func (g *Graph) WriteTo(w io.Writer) (int64, error) {
	var n int64
	write := func(v interface{}) error {
		return binary.Write(w, binary.BigEndian, v)
	}
	if err := write(uint64(g.k)); err != nil {
		return n, err
	}
	n += 8
	if err := write(uint64(len(g.labels))); err != nil {
		return n, err
	}
	n += 8
	for _, l := range g.labels {
		if _, err := w.Write([]byte(l)); err != nil {
			return n, err
		}
		n += int64(len(l))
	}
	nn, err := g.dummyMarks.WriteTo(w)
	n += nn
	if err != nil {
		return n, err
	}
	for _, col := range g.columns {
		nn, err = col.WriteTo(w)
		n += nn
		if err != nil {
			return n, err
		}
	}
	for _, c := range g.cArray {
		if err := write(uint64(c)); err != nil {
			return n, err
		}
		n += 8
	}
	if err := write(uint64(g.numKmers)); err != nil {
		return n, err
	}
	n += 8
	return n, nil
}

// ReadGraph deserializes a Graph written by WriteTo.
func ReadGraph(r io.Reader) (*Graph, error) {
	var k, count uint64
	if err := binary.Read(r, binary.BigEndian, &k); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	labels := make([]string, count)
	buf := make([]byte, k)
	for i := range labels {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		labels[i] = string(buf)
	}
	dummyMarks, err := bitpack.ReadBitVector(r)
	if err != nil {
		return nil, err
	}
	var columns [4]*bitpack.BitVector
	for i := range columns {
		columns[i], err = bitpack.ReadBitVector(r)
		if err != nil {
			return nil, err
		}
	}
	var cArray [4]int64
	for i := range cArray {
		var v uint64
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		cArray[i] = int64(v)
	}
	var numKmers uint64
	if err := binary.Read(r, binary.BigEndian, &numKmers); err != nil {
		return nil, err
	}

	n := int(count)
	groupStart := make([]int32, n)
	groupEnd := make([]int32, n)
	groupBySuffix := make(map[string]int32)
	i := 0
	for i < n {
		j := i + 1
		suf := labels[i][1:]
		for j < n && labels[j][1:] == suf {
			j++
		}
		for x := i; x < j; x++ {
			groupStart[x] = int32(i)
			groupEnd[x] = int32(j)
		}
		groupBySuffix[suf] = int32(i)
		i = j
	}

	return &Graph{
		k:             int(k),
		labels:        labels,
		dummyMarks:    dummyMarks,
		groupStart:    groupStart,
		groupEnd:      groupEnd,
		columns:       columns,
		cArray:        cArray,
		numKmers:      int64(numKmers),
		groupBySuffix: groupBySuffix,
	}, nil
}
