// Package coloring implements the external-memory coloring builder
// (C7): it turns a graph plus colored sequences into the color-set
// storage (C4) and sparse pointer array (C5) the query-time Coloring
// exposes via GetColorSetID. The pipeline marks core nodes, streams
// (node, color) pairs, externally sorts and dedups them, groups by
// node and then by distinct color set, and materializes the results.
// Every intermediate record stream between stages lives in a temp
// file, so peak memory is bounded by the external sort's budget plus
// one color group, not by the input size.
package coloring

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/jtr-bio/themisto/internal/bitpack"
	"github.com/jtr-bio/themisto/internal/colorstore"
	"github.com/jtr-bio/themisto/internal/corenodes"
	"github.com/jtr-bio/themisto/internal/dnaseq"
	"github.com/jtr-bio/themisto/internal/extsort"
	"github.com/jtr-bio/themisto/internal/logx"
	"github.com/jtr-bio/themisto/internal/sbwt"
	"github.com/jtr-bio/themisto/internal/seqio"
	"github.com/jtr-bio/themisto/internal/sparsecolor"
	"github.com/jtr-bio/themisto/internal/themerr"
)

// Options configures a Builder; fields mirror the build-time options
// relevant to coloring (the rest, e.g. k, lives on the already-built
// sbwt.Graph).
type Options struct {
	ReverseComplements bool
	SamplingDistance   int // pointer sampling distance d, default 1
	MemoryBudgetBytes  int64
	NumThreads         int
	TempDir            string
}

// Builder runs the coloring construction pipeline over an already
// built graph.
type Builder struct {
	g   *sbwt.Graph
	b   *sbwt.Backward
	opt Options
}

// NewBuilder creates a Builder for g using the backward-traversal
// structure b and the given options.
func NewBuilder(g *sbwt.Graph, b *sbwt.Backward, opt Options) *Builder {
	if opt.SamplingDistance < 1 {
		opt.SamplingDistance = 1
	}
	return &Builder{g: g, b: b, opt: opt}
}

// Coloring is the query-time result of Build: the frozen color-set
// storage, the sparse node->color-set-id pointer array, and the core
// mask needed to walk forward from a non-core node.
type Coloring struct {
	storage  *colorstore.Storage
	pointers *sparsecolor.Array
	core     *bitpack.BitVector
	d        int
}

// FromComponents reassembles a Coloring from its already-deserialized
// parts, used by internal/index's Load path.
func FromComponents(storage *colorstore.Storage, pointers *sparsecolor.Array, core *bitpack.BitVector, d int) *Coloring {
	return &Coloring{storage: storage, pointers: pointers, core: core, d: d}
}

// Storage returns the underlying color-set storage (exposed so the
// pseudoalignment engine and index serializer can reach it directly).
func (c *Coloring) Storage() *colorstore.Storage { return c.storage }

// Pointers returns the underlying sparse pointer array.
func (c *Coloring) Pointers() *sparsecolor.Array { return c.pointers }

// Core returns the core-node bit vector.
func (c *Coloring) Core() *bitpack.BitVector { return c.core }

// SamplingDistance returns the d parameter used at build time.
func (c *Coloring) SamplingDistance() int { return c.d }

// GetColorSetID resolves node's color-set id, walking forward through
// non-core nodes (each of which, by construction, has exactly one
// outgoing edge on the path to the next core node) until a node with
// a stored pointer is found.
func (c *Coloring) GetColorSetID(g *sbwt.Graph, node int64) (int64, error) {
	cur := node
	for steps := 0; ; steps++ {
		if id, ok := c.pointers.Get(cur); ok {
			return id, nil
		}
		next := int64(-1)
		for _, ch := range []byte{'A', 'C', 'G', 'T'} {
			if d := g.Forward(cur, ch); d >= 0 {
				next = d
				break
			}
		}
		if next < 0 {
			return 0, &themerr.InvariantViolation{Where: "coloring.GetColorSetID", Msg: fmt.Sprintf("dead end walking forward from node %d", node)}
		}
		cur = next
		if steps > int(g.NumberOfSubsets()) {
			return 0, &themerr.InvariantViolation{Where: "coloring.GetColorSetID", Msg: "forward walk exceeded graph size, core marking is broken"}
		}
	}
}

// GetColorSet resolves node straight to a color-set view.
func (c *Coloring) GetColorSet(g *sbwt.Graph, node int64) (*colorstore.View, error) {
	id, err := c.GetColorSetID(g, node)
	if err != nil {
		return nil, err
	}
	return c.storage.GetColorSetByID(id), nil
}

// Build runs the coloring pipeline over seqs. Each stage writes its
// record stream to a temp file consumed by the next stage, so only the
// external sort's run buffers and a single color group at a time are
// ever resident in memory.
func (b *Builder) Build(ctx context.Context, seqs []seqio.ColoredSequence) (*Coloring, error) {
	g, bw := b.g, b.b

	// Step 1: mark core nodes.
	core := corenodes.MarkCoreNodes(g, bw, seqs, b.opt.ReverseComplements)

	mgr := extsort.Manager()
	cfg := extsort.SortConfig{
		MemoryBudgetBytes: b.opt.MemoryBudgetBytes,
		NumThreads:        b.opt.NumThreads,
		TempDir:           b.opt.TempDir,
	}

	// Step 2: stream (node, color) pairs for every core node id hit by
	// streaming search over every sequence (and its RC, if enabled)
	// into a spill file.
	pairsFile, err := mgr.New(b.opt.TempDir, "themisto-color-pairs-")
	if err != nil {
		return nil, err
	}
	defer closeAndRelease(mgr, pairsFile)
	nPairs, err := writeNodeColorPairs(g, core, seqs, b.opt.ReverseComplements, pairsFile)
	if err != nil {
		return nil, fmt.Errorf("coloring: emitting (node,color) pairs: %w", err)
	}
	logx.Vprintf("coloring: emitted %d raw (node,color) pairs", nPairs)

	// Step 3: external sort by (node, color).
	sortedPairs, err := mgr.New(b.opt.TempDir, "themisto-color-pairs-sorted-")
	if err != nil {
		return nil, err
	}
	defer closeAndRelease(mgr, sortedPairs)
	if _, err := pairsFile.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if err := extsort.Sort(ctx, pairsFile, sortedPairs, extsort.FixedLength, pairRecordSize, comparePairRecords, cfg); err != nil {
		return nil, fmt.Errorf("coloring: sorting (node,color) pairs: %w", err)
	}

	// Steps 4+5: drop adjacent duplicate pairs and group the survivors
	// by node into (node, colors...) records, colors sorted ascending
	// (guaranteed by the (node,color) sort order).
	groupsFile, err := mgr.New(b.opt.TempDir, "themisto-color-groups-")
	if err != nil {
		return nil, err
	}
	defer closeAndRelease(mgr, groupsFile)
	if _, err := sortedPairs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	maxColor, nDistinct, err := groupPairsByNode(sortedPairs, groupsFile)
	if err != nil {
		return nil, fmt.Errorf("coloring: grouping pairs by node: %w", err)
	}
	logx.Vprintf("coloring: %d distinct (node,color) pairs after dedup", nDistinct)

	// Step 6: sort node-groups by color-tuple content.
	sortedGroups, err := mgr.New(b.opt.TempDir, "themisto-color-groups-sorted-")
	if err != nil {
		return nil, err
	}
	defer closeAndRelease(mgr, sortedGroups)
	if _, err := groupsFile.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if err := extsort.Sort(ctx, groupsFile, sortedGroups, extsort.VariableLength, 0, compareNodeGroupsByColorContent, cfg); err != nil {
		return nil, fmt.Errorf("coloring: sorting node-groups by color content: %w", err)
	}

	// Steps 7+8: walk runs of identical color sets and materialize
	// each as soon as it is complete: assign the next color-set id,
	// push the set into storage, store pointers for its nodes and for
	// their d-sampled non-core ancestors.
	storageBuilder := colorstore.NewBuilder(int(maxColor) + 1)
	pointerBuilder := sparsecolor.NewBuilder(g.NumberOfSubsets())
	stored := make(map[int64]bool)
	dummies := g.ComputeDummyMarks()

	if _, err := sortedGroups.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	numSets, err := materializeColorGroups(sortedGroups, func(colors []uint32, nodes []int64) {
		id := storageBuilder.AddSet(colors)
		for _, node := range nodes {
			pointerBuilder.Add(node, id)
			stored[node] = true
		}
		for _, node := range nodes {
			sampleAncestors(bw, node, id, b.opt.SamplingDistance, core, dummies, stored, pointerBuilder)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("coloring: materializing color sets: %w", err)
	}
	logx.Vprintf("coloring: %d distinct color sets", numSets)

	// Step 9: finalize.
	storage := storageBuilder.PrepareForQueries()
	pointers := pointerBuilder.Finish()

	return &Coloring{storage: storage, pointers: pointers, core: core, d: b.opt.SamplingDistance}, nil
}

func closeAndRelease(mgr *extsort.TempFileManager, f *os.File) {
	f.Close()
	mgr.Release(f.Name())
}

// pair is a single (node, color) observation.
type pair struct {
	node  int64
	color uint32
}

// pairRecordSize is the 16-byte big-endian (node int64, color
// uint64-widened) record shape fed to the external sort.
const pairRecordSize = 16

func encodePair(p pair) []byte {
	buf := make([]byte, pairRecordSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(p.node))
	binary.BigEndian.PutUint64(buf[8:16], uint64(p.color))
	return buf
}

func decodePair(buf []byte) pair {
	return pair{
		node:  int64(binary.BigEndian.Uint64(buf[0:8])),
		color: uint32(binary.BigEndian.Uint64(buf[8:16])),
	}
}

func comparePairRecords(a, b []byte) int { return bytes.Compare(a, b) }

// writeNodeColorPairs scans every sequence part (and optionally its
// reverse complement) once with streaming search and appends one
// fixed-size (node, color) record per core-node hit to f. Returns the
// number of records written.
func writeNodeColorPairs(g *sbwt.Graph, core *bitpack.BitVector, seqs []seqio.ColoredSequence, rc bool, f *os.File) (int64, error) {
	w := bufio.NewWriter(f)
	var n int64
	emit := func(s []byte, color uint32) error {
		if len(s) < g.K() {
			return nil
		}
		for _, id := range g.StreamingSearch(s) {
			if id >= 0 && core.Get(int(id)) {
				if _, err := w.Write(encodePair(pair{node: id, color: color})); err != nil {
					return err
				}
				n++
			}
		}
		return nil
	}
	for _, cs := range seqs {
		for _, part := range seqio.SplitACGT(cs.Seq) {
			if err := emit(part, cs.Color); err != nil {
				return n, err
			}
			if rc {
				if err := emit(dnaseq.ReverseComplement(part), cs.Color); err != nil {
					return n, err
				}
			}
		}
	}
	return n, w.Flush()
}

// nodeGroup is a node and the (sorted, deduped) colors touching it.
type nodeGroup struct {
	node   int64
	colors []uint32
}

// groupPairsByNode streams the sorted pair records from r, drops
// adjacent duplicates, and writes one framed (node, colors...) record
// per node to f. Returns the largest color seen and the count of
// distinct pairs.
func groupPairsByNode(r io.Reader, f *os.File) (maxColor uint32, distinct int64, err error) {
	br := bufio.NewReader(r)
	w := bufio.NewWriter(f)

	var cur nodeGroup
	have := false
	var prev pair
	havePrev := false

	flushGroup := func() error {
		if !have {
			return nil
		}
		_, werr := w.Write(encodeNodeGroup(cur))
		return werr
	}

	var buf [pairRecordSize]byte
	for {
		if _, rerr := io.ReadFull(br, buf[:]); rerr == io.EOF {
			break
		} else if rerr != nil {
			return maxColor, distinct, rerr
		}
		p := decodePair(buf[:])
		if havePrev && p == prev {
			continue
		}
		prev, havePrev = p, true
		distinct++
		if p.color > maxColor {
			maxColor = p.color
		}
		if have && p.node == cur.node {
			cur.colors = append(cur.colors, p.color)
			continue
		}
		if werr := flushGroup(); werr != nil {
			return maxColor, distinct, werr
		}
		cur.node = p.node
		cur.colors = append(cur.colors[:0], p.color)
		have = true
	}
	if werr := flushGroup(); werr != nil {
		return maxColor, distinct, werr
	}
	return maxColor, distinct, w.Flush()
}

// encodeNodeGroup frames a nodeGroup as a
// (record_len, node, color_1..color_m) variable-length record.
func encodeNodeGroup(ng nodeGroup) []byte {
	payload := make([]byte, 8+4*len(ng.colors))
	binary.BigEndian.PutUint64(payload[0:8], uint64(ng.node))
	for i, c := range ng.colors {
		binary.BigEndian.PutUint32(payload[8+4*i:12+4*i], c)
	}
	return extsort.FrameVariable(payload)
}

func decodeNodeGroup(rec []byte) nodeGroup {
	payload := rec[8:] // strip the FrameVariable length prefix
	node := int64(binary.BigEndian.Uint64(payload[0:8]))
	nColors := (len(payload) - 8) / 4
	colors := make([]uint32, nColors)
	for i := 0; i < nColors; i++ {
		colors[i] = binary.BigEndian.Uint32(payload[8+4*i : 12+4*i])
	}
	return nodeGroup{node: node, colors: colors}
}

// compareNodeGroupsByColorContent orders two framed nodeGroup records
// lexicographically over the color tuple (skipping the 8-byte
// length-prefix and 8-byte node field), ties broken by length, so
// records with identical color sets end up adjacent.
func compareNodeGroupsByColorContent(a, b []byte) int {
	ca := a[16:]
	cb := b[16:]
	n := len(ca)
	if len(cb) < n {
		n = len(cb)
	}
	if c := bytes.Compare(ca[:n], cb[:n]); c != 0 {
		return c
	}
	return len(ca) - len(cb)
}

// readFramedRecord reads one length-prefixed record, returning io.EOF
// cleanly at a record boundary.
func readFramedRecord(br *bufio.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		return nil, err
	}
	total := binary.BigEndian.Uint64(lenBuf[:])
	buf := make([]byte, total)
	copy(buf, lenBuf[:])
	if _, err := io.ReadFull(br, buf[8:]); err != nil {
		return nil, err
	}
	return buf, nil
}

// materializeColorGroups streams the color-sorted node-group records
// from r and calls emit once per run of identical color sets, with the
// shared colors and every node in the run. Only one run is resident at
// a time. Returns the number of distinct color sets seen.
func materializeColorGroups(r io.Reader, emit func(colors []uint32, nodes []int64)) (int64, error) {
	br := bufio.NewReader(r)
	var numSets int64
	var curColors []uint32
	var curHash uint64
	var nodes []int64
	have := false

	flush := func() {
		if !have {
			return
		}
		emit(curColors, nodes)
		numSets++
	}

	for {
		rec, err := readFramedRecord(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return numSets, err
		}
		ng := decodeNodeGroup(rec)
		h := colorSetHash(ng.colors)
		if have && h == curHash && sameColors(ng.colors, curColors) {
			nodes = append(nodes, ng.node)
			continue
		}
		flush()
		curColors = ng.colors
		curHash = h
		nodes = append(nodes[:0], ng.node)
		have = true
	}
	flush()
	return numSets, nil
}

func sameColors(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// colorSetHash is a fast pre-check materializeColorGroups uses before
// the byte-exact sameColors comparison on every candidate group
// boundary.
func colorSetHash(colors []uint32) uint64 {
	buf := make([]byte, 4*len(colors))
	for i, c := range colors {
		binary.BigEndian.PutUint32(buf[4*i:4*i+4], c)
	}
	return xxhash.Sum64(buf)
}

// sampleAncestors implements the d-sampling rule: starting
// at the core node `node`, walk backward through its chain of non-core
// predecessors (each has node's color set, since nothing on the chain
// can change it) and store a pointer to the same color-set id at every
// d-th chain node, so a forward walk from any non-core node finds a
// pointer within d steps. The walk stops at the first core node (it
// carries its own group's id), at a dummy row (real forward walks
// never pass through one), or at an already-stored node.
func sampleAncestors(bw *sbwt.Backward, node, id int64, d int, core, dummies *bitpack.BitVector, stored map[int64]bool, pb *sparsecolor.Builder) {
	cur := node
	steps := 0
	for {
		prev := bw.RealStep(cur)
		if prev < 0 || prev == cur {
			return
		}
		if core.Get(int(prev)) || dummies.Get(int(prev)) || stored[prev] {
			return
		}
		steps++
		if steps%d == 0 {
			pb.Add(prev, id)
			stored[prev] = true
		}
		cur = prev
	}
}
