// Package colorstore implements the color-set storage subsystem (C4):
// a static container holding every distinct color set produced by the
// coloring builder, as two pooled concatenations (bit-map sets and
// packed-array sets) addressed by a dense color-set id through a
// per-id discriminator bit with rank support.
package colorstore

import (
	"encoding/binary"
	"io"

	"github.com/jtr-bio/themisto/internal/bitpack"
	"github.com/jtr-bio/themisto/internal/colorset"
)

// Storage holds every distinct color set produced during build, in
// two pools (bit-map sets concatenated in Pool A, packed-array sets
// in Pool B), plus the bookkeeping needed to slice a view out of
// either pool by color-set id.
type Storage struct {
	bitmapPool []uint64
	arrayPool  []uint32

	bitmapStart []int64 // len = numBitmapSets+1, bit offsets into bitmapPool
	arrayStart  []int64 // len = numArraySets+1, entry offsets into arrayPool

	isBitmap *bitpack.BitVector // per color-set id, 1 iff the set lives in Pool A
}

// NumSets returns the total number of distinct color sets stored.
func (s *Storage) NumSets() int64 { return int64(s.isBitmap.Len()) }

// GetColorSetByID returns a non-owning view of the color set
// identified by id: rank over the discriminator bit vector picks the
// pool, the start-pointer arrays slice the set out of it.
func (s *Storage) GetColorSetByID(id int64) *View {
	if s.isBitmap.Get(int(id)) {
		j := s.isBitmap.Rank1(int(id))
		return &View{
			kind:  colorset.Bitmap,
			start: s.bitmapStart[j],
			n:     s.bitmapStart[j+1] - s.bitmapStart[j],
			store: s,
		}
	}
	j := int(id) - s.isBitmap.Rank1(int(id))
	return &View{
		kind:  colorset.Array,
		start: s.arrayStart[j],
		n:     s.arrayStart[j+1] - s.arrayStart[j],
		store: s,
	}
}

// View is a non-owning reference into a Storage pool. It must not
// outlive the Storage it was produced from.
type View struct {
	kind  colorset.Kind
	start int64
	n     int64 // bit length (Bitmap) or entry count (Array)
	store *Storage
}

func (v *View) Kind() colorset.Kind { return v.kind }

func (v *View) Empty() bool { return v.Size() == 0 }

func (v *View) Size() int {
	if v.kind == colorset.Array {
		return int(v.n)
	}
	count := 0
	for i := int64(0); i < v.n; i++ {
		if v.bitAt(i) {
			count++
		}
	}
	return count
}

func (v *View) Contains(c uint32) bool {
	if v.kind == colorset.Bitmap {
		if int64(c) >= v.n {
			return false
		}
		return v.bitAt(int64(c))
	}
	lo, hi := int64(0), v.n
	for lo < hi {
		mid := (lo + hi) / 2
		if v.store.arrayPool[v.start+mid] < c {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < v.n && v.store.arrayPool[v.start+lo] == c
}

func (v *View) Iterate() []uint32 {
	if v.kind == colorset.Array {
		out := make([]uint32, v.n)
		copy(out, v.store.arrayPool[v.start:v.start+v.n])
		return out
	}
	out := make([]uint32, 0)
	for i := int64(0); i < v.n; i++ {
		if v.bitAt(i) {
			out = append(out, uint32(i))
		}
	}
	return out
}

func (v *View) bitAt(i int64) bool {
	pos := v.start + i
	w := v.store.bitmapPool[pos/64]
	return w&(1<<(uint(pos)%64)) != 0
}

// Builder accumulates distinct color sets append-only, in the order
// the coloring pipeline's grouped stream discovers them, then freezes
// the two pools into the query-time Storage.
type Builder struct {
	bitmapSets [][]uint32 // each entry: sorted colors, appended as a bitmap set
	arraySets  [][]uint32 // each entry: sorted colors, appended as an array set
	isBitmap   []bool     // per id, in discovery order
	universe   int        // max_color+1, needed to size bitmap sets
}

// NewBuilder creates a Builder for color sets drawn from [0, universe).
func NewBuilder(universe int) *Builder {
	return &Builder{universe: universe}
}

// AddSet appends a distinct, sorted-ascending color set and returns
// its newly assigned color-set id. The bit-map-vs-array choice
// follows the per-set density rule (shouldUseBitmap).
func (b *Builder) AddSet(sortedColors []uint32) int64 {
	id := int64(len(b.isBitmap))
	useBitmap := shouldUseBitmap(sortedColors, b.universe)
	b.isBitmap = append(b.isBitmap, useBitmap)
	cp := make([]uint32, len(sortedColors))
	copy(cp, sortedColors)
	if useBitmap {
		b.bitmapSets = append(b.bitmapSets, cp)
	} else {
		b.arraySets = append(b.arraySets, cp)
	}
	return id
}

// shouldUseBitmap picks the cheaper representation for one set: a
// bit-map costs max_color+1 bits regardless of cardinality, a packed
// array costs ceil(log2(max_color+1)) bits per element.
func shouldUseBitmap(sorted []uint32, universe int) bool {
	if universe <= 1 {
		return len(sorted) > 0
	}
	width := bitpack.BitsForMaxValue(uint64(universe - 1))
	return uint64(width)*uint64(len(sorted)) > uint64(universe)
}

// PrepareForQueries freezes the builder's append-only state into a
// query-time Storage: the two pools become contiguous slices, and
// isBitmap gets rank1 support via bitpack.BitVector.
func (b *Builder) PrepareForQueries() *Storage {
	n := len(b.isBitmap)
	isBitmap := bitpack.NewBitVectorN(n)
	for i, v := range b.isBitmap {
		isBitmap.Set(i, v)
	}
	isBitmap.Rebuild()

	bitmapStart := make([]int64, len(b.bitmapSets)+1)
	var bitmapWords []uint64
	var bitPos int64
	for i, set := range b.bitmapSets {
		bitmapStart[i] = bitPos
		need := int64(b.universe)
		if need == 0 {
			need = 1
		}
		endPos := bitPos + need
		for int64(len(bitmapWords))*64 < endPos {
			bitmapWords = append(bitmapWords, 0)
		}
		for _, c := range set {
			p := bitPos + int64(c)
			bitmapWords[p/64] |= 1 << (uint(p) % 64)
		}
		bitPos = endPos
	}
	bitmapStart[len(b.bitmapSets)] = bitPos

	arrayStart := make([]int64, len(b.arraySets)+1)
	var arrayPool []uint32
	var arrPos int64
	for i, set := range b.arraySets {
		arrayStart[i] = arrPos
		arrayPool = append(arrayPool, set...)
		arrPos += int64(len(set))
	}
	arrayStart[len(b.arraySets)] = arrPos

	return &Storage{
		bitmapPool:  bitmapWords,
		arrayPool:   arrayPool,
		bitmapStart: bitmapStart,
		arrayStart:  arrayStart,
		isBitmap:    isBitmap,
	}
}

// WriteTo serializes the storage: the isBitmap bit vector, then the
// two start-pointer arrays (length-prefixed int64 lists), then the
// raw pools (length-prefixed uint64/uint32 lists), all big-endian.
func (s *Storage) WriteTo(w io.Writer) (int64, error) {
	var total int64
	nn, err := s.isBitmap.WriteTo(w)
	total += nn
	if err != nil {
		return total, err
	}
	for _, arr := range [][]int64{s.bitmapStart, s.arrayStart} {
		if err := binary.Write(w, binary.BigEndian, uint64(len(arr))); err != nil {
			return total, err
		}
		total += 8
		if err := binary.Write(w, binary.BigEndian, arr); err != nil {
			return total, err
		}
		total += int64(len(arr)) * 8
	}
	if err := binary.Write(w, binary.BigEndian, uint64(len(s.bitmapPool))); err != nil {
		return total, err
	}
	total += 8
	if err := binary.Write(w, binary.BigEndian, s.bitmapPool); err != nil {
		return total, err
	}
	total += int64(len(s.bitmapPool)) * 8
	if err := binary.Write(w, binary.BigEndian, uint64(len(s.arrayPool))); err != nil {
		return total, err
	}
	total += 8
	if err := binary.Write(w, binary.BigEndian, s.arrayPool); err != nil {
		return total, err
	}
	total += int64(len(s.arrayPool)) * 4
	return total, nil
}

// ReadStorage deserializes a Storage written by WriteTo.
func ReadStorage(r io.Reader) (*Storage, error) {
	isBitmap, err := bitpack.ReadBitVector(r)
	if err != nil {
		return nil, err
	}
	readInt64s := func() ([]int64, error) {
		var n uint64
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		arr := make([]int64, n)
		if err := binary.Read(r, binary.BigEndian, arr); err != nil {
			return nil, err
		}
		return arr, nil
	}
	bitmapStart, err := readInt64s()
	if err != nil {
		return nil, err
	}
	arrayStart, err := readInt64s()
	if err != nil {
		return nil, err
	}
	var nBitmapWords uint64
	if err := binary.Read(r, binary.BigEndian, &nBitmapWords); err != nil {
		return nil, err
	}
	bitmapPool := make([]uint64, nBitmapWords)
	if err := binary.Read(r, binary.BigEndian, bitmapPool); err != nil {
		return nil, err
	}
	var nArrayEntries uint64
	if err := binary.Read(r, binary.BigEndian, &nArrayEntries); err != nil {
		return nil, err
	}
	arrayPool := make([]uint32, nArrayEntries)
	if err := binary.Read(r, binary.BigEndian, arrayPool); err != nil {
		return nil, err
	}
	return &Storage{
		bitmapPool:  bitmapPool,
		arrayPool:   arrayPool,
		bitmapStart: bitmapStart,
		arrayStart:  arrayStart,
		isBitmap:    isBitmap,
	}, nil
}
