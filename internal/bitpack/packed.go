package bitpack

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PackedIntArray stores n integers of configurable bit-width w <= 64
// with O(1) get/set, packed contiguously into 64-bit words (values
// may straddle a word boundary).
type PackedIntArray struct {
	words []uint64
	width uint
	n     int
}

// NewPackedIntArray allocates an array of n zero-valued entries, each
// width bits wide.
func NewPackedIntArray(n int, width uint) *PackedIntArray {
	if width > 64 {
		panic(fmt.Sprintf("bitpack: width %d exceeds 64", width))
	}
	totalBits := n * int(width)
	nWords := (totalBits + wordBits - 1) / wordBits
	return &PackedIntArray{
		words: make([]uint64, nWords),
		width: width,
		n:     n,
	}
}

// Len returns the number of entries.
func (p *PackedIntArray) Len() int { return p.n }

// Width returns the bit width of each entry.
func (p *PackedIntArray) Width() uint { return p.width }

// Get returns the i-th value.
func (p *PackedIntArray) Get(i int) uint64 {
	if i < 0 || i >= p.n {
		panic(fmt.Sprintf("bitpack: index %d out of range [0,%d)", i, p.n))
	}
	if p.width == 0 {
		return 0
	}
	bitPos := i * int(p.width)
	w := bitPos / wordBits
	off := uint(bitPos % wordBits)

	var mask uint64
	if p.width == 64 {
		mask = ^uint64(0)
	} else {
		mask = (uint64(1) << p.width) - 1
	}

	val := p.words[w] >> off
	if off+p.width > wordBits {
		val |= p.words[w+1] << (wordBits - off)
	}
	return val & mask
}

// Set assigns the i-th value; v must fit in Width() bits.
func (p *PackedIntArray) Set(i int, v uint64) {
	if i < 0 || i >= p.n {
		panic(fmt.Sprintf("bitpack: index %d out of range [0,%d)", i, p.n))
	}
	if p.width == 0 {
		return
	}
	var mask uint64
	if p.width == 64 {
		mask = ^uint64(0)
	} else {
		mask = (uint64(1) << p.width) - 1
	}
	v &= mask

	bitPos := i * int(p.width)
	w := bitPos / wordBits
	off := uint(bitPos % wordBits)

	p.words[w] = (p.words[w] &^ (mask << off)) | (v << off)
	if off+p.width > wordBits {
		spill := wordBits - off
		p.words[w+1] = (p.words[w+1] &^ (mask >> spill)) | (v >> spill)
	}
}

// WriteTo serializes as: uint64 length, uint64 width, uint64 word
// count, then raw words, all big-endian.
func (p *PackedIntArray) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, v := range []uint64{uint64(p.n), uint64(p.width), uint64(len(p.words))} {
		if err := binary.Write(w, binary.BigEndian, v); err != nil {
			return n, err
		}
		n += 8
	}
	if err := binary.Write(w, binary.BigEndian, p.words); err != nil {
		return n, err
	}
	n += int64(len(p.words)) * 8
	return n, nil
}

// ReadPackedIntArray deserializes an array written by WriteTo.
func ReadPackedIntArray(r io.Reader) (*PackedIntArray, error) {
	var n, width, nWords uint64
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &width); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &nWords); err != nil {
		return nil, err
	}
	words := make([]uint64, nWords)
	if err := binary.Read(r, binary.BigEndian, words); err != nil {
		return nil, err
	}
	return &PackedIntArray{words: words, width: uint(width), n: int(n)}, nil
}

// BitsForMaxValue returns ceil(log2(maxValue+1)), the packed width
// needed to store values in [0, maxValue], with the convention that
// maxValue == 0 still needs 1 bit (a single possible value, present
// or absent is tracked separately by callers).
func BitsForMaxValue(maxValue uint64) uint {
	if maxValue == 0 {
		return 1
	}
	w := uint(0)
	for (uint64(1) << w) <= maxValue {
		w++
	}
	return w
}
