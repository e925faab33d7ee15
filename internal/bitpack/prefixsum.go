package bitpack

import "io"

// SuccinctPrefixSum stores a sequence of non-negative integers
// v[0..n) in n + sum(v) + o(n+sum(v)) bits, via a unary encoding
// (v[i] zero bits followed by a one-bit terminator, concatenated) plus
// rank/select support over that encoding. Sum(i) = v[0]+...+v[i-1] is
// answered by locating the i-th one-bit with Select1 and counting the
// zero bits seen before it with Rank0; the Select1 step is a binary
// search, so a query takes O(log n) time, not O(1).
type SuccinctPrefixSum struct {
	enc *BitVector
	n   int
}

// NewSuccinctPrefixSum encodes v.
func NewSuccinctPrefixSum(v []uint64) *SuccinctPrefixSum {
	var total uint64
	for _, x := range v {
		total += x
	}
	bitLen := int(total) + len(v)
	bv := NewBitVectorN(bitLen)
	pos := 0
	for _, x := range v {
		pos += int(x) // x zero bits (vector already zeroed)
		bv.Set(pos, true)
		pos++
	}
	bv.Rebuild()
	return &SuccinctPrefixSum{enc: bv, n: len(v)}
}

// Sum returns v[0]+...+v[i-1]. Sum(0) == 0.
func (s *SuccinctPrefixSum) Sum(i int) uint64 {
	if i <= 0 {
		return 0
	}
	if i > s.n {
		i = s.n
	}
	// The i-th terminator (1-based) lies at the end of entry i-1;
	// the zero bits before it across all of entries 0..i-1 is the
	// desired prefix sum.
	pos := s.enc.Select1(i)
	return uint64(s.enc.Rank0(pos))
}

// Len returns the number of stored integers.
func (s *SuccinctPrefixSum) Len() int { return s.n }

// WriteTo serializes the underlying encoding.
func (s *SuccinctPrefixSum) WriteTo(w io.Writer) (int64, error) {
	return s.enc.WriteTo(w)
}

// ReadSuccinctPrefixSum deserializes a structure written by WriteTo;
// n must be supplied by the caller (recorded alongside, e.g. as part
// of an enclosing component's header) since the encoding alone does
// not distinguish entry count from total bit length without counting
// one-bits.
func ReadSuccinctPrefixSum(r io.Reader, n int) (*SuccinctPrefixSum, error) {
	bv, err := ReadBitVector(r)
	if err != nil {
		return nil, err
	}
	return &SuccinctPrefixSum{enc: bv, n: n}, nil
}
