package bitpack

import "testing"

func TestSuccinctPrefixSum(t *testing.T) {
	v := []uint64{3, 0, 5, 2, 0, 1}
	s := NewSuccinctPrefixSum(v)

	want := []uint64{0, 3, 3, 8, 10, 10, 11}
	for i, w := range want {
		if got := s.Sum(i); got != w {
			t.Fatalf("Sum(%d) = %d, want %d", i, got, w)
		}
	}
	if s.Len() != len(v) {
		t.Fatalf("Len() = %d, want %d", s.Len(), len(v))
	}
}

func TestSuccinctPrefixSumAllZero(t *testing.T) {
	v := []uint64{0, 0, 0, 0}
	s := NewSuccinctPrefixSum(v)
	for i := 0; i <= len(v); i++ {
		if got := s.Sum(i); got != 0 {
			t.Fatalf("Sum(%d) = %d, want 0", i, got)
		}
	}
}
