// Package dnaseq holds small, shared DNA-alphabet helpers used across
// the index, coloring, and pseudoalignment packages: base/complement
// lookup, k-mer enumeration, and reverse-complementing.
package dnaseq

// BaseIndex maps an uppercase nucleotide to its rank in A,C,G,T order,
// or -1 for anything else (including lowercase, N, and other IUPAC
// ambiguity codes).
func BaseIndex(c byte) int {
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

// IsACGT reports whether c is an uppercase A, C, G, or T.
func IsACGT(c byte) bool { return BaseIndex(c) >= 0 }

var complement = [256]byte{}

func init() {
	for i := range complement {
		complement[i] = byte(i)
	}
	complement['A'] = 'T'
	complement['T'] = 'A'
	complement['C'] = 'G'
	complement['G'] = 'C'
	complement['a'] = 't'
	complement['t'] = 'a'
	complement['c'] = 'g'
	complement['g'] = 'c'
}

// Complement returns the Watson-Crick complement of a single base,
// upper- or lowercase a/c/g/t, leaving every other byte unchanged.
func Complement(c byte) byte { return complement[c] }

// ReverseComplement returns the reverse complement of s.
func ReverseComplement(s []byte) []byte {
	out := make([]byte, len(s))
	n := len(s)
	for i := 0; i < n; i++ {
		out[n-1-i] = Complement(s[i])
	}
	return out
}

// KmersOf calls yield for every length-k ACGT-only substring of s,
// in left-to-right order. Windows containing any non-ACGT byte are
// skipped, matching the original tool's handling of ambiguity codes
// and lowercase-masked regions as "break points" in the k-mer stream.
func KmersOf(s []byte, k int, yield func(kmer []byte)) {
	if len(s) < k {
		return
	}
	run := 0
	for i := 0; i < len(s); i++ {
		if IsACGT(s[i]) {
			run++
		} else {
			run = 0
		}
		if run >= k {
			yield(s[i-k+1 : i+1])
		}
	}
}
