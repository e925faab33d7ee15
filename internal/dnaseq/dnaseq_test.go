package dnaseq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBaseIndex(t *testing.T) {
	require.Equal(t, 0, BaseIndex('A'))
	require.Equal(t, 1, BaseIndex('C'))
	require.Equal(t, 2, BaseIndex('G'))
	require.Equal(t, 3, BaseIndex('T'))
	require.Equal(t, -1, BaseIndex('N'))
	require.Equal(t, -1, BaseIndex('a'))
}

func TestIsACGT(t *testing.T) {
	require.True(t, IsACGT('A'))
	require.False(t, IsACGT('N'))
	require.False(t, IsACGT('a'))
}

func TestReverseComplement(t *testing.T) {
	require.Equal(t, "ACGT", string(ReverseComplement([]byte("ACGT"))))
	require.Equal(t, "TTTT", string(ReverseComplement([]byte("AAAA"))))
	require.Equal(t, "", string(ReverseComplement(nil)))
}

func TestKmersOfSkipsNonACGTRuns(t *testing.T) {
	var got []string
	KmersOf([]byte("ACGTNACGT"), 4, func(kmer []byte) {
		got = append(got, string(kmer))
	})
	require.Equal(t, []string{"ACGT", "ACGT"}, got)
}

func TestKmersOfShorterThanKYieldsNothing(t *testing.T) {
	var got []string
	KmersOf([]byte("AC"), 4, func(kmer []byte) { got = append(got, string(kmer)) })
	require.Nil(t, got)
}
