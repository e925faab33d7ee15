package extsort

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func readAllRecords(r *bytes.Buffer, kind RecordKind, recordSize int) ([][]byte, error) {
	br := bufio.NewReader(r)
	var out [][]byte
	for {
		rec, err := readRecord(br, kind, recordSize)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

func fixedRec(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func cmpFixed(a, b []byte) int {
	av := binary.BigEndian.Uint64(a)
	bv := binary.BigEndian.Uint64(b)
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

func TestSortFixedLengthSmallInput(t *testing.T) {
	var in bytes.Buffer
	values := []uint64{5, 1, 4, 1, 3, 2}
	for _, v := range values {
		in.Write(fixedRec(v))
	}

	var out bytes.Buffer
	cfg := SortConfig{MemoryBudgetBytes: 0, NumThreads: 2, TempDir: t.TempDir()}
	err := Sort(context.Background(), &in, &out, FixedLength, 8, cmpFixed, cfg)
	require.NoError(t, err)

	var got []uint64
	data := out.Bytes()
	for i := 0; i+8 <= len(data); i += 8 {
		got = append(got, binary.BigEndian.Uint64(data[i:i+8]))
	}
	require.Equal(t, []uint64{1, 1, 2, 3, 4, 5}, got)
}

func TestSortSplitsMultipleRuns(t *testing.T) {
	var in bytes.Buffer
	for v := uint64(20); v > 0; v-- {
		in.Write(fixedRec(v))
	}

	var out bytes.Buffer
	// tiny budget forces many single-chunk runs to be merged
	cfg := SortConfig{MemoryBudgetBytes: 24, NumThreads: 4, TempDir: t.TempDir()}
	err := Sort(context.Background(), &in, &out, FixedLength, 8, cmpFixed, cfg)
	require.NoError(t, err)

	var got []uint64
	data := out.Bytes()
	for i := 0; i+8 <= len(data); i += 8 {
		got = append(got, binary.BigEndian.Uint64(data[i:i+8]))
	}
	require.Len(t, got, 20)
	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, got[i-1], got[i])
	}
}

func TestSortVariableLength(t *testing.T) {
	var in bytes.Buffer
	payloads := [][]byte{[]byte("ccc"), []byte("a"), []byte("bb")}
	for _, p := range payloads {
		in.Write(FrameVariable(p))
	}

	cmp := func(a, b []byte) int { return bytes.Compare(a[8:], b[8:]) }

	var out bytes.Buffer
	cfg := SortConfig{MemoryBudgetBytes: 0, NumThreads: 1, TempDir: t.TempDir()}
	err := Sort(context.Background(), &in, &out, VariableLength, 0, cmp, cfg)
	require.NoError(t, err)

	recs, err := readAllRecords(&out, VariableLength, 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	require.Equal(t, "a", string(recs[0][8:]))
	require.Equal(t, "bb", string(recs[1][8:]))
	require.Equal(t, "ccc", string(recs[2][8:]))
}

func TestSortEmptyInput(t *testing.T) {
	var in, out bytes.Buffer
	cfg := SortConfig{TempDir: t.TempDir()}
	err := Sort(context.Background(), &in, &out, FixedLength, 8, cmpFixed, cfg)
	require.NoError(t, err)
	require.Equal(t, 0, out.Len())
}

func TestSpillOrderedKeepsDuplicates(t *testing.T) {
	s := newSpillOrdered(cmpFixed)
	s.Add(fixedRec(3))
	s.Add(fixedRec(1))
	s.Add(fixedRec(3))
	require.Equal(t, 3, s.Len())

	var got []uint64
	s.Ascend(func(rec []byte) bool {
		got = append(got, binary.BigEndian.Uint64(rec))
		return true
	})
	require.Equal(t, []uint64{1, 3, 3}, got)
}
