// Package extsort implements the generic external-memory sort (C9)
// used by the coloring builder to sort (node, color) and (node,
// color-set-group) record streams larger than the configured memory
// budget. Run generation is parallelized across an errgroup-managed
// worker pool; merge is a k-way min-heap over run readers.
package extsort

import (
	"bufio"
	"container/heap"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/golang/snappy"
	"github.com/google/btree"
	"golang.org/x/sync/errgroup"
)

// RecordKind selects the record framing used by a Sort call.
type RecordKind uint8

const (
	// FixedLength records are all exactly recordSize bytes.
	FixedLength RecordKind = iota
	// VariableLength records begin with an 8-byte big-endian length
	// (counting the length prefix itself).
	VariableLength
)

// Comparator orders two records; it must be a total order consistent
// with equality (Compare(a,a) == 0). Stability is not required: equal
// records may be emitted in either order.
type Comparator func(a, b []byte) int

// SortConfig bounds the resources a Sort call may use.
type SortConfig struct {
	MemoryBudgetBytes int64  // approximate bytes of records per in-memory run
	NumThreads        int    // parallel run-generation workers
	TempDir           string // directory for run files
}

// Sort reads framed records from in, sorts them externally by cmp,
// and writes the fully merged, framed record stream to out.
//
// Records are read incrementally: as soon as the bytes buffered for
// the current chunk reach MemoryBudgetBytes, the chunk is handed to a
// run-generation worker (sort, snappy-compress, spill to a temp file)
// and reading continues into a fresh chunk. The worker-slot semaphore
// is acquired before the next chunk is read, so at most NumThreads
// chunks are being sorted while one more is being filled: peak record
// memory is (NumThreads+1) * MemoryBudgetBytes, independent of input
// size. A non-positive budget never splits the input: the whole input
// is sorted in memory as a single chunk and written out as one run.
func Sort(ctx context.Context, in io.Reader, out io.Writer, kind RecordKind, recordSize int, cmp Comparator, cfg SortConfig) error {
	threads := cfg.NumThreads
	if threads < 1 {
		threads = 1
	}

	mgr := Manager()
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, threads)
	var mu sync.Mutex
	var runPaths []string

	releaseRuns := func() {
		mu.Lock()
		paths := runPaths
		runPaths = nil
		mu.Unlock()
		for _, p := range paths {
			mgr.Release(p)
		}
	}

	// spill blocks until a worker slot is free, then sorts and writes
	// the chunk as a run file in the background. Blocking here is what
	// stops the read loop from buffering unsorted chunks without bound.
	spill := func(chunk [][]byte) error {
		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			return gctx.Err()
		}
		g.Go(func() error {
			defer func() { <-sem }()

			ordered := newSpillOrdered(cmp)
			for _, rec := range chunk {
				ordered.Add(rec)
			}

			f, err := mgr.New(cfg.TempDir, "themisto-extsort-run-")
			if err != nil {
				return err
			}
			defer f.Close()
			mu.Lock()
			runPaths = append(runPaths, f.Name())
			mu.Unlock()
			return writeRunOrdered(f, ordered)
		})
		return nil
	}

	br := bufio.NewReader(in)
	var chunk [][]byte
	var chunkSize int64
	for {
		rec, err := readRecord(br, kind, recordSize)
		if err == io.EOF {
			break
		}
		if err != nil {
			g.Wait()
			releaseRuns()
			return fmt.Errorf("extsort: reading input: %w", err)
		}
		chunk = append(chunk, rec)
		chunkSize += int64(len(rec))
		if cfg.MemoryBudgetBytes > 0 && chunkSize >= cfg.MemoryBudgetBytes {
			if err := spill(chunk); err != nil {
				g.Wait()
				releaseRuns()
				return err
			}
			chunk = nil
			chunkSize = 0
		}
	}
	if len(chunk) > 0 {
		if err := spill(chunk); err != nil {
			g.Wait()
			releaseRuns()
			return err
		}
	}

	if err := g.Wait(); err != nil {
		releaseRuns()
		return err
	}
	defer releaseRuns()

	mu.Lock()
	paths := append([]string(nil), runPaths...)
	mu.Unlock()
	if len(paths) == 0 {
		return nil
	}
	return mergeRuns(paths, out, kind, recordSize, cmp)
}

// writeRunOrdered snappy-compresses and writes a run's records in
// ascending order straight out of the ordered buffer, framed the same
// way as the original input so the merge phase's reader can decode
// them without knowing they came from a run.
func writeRunOrdered(f *os.File, ordered *spillOrdered) error {
	sw := snappy.NewBufferedWriter(f)
	var werr error
	ordered.Ascend(func(rec []byte) bool {
		_, werr = sw.Write(rec)
		return werr == nil
	})
	if werr != nil {
		return werr
	}
	return sw.Close()
}

// runReader decodes framed records sequentially from one snappy-
// compressed run file.
type runReader struct {
	r          *bufio.Reader
	closer     io.Closer
	kind       RecordKind
	recordSize int
	head       []byte
	done       bool
}

func openRun(path string, kind RecordKind, recordSize int) (*runReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rr := &runReader{
		r:          bufio.NewReader(snappy.NewReader(f)),
		closer:     f,
		kind:       kind,
		recordSize: recordSize,
	}
	if err := rr.advance(); err != nil {
		f.Close()
		return nil, err
	}
	return rr, nil
}

func (rr *runReader) advance() error {
	rec, err := readRecord(rr.r, rr.kind, rr.recordSize)
	if err == io.EOF {
		rr.head = nil
		rr.done = true
		return nil
	}
	if err != nil {
		return err
	}
	rr.head = rec
	return nil
}

// mergeHeap is a min-heap over the currently-buffered head record of
// each open run, ordered by cmp.
type mergeHeap struct {
	runs []*runReader
	cmp  Comparator
}

func (h *mergeHeap) Len() int { return len(h.runs) }
func (h *mergeHeap) Less(i, j int) bool {
	return h.cmp(h.runs[i].head, h.runs[j].head) < 0
}
func (h *mergeHeap) Swap(i, j int) { h.runs[i], h.runs[j] = h.runs[j], h.runs[i] }
func (h *mergeHeap) Push(x interface{}) { h.runs = append(h.runs, x.(*runReader)) }
func (h *mergeHeap) Pop() interface{} {
	n := len(h.runs)
	r := h.runs[n-1]
	h.runs = h.runs[:n-1]
	return r
}

// mergeRuns k-way merges the sorted run files into out, holding one
// buffered head record per open run.
func mergeRuns(paths []string, out io.Writer, kind RecordKind, recordSize int, cmp Comparator) error {
	h := &mergeHeap{cmp: cmp}
	heap.Init(h)
	var opened []*runReader
	defer func() {
		for _, rr := range opened {
			rr.closer.Close()
		}
	}()
	for _, p := range paths {
		rr, err := openRun(p, kind, recordSize)
		if err != nil {
			return err
		}
		opened = append(opened, rr)
		if !rr.done {
			heap.Push(h, rr)
		}
	}

	bw := bufio.NewWriter(out)
	for h.Len() > 0 {
		rr := h.runs[0]
		if _, err := bw.Write(rr.head); err != nil {
			return err
		}
		if err := rr.advance(); err != nil {
			return err
		}
		if rr.done {
			heap.Pop(h)
		} else {
			heap.Fix(h, 0)
		}
	}
	return bw.Flush()
}

func readRecord(r *bufio.Reader, kind RecordKind, recordSize int) ([]byte, error) {
	if kind == FixedLength {
		buf := make([]byte, recordSize)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	total := binary.BigEndian.Uint64(lenBuf[:])
	buf := make([]byte, total)
	copy(buf, lenBuf[:])
	if _, err := io.ReadFull(r, buf[8:]); err != nil {
		return nil, err
	}
	return buf, nil
}

// FrameVariable prepends the 8-byte big-endian length prefix
// (including itself) to payload, producing a record Sort can consume
// in VariableLength mode.
func FrameVariable(payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(out, uint64(len(out)))
	copy(out[8:], payload)
	return out
}

// spillOrdered is the in-memory ordered buffer Sort uses to build each
// run before it is written to disk: github.com/google/btree backs the
// ordering instead of a plain slice resorted once at the end.
type spillOrdered struct {
	tree *btree.BTreeG[orderedRecord]
	cmp  Comparator
	seq  int64
}

// orderedRecord carries a monotonic insertion sequence alongside the
// record bytes so that two records the Comparator treats as equal
// (e.g. duplicate (node,color) pairs ahead of the builder's own dedup
// pass) remain distinct tree keys: google/btree's ReplaceOrInsert
// would otherwise silently drop one of a tied pair.
type orderedRecord struct {
	bytes []byte
	seq   int64
}

func newSpillOrdered(cmp Comparator) *spillOrdered {
	less := func(a, b orderedRecord) bool {
		if c := cmp(a.bytes, b.bytes); c != 0 {
			return c < 0
		}
		return a.seq < b.seq
	}
	return &spillOrdered{tree: btree.NewG(32, less), cmp: cmp}
}

func (s *spillOrdered) Add(rec []byte) {
	s.tree.ReplaceOrInsert(orderedRecord{bytes: rec, seq: s.seq})
	s.seq++
}

func (s *spillOrdered) Ascend(yield func(rec []byte) bool) {
	s.tree.Ascend(func(r orderedRecord) bool { return yield(r.bytes) })
}

func (s *spillOrdered) Len() int { return s.tree.Len() }
