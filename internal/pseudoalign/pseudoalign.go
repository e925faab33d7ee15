// Package pseudoalign implements the pseudoalignment engine (C8): a
// producer/worker-pool pipeline that, for every query read, intersects
// (or threshold-votes) the color sets of its k-mers and writes one
// result line per query, optionally restoring ascending query-id
// order. Workers own their scratch state and join through an
// errgroup; a bounded channel carries the queries.
package pseudoalign

import (
	"bufio"
	"container/heap"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jtr-bio/themisto/internal/colorset"
	"github.com/jtr-bio/themisto/internal/dnaseq"
	"github.com/jtr-bio/themisto/internal/index"
	"github.com/jtr-bio/themisto/internal/logx"
)

// Config holds the query-time options relevant to the engine itself
// (file paths are resolved by the caller).
type Config struct {
	NumThreads         int
	ReverseComplements bool
	Threshold          float64 // 1.0 means intersection mode
	SortOutput         bool
	TempDir            string
}

// Engine runs the pseudoalignment pipeline against an already-loaded
// Index.
type Engine struct {
	idx *index.Index
	cfg Config
}

// NewEngine creates an Engine over idx with the given Config.
func NewEngine(idx *index.Index, cfg Config) *Engine {
	if cfg.NumThreads < 1 {
		cfg.NumThreads = 1
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 1
	}
	return &Engine{idx: idx, cfg: cfg}
}

// query is one parsed input read, numbered in input order.
type query struct {
	id  int64
	seq []byte
}

// result is one output line, tagged with the query id it belongs to
// so the ordering pass can restore input order.
type result struct {
	id   int64
	line string
}

// workerContext holds per-worker scratch buffers, avoiding per-query
// allocation.
type workerContext struct {
	csIDs   []int64
	csIDsRC []int64
	rcBuf   []byte
	acc     map[uint32]int
}

// Run reads queries from in (one FASTA/FASTQ record per query, via a
// simple line-oriented reader since queries are plain strings here,
// not full sequence files with headers the engine needs to preserve
// beyond position) and writes one result line per query to out.
func (e *Engine) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	queries, err := readQueries(in)
	if err != nil {
		return err
	}

	jobs := make(chan query, 256)
	results := make(chan result, 256)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for _, q := range queries {
			select {
			case jobs <- q:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var workersWG sync.WaitGroup
	for i := 0; i < e.cfg.NumThreads; i++ {
		workersWG.Add(1)
		g.Go(func() error {
			defer workersWG.Done()
			wc := &workerContext{acc: make(map[uint32]int)}
			for q := range jobs {
				line, err := e.alignOne(wc, q)
				if err != nil {
					return err
				}
				select {
				case results <- result{id: q.id, line: line}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	closeDone := make(chan struct{})
	go func() {
		workersWG.Wait()
		close(results)
		close(closeDone)
	}()

	writeErr := make(chan error, 1)
	go func() {
		if e.cfg.SortOutput {
			writeErr <- writeOrdered(results, out, e.cfg.TempDir)
		} else {
			writeErr <- writeUnordered(results, out)
		}
	}()

	if err := g.Wait(); err != nil {
		return err
	}
	<-closeDone
	return <-writeErr
}

// alignOne resolves one query to its result line: streaming search,
// color-set id resolution, then intersection or threshold voting.
func (e *Engine) alignOne(wc *workerContext, q query) (string, error) {
	g := e.idx.Graph
	k := g.K()
	if len(q.seq) < k {
		return fmt.Sprintf("%d", q.id), nil
	}

	ids := g.StreamingSearch(q.seq)
	wc.csIDs = wc.csIDs[:0]
	for _, id := range ids {
		csID, err := e.colorSetIDFor(id)
		if err != nil {
			return "", err
		}
		wc.csIDs = append(wc.csIDs, csID)
	}

	var rcIDs []int64
	if e.cfg.ReverseComplements {
		wc.rcBuf = append(wc.rcBuf[:0], dnaseq.ReverseComplement(q.seq)...)
		rc := g.StreamingSearch(wc.rcBuf)
		wc.csIDsRC = wc.csIDsRC[:0]
		for _, id := range rc {
			csID, err := e.colorSetIDFor(id)
			if err != nil {
				return "", err
			}
			wc.csIDsRC = append(wc.csIDsRC, csID)
		}
		rcIDs = wc.csIDsRC
	}

	var colors []uint32
	if e.cfg.Threshold >= 1 {
		colors = e.intersect(wc, rcIDs)
	} else {
		colors = e.threshold(wc, rcIDs, len(ids))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d", q.id)
	for _, c := range colors {
		fmt.Fprintf(&b, " %d", c)
	}
	return b.String(), nil
}

// colorSetIDFor resolves a streaming_search result (-1 or a node id)
// to a color-set id, or -1 if the k-mer was absent from the graph.
func (e *Engine) colorSetIDFor(node int64) (int64, error) {
	if node < 0 {
		return -1, nil
	}
	return e.idx.Coloring.GetColorSetID(e.idx.Graph, node)
}

// intersect intersects color sets across all non-missing positions,
// unioning with the matching reverse-complement position first when
// RC is enabled, and skipping positions whose (possibly unioned) id
// repeats the previous one.
func (e *Engine) intersect(wc *workerContext, rcIDs []int64) []uint32 {
	var acc colorset.ColorSet
	prevFwd, prevRC := int64(math.MinInt64), int64(math.MinInt64)
	L := len(wc.csIDs)
	for i, id := range wc.csIDs {
		rc := int64(-1)
		if rcIDs != nil {
			rc = rcIDs[L-1-i]
		}
		if id == -1 && rc == -1 {
			continue
		}
		if id == prevFwd && rc == prevRC {
			continue
		}
		prevFwd, prevRC = id, rc

		var view colorset.ColorSet
		switch {
		case id != -1 && rc != -1 && id != rc:
			a := e.idx.Coloring.Storage().GetColorSetByID(id)
			b := e.idx.Coloring.Storage().GetColorSetByID(rc)
			view = colorset.Union(a, b)
		case id != -1:
			view = e.idx.Coloring.Storage().GetColorSetByID(id)
		default:
			view = e.idx.Coloring.Storage().GetColorSetByID(rc)
		}

		if acc == nil {
			acc = view
		} else {
			acc = colorset.Intersect(acc, view)
		}
	}
	if acc == nil {
		return nil
	}
	return acc.Iterate()
}

// threshold tallies per-color votes over every position (unioning
// with the RC position first when enabled), reporting colors with
// count >= ceil(tau*(L-k+1)). Missing k-mers, including windows that
// straddle a non-ACGT region, contribute zero votes.
func (e *Engine) threshold(wc *workerContext, rcIDs []int64, numPositions int) []uint32 {
	for k := range wc.acc {
		delete(wc.acc, k)
	}
	L := len(wc.csIDs)
	for i, id := range wc.csIDs {
		var view colorset.ColorSet
		switch {
		case id != -1 && rcIDs != nil && rcIDs[L-1-i] != -1:
			a := e.idx.Coloring.Storage().GetColorSetByID(id)
			b := e.idx.Coloring.Storage().GetColorSetByID(rcIDs[L-1-i])
			view = colorset.Union(a, b)
		case id != -1:
			view = e.idx.Coloring.Storage().GetColorSetByID(id)
		case rcIDs != nil && rcIDs[L-1-i] != -1:
			view = e.idx.Coloring.Storage().GetColorSetByID(rcIDs[L-1-i])
		default:
			continue
		}
		for _, c := range view.Iterate() {
			wc.acc[c]++
		}
	}
	need := int(math.Ceil(e.cfg.Threshold * float64(numPositions)))
	var out []uint32
	for c, count := range wc.acc {
		if count >= need {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// readQueries parses a simple FASTA/FASTQ stream into numbered query
// reads: any non-header, non-empty line is treated as (a chunk of) a
// sequence, a '>' or '@' line starts a new query, and the line after
// a '+' separator is discarded as quality data.
func readQueries(r io.Reader) ([]query, error) {
	var out []query
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var cur []byte
	id := int64(-1)
	skipQuality := false
	flush := func() {
		if id >= 0 {
			out = append(out, query{id: id, seq: cur})
		}
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if skipQuality {
			skipQuality = false
			continue
		}
		if line[0] == '>' || line[0] == '@' {
			flush()
			id++
			cur = nil
			continue
		}
		if line[0] == '+' {
			skipQuality = true // the next line is FASTQ quality data
			continue
		}
		cur = append(cur, []byte(strings.ToUpper(line))...)
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func writeUnordered(results <-chan result, out io.Writer) error {
	bw := bufio.NewWriter(out)
	var werr error
	for r := range results {
		if werr != nil {
			continue // keep draining so workers never block on a dead writer
		}
		if _, err := bw.WriteString(r.line + "\n"); err != nil {
			werr = err
		}
	}
	if werr != nil {
		return werr
	}
	return bw.Flush()
}

// writeOrdered restores input order: unordered results go to a temp
// file first, tagged with their query id, then a min-heap keyed by id
// flushes lines to out in ascending order as soon as the
// next-expected id is available.
func writeOrdered(results <-chan result, out io.Writer, tempDir string) error {
	tmp, err := os.CreateTemp(tempDir, "themisto-pseudoalign-unordered-")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	tbw := bufio.NewWriter(tmp)
	var werr error
	for r := range results {
		if werr != nil {
			continue // keep draining so workers never block on a dead writer
		}
		if _, err := fmt.Fprintf(tbw, "%d\t%s\n", r.id, r.line); err != nil {
			werr = err
		}
	}
	if werr != nil {
		return werr
	}
	if err := tbw.Flush(); err != nil {
		return err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}

	h := &resultHeap{}
	heap.Init(h)
	scanner := bufio.NewScanner(tmp)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	bw := bufio.NewWriter(out)
	next := int64(0)

	flushReady := func() error {
		for h.Len() > 0 && (*h)[0].id == next {
			r := heap.Pop(h).(result)
			if _, err := bw.WriteString(r.line + "\n"); err != nil {
				return err
			}
			next++
		}
		return nil
	}

	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), "\t", 2)
		if len(parts) != 2 {
			continue
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return err
		}
		heap.Push(h, result{id: id, line: parts[1]})
		if err := flushReady(); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if err := flushReady(); err != nil {
		return err
	}
	logx.Vprintf("pseudoalign: restored order for %d results", next)
	return bw.Flush()
}

// resultHeap is a min-heap over result, ordered by id.
type resultHeap []result

func (h resultHeap) Len() int            { return len(h) }
func (h resultHeap) Less(i, j int) bool  { return h[i].id < h[j].id }
func (h resultHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x interface{}) { *h = append(*h, x.(result)) }
func (h *resultHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
