// Package index ties the SBWT graph (C2) and the coloring (C7) output
// together into the two persisted files "<prefix>.tdbg" (graph) and
// "<prefix>.tcolors" (coloring, tagged with a versioned ASCII variant
// string), opened by convention from a shared path prefix.
package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/jtr-bio/themisto/internal/bitpack"
	"github.com/jtr-bio/themisto/internal/coloring"
	"github.com/jtr-bio/themisto/internal/colorstore"
	"github.com/jtr-bio/themisto/internal/sbwt"
	"github.com/jtr-bio/themisto/internal/sparsecolor"
	"github.com/jtr-bio/themisto/internal/themerr"
)

// coloringTag is the length-prefixed ASCII tag written at the start
// of every .tcolors file, identifying the color-set variant in use.
// Only the hybrid bitmap/array variant is implemented; alternative
// backends (roaring or fixed-width bitmaps) would declare their own
// tags here.
const coloringTag = "themisto-hybrid-v1"

// Index is the fully loaded, query-time index: the SBWT graph plus
// its backward-traversal structure, and the coloring.
type Index struct {
	Graph    *sbwt.Graph
	Backward *sbwt.Backward
	Coloring *coloring.Coloring
}

// Save writes "<prefix>.tdbg" and "<prefix>.tcolors".
func (idx *Index) Save(prefix string) error {
	dbgPath := prefix + ".tdbg"
	f, err := os.Create(dbgPath)
	if err != nil {
		return &themerr.ResourceError{Op: "creating " + dbgPath, Err: err}
	}
	bw := bufio.NewWriter(f)
	if _, err := idx.Graph.WriteTo(bw); err != nil {
		f.Close()
		return fmt.Errorf("index: writing %s: %w", dbgPath, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	colorsPath := prefix + ".tcolors"
	cf, err := os.Create(colorsPath)
	if err != nil {
		return &themerr.ResourceError{Op: "creating " + colorsPath, Err: err}
	}
	defer cf.Close()
	cbw := bufio.NewWriter(cf)
	if err := writeTag(cbw, coloringTag); err != nil {
		return err
	}
	if _, err := idx.Coloring.Storage().WriteTo(cbw); err != nil {
		return fmt.Errorf("index: writing %s storage: %w", colorsPath, err)
	}
	if _, err := idx.Coloring.Pointers().WriteTo(cbw); err != nil {
		return fmt.Errorf("index: writing %s pointers: %w", colorsPath, err)
	}
	if _, err := idx.Coloring.Core().WriteTo(cbw); err != nil {
		return fmt.Errorf("index: writing %s core marks: %w", colorsPath, err)
	}
	if err := binary.Write(cbw, binary.BigEndian, uint64(idx.Coloring.SamplingDistance())); err != nil {
		return err
	}
	return cbw.Flush()
}

// Load reads "<prefix>.tdbg" and "<prefix>.tcolors".
func Load(prefix string) (*Index, error) {
	dbgPath := prefix + ".tdbg"
	f, err := os.Open(dbgPath)
	if err != nil {
		return nil, &themerr.ResourceError{Op: "opening " + dbgPath, Err: err}
	}
	defer f.Close()
	graph, err := sbwt.ReadGraph(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("index: reading %s: %w", dbgPath, err)
	}
	backward := sbwt.NewBackward(graph)

	colorsPath := prefix + ".tcolors"
	cf, err := os.Open(colorsPath)
	if err != nil {
		return nil, &themerr.ResourceError{Op: "opening " + colorsPath, Err: err}
	}
	defer cf.Close()
	cbr := bufio.NewReader(cf)
	tag, err := readTag(cbr)
	if err != nil {
		return nil, err
	}
	if tag != coloringTag {
		return nil, &themerr.InvariantViolation{Where: "index.Load", Msg: fmt.Sprintf("unsupported coloring tag %q in %s", tag, colorsPath)}
	}
	storage, err := colorstore.ReadStorage(cbr)
	if err != nil {
		return nil, fmt.Errorf("index: reading %s storage: %w", colorsPath, err)
	}
	pointers, err := sparsecolor.ReadArray(cbr)
	if err != nil {
		return nil, fmt.Errorf("index: reading %s pointers: %w", colorsPath, err)
	}
	core, err := bitpack.ReadBitVector(cbr)
	if err != nil {
		return nil, fmt.Errorf("index: reading %s core marks: %w", colorsPath, err)
	}
	var d uint64
	if err := binary.Read(cbr, binary.BigEndian, &d); err != nil {
		return nil, fmt.Errorf("index: reading %s sampling distance: %w", colorsPath, err)
	}

	return &Index{
		Graph:    graph,
		Backward: backward,
		Coloring: coloring.FromComponents(storage, pointers, core, int(d)),
	}, nil
}

func writeTag(w *bufio.Writer, tag string) error {
	if err := binary.Write(w, binary.BigEndian, uint64(len(tag))); err != nil {
		return err
	}
	_, err := w.WriteString(tag)
	return err
}

func readTag(r *bufio.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
