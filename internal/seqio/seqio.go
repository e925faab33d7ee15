// Package seqio handles sequence input: FASTA/FASTQ reading (plain or
// gzipped, sniffed by extension), the colors file parser, and the
// non-ACGT handling policies applied before indexing. Record parsing
// is a small bufio-based reader; decompression goes through
// github.com/klauspost/compress/gzip.
package seqio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/jtr-bio/themisto/internal/themerr"
)

// NonACGTPolicy selects how bytes outside {A,C,G,T} are handled before
// indexing.
type NonACGTPolicy int

const (
	// DeleteSplitting drops the offending character, splitting the
	// sequence at that point.
	DeleteSplitting NonACGTPolicy = iota
	// RandomizeSeeded replaces the offending character with a
	// uniformly random base drawn from a seeded RNG.
	RandomizeSeeded
)

// Sequence is one parsed FASTA/FASTQ record.
type Sequence struct {
	ID  string
	Seq []byte
}

// ColoredSequence pairs a parsed sequence with the color assigned to
// it (the sequence's line in the colors file, or its 0-based position
// among all input sequences when no colors file is given).
type ColoredSequence struct {
	Sequence
	Color uint32
}

// Recognized sequence-file extensions, before an optional .gz suffix.
var fastaExts = []string{".fasta", ".fna", ".ffn", ".faa", ".frn", ".fa"}
var fastqExts = []string{".fastq", ".fq"}

// DetectFormat reports "fasta" or "fastq" for path, stripping a
// trailing ".gz" before matching, or an error if the extension is
// unrecognized.
func DetectFormat(path string) (string, error) {
	name := path
	if strings.HasSuffix(name, ".gz") {
		name = strings.TrimSuffix(name, ".gz")
	}
	for _, ext := range fastaExts {
		if strings.HasSuffix(name, ext) {
			return "fasta", nil
		}
	}
	for _, ext := range fastqExts {
		if strings.HasSuffix(name, ext) {
			return "fastq", nil
		}
	}
	return "", &themerr.InputFormatError{File: path, Msg: "unrecognized sequence file extension"}
}

// Open opens path, transparently wrapping it in a gzip reader when its
// name ends in ".gz".
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &gzipReadCloser{Reader: gz, under: f}, nil
}

type gzipReadCloser struct {
	*gzip.Reader
	under *os.File
}

func (g *gzipReadCloser) Close() error {
	g.Reader.Close()
	return g.under.Close()
}

// Reader yields successive sequences from a FASTA or FASTQ stream.
type Reader interface {
	Next() (*Sequence, error) // io.EOF when exhausted
}

// NewReader opens path (sniffing gzip and format by extension) and
// returns a Reader over it plus a closer the caller must Close.
func NewReader(path string) (Reader, io.Closer, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, nil, err
	}
	rc, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	switch format {
	case "fasta":
		return &fastaReader{br: bufio.NewReader(rc), path: path}, rc, nil
	default:
		return &fastqReader{br: bufio.NewReader(rc), path: path}, rc, nil
	}
}

type fastaReader struct {
	br      *bufio.Reader
	path    string
	pending string // header line already consumed for the next record
	line    int
}

func (r *fastaReader) Next() (*Sequence, error) {
	header := r.pending
	r.pending = ""
	if header == "" {
		for {
			line, err := r.br.ReadString('\n')
			r.line++
			line = strings.TrimRight(line, "\r\n")
			if line != "" {
				if line[0] != '>' {
					return nil, &themerr.InputFormatError{File: r.path, Line: r.line, Msg: "expected FASTA header starting with '>'"}
				}
				header = line
				break
			}
			if err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	for {
		line, err := r.br.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" {
			if trimmed[0] == '>' {
				r.pending = trimmed
				break
			}
			buf.WriteString(trimmed)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		r.line++
	}
	return &Sequence{ID: strings.TrimPrefix(header, ">"), Seq: buf.Bytes()}, nil
}

type fastqReader struct {
	br   *bufio.Reader
	path string
	line int
}

func (r *fastqReader) Next() (*Sequence, error) {
	header, err := r.readNonEmptyLine()
	if err != nil {
		return nil, err
	}
	if header[0] != '@' {
		return nil, &themerr.InputFormatError{File: r.path, Line: r.line, Msg: "expected FASTQ header starting with '@'"}
	}
	seqLine, err := r.readNonEmptyLine()
	if err != nil {
		return nil, fmt.Errorf("seqio: truncated FASTQ record at %s:%d: %w", r.path, r.line, err)
	}
	plus, err := r.readNonEmptyLine()
	if err != nil || len(plus) == 0 || plus[0] != '+' {
		return nil, &themerr.InputFormatError{File: r.path, Line: r.line, Msg: "expected '+' separator line"}
	}
	if _, err := r.readNonEmptyLine(); err != nil { // quality line, discarded
		return nil, fmt.Errorf("seqio: truncated FASTQ record at %s:%d: %w", r.path, r.line, err)
	}
	return &Sequence{ID: strings.TrimPrefix(header, "@"), Seq: []byte(seqLine)}, nil
}

func (r *fastqReader) readNonEmptyLine() (string, error) {
	for {
		line, err := r.br.ReadString('\n')
		r.line++
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" {
			return trimmed, nil
		}
		if err != nil {
			return "", err
		}
	}
}

// ReadColors parses one non-negative integer per line, trimming
// leading/trailing whitespace and rejecting embedded non-digit bytes.
// When r is nil, colors default to 0,1,2,... for numSeqs sequences.
func ReadColors(r io.Reader, numSeqs int) ([]uint32, error) {
	if r == nil {
		out := make([]uint32, numSeqs)
		for i := range out {
			out[i] = uint32(i)
		}
		return out, nil
	}
	var out []uint32
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		for _, c := range line {
			if c < '0' || c > '9' {
				return nil, &themerr.InputFormatError{Line: lineNo, Msg: fmt.Sprintf("non-digit byte in color line %q", line)}
			}
		}
		v, err := strconv.ParseUint(line, 10, 32)
		if err != nil {
			return nil, &themerr.InputFormatError{Line: lineNo, Msg: err.Error()}
		}
		out = append(out, uint32(v))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out) != numSeqs {
		return nil, &themerr.InputFormatError{Msg: fmt.Sprintf("color count %d does not match sequence count %d", len(out), numSeqs)}
	}
	return out, nil
}

// ApplyNonACGTPolicy returns the sequence parts that should actually
// be indexed for s: DeleteSplitting drops offending bytes and splits
// (SplitACGT); RandomizeSeeded replaces them in place with a base
// drawn from rng, returning s unsplit.
func ApplyNonACGTPolicy(s []byte, policy NonACGTPolicy, rng *rand.Rand) [][]byte {
	if policy == DeleteSplitting {
		return SplitACGT(s)
	}
	bases := [4]byte{'A', 'C', 'G', 'T'}
	out := make([]byte, len(s))
	copy(out, s)
	for i, c := range out {
		switch c {
		case 'A', 'C', 'G', 'T':
		default:
			out[i] = bases[rng.IntN(4)]
		}
	}
	return [][]byte{out}
}

// SplitACGT splits s at every byte outside {A,C,G,T}, dropping the
// offending bytes. The core-node marker and the coloring pipeline's
// sequence scan both run over the resulting parts.
func SplitACGT(s []byte) [][]byte {
	var parts [][]byte
	start := 0
	isACGT := func(c byte) bool {
		return c == 'A' || c == 'C' || c == 'G' || c == 'T'
	}
	for end := 0; end <= len(s); end++ {
		if end == len(s) || !isACGT(s[end]) {
			if end > start {
				parts = append(parts, s[start:end])
			}
			start = end + 1
		}
	}
	return parts
}
