package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jtr-bio/themisto/internal/index"
	"github.com/jtr-bio/themisto/internal/sbwt"
)

var unitigsOutPath string

var extractUnitigsCmd = &cobra.Command{
	Use:   "extract-unitigs <index-prefix>",
	Short: "Write every maximal non-branching path in the graph as a FASTA record",
	Args:  cobra.ExactArgs(1),
	RunE:  runExtractUnitigs,
}

func init() {
	extractUnitigsCmd.Flags().StringVar(&unitigsOutPath, "out", "", "output FASTA path (default: stdout)")
}

// runExtractUnitigs walks the graph's maximal non-branching paths
// (unitigs) over the non-dummy nodes: a path starts at any node that
// does not have exactly one real in-neighbor, or whose single real
// in-neighbor has more than one out-edge, and continues forward while
// the current node has exactly one out-edge into a node with exactly
// one real in-neighbor. A component that is a pure cycle has no such
// start node and is not written.
func runExtractUnitigs(cmd *cobra.Command, args []string) error {
	idx, err := index.Load(args[0])
	if err != nil {
		return fmt.Errorf("loading index: %w", err)
	}

	out := os.Stdout
	if unitigsOutPath != "" {
		f, err := os.Create(unitigsOutPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", unitigsOutPath, err)
		}
		defer f.Close()
		out = f
	}
	bw := bufio.NewWriter(out)
	defer bw.Flush()

	n := int(idx.Graph.NumberOfSubsets())
	dummy := idx.Graph.ComputeDummyMarks()
	visited := make([]bool, n)
	unitigID := 0

	for i := 1; i < n; i++ {
		if dummy.Get(i) || visited[i] {
			continue
		}
		if !isUnitigStart(idx.Graph, idx.Backward, int64(i)) {
			continue
		}
		label := walkUnitig(idx.Graph, idx.Backward, int64(i), visited)
		fmt.Fprintf(bw, ">unitig_%d\n%s\n", unitigID, label)
		unitigID++
	}
	return nil
}

func outNeighbors(g *sbwt.Graph, node int64) []int64 {
	var out []int64
	for _, c := range []byte{'A', 'C', 'G', 'T'} {
		if d := g.Forward(node, c); d >= 0 {
			out = append(out, d)
		}
	}
	return out
}

// realInNeighbors returns node's in-neighbors without dummy rows: every
// real node's predecessor group holds the sentinel-padded dummy for its
// (k-1)-prefix, which is not a k-mer of the input.
func realInNeighbors(g *sbwt.Graph, b *sbwt.Backward, node int64) []int64 {
	dummy := g.ComputeDummyMarks()
	var out []int64
	for _, y := range b.InNeighbors(node) {
		if !dummy.Get(int(y)) {
			out = append(out, y)
		}
	}
	return out
}

func isUnitigStart(g *sbwt.Graph, b *sbwt.Backward, node int64) bool {
	preds := realInNeighbors(g, b, node)
	if len(preds) != 1 {
		return true
	}
	return len(outNeighbors(g, preds[0])) != 1
}

func walkUnitig(g *sbwt.Graph, b *sbwt.Backward, start int64, visited []bool) string {
	label := []byte(g.GetNodeLabel(start))
	visited[start] = true
	cur := start
	for {
		next := outNeighbors(g, cur)
		if len(next) != 1 {
			break
		}
		n := next[0]
		if len(realInNeighbors(g, b, n)) != 1 || visited[n] {
			break
		}
		nl := g.GetNodeLabel(n)
		label = append(label, nl[len(nl)-1])
		visited[n] = true
		cur = n
	}
	return string(label)
}
