// Command themisto-build constructs a Themisto index from a set of
// colored reference sequences.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/jtr-bio/themisto/internal/coloring"
	"github.com/jtr-bio/themisto/internal/config"
	"github.com/jtr-bio/themisto/internal/dnaseq"
	"github.com/jtr-bio/themisto/internal/index"
	"github.com/jtr-bio/themisto/internal/logx"
	"github.com/jtr-bio/themisto/internal/sbwt"
	"github.com/jtr-bio/themisto/internal/seqio"
)

var (
	buildCfg   config.BuildConfig
	verbose    bool
	cpuProfile bool
)

var rootCmd = &cobra.Command{
	Use:   "themisto-build",
	Short: "Build a Themisto colored de Bruijn graph index",
	RunE:  runBuild,
}

func init() {
	config.BindBuildFlags(rootCmd.Flags(), &buildCfg)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print progress to stderr")
	rootCmd.PersistentFlags().BoolVar(&cpuProfile, "cpu-profile", false, "write a pprof CPU profile to the current directory")
	rootCmd.AddCommand(extractUnitigsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "themisto-build:", err)
		os.Exit(1)
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	logx.SetVerbose(verbose)
	if cpuProfile {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	}

	config.ApplyNonACGTFlag(cmd.Flags(), &buildCfg)
	if err := buildCfg.Validate(); err != nil {
		return err
	}

	seqs, err := loadColoredSequences(&buildCfg)
	if err != nil {
		return err
	}

	logx.Vprintf("collecting distinct %d-mers across %d input files", buildCfg.K, len(buildCfg.InputFiles))
	kmers := make(map[string]struct{})
	for _, cs := range seqs {
		parts := seqio.SplitACGT(cs.Seq)
		for _, part := range parts {
			collectKmers(part, buildCfg.K, kmers)
			if buildCfg.ReverseComplements {
				collectKmers(dnaseq.ReverseComplement(part), buildCfg.K, kmers)
			}
		}
	}
	logx.Vprintf("found %d distinct %d-mers", len(kmers), buildCfg.K)

	g := sbwt.Build(buildCfg.K, kmers)
	bw := sbwt.NewBackward(g)

	builder := coloring.NewBuilder(g, bw, coloring.Options{
		ReverseComplements: buildCfg.ReverseComplements,
		SamplingDistance:   buildCfg.ColorsetSamplingDistance,
		MemoryBudgetBytes:  buildCfg.MemoryBudgetBytes,
		NumThreads:         buildCfg.NumThreads,
		TempDir:            buildCfg.TempDir,
	})
	col, err := builder.Build(context.Background(), seqs)
	if err != nil {
		return fmt.Errorf("building coloring: %w", err)
	}

	idx := &index.Index{Graph: g, Backward: bw, Coloring: col}
	if err := idx.Save(buildCfg.OutPrefix); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	logx.Vprintf("wrote %s.tdbg and %s.tcolors", buildCfg.OutPrefix, buildCfg.OutPrefix)
	return nil
}

// loadColoredSequences reads every input file, then assigns each
// sequence record the color named on the matching line of ColorsFile,
// or its sequential input order if none was given.
func loadColoredSequences(cfg *config.BuildConfig) ([]seqio.ColoredSequence, error) {
	var rng *rand.Rand
	if cfg.NonACGTPolicy == seqio.RandomizeSeeded {
		rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	}

	var seqs []seqio.Sequence
	for _, path := range cfg.InputFiles {
		r, closer, err := seqio.NewReader(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		for {
			seq, err := r.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				closer.Close()
				return nil, fmt.Errorf("reading %s: %w", path, err)
			}
			indexed := seq.Seq
			if cfg.NonACGTPolicy == seqio.RandomizeSeeded {
				indexed = seqio.ApplyNonACGTPolicy(seq.Seq, cfg.NonACGTPolicy, rng)[0]
			}
			seqs = append(seqs, seqio.Sequence{ID: seq.ID, Seq: indexed})
		}
		closer.Close()
	}

	var colorsReader io.Reader
	if cfg.ColorsFile != "" {
		f, err := os.Open(cfg.ColorsFile)
		if err != nil {
			return nil, fmt.Errorf("opening colors file: %w", err)
		}
		defer f.Close()
		colorsReader = f
	}
	colors, err := seqio.ReadColors(colorsReader, len(seqs))
	if err != nil {
		return nil, fmt.Errorf("reading colors file %s: %w", cfg.ColorsFile, err)
	}

	all := make([]seqio.ColoredSequence, len(seqs))
	for i := range seqs {
		all[i] = seqio.ColoredSequence{Sequence: seqs[i], Color: colors[i]}
	}
	return all, nil
}

func collectKmers(part []byte, k int, out map[string]struct{}) {
	dnaseq.KmersOf(part, k, func(kmer []byte) {
		out[string(kmer)] = struct{}{}
	})
}
