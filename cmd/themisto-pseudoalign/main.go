// Command themisto-pseudoalign pseudoaligns reads against a
// previously built Themisto index.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"

	"github.com/jtr-bio/themisto/internal/config"
	"github.com/jtr-bio/themisto/internal/index"
	"github.com/jtr-bio/themisto/internal/logx"
	"github.com/jtr-bio/themisto/internal/pseudoalign"
	"github.com/jtr-bio/themisto/internal/seqio"
)

var (
	queryCfg config.QueryConfig
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "themisto-pseudoalign",
	Short: "Pseudoalign reads against a Themisto index",
	RunE:  runPseudoalign,
}

func init() {
	config.BindQueryFlags(rootCmd.Flags(), &queryCfg)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print progress to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "themisto-pseudoalign:", err)
		os.Exit(1)
	}
}

func runPseudoalign(cmd *cobra.Command, args []string) error {
	logx.SetVerbose(verbose)
	if err := queryCfg.Validate(); err != nil {
		return err
	}

	idx, err := index.Load(queryCfg.IndexPrefix)
	if err != nil {
		return fmt.Errorf("loading index: %w", err)
	}
	logx.Vprintf("loaded index %s: %d nodes", queryCfg.IndexPrefix, idx.Graph.NumberOfSubsets())

	engine := pseudoalign.NewEngine(idx, pseudoalign.Config{
		NumThreads:         queryCfg.NumThreads,
		ReverseComplements: queryCfg.ReverseComplements,
		Threshold:          queryCfg.Threshold,
		SortOutput:         queryCfg.SortOutput,
		TempDir:            queryCfg.TempDir,
	})

	for i, qf := range queryCfg.QueryFiles {
		if err := runOneFile(cmd.Context(), engine, qf, outputPathFor(queryCfg, i)); err != nil {
			return fmt.Errorf("aligning %s: %w", qf, err)
		}
	}
	return nil
}

func outputPathFor(cfg config.QueryConfig, i int) string {
	if len(cfg.OutputFiles) == 0 {
		return ""
	}
	return cfg.OutputFiles[i]
}

func runOneFile(ctx context.Context, engine *pseudoalign.Engine, queryPath, outPath string) error {
	in, err := seqio.Open(queryPath)
	if err != nil {
		return err
	}
	defer in.Close()

	var out *os.File
	if outPath == "" {
		out = os.Stdout
	} else {
		out, err = os.Create(outPath)
		if err != nil {
			return err
		}
		defer out.Close()
	}

	var write io.Writer = out
	if queryCfg.GzipOutput {
		gw := gzip.NewWriter(out)
		defer gw.Close()
		write = gw
	}

	return engine.Run(ctx, in, write)
}
