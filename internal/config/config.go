// Package config defines Themisto's build-time and query-time option
// structs, their validation, and the pflag bindings the cmd/ binaries
// register them with.
package config

import (
	"github.com/spf13/pflag"

	"github.com/jtr-bio/themisto/internal/seqio"
	"github.com/jtr-bio/themisto/internal/themerr"
)

// BuildConfig holds every option of the build command.
type BuildConfig struct {
	K                        int
	ReverseComplements       bool
	NonACGTPolicy            seqio.NonACGTPolicy
	ColorsetSamplingDistance int
	MemoryBudgetBytes        int64
	NumThreads               int
	TempDir                  string
	Seed                     uint64

	InputFiles []string
	ColorsFile string
	OutPrefix  string
}

// DefaultBuildConfig holds the defaults the flag bindings fall back
// to when a flag is not set.
var DefaultBuildConfig = BuildConfig{
	K:                        31,
	ReverseComplements:       false,
	NonACGTPolicy:            seqio.DeleteSplitting,
	ColorsetSamplingDistance: 1,
	MemoryBudgetBytes:        4 << 30,
	NumThreads:               4,
	TempDir:                  "",
	Seed:                     1,
}

// Validate reports configuration errors before any I/O heavy work
// begins.
func (c *BuildConfig) Validate() error {
	if c.K < 1 || c.K > 255 {
		return &themerr.ConfigError{Option: "k", Msg: "must be between 1 and 255"}
	}
	if c.ColorsetSamplingDistance < 1 {
		return &themerr.ConfigError{Option: "colorset-sampling-distance", Msg: "must be positive"}
	}
	if len(c.InputFiles) == 0 {
		return &themerr.ConfigError{Option: "input", Msg: "at least one input sequence file is required"}
	}
	if c.OutPrefix == "" {
		return &themerr.ConfigError{Option: "out-prefix", Msg: "required"}
	}
	return nil
}

// QueryConfig holds every option of the pseudoalign command.
type QueryConfig struct {
	IndexPrefix        string
	QueryFiles         []string
	OutputFiles        []string
	NumThreads         int
	TempDir            string
	ReverseComplements bool
	Threshold          float64 // 1.0 == intersection mode
	SortOutput         bool
	GzipOutput         bool
}

// DefaultQueryConfig mirrors DefaultBuildConfig's role for query-time
// options.
var DefaultQueryConfig = QueryConfig{
	NumThreads: 4,
	Threshold:  1.0,
}

// Validate checks for conflicting options and out-of-range values.
func (c *QueryConfig) Validate() error {
	if c.IndexPrefix == "" {
		return &themerr.ConfigError{Option: "index", Msg: "required"}
	}
	if len(c.QueryFiles) == 0 {
		return &themerr.ConfigError{Option: "query", Msg: "at least one query file is required"}
	}
	if len(c.OutputFiles) != 0 && len(c.OutputFiles) != len(c.QueryFiles) {
		return &themerr.ConfigError{Option: "out", Msg: "must name one output file per query file, or none"}
	}
	if c.Threshold <= 0 || c.Threshold > 1 {
		return &themerr.ConfigError{Option: "threshold", Msg: "must be in (0,1]"}
	}
	return nil
}

// BindBuildFlags registers every BuildConfig field on fs, writing
// parsed values into cfg; call fs.Parse, then ApplyNonACGTFlag, then
// Validate.
func BindBuildFlags(fs *pflag.FlagSet, cfg *BuildConfig) {
	fs.IntVar(&cfg.K, "k", DefaultBuildConfig.K, "node (k-mer) length")
	fs.BoolVar(&cfg.ReverseComplements, "reverse-complements", DefaultBuildConfig.ReverseComplements, "also index reverse complements")
	fs.IntVar(&cfg.ColorsetSamplingDistance, "colorset-sampling-distance", DefaultBuildConfig.ColorsetSamplingDistance, "d: mark every d-th non-core node as core too")
	fs.Int64Var(&cfg.MemoryBudgetBytes, "mem-bytes", DefaultBuildConfig.MemoryBudgetBytes, "memory budget in bytes for external sorting")
	fs.IntVar(&cfg.NumThreads, "threads", DefaultBuildConfig.NumThreads, "number of worker threads")
	fs.StringVar(&cfg.TempDir, "temp-dir", DefaultBuildConfig.TempDir, "directory for external-sort temp files")
	fs.Uint64Var(&cfg.Seed, "seed", DefaultBuildConfig.Seed, "RNG seed for the randomize-with-seeded-rng non-ACGT policy")
	fs.StringVar(&cfg.ColorsFile, "colors-file", "", "one color per input sequence; defaults to 0,1,2,...")
	fs.StringVar(&cfg.OutPrefix, "out-prefix", "", "output index path prefix")
	fs.StringSliceVar(&cfg.InputFiles, "input", nil, "input FASTA/FASTQ file(s), plain or gzipped")

	fs.Bool("randomize-non-acgt", false, "randomize non-ACGT bases instead of splitting on them")
	cfg.NonACGTPolicy = seqio.DeleteSplitting
}

// ApplyNonACGTFlag resolves the --randomize-non-acgt flag into
// cfg.NonACGTPolicy after fs.Parse has run (pflag has no direct
// "bool into non-default enum" binding, so this is a thin second
// pass).
func ApplyNonACGTFlag(fs *pflag.FlagSet, cfg *BuildConfig) {
	if v, err := fs.GetBool("randomize-non-acgt"); err == nil && v {
		cfg.NonACGTPolicy = seqio.RandomizeSeeded
	}
}

// BindQueryFlags registers every QueryConfig field on fs.
func BindQueryFlags(fs *pflag.FlagSet, cfg *QueryConfig) {
	fs.StringVar(&cfg.IndexPrefix, "index", "", "index file path prefix (<prefix>.tdbg/.tcolors)")
	fs.StringSliceVar(&cfg.QueryFiles, "query", nil, "query FASTA/FASTQ file(s)")
	fs.StringSliceVar(&cfg.OutputFiles, "out", nil, "output file(s), one per query file")
	fs.IntVar(&cfg.NumThreads, "threads", DefaultQueryConfig.NumThreads, "number of worker threads")
	fs.StringVar(&cfg.TempDir, "temp-dir", "", "directory for the --sort-output temp file")
	fs.BoolVar(&cfg.ReverseComplements, "reverse-complements", false, "also search the reverse complement of every query")
	fs.Float64Var(&cfg.Threshold, "threshold", DefaultQueryConfig.Threshold, "pseudoalignment vote threshold in (0,1]; 1 means full intersection")
	fs.BoolVar(&cfg.SortOutput, "sort-output", false, "restore ascending query-id order in the output")
	fs.BoolVar(&cfg.GzipOutput, "gzip-output", false, "gzip-wrap the output stream")
}
