package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/jtr-bio/themisto/internal/seqio"
)

func TestBuildConfigValidateRequiresInputAndOutPrefix(t *testing.T) {
	cfg := DefaultBuildConfig
	err := cfg.Validate()
	require.Error(t, err)

	cfg.InputFiles = []string{"a.fasta"}
	err = cfg.Validate()
	require.Error(t, err)

	cfg.OutPrefix = "out"
	require.NoError(t, cfg.Validate())
}

func TestBuildConfigValidateRejectsBadK(t *testing.T) {
	cfg := DefaultBuildConfig
	cfg.InputFiles = []string{"a.fasta"}
	cfg.OutPrefix = "out"
	cfg.K = 0
	require.Error(t, cfg.Validate())
	cfg.K = 256
	require.Error(t, cfg.Validate())
}

func TestQueryConfigValidateMismatchedOutputCount(t *testing.T) {
	cfg := DefaultQueryConfig
	cfg.IndexPrefix = "idx"
	cfg.QueryFiles = []string{"q1.fasta", "q2.fasta"}
	cfg.OutputFiles = []string{"o1.txt"}
	require.Error(t, cfg.Validate())

	cfg.OutputFiles = []string{"o1.txt", "o2.txt"}
	require.NoError(t, cfg.Validate())
}

func TestQueryConfigValidateThresholdRange(t *testing.T) {
	cfg := DefaultQueryConfig
	cfg.IndexPrefix = "idx"
	cfg.QueryFiles = []string{"q.fasta"}
	cfg.Threshold = 0
	require.Error(t, cfg.Validate())
	cfg.Threshold = 1.5
	require.Error(t, cfg.Validate())
	cfg.Threshold = 0.5
	require.NoError(t, cfg.Validate())
}

func TestApplyNonACGTFlagSetsRandomizeSeeded(t *testing.T) {
	var cfg BuildConfig
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindBuildFlags(fs, &cfg)

	require.NoError(t, fs.Parse([]string{"--randomize-non-acgt"}))
	ApplyNonACGTFlag(fs, &cfg)
	require.Equal(t, seqio.RandomizeSeeded, cfg.NonACGTPolicy)
}

func TestApplyNonACGTFlagDefaultsToDeleteSplitting(t *testing.T) {
	var cfg BuildConfig
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindBuildFlags(fs, &cfg)

	require.NoError(t, fs.Parse(nil))
	ApplyNonACGTFlag(fs, &cfg)
	require.Equal(t, seqio.DeleteSplitting, cfg.NonACGTPolicy)
}

func TestBindBuildFlagsParsesValues(t *testing.T) {
	var cfg BuildConfig
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindBuildFlags(fs, &cfg)

	require.NoError(t, fs.Parse([]string{"--k=21", "--input=a.fasta,b.fasta", "--out-prefix=myindex"}))
	require.Equal(t, 21, cfg.K)
	require.Equal(t, []string{"a.fasta", "b.fasta"}, cfg.InputFiles)
	require.Equal(t, "myindex", cfg.OutPrefix)
}

func TestBindQueryFlagsParsesValues(t *testing.T) {
	var cfg QueryConfig
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindQueryFlags(fs, &cfg)

	require.NoError(t, fs.Parse([]string{"--index=idx", "--query=q.fasta", "--threshold=0.7", "--sort-output"}))
	require.Equal(t, "idx", cfg.IndexPrefix)
	require.Equal(t, []string{"q.fasta"}, cfg.QueryFiles)
	require.Equal(t, 0.7, cfg.Threshold)
	require.True(t, cfg.SortOutput)
}
