package logx

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVprintRespectsVerboseFlag(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	SetVerbose(false)
	Vprint("should not appear")
	require.Empty(t, buf.String())

	SetVerbose(true)
	defer SetVerbose(false)
	Vprint("should appear")
	require.Contains(t, buf.String(), "should appear")
}

func TestInfoAlwaysLogs(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	SetVerbose(false)
	Info("milestone reached")
	require.Contains(t, buf.String(), "milestone reached")
}

func TestSetLevelFallsBackToInfoOnUnknownName(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetLevel("not-a-real-level")
	Info("still logs")
	require.Contains(t, buf.String(), "still logs")
}
