// Package logx is a thin structured-logging wrapper. It keeps the
// call-site shape of a verbosity-gated print helper (the idiom the
// rest of this codebase was built around) while backing it with
// zerolog instead of fmt.Fprintf to stderr.
package logx

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu      sync.RWMutex
	logger  = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: false}).With().Timestamp().Logger()
	verbose = false
)

// SetVerbose toggles whether Vprint* calls emit anything.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// SetOutput redirects log output, primarily for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).With().Timestamp().Logger()
}

// SetLevel parses and installs a zerolog level by name ("debug",
// "info", "warn", "error"); unknown names fall back to "info".
func SetLevel(name string) {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	mu.Lock()
	defer mu.Unlock()
	logger = logger.Level(lvl)
}

// Vprint writes s to the log at debug level iff verbose output is
// enabled.
func Vprint(s string) {
	mu.RLock()
	defer mu.RUnlock()
	if !verbose {
		return
	}
	logger.Debug().Msg(s)
}

// Vprintf formats and writes to the log at debug level iff verbose
// output is enabled.
func Vprintf(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if !verbose {
		return
	}
	logger.Debug().Msgf(format, v...)
}

// Vprintln is Vprintf without format directives.
func Vprintln(s string) {
	Vprint(s)
}

// Info logs at info level unconditionally, for build/query milestones
// that should appear regardless of -verbose.
func Info(s string) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Info().Msg(s)
}

// Infof is Info with formatting.
func Infof(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Info().Msgf(format, v...)
}

// Error logs at error level.
func Error(err error, s string) {
	mu.RLock()
	defer mu.RUnlock()
	logger.Error().Err(err).Msg(s)
}
