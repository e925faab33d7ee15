// Package themerr defines the typed error kinds surfaced to the CLI
// layer. Builder and query pipelines return these rather than doing
// any best-effort recovery; a worker that hits one aborts its batch.
package themerr

import "fmt"

// InputFormatError reports a malformed FASTA/FASTQ record, an
// unparseable color line, or a sequence/color count mismatch. Carries
// the offending line number when known.
type InputFormatError struct {
	File string
	Line int
	Msg  string
}

func (e *InputFormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Msg)
}

// ConfigError reports an invalid or conflicting build/query option,
// detected before any I/O heavy work begins.
type ConfigError struct {
	Option string
	Msg    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("option %s: %s", e.Option, e.Msg)
}

// ResourceError reports an out-of-disk or allocation failure while
// writing temp files or growing in-memory structures.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource error during %s: %s", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// InvariantViolation reports a detected internal bug: a dead end in
// color-set resolution, a wrong coloring-variant tag on load, or any
// other condition the implementation asserts can never happen. It is
// returned as an ordinary error value, which the CLI reports before
// exiting non-zero; it is never used for expected, recoverable
// conditions.
type InvariantViolation struct {
	Where string
	Msg   string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Where, e.Msg)
}

// Bug panics with an *InvariantViolation, so the panic value carries
// the same typed error a returned violation would. Nothing in cmd/
// recovers it: the panic ends the process.
func Bug(where, format string, v ...interface{}) {
	panic(&InvariantViolation{Where: where, Msg: fmt.Sprintf(format, v...)})
}
