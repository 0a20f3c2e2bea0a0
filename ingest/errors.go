package ingest

import (
	"errors"
	"fmt"
)

// ErrAborted is returned when an import is cancelled through its context.
// Callers can distinguish it from a failure (e.g. to render "cancelled").
var ErrAborted = errors.New("import aborted")

// errStallTimeout is the internal watchdog signal: no row was observed
// before the timeout. It is never surfaced; it triggers exactly one restart
// on the isolated runner.
var errStallTimeout = errors.New("no rows observed before watchdog timeout")

// ValidationError indicates invalid import arguments. It is fatal and
// immediate; nothing was written.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid import arguments: %s", e.Reason)
}

// ParseError indicates malformed input. The import is aborted; syntax errors
// are not eligible for the stall fallback.
//
// The underlying error (typically a *csv.ParseError) is available via
// errors.Unwrap.
type ParseError struct {
	cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse source: %v", e.cause)
}

func (e *ParseError) Unwrap() error { return e.cause }

// PersistenceError indicates a store write failure. The import is aborted;
// write failures are not eligible for the stall fallback.
//
// The underlying store error is available via errors.Unwrap.
type PersistenceError struct {
	Op    string
	cause error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.cause)
}

func (e *PersistenceError) Unwrap() error { return e.cause }
