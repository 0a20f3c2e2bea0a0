package ingest

import (
	"log/slog"
	"time"
)

// ProgressFunc receives the cumulative number of imported rows. Intermediate
// calls are throttled and may skip counts; the final call always carries the
// true total.
type ProgressFunc func(rows uint64)

// Options configures a single import.
type Options struct {
	// BatchSize is the number of parsed rows buffered before a durable batch
	// write. It caps peak memory and provides backpressure. Must be > 0.
	BatchSize int

	// ChunkSizeBytes bounds the read buffer so the source is never fully
	// materialized. Must be > 0.
	ChunkSizeBytes int

	// Comma is the field delimiter.
	Comma rune

	// Progress, if set, receives cumulative row counts (throttled to
	// progressInterval) plus one guaranteed final call.
	Progress ProgressFunc

	// WatchdogTimeout is how long the import may run without observing a
	// single row before the attempt is aborted and restarted once on the
	// isolated runner. The timer is cleared the moment the first row arrives.
	WatchdogTimeout time.Duration

	// Logger receives structured import logs. Nil disables logging.
	Logger *slog.Logger
}

// DefaultOptions returns the default import options.
var DefaultOptions = Options{
	BatchSize:       100,
	ChunkSizeBytes:  256 * 1024,
	Comma:           ',',
	WatchdogTimeout: 5 * time.Second,
}

// progressInterval is the minimum spacing between intermediate progress
// callbacks.
const progressInterval = 100 * time.Millisecond

// WithBatchSize sets the rows-per-batch bound.
func WithBatchSize(n int) func(*Options) {
	return func(o *Options) {
		o.BatchSize = n
	}
}

// WithChunkSize sets the read-buffer bound in bytes.
func WithChunkSize(n int) func(*Options) {
	return func(o *Options) {
		o.ChunkSizeBytes = n
	}
}

// WithComma sets the field delimiter.
func WithComma(c rune) func(*Options) {
	return func(o *Options) {
		o.Comma = c
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) func(*Options) {
	return func(o *Options) {
		o.Progress = fn
	}
}

// WithWatchdogTimeout sets the no-progress timeout.
func WithWatchdogTimeout(d time.Duration) func(*Options) {
	return func(o *Options) {
		o.WatchdogTimeout = d
	}
}

// WithLogger sets the import logger.
func WithLogger(logger *slog.Logger) func(*Options) {
	return func(o *Options) {
		o.Logger = logger
	}
}
