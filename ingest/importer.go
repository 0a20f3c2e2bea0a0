// Package ingest implements the streaming import pipeline: it parses a
// delimited source incrementally, writes bounded durable batches with
// backpressure, reports throttled progress, supports cooperative
// cancellation, and escalates once to an isolated runner if no row is
// observed before a watchdog timeout.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/rowgrid/rowgrid/model"
	"golang.org/x/time/rate"
)

// RowSink is the slice of the store contract the importer needs.
// *store.Store satisfies it.
type RowSink interface {
	// Clear removes every existing row; import fully replaces prior contents.
	Clear(ctx context.Context) error
	// BatchInsert durably writes one batch and returns assigned identities.
	BatchInsert(ctx context.Context, rows []map[string]string) ([]model.RowID, error)
	// PutMeta overwrites the singleton metadata record wholesale.
	PutMeta(ctx context.Context, meta model.TableMeta) error
}

// Importer streams delimited files into a RowSink.
type Importer struct {
	sink   RowSink
	logger *slog.Logger
}

// New creates an Importer writing to sink.
func New(sink RowSink, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Importer{sink: sink, logger: logger}
}

// Import loads src into the sink, replacing all prior rows, and writes the
// metadata record on completion. It returns nil once every row is durably
// stored and metadata is updated.
//
// Cancellation via ctx is cooperative: a batch write already in flight
// finishes, no further batch starts, and ErrAborted is returned. Store
// contents after an aborted or failed import are undefined until a later
// import completes; consumers must reload metadata rather than assume
// partial correctness.
func (imp *Importer) Import(ctx context.Context, src Source, optFns ...func(*Options)) error {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if src == nil {
		return &ValidationError{Reason: "source is nil"}
	}
	if opts.BatchSize <= 0 {
		return &ValidationError{Reason: fmt.Sprintf("batch size must be positive, got %d", opts.BatchSize)}
	}
	if opts.ChunkSizeBytes <= 0 {
		return &ValidationError{Reason: fmt.Sprintf("chunk size must be positive, got %d", opts.ChunkSizeBytes)}
	}
	size, err := src.Size(ctx)
	if err != nil {
		return &ValidationError{Reason: fmt.Sprintf("source is not readable: %v", err)}
	}
	if size == 0 {
		return &ValidationError{Reason: "source is empty"}
	}

	err = imp.runAttempt(ctx, src, opts, inlineRunner{})
	if errors.Is(err, errStallTimeout) {
		// Supervised restart: one alternate execution strategy after exactly
		// one stall signal. A full restart, not a resume.
		imp.attemptLogger(opts).Warn("import stalled, restarting on isolated runner",
			"timeout", opts.WatchdogTimeout)
		err = imp.runAttempt(ctx, src, opts, isolatedRunner{})
		if errors.Is(err, errStallTimeout) {
			return fmt.Errorf("import made no progress on either runner within %s", opts.WatchdogTimeout)
		}
	}
	return err
}

func (imp *Importer) runAttempt(ctx context.Context, src Source, opts Options, r runner) error {
	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// The watchdog runs from invocation until the first row is observed.
	watchdog := newStallWatchdog(opts.WatchdogTimeout, func() {
		cancel(errStallTimeout)
	})
	defer watchdog.stop()

	rc, err := src.Open(attemptCtx)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer rc.Close()

	// Import fully replaces prior contents; no merge semantics.
	if err := imp.sink.Clear(attemptCtx); err != nil {
		return imp.mapAttemptError(attemptCtx, &PersistenceError{Op: "clear", cause: err})
	}

	b := &batcher{
		imp:      imp,
		ctx:      attemptCtx,
		opts:     opts,
		watchdog: watchdog,
		throttle: rate.Sometimes{First: 1, Interval: progressInterval},
	}

	if err := r.run(attemptCtx, rc, opts, b.header, b.row); err != nil {
		return imp.mapAttemptError(attemptCtx, err)
	}
	if err := b.finish(); err != nil {
		return imp.mapAttemptError(attemptCtx, err)
	}

	imp.attemptLogger(opts).Info("import complete", "rows", b.total, "columns", len(b.columns), "batches", b.batches)
	return nil
}

// attemptLogger resolves the logger for one import: the per-import override
// when set, the importer's otherwise.
func (imp *Importer) attemptLogger(opts Options) *slog.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	return imp.logger
}

// mapAttemptError normalizes an attempt failure: cancellation by the caller
// becomes ErrAborted, the watchdog cause passes through for the retry
// decision, everything else is returned as-is.
func (imp *Importer) mapAttemptError(attemptCtx context.Context, err error) error {
	cause := context.Cause(attemptCtx)
	switch {
	case errors.Is(cause, errStallTimeout):
		return errStallTimeout
	case cause != nil:
		return fmt.Errorf("%w: %w", ErrAborted, cause)
	default:
		return err
	}
}

// batcher accumulates parsed records and flushes them as durable batches.
type batcher struct {
	imp      *Importer
	ctx      context.Context
	opts     Options
	watchdog *stallWatchdog
	throttle rate.Sometimes

	columns []string
	buf     []map[string]string
	total   uint64
	batches int
}

func (b *batcher) header(record []string) error {
	// First parsed record establishes the column names.
	b.columns = make([]string, len(record))
	copy(b.columns, record)
	b.buf = make([]map[string]string, 0, b.opts.BatchSize)
	return nil
}

func (b *batcher) row(record []string) error {
	b.watchdog.stop()

	data := make(map[string]string, len(b.columns))
	for i, col := range b.columns {
		if i < len(record) {
			data[col] = record[i]
		} else {
			data[col] = "" // ragged row: missing trailing fields read as empty
		}
	}
	b.buf = append(b.buf, data)

	if len(b.buf) >= b.opts.BatchSize {
		return b.flush()
	}
	return nil
}

func (b *batcher) flush() error {
	if len(b.buf) == 0 {
		return nil
	}
	if _, err := b.imp.sink.BatchInsert(b.ctx, b.buf); err != nil {
		return &PersistenceError{Op: "batch insert", cause: err}
	}
	b.total += uint64(len(b.buf))
	b.batches++
	b.buf = b.buf[:0]

	b.reportProgress()

	// Cooperative point between batches.
	runtime.Gosched()
	return nil
}

func (b *batcher) reportProgress() {
	if b.opts.Progress == nil {
		return
	}
	total := b.total
	b.throttle.Do(func() {
		b.opts.Progress(total)
	})
}

// finish flushes the partial tail batch and writes metadata in one final
// step, so a partially-imported state is never observable as complete.
func (b *batcher) finish() error {
	if b.columns == nil {
		return &ValidationError{Reason: "source has no header row"}
	}
	if err := b.flush(); err != nil {
		return err
	}
	meta := model.TableMeta{Columns: b.columns, RowCount: b.total}
	if err := b.imp.sink.PutMeta(b.ctx, meta); err != nil {
		return &PersistenceError{Op: "put metadata", cause: err}
	}
	// Guaranteed final progress call with the true total.
	if b.opts.Progress != nil {
		b.opts.Progress(b.total)
	}
	return nil
}
