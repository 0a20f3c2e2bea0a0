// Package viewcache implements the windowed row cache serving a virtualized
// grid viewport.
//
// The cache is a sparse mapping from logical row index to row, keyed by
// position in the store's stable scan order. It fetches only the currently
// needed index range, discards superseded fetch results via a monotonically
// increasing token (last request wins), self-prunes under a hard entry cap
// without evicting visible or near-visible rows, and supports optimistic,
// rollback-capable edits.
package viewcache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/rowgrid/rowgrid/model"
)

// ScanFunc fetches limit rows starting at offset in the store's stable scan
// order. The store guarantees the same offset resolves to the same row
// across calls for the lifetime of a dataset.
type ScanFunc func(ctx context.Context, offset, limit uint64) ([]model.Row, error)

// UpdateFunc persists a full replacement of a row's data mapping by
// identity.
type UpdateFunc func(ctx context.Context, id model.RowID, data map[string]string) error

// Window serves the best-available row for every index in a continuously
// updating visible range. Safe for concurrent use; its only suspension
// points are the store calls, and no lock is held across them.
type Window struct {
	mu       sync.Mutex
	columns  []string
	rowCount uint64
	entries  map[uint64]model.Row
	token    uint64
	needMin  uint64
	needMax  uint64
	needSet  bool
	edit     *editState

	scan   ScanFunc
	update UpdateFunc
	errCh  chan error
	opts   Options
	logger *slog.Logger
}

// New creates a Window over a dataset with the given identity. scan serves
// ranged fetches; update persists edits (may be nil for read-only windows).
func New(columns []string, rowCount uint64, scan ScanFunc, update UpdateFunc, optFns ...func(*Options)) *Window {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Window{
		columns:  append([]string(nil), columns...),
		rowCount: rowCount,
		entries:  make(map[uint64]model.Row),
		scan:     scan,
		update:   update,
		errCh:    make(chan error, opts.ErrorBuffer),
		opts:     opts,
		logger:   logger,
	}
}

// Len returns the current number of cached entries.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Get returns the cached row at the logical index. ok is false while the
// row is still loading (or outside the cached window).
func (w *Window) Get(index uint64) (row model.Row, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	row, ok = w.entries[index]
	return row, ok
}

// Errors is the window's error feed: non-supersession fetch failures and
// edit persistence failures. Delivery is best-effort; rendering is never
// interrupted (affected rows stay in loading state).
func (w *Window) Errors() <-chan error {
	return w.errCh
}

// SetViewport declares the currently visible index range [first, last] and,
// if any needed index is missing from the cache, performs one superseding
// ranged fetch. It blocks until the fetch resolves; drive it from the host's
// scroll handler goroutine. A call made while an earlier fetch is still in
// flight supersedes it: only the most recent request's response mutates the
// cache, earlier responses are discarded on arrival.
func (w *Window) SetViewport(ctx context.Context, first, last uint64) error {
	if first > last {
		return fmt.Errorf("invalid viewport: first %d > last %d", first, last)
	}

	w.mu.Lock()
	if w.rowCount == 0 {
		w.mu.Unlock()
		return nil
	}

	// Needed range = visible range widened by the prefetch margin, clamped
	// to the dataset.
	needMin := uint64(0)
	if first > w.opts.Prefetch {
		needMin = first - w.opts.Prefetch
	}
	needMax := last + w.opts.Prefetch
	if needMax > w.rowCount-1 {
		needMax = w.rowCount - 1
	}
	if needMin > needMax {
		needMin = needMax
	}
	w.needMin, w.needMax, w.needSet = needMin, needMax, true

	// Fast path: everything needed is already cached.
	missing := false
	for i := needMin; i <= needMax; i++ {
		if _, ok := w.entries[i]; !ok {
			missing = true
			break
		}
	}
	if !missing {
		w.mu.Unlock()
		return nil
	}

	// Supersede any in-flight fetch and issue exactly one ranged query.
	w.token++
	token := w.token
	w.mu.Unlock()

	rows, err := w.scan(ctx, needMin, needMax-needMin+1)

	w.mu.Lock()
	defer w.mu.Unlock()

	if token != w.token {
		// A newer request exists; this result is stale. Unmerged results are
		// inert, so discarding is safe.
		return nil
	}
	if err != nil {
		w.reportError(fmt.Errorf("viewport fetch [%d,%d] failed: %w", needMin, needMax, err))
		return nil
	}

	for i, row := range rows {
		w.entries[needMin+uint64(i)] = row
	}
	w.pruneLocked()
	return nil
}

// pruneLocked enforces retention after a merge: entries outside the safety
// window are dropped, then, if the cache still exceeds the cap, entries
// outside the needed range are evicted farthest-from-needed-range first.
// Needed (visible + prefetch) entries are never evicted.
func (w *Window) pruneLocked() {
	if !w.needSet {
		return
	}

	safeMin := uint64(0)
	if w.needMin > w.opts.KeepBefore {
		safeMin = w.needMin - w.opts.KeepBefore
	}
	safeMax := w.needMax + w.opts.KeepAfter

	for idx := range w.entries {
		if idx < safeMin || idx > safeMax {
			delete(w.entries, idx)
		}
	}

	if w.opts.MaxEntries <= 0 || len(w.entries) <= w.opts.MaxEntries {
		return
	}

	type candidate struct {
		idx  uint64
		dist uint64
	}
	candidates := make([]candidate, 0, len(w.entries))
	for idx := range w.entries {
		if idx >= w.needMin && idx <= w.needMax {
			continue
		}
		var d uint64
		if idx < w.needMin {
			d = w.needMin - idx
		} else {
			d = idx - w.needMax
		}
		candidates = append(candidates, candidate{idx: idx, dist: d})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist > candidates[j].dist })

	for _, c := range candidates {
		if len(w.entries) <= w.opts.MaxEntries {
			break
		}
		delete(w.entries, c.idx)
	}
}

// Reset re-binds the window when the dataset identity (columns, rowCount)
// changes: the cache is discarded entirely, any in-flight fetch is
// superseded, and edit state is cleared, so nothing leaks across datasets.
// A Reset to the same identity is a no-op.
func (w *Window) Reset(columns []string, rowCount uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if rowCount == w.rowCount && equalColumns(columns, w.columns) {
		return
	}

	w.columns = append([]string(nil), columns...)
	w.rowCount = rowCount
	w.entries = make(map[uint64]model.Row)
	w.needSet = false
	w.edit = nil
	w.token++ // invalidates any in-flight fetch

	w.logger.Debug("window reset", "columns", len(columns), "rows", rowCount)
}

// Columns returns the dataset's ordered column list.
func (w *Window) Columns() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.columns...)
}

// RowCount returns the dataset's total row count.
func (w *Window) RowCount() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

func (w *Window) reportError(err error) {
	select {
	case w.errCh <- err:
	default:
		// Feed full; rows stay in loading state either way.
	}
	w.logger.Warn("window error", "error", err)
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
