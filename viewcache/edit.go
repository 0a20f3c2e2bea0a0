package viewcache

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/rowgrid/rowgrid/model"
)

var (
	// ErrNoEdit is returned by CommitEdit when no edit is in progress.
	ErrNoEdit = errors.New("no edit in progress")
	// ErrEditInProgress is returned by BeginEdit while another edit is open.
	ErrEditInProgress = errors.New("an edit is already in progress")
	// ErrRowNotLoaded is returned by BeginEdit for an uncached index.
	ErrRowNotLoaded = errors.New("row is not loaded")
)

type editState struct {
	index    uint64
	column   string
	snapshot map[string]string // pre-edit data, restored verbatim on rollback
	token    uint64            // window token at begin; a reset invalidates the edit
}

// BeginEdit starts editing the given column of the row at index. The row
// must already be present in the cache; its pre-edit data is snapshotted for
// rollback. At most one (row, column) pair may be in edit state at a time.
func (w *Window) BeginEdit(index uint64, column string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.edit != nil {
		return ErrEditInProgress
	}
	row, ok := w.entries[index]
	if !ok {
		return fmt.Errorf("%w: index %d", ErrRowNotLoaded, index)
	}
	if _, ok := row.Data[column]; !ok {
		return fmt.Errorf("row %d has no column %q", index, column)
	}

	w.edit = &editState{
		index:    index,
		column:   column,
		snapshot: maps.Clone(row.Data),
		token:    w.token,
	}
	return nil
}

// CancelEdit abandons the edit without touching the cache.
func (w *Window) CancelEdit() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.edit = nil
}

// CommitEdit optimistically replaces the edited row's full data mapping with
// data, then persists it by row identity.
//
// On persistence success external listeners are notified via OnRowSaved. On
// failure the cached row is rolled back to the exact pre-edit snapshot (full
// replace, not merge) and the failure is surfaced on the error feed — never
// as a hard fault. Either way the edit state is cleared.
func (w *Window) CommitEdit(ctx context.Context, data map[string]string) error {
	w.mu.Lock()
	if w.edit == nil {
		w.mu.Unlock()
		return ErrNoEdit
	}
	edit := w.edit
	w.edit = nil

	row, ok := w.entries[edit.index]
	if !ok || edit.token != w.token {
		// The dataset was reset (or the row pruned) since BeginEdit; there
		// is nothing coherent to write.
		w.mu.Unlock()
		return ErrRowNotLoaded
	}

	// Optimistic: the grid shows the new value immediately.
	updated := model.Row{ID: row.ID, Data: maps.Clone(data)}
	w.entries[edit.index] = updated
	w.mu.Unlock()

	if w.update == nil {
		return nil
	}
	err := w.update(ctx, row.ID, updated.Data)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err != nil {
		// Roll back only if the dataset has not been reset underneath us.
		if edit.token == w.token {
			if cur, ok := w.entries[edit.index]; ok && cur.ID == row.ID {
				w.entries[edit.index] = model.Row{ID: row.ID, Data: edit.snapshot}
			}
		}
		w.reportError(fmt.Errorf("failed to persist edit of row %d: %w", row.ID, err))
		return nil
	}

	if w.opts.OnRowSaved != nil {
		w.opts.OnRowSaved(updated)
	}
	return nil
}
