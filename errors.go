package rowgrid

import (
	"errors"
	"fmt"

	"github.com/rowgrid/rowgrid/ingest"
	"github.com/rowgrid/rowgrid/store"
)

var (
	// ErrNotFound is returned when a row identity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned when operating on a closed database.
	ErrClosed = errors.New("database is closed")

	// ErrNoMeta is returned by Window when the store holds no metadata
	// record, i.e. no import has completed yet.
	ErrNoMeta = errors.New("no table metadata: import a file first")
)

// ErrAborted is returned by Import when the context is cancelled.
// Re-exported so callers can distinguish "cancelled" from "failed"
// without importing the ingest package.
var ErrAborted = ingest.ErrAborted

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, store.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	return err
}
