package rowgrid

import (
	"context"
	"sync"

	"github.com/rowgrid/rowgrid/ingest"
	"github.com/rowgrid/rowgrid/model"
	"github.com/rowgrid/rowgrid/store"
	"github.com/rowgrid/rowgrid/viewcache"
)

// DB is an embedded row database backed by a write-ahead log and snapshots
// in a local directory. One DB holds at most one imported dataset at a time;
// a new import fully replaces the previous contents.
type DB struct {
	mu       sync.Mutex // serializes Import and Close
	store    *store.Store
	importer *ingest.Importer
	logger   *Logger
	closed   bool
}

// Open opens (or creates) a database in dir, replaying any write-ahead log
// left by a crash. The returned DB must be Close()'d to release the log
// file.
func Open(dir string, optFns ...Option) (*DB, error) {
	opts := applyOptions(optFns)

	storeOptFns := opts.storeOptions
	if opts.codec != nil {
		storeOptFns = append(storeOptFns, store.WithCodec(opts.codec))
	}
	storeOptFns = append(storeOptFns, store.WithLogger(opts.logger.Logger))

	s, err := store.Open(dir, storeOptFns...)
	if err != nil {
		return nil, translateError(err)
	}

	return &DB{
		store:    s,
		importer: ingest.New(s, opts.logger.Logger),
		logger:   opts.logger,
	}, nil
}

// Import streams src into the database, replacing all prior rows, and
// writes the metadata record on completion. Windows open on the previous
// dataset must be rebuilt afterwards; Watch signals when metadata changes.
//
// Import returns ErrAborted when ctx is cancelled. Store contents after an
// aborted or failed import are undefined until a later import completes.
func (db *DB) Import(ctx context.Context, src ingest.Source, optFns ...func(*ingest.Options)) error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return ErrClosed
	}
	db.mu.Unlock()

	err := db.importer.Import(ctx, src, optFns...)

	var rows uint64
	if meta, ok, _ := db.store.Meta(ctx); ok {
		rows = meta.RowCount
	}
	db.logger.LogImport(ctx, rows, err)
	return err
}

// Window creates a windowed cache over the currently imported dataset,
// wired to the store's stable scan order and update-by-identity. It returns
// ErrNoMeta when no import has completed yet.
//
// The window snapshots the dataset identity (columns, row count) at call
// time; after a later import completes, call Window again or Reset the
// existing one with the new identity.
func (db *DB) Window(ctx context.Context, optFns ...func(*viewcache.Options)) (*viewcache.Window, error) {
	meta, ok, err := db.store.Meta(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	if !ok {
		return nil, ErrNoMeta
	}

	optFns = append([]func(*viewcache.Options){
		viewcache.WithLogger(db.logger.Logger),
	}, optFns...)

	return viewcache.New(meta.Columns, meta.RowCount, db.store.Scan, db.store.UpdateRow, optFns...), nil
}

// Get retrieves a row by identity.
func (db *DB) Get(ctx context.Context, id model.RowID) (model.Row, error) {
	row, err := db.store.Get(ctx, id)
	return row, translateError(err)
}

// Scan returns up to limit rows starting at offset in stable ascending
// identity order.
func (db *DB) Scan(ctx context.Context, offset, limit uint64) ([]model.Row, error) {
	rows, err := db.store.Scan(ctx, offset, limit)
	return rows, translateError(err)
}

// Meta returns the current metadata record. ok is false when no import has
// completed yet.
func (db *DB) Meta(ctx context.Context) (meta model.TableMeta, ok bool, err error) {
	meta, ok, err = db.store.Meta(ctx)
	return meta, ok, translateError(err)
}

// Watch returns a change feed carrying store events (metadata written, row
// updated, store cleared) and a cancel function releasing the subscription.
// Delivery is best-effort: slow consumers may miss intermediate events.
func (db *DB) Watch() (<-chan store.Event, func()) {
	return db.store.Watch()
}

// Store exposes the underlying store for callers that need the full
// contract, e.g. to drive an Importer or Window directly.
func (db *DB) Store() *store.Store {
	return db.store
}

// Close flushes and closes the write-ahead log. The DB is unusable
// afterwards.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true

	return db.store.Close()
}
