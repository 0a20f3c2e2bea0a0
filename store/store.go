// Package store implements the durable, identity-indexed row store backing
// rowgrid.
//
// Rows are held in memory for serving, with durability provided by a
// write-ahead log and periodic snapshots: every mutation is logged before it
// is applied, and PutMeta (the import-completion barrier) captures a snapshot
// and truncates the log. Row identities are strictly increasing and survive
// Clear, so the ascending-identity scan order is stable for the lifetime of a
// dataset.
package store

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/rowgrid/rowgrid/codec"
	"github.com/rowgrid/rowgrid/model"
	"github.com/rowgrid/rowgrid/wal"
)

// Store is a durable row collection plus one table-metadata record.
//
// All methods are safe for concurrent use. Mutations are independent
// transactions; no transaction spans multiple calls.
type Store struct {
	mu     sync.RWMutex
	rows   map[model.RowID]map[string]string
	live   *roaring64.Bitmap
	nextID uint64
	meta   *model.TableMeta

	dir    string
	log    *wal.Log
	codec  codec.Codec
	opts   Options
	logger *slog.Logger
	closed bool

	watchMu   sync.Mutex
	watchers  map[int]chan Event
	watchNext int
}

// Open opens (or creates) a store in dir and recovers its state from the
// snapshot and write-ahead log.
func Open(dir string, optFns ...func(*Options)) (*Store, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	log, err := wal.Open(func(o *wal.Options) {
		o.Dir = dir
		o.Codec = opts.Codec.Name()
		o.Compress = opts.CompressWAL
		o.SyncOnCommit = opts.SyncWrites
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open write-ahead log: %w", err)
	}

	s := &Store{
		rows:     make(map[model.RowID]map[string]string),
		live:     roaring64.NewBitmap(),
		dir:      dir,
		log:      log,
		codec:    opts.Codec,
		opts:     opts,
		logger:   logger,
		watchers: make(map[int]chan Event),
	}

	if err := s.recover(); err != nil {
		_ = log.Close()
		return nil, err
	}

	logger.Info("store opened", "dir", dir, "rows", s.live.GetCardinality(), "nextID", s.nextID)
	return s, nil
}

// Len returns the number of live rows.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.live.GetCardinality())
}

// Clear removes every row. Identities are not reset: rows inserted after a
// clear continue the previous sequence, so stale identities can never alias
// new rows.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if err := s.log.AppendClear(); err != nil {
		return fmt.Errorf("failed to log clear: %w", err)
	}
	s.rows = make(map[model.RowID]map[string]string)
	s.live = roaring64.NewBitmap()

	s.notify(Event{Type: EventCleared})
	return nil
}

// BatchInsert durably stores the given row data mappings as one transaction
// and returns their assigned identities in input order.
func (s *Store) BatchInsert(ctx context.Context, rows []map[string]string) ([]model.RowID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	startID := s.nextID
	ids := make([]model.RowID, len(rows))
	payloads := make([][]byte, len(rows))
	for i, data := range rows {
		s.nextID++
		ids[i] = model.RowID(s.nextID)
		b, err := s.codec.Marshal(data)
		if err != nil {
			s.nextID = startID
			return nil, fmt.Errorf("failed to encode row: %w", err)
		}
		payloads[i] = b
	}

	if err := s.log.AppendBatch(ids, payloads); err != nil {
		return nil, fmt.Errorf("failed to log batch: %w", err)
	}

	for i, id := range ids {
		s.rows[id] = rows[i]
		s.live.Add(uint64(id))
	}
	return ids, nil
}

// Get returns the row with the given identity.
func (s *Store) Get(ctx context.Context, id model.RowID) (model.Row, error) {
	if err := ctx.Err(); err != nil {
		return model.Row{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Row{}, ErrClosed
	}

	data, ok := s.rows[id]
	if !ok {
		return model.Row{}, ErrNotFound
	}
	return model.Row{ID: id, Data: maps.Clone(data)}, nil
}

// Scan returns up to limit rows starting at the given offset in stable scan
// order (ascending identity). Identities never change and rows are never
// physically reordered, so the same offset resolves to the same row across
// calls for the lifetime of a dataset, including under concurrent updates.
func (s *Store) Scan(ctx context.Context, offset, limit uint64) ([]model.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	total := s.live.GetCardinality()
	if offset >= total || limit == 0 {
		return nil, nil
	}

	start, err := s.live.Select(offset)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scan offset %d: %w", offset, err)
	}

	out := make([]model.Row, 0, min(limit, total-offset))
	it := s.live.Iterator()
	it.AdvanceIfNeeded(start)
	for it.HasNext() && uint64(len(out)) < limit {
		id := model.RowID(it.Next())
		out = append(out, model.Row{ID: id, Data: maps.Clone(s.rows[id])})
	}
	return out, nil
}

// UpdateRow durably replaces the full data mapping of an existing row.
func (s *Store) UpdateRow(ctx context.Context, id model.RowID, data map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if _, ok := s.rows[id]; !ok {
		return ErrNotFound
	}

	b, err := s.codec.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode row: %w", err)
	}
	if err := s.log.AppendUpdate(id, b); err != nil {
		return fmt.Errorf("failed to log update: %w", err)
	}
	s.rows[id] = maps.Clone(data)

	s.notify(Event{Type: EventRowUpdated, RowID: id})
	return nil
}

// Meta returns the singleton metadata record. ok is false when no import has
// completed yet.
func (s *Store) Meta(ctx context.Context) (meta model.TableMeta, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return model.TableMeta{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.TableMeta{}, false, ErrClosed
	}
	if s.meta == nil {
		return model.TableMeta{}, false, nil
	}
	return *s.meta, true, nil
}

// PutMeta overwrites the singleton metadata record wholesale. It is the
// import-completion barrier: the metadata is logged, the full store state is
// captured in a snapshot, the log is truncated, and change-feed subscribers
// are notified, in that order.
func (s *Store) PutMeta(ctx context.Context, meta model.TableMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	b, err := s.codec.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := s.log.AppendMeta(b); err != nil {
		return fmt.Errorf("failed to log metadata: %w", err)
	}
	s.meta = &meta

	if err := s.writeSnapshotLocked(); err != nil {
		// The WAL still holds everything; the next PutMeta or reopen retries.
		s.logger.Warn("snapshot failed, keeping write-ahead log", "error", err)
	} else if err := s.log.Checkpoint(); err != nil {
		return fmt.Errorf("failed to checkpoint log: %w", err)
	}

	s.notify(Event{Type: EventMetaUpdated, Meta: meta})
	s.logger.Info("metadata updated", "columns", len(meta.Columns), "rows", meta.RowCount)
	return nil
}

// Close releases the store. Further calls fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.watchMu.Lock()
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
	s.watchMu.Unlock()

	return s.log.Close()
}
