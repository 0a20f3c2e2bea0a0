package store

import (
	"context"
	"testing"

	"github.com/rowgrid/rowgrid/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchInsertAssignsMonotonicIDs(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ids, err := s.BatchInsert(ctx, []map[string]string{
		{"a": "1"},
		{"a": "2"},
	})
	require.NoError(t, err)
	require.Equal(t, []model.RowID{1, 2}, ids)

	// Clear must not reset identities: stale IDs can never alias new rows.
	require.NoError(t, s.Clear(ctx))

	ids, err = s.BatchInsert(ctx, []map[string]string{{"a": "3"}})
	require.NoError(t, err)
	require.Equal(t, []model.RowID{3}, ids)
	assert.Equal(t, 1, s.Len())
}

func TestScanStableOrder(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	rows := make([]map[string]string, 10)
	for i := range rows {
		rows[i] = map[string]string{"n": string(rune('a' + i))}
	}
	_, err = s.BatchInsert(ctx, rows)
	require.NoError(t, err)

	got, err := s.Scan(ctx, 3, 4)
	require.NoError(t, err)
	require.Len(t, got, 4)
	for i, row := range got {
		assert.Equal(t, model.RowID(4+i), row.ID)
		assert.Equal(t, rows[3+i]["n"], row.Data["n"])
	}

	// Same offset resolves to the same rows on a later call.
	again, err := s.Scan(ctx, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	// Past-the-end offset and zero limit yield nothing.
	empty, err := s.Scan(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
	empty, err = s.Scan(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	// Tail truncation.
	tail, err := s.Scan(ctx, 8, 5)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, model.RowID(9), tail[0].ID)
}

func TestGetClonesData(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ids, err := s.BatchInsert(ctx, []map[string]string{{"a": "1"}})
	require.NoError(t, err)

	row, err := s.Get(ctx, ids[0])
	require.NoError(t, err)
	row.Data["a"] = "mutated"

	again, err := s.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "1", again.Data["a"])

	_, err = s.Get(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRow(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ids, err := s.BatchInsert(ctx, []map[string]string{{"a": "1", "b": "2"}})
	require.NoError(t, err)

	require.NoError(t, s.UpdateRow(ctx, ids[0], map[string]string{"a": "edited", "b": "2"}))

	row, err := s.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "edited", row.Data["a"])

	err = s.UpdateRow(ctx, 999, map[string]string{"a": "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMetaLifecycleAndWatch(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Meta(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	events, cancel := s.Watch()
	defer cancel()

	meta := model.TableMeta{Columns: []string{"a", "b"}, RowCount: 2}
	require.NoError(t, s.PutMeta(ctx, meta))

	got, ok, err := s.Meta(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, meta, got)

	select {
	case ev := <-events:
		assert.Equal(t, EventMetaUpdated, ev.Type)
		assert.Equal(t, meta, ev.Meta)
	default:
		t.Fatal("expected a metadata event on the change feed")
	}
}

func TestReopenRecoversState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)

	_, err = s.BatchInsert(ctx, []map[string]string{{"a": "1"}, {"a": "2"}})
	require.NoError(t, err)
	meta := model.TableMeta{Columns: []string{"a"}, RowCount: 2}
	// PutMeta snapshots the store and truncates the log.
	require.NoError(t, s.PutMeta(ctx, meta))

	// Post-snapshot mutations live only in the log.
	ids, err := s.BatchInsert(ctx, []map[string]string{{"a": "3"}})
	require.NoError(t, err)
	require.NoError(t, s.UpdateRow(ctx, ids[0], map[string]string{"a": "3-edited"}))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 3, s.Len())

	got, ok, err := s.Meta(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, meta, got)

	row, err := s.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "3-edited", row.Data["a"])

	// Identity sequence continues after recovery.
	more, err := s.BatchInsert(ctx, []map[string]string{{"a": "4"}})
	require.NoError(t, err)
	assert.Equal(t, model.RowID(4), more[0])
}

func TestReopenRecoversWithoutSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	_, err = s.BatchInsert(ctx, []map[string]string{{"a": "1"}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 1, s.Len())
	row, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "1", row.Data["a"])
}

func TestClearReplacesContents(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.BatchInsert(ctx, []map[string]string{{"a": "old"}})
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Len())

	_, err = s.Get(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClosedStore(t *testing.T) {
	ctx := context.Background()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close()) // idempotent

	_, err = s.BatchInsert(ctx, []map[string]string{{"a": "1"}})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Scan(ctx, 0, 1)
	assert.ErrorIs(t, err, ErrClosed)
	err = s.PutMeta(ctx, model.TableMeta{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSnapshotCompressionVariants(t *testing.T) {
	ctx := context.Background()

	for _, comp := range []Compression{CompressionNone, CompressionZstd, CompressionLZ4} {
		t.Run(comp.name(), func(t *testing.T) {
			dir := t.TempDir()
			s, err := Open(dir, WithSnapshotCompression(comp))
			require.NoError(t, err)

			_, err = s.BatchInsert(ctx, []map[string]string{{"a": "1"}, {"a": "2"}})
			require.NoError(t, err)
			require.NoError(t, s.PutMeta(ctx, model.TableMeta{Columns: []string{"a"}, RowCount: 2}))
			require.NoError(t, s.Close())

			s, err = Open(dir, WithSnapshotCompression(comp))
			require.NoError(t, err)
			defer s.Close()
			assert.Equal(t, 2, s.Len())
		})
	}
}
