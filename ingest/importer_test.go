package ingest

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rowgrid/rowgrid/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSink records every sink call for assertions.
type fakeSink struct {
	mu      sync.Mutex
	clears  int
	batches [][]map[string]string
	meta    *model.TableMeta
	nextID  uint64

	onBatch func(batchIndex int) error
}

func (f *fakeSink) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	f.batches = nil
	f.meta = nil
	return nil
}

func (f *fakeSink) BatchInsert(ctx context.Context, rows []map[string]string) ([]model.RowID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	hook := f.onBatch
	batchIndex := len(f.batches)
	f.mu.Unlock()

	if hook != nil {
		if err := hook(batchIndex); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]map[string]string, len(rows))
	copy(batch, rows)
	f.batches = append(f.batches, batch)
	ids := make([]model.RowID, len(rows))
	for i := range rows {
		f.nextID++
		ids[i] = model.RowID(f.nextID)
	}
	return ids, nil
}

func (f *fakeSink) PutMeta(ctx context.Context, meta model.TableMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta = &meta
	return nil
}

func (f *fakeSink) batchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	sizes := make([]int, len(f.batches))
	for i, b := range f.batches {
		sizes[i] = len(b)
	}
	return sizes
}

const fiveRows = "a,b\n1,x\n2,y\n3,z\n4,u\n5,v\n"

func TestImportBatchSizes(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	imp := New(sink, nil)

	err := imp.Import(ctx, BytesSource(fiveRows), WithBatchSize(2))
	require.NoError(t, err)

	assert.Equal(t, 1, sink.clears)
	assert.Equal(t, []int{2, 2, 1}, sink.batchSizes())

	require.NotNil(t, sink.meta)
	assert.Equal(t, []string{"a", "b"}, sink.meta.Columns)
	assert.Equal(t, uint64(5), sink.meta.RowCount)

	assert.Equal(t, "1", sink.batches[0][0]["a"])
	assert.Equal(t, "v", sink.batches[2][0]["b"])
}

func TestImportReplacesPriorContents(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	imp := New(sink, nil)

	require.NoError(t, imp.Import(ctx, BytesSource("a\nold\n")))
	require.NoError(t, imp.Import(ctx, BytesSource("a\nnew\n")))

	assert.Equal(t, 2, sink.clears)
	require.Equal(t, []int{1}, sink.batchSizes())
	assert.Equal(t, "new", sink.batches[0][0]["a"])
}

func TestImportRaggedRowsPadded(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	imp := New(sink, nil)

	require.NoError(t, imp.Import(ctx, BytesSource("a,b,c\n1,2\n")))

	row := sink.batches[0][0]
	assert.Equal(t, "1", row["a"])
	assert.Equal(t, "2", row["b"])
	assert.Equal(t, "", row["c"])
}

func TestImportValidation(t *testing.T) {
	ctx := context.Background()
	imp := New(&fakeSink{}, nil)

	var verr *ValidationError

	err := imp.Import(ctx, nil)
	require.ErrorAs(t, err, &verr)

	err = imp.Import(ctx, BytesSource(nil))
	require.ErrorAs(t, err, &verr)

	err = imp.Import(ctx, BytesSource(fiveRows), WithBatchSize(0))
	require.ErrorAs(t, err, &verr)

	err = imp.Import(ctx, BytesSource(fiveRows), WithChunkSize(-1))
	require.ErrorAs(t, err, &verr)

	// Blank-only input never yields a header row.
	err = imp.Import(ctx, BytesSource("\n\n"))
	require.ErrorAs(t, err, &verr)
}

func TestImportParseError(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	imp := New(sink, nil)

	err := imp.Import(ctx, BytesSource("a,b\n\"unterminated\n"))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.NotNil(t, errors.Unwrap(perr))

	// A syntax failure must not write metadata.
	assert.Nil(t, sink.meta)
}

func TestImportAborted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := &fakeSink{}
	sink.onBatch = func(batchIndex int) error {
		if batchIndex == 0 {
			cancel() // abort observed after the in-flight batch finishes
		}
		return nil
	}
	imp := New(sink, nil)

	err := imp.Import(ctx, BytesSource(fiveRows), WithBatchSize(2))
	require.ErrorIs(t, err, ErrAborted)

	// The in-flight batch completed; nothing started afterwards.
	assert.Equal(t, []int{2}, sink.batchSizes())
	assert.Nil(t, sink.meta)
}

func TestImportPersistenceError(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	cause := errors.New("disk full")
	sink.onBatch = func(int) error { return cause }
	imp := New(sink, nil)

	err := imp.Import(ctx, BytesSource(fiveRows), WithBatchSize(2))
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, sink.meta)
}

func TestImportProgress(t *testing.T) {
	ctx := context.Background()
	imp := New(&fakeSink{}, nil)

	var calls []uint64
	err := imp.Import(ctx, BytesSource(fiveRows),
		WithBatchSize(2),
		WithProgress(func(rows uint64) { calls = append(calls, rows) }),
	)
	require.NoError(t, err)

	// Intermediate calls are throttled and may be skipped, but the final
	// call with the true total is guaranteed.
	require.NotEmpty(t, calls)
	assert.Equal(t, uint64(5), calls[len(calls)-1])
}

// stallSource blocks the first Open's reader until the attempt is cancelled,
// then serves real data on later opens.
type stallSource struct {
	data  []byte
	mu    sync.Mutex
	opens int
}

func (s *stallSource) Open(ctx context.Context) (io.ReadCloser, error) {
	s.mu.Lock()
	s.opens++
	first := s.opens == 1
	s.mu.Unlock()
	if first {
		return &blockedReader{ctx: ctx}, nil
	}
	return BytesSource(s.data).Open(ctx)
}

func (s *stallSource) Size(ctx context.Context) (int64, error) {
	return int64(len(s.data)), nil
}

func (s *stallSource) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

type blockedReader struct{ ctx context.Context }

func (r *blockedReader) Read(p []byte) (int, error) {
	<-r.ctx.Done()
	return 0, r.ctx.Err()
}

func (r *blockedReader) Close() error { return nil }

func TestImportStallFallsBackOnce(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	imp := New(sink, nil)

	src := &stallSource{data: []byte(fiveRows)}
	err := imp.Import(ctx, src,
		WithBatchSize(2),
		WithWatchdogTimeout(20*time.Millisecond),
	)
	require.NoError(t, err)

	// The restart re-opens the source and clears the store again.
	assert.Equal(t, 2, src.openCount())
	assert.Equal(t, 2, sink.clears)
	assert.Equal(t, []int{2, 2, 1}, sink.batchSizes())
	require.NotNil(t, sink.meta)
	assert.Equal(t, uint64(5), sink.meta.RowCount)
}

// alwaysStallSource never produces a row.
type alwaysStallSource struct{}

func (alwaysStallSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return &blockedReader{ctx: ctx}, nil
}

func (alwaysStallSource) Size(context.Context) (int64, error) { return 1, nil }

func TestImportStallRetriesAtMostOnce(t *testing.T) {
	ctx := context.Background()
	imp := New(&fakeSink{}, nil)

	err := imp.Import(ctx, alwaysStallSource{}, WithWatchdogTimeout(20*time.Millisecond))
	require.Error(t, err)
	// The second stall surfaces as a plain failure, not another retry and
	// not a cancellation.
	assert.NotErrorIs(t, err, ErrAborted)
}

func TestImportNoProgressAfterFirstRowStopsWatchdog(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	imp := New(sink, nil)

	// The header and first data row arrive immediately, disarming the
	// watchdog; the rest of the parse takes far longer than the timeout.
	slow := &slowSource{data: []byte(fiveRows), fast: 8, delay: 30 * time.Millisecond}
	err := imp.Import(ctx, slow,
		WithBatchSize(2),
		WithWatchdogTimeout(100*time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, slow.opens)
}

// slowSource serves the first fast bytes immediately, then trickles the rest
// out one byte at a time with a delay per read.
type slowSource struct {
	data  []byte
	fast  int
	delay time.Duration
	opens int
}

func (s *slowSource) Open(ctx context.Context) (io.ReadCloser, error) {
	s.opens++
	return &slowReader{data: s.data, fast: s.fast, delay: s.delay}, nil
}

func (s *slowSource) Size(context.Context) (int64, error) { return int64(len(s.data)), nil }

type slowReader struct {
	data  []byte
	fast  int
	delay time.Duration
	pos   int
}

func (r *slowReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	if r.pos >= r.fast {
		time.Sleep(r.delay)
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}

func (r *slowReader) Close() error { return nil }
