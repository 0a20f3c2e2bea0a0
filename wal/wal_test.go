package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rowgrid/rowgrid/model"
)

func TestLogBatchReplay(t *testing.T) {
	dir := t.TempDir()

	log, err := Open(func(o *Options) {
		o.Dir = dir
	})
	if err != nil {
		t.Fatalf("Failed to open log: %v", err)
	}

	ids := []model.RowID{1, 2, 3}
	payloads := [][]byte{[]byte("row1"), []byte("row2"), []byte("row3")}
	if err := log.AppendBatch(ids, payloads); err != nil {
		t.Fatalf("AppendBatch failed: %v", err)
	}
	log.Close()

	// Reopen and replay
	log, err = Open(func(o *Options) {
		o.Dir = dir
	})
	if err != nil {
		t.Fatalf("Failed to reopen log: %v", err)
	}
	defer log.Close()

	var replayed []Entry
	err = log.ReplayCommitted(func(entry Entry) error {
		replayed = append(replayed, entry)
		return nil
	})
	if err != nil {
		t.Fatalf("ReplayCommitted failed: %v", err)
	}

	if len(replayed) != 3 {
		t.Fatalf("Expected 3 replayed entries, got %d", len(replayed))
	}
	for i, entry := range replayed {
		if entry.Type != OpInsert {
			t.Errorf("Entry %d: expected OpInsert, got %v", i, entry.Type)
		}
		if entry.ID != ids[i] {
			t.Errorf("Entry %d: expected ID %d, got %d", i, ids[i], entry.ID)
		}
		if string(entry.Data) != string(payloads[i]) {
			t.Errorf("Entry %d: expected payload %q, got %q", i, payloads[i], entry.Data)
		}
	}
}

func TestLogReplayMixedOperations(t *testing.T) {
	dir := t.TempDir()

	log, err := Open(func(o *Options) {
		o.Dir = dir
	})
	if err != nil {
		t.Fatalf("Failed to open log: %v", err)
	}
	defer log.Close()

	if err := log.AppendClear(); err != nil {
		t.Fatalf("AppendClear failed: %v", err)
	}
	if err := log.AppendBatch([]model.RowID{1}, [][]byte{[]byte("row1")}); err != nil {
		t.Fatalf("AppendBatch failed: %v", err)
	}
	if err := log.AppendUpdate(1, []byte("row1-edited")); err != nil {
		t.Fatalf("AppendUpdate failed: %v", err)
	}
	if err := log.AppendMeta([]byte(`{"columns":["a"],"rowCount":1}`)); err != nil {
		t.Fatalf("AppendMeta failed: %v", err)
	}

	var types []OperationType
	err = log.ReplayCommitted(func(entry Entry) error {
		types = append(types, entry.Type)
		return nil
	})
	if err != nil {
		t.Fatalf("ReplayCommitted failed: %v", err)
	}

	want := []OperationType{OpClearAll, OpInsert, OpUpdateRow, OpPutMeta}
	if len(types) != len(want) {
		t.Fatalf("Expected %d entries, got %d: %v", len(want), len(types), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("Entry %d: expected type %d, got %d", i, want[i], types[i])
		}
	}
}

func TestLogReplayIgnoresUncommittedPrepares(t *testing.T) {
	dir := t.TempDir()

	log, err := Open(func(o *Options) {
		o.Dir = dir
	})
	if err != nil {
		t.Fatalf("Failed to open log: %v", err)
	}

	if err := log.AppendBatch([]model.RowID{1, 2}, [][]byte{[]byte("row1"), []byte("row2")}); err != nil {
		t.Fatalf("AppendBatch failed: %v", err)
	}
	log.Close()

	// Simulate a crash mid-batch by cutting off the commit marker.
	path := filepath.Join(dir, logFileName)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	// Commit marker carries no payload: 17 bytes.
	if err := os.Truncate(path, info.Size()-17); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}

	log, err = Open(func(o *Options) {
		o.Dir = dir
	})
	if err != nil {
		t.Fatalf("Failed to reopen log: %v", err)
	}
	defer log.Close()

	replayed := 0
	err = log.ReplayCommitted(func(entry Entry) error {
		replayed++
		return nil
	})
	if err != nil {
		t.Fatalf("ReplayCommitted failed: %v", err)
	}
	if replayed != 0 {
		t.Errorf("Expected 0 replayed entries for uncommitted batch, got %d", replayed)
	}
}

func TestLogCheckpointTruncates(t *testing.T) {
	dir := t.TempDir()

	log, err := Open(func(o *Options) {
		o.Dir = dir
	})
	if err != nil {
		t.Fatalf("Failed to open log: %v", err)
	}
	defer log.Close()

	if err := log.AppendBatch([]model.RowID{1}, [][]byte{[]byte("row1")}); err != nil {
		t.Fatalf("AppendBatch failed: %v", err)
	}
	if err := log.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	replayed := 0
	err = log.ReplayCommitted(func(entry Entry) error {
		replayed++
		return nil
	})
	if err != nil {
		t.Fatalf("ReplayCommitted failed: %v", err)
	}
	if replayed != 0 {
		t.Errorf("Expected 0 entries after checkpoint, got %d", replayed)
	}

	// The truncated log must accept new appends.
	if err := log.AppendBatch([]model.RowID{2}, [][]byte{[]byte("row2")}); err != nil {
		t.Fatalf("AppendBatch after checkpoint failed: %v", err)
	}
	replayed = 0
	var gotID model.RowID
	err = log.ReplayCommitted(func(entry Entry) error {
		replayed++
		gotID = entry.ID
		return nil
	})
	if err != nil {
		t.Fatalf("ReplayCommitted failed: %v", err)
	}
	if replayed != 1 || gotID != 2 {
		t.Errorf("Expected 1 entry with ID 2, got %d entries (last ID %d)", replayed, gotID)
	}
}

func TestLogCompressedRoundtrip(t *testing.T) {
	dir := t.TempDir()

	log, err := Open(func(o *Options) {
		o.Dir = dir
		o.Compress = true
	})
	if err != nil {
		t.Fatalf("Failed to open compressed log: %v", err)
	}

	if err := log.AppendBatch([]model.RowID{1, 2}, [][]byte{[]byte("row1"), []byte("row2")}); err != nil {
		t.Fatalf("AppendBatch failed: %v", err)
	}
	log.Close()

	// Compression flag comes from the header on reopen, not from options.
	log, err = Open(func(o *Options) {
		o.Dir = dir
	})
	if err != nil {
		t.Fatalf("Failed to reopen compressed log: %v", err)
	}
	defer log.Close()

	replayed := 0
	err = log.ReplayCommitted(func(entry Entry) error {
		replayed++
		return nil
	})
	if err != nil {
		t.Fatalf("ReplayCommitted failed: %v", err)
	}
	if replayed != 2 {
		t.Errorf("Expected 2 replayed entries, got %d", replayed)
	}
}

func TestLogCodecMismatch(t *testing.T) {
	dir := t.TempDir()

	log, err := Open(func(o *Options) {
		o.Dir = dir
		o.Codec = "go-json"
	})
	if err != nil {
		t.Fatalf("Failed to open log: %v", err)
	}
	log.Close()

	_, err = Open(func(o *Options) {
		o.Dir = dir
		o.Codec = "json"
	})
	if err == nil {
		t.Fatal("Expected codec mismatch error, got nil")
	}
}
