package wal

import "github.com/rowgrid/rowgrid/model"

// OperationType represents the type of an entry in the log.
type OperationType uint8

const (
	// OpPrepareRow records an inserted row ahead of its batch commit marker.
	// Prepare entries are not durability boundaries; commit markers are.
	OpPrepareRow OperationType = iota
	// OpCommitBatch marks every preceding uncommitted OpPrepareRow as durable.
	// One fsync per marker gives batch-granular atomicity on recovery.
	OpCommitBatch
	// OpUpdateRow records a full replacement of a row's data mapping.
	OpUpdateRow
	// OpClearAll records a clear of the whole row collection.
	OpClearAll
	// OpPutMeta records the singleton table metadata.
	OpPutMeta
	// OpCheckpoint marks that preceding state was captured in a snapshot.
	OpCheckpoint

	// OpInsert is a logical operation emitted by ReplayCommitted for each
	// committed OpPrepareRow. It never appears on disk.
	OpInsert
)

// Entry is a single log record.
type Entry struct {
	Type   OperationType
	SeqNum uint64
	ID     model.RowID
	// Data carries the codec-encoded payload for OpPrepareRow/OpUpdateRow
	// (row data mapping) and OpPutMeta (table metadata).
	Data []byte
}

// Options contains configuration for the log.
type Options struct {
	// Dir is the directory the log file lives in.
	Dir string

	// Codec is the stable name of the value codec used for entry payloads.
	// It is recorded in the file header and verified on reopen.
	Codec string

	// Compress enables zstd stream compression of the entry stream.
	Compress bool

	// CompressionLevel is the zstd level (1-22) used when Compress is set.
	CompressionLevel int

	// SyncOnCommit controls whether commit markers, updates, clears and
	// metadata writes fsync before returning. Disable only when an external
	// mechanism provides durability.
	SyncOnCommit bool
}

// DefaultOptions returns the default log options.
var DefaultOptions = Options{
	Dir:              ".",
	Codec:            "go-json",
	Compress:         false,
	CompressionLevel: 3,
	SyncOnCommit:     true,
}
