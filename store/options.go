package store

import (
	"log/slog"

	"github.com/rowgrid/rowgrid/codec"
)

// Compression selects the snapshot compression codec.
type Compression uint8

const (
	// CompressionNone writes snapshots uncompressed.
	CompressionNone Compression = iota
	// CompressionZstd writes zstd-compressed snapshots (best ratio).
	CompressionZstd
	// CompressionLZ4 writes lz4-compressed snapshots (fastest).
	CompressionLZ4
)

func (c Compression) name() string {
	switch c {
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

func compressionByName(name string) (Compression, bool) {
	switch name {
	case "none":
		return CompressionNone, true
	case "zstd":
		return CompressionZstd, true
	case "lz4":
		return CompressionLZ4, true
	default:
		return 0, false
	}
}

// Options configures a Store.
type Options struct {
	// Codec encodes row data and metadata for the WAL and snapshots.
	Codec codec.Codec

	// SnapshotCompression selects the snapshot compression codec.
	SnapshotCompression Compression

	// CompressWAL enables zstd compression of the write-ahead log.
	CompressWAL bool

	// SyncWrites controls whether WAL commits fsync before returning.
	SyncWrites bool

	// WatchBuffer is the channel buffer per change-feed subscriber.
	// Events beyond the buffer are dropped (subscribers re-read state).
	WatchBuffer int

	// Logger receives structured store logs. Nil disables logging.
	Logger *slog.Logger
}

// DefaultOptions returns the default store options.
var DefaultOptions = Options{
	Codec:               codec.Default,
	SnapshotCompression: CompressionZstd,
	CompressWAL:         false,
	SyncWrites:          true,
	WatchBuffer:         8,
}

// WithCodec sets the value codec.
func WithCodec(c codec.Codec) func(*Options) {
	return func(o *Options) {
		o.Codec = c
	}
}

// WithSnapshotCompression sets the snapshot compression codec.
func WithSnapshotCompression(c Compression) func(*Options) {
	return func(o *Options) {
		o.SnapshotCompression = c
	}
}

// WithCompressWAL enables WAL compression.
func WithCompressWAL(enabled bool) func(*Options) {
	return func(o *Options) {
		o.CompressWAL = enabled
	}
}

// WithSyncWrites controls fsync-on-commit.
func WithSyncWrites(enabled bool) func(*Options) {
	return func(o *Options) {
		o.SyncWrites = enabled
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) func(*Options) {
	return func(o *Options) {
		o.Logger = logger
	}
}
