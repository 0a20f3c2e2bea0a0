package rowgrid

import (
	"log/slog"

	"github.com/rowgrid/rowgrid/codec"
	"github.com/rowgrid/rowgrid/store"
)

type options struct {
	codec        codec.Codec
	logger       *Logger
	storeOptions []func(*store.Options)
}

// Option configures Open behavior.
//
// Options primarily exist to avoid exploding the API surface
// (e.g. codec-specific constructor variants).
type Option func(*options)

// WithCodec configures the codec used for rows and metadata in both the
// write-ahead log and snapshots.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithSnapshotCompression configures the compression applied to snapshot
// bodies. Defaults to zstd.
func WithSnapshotCompression(c store.Compression) Option {
	return func(o *options) {
		o.storeOptions = append(o.storeOptions, store.WithSnapshotCompression(c))
	}
}

// WithCompressWAL enables zstd compression of write-ahead log payloads.
// Disabled by default: import throughput usually matters more than log
// size, since the log is truncated on every completed import.
func WithCompressWAL(enabled bool) Option {
	return func(o *options) {
		o.storeOptions = append(o.storeOptions, store.WithCompressWAL(enabled))
	}
}

// WithSyncWrites controls whether batch commits fsync the write-ahead log.
// Enabled by default. Disabling trades durability of the tail of an import
// for speed.
func WithSyncWrites(enabled bool) Option {
	return func(o *options) {
		o.storeOptions = append(o.storeOptions, store.WithSyncWrites(enabled))
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := rowgrid.NewJSONLogger(slog.LevelInfo)
//	db, _ := rowgrid.Open("./data", rowgrid.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:  nil,
		logger: NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
