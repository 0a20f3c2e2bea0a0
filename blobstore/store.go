package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations return an error satisfying `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is a read-only abstraction over locations a source file can be
// imported from (local disk, memory, object storage).
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
}

// Blob is a read-only handle to a source file.
//
// Random access lets the importer stream the file in bounded chunks via an
// io.SectionReader and re-read it from the start when an attempt restarts.
type Blob interface {
	io.ReaderAt
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
}

// Mappable is an optional interface for Blobs that support zero-copy access.
type Mappable interface {
	// Bytes returns the underlying byte slice, valid until the Blob is closed.
	Bytes() ([]byte, error)
}
