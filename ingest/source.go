package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rowgrid/rowgrid/blobstore"
)

// Source is a re-openable input. Re-openability matters: the stall fallback
// restarts the whole import from the beginning, so a one-shot reader is not
// enough.
type Source interface {
	// Open returns a fresh reader positioned at the start of the data.
	Open(ctx context.Context) (io.ReadCloser, error)
	// Size returns the total size of the data in bytes.
	Size(ctx context.Context) (int64, error)
}

// FileSource reads a local file.
type FileSource string

// Open returns a fresh reader over the file.
func (s FileSource) Open(_ context.Context) (io.ReadCloser, error) {
	return os.Open(string(s)) //nolint:gosec // G304: path is caller-supplied
}

// Size returns the file size.
func (s FileSource) Size(_ context.Context) (int64, error) {
	fi, err := os.Stat(string(s))
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// BytesSource reads from an in-memory byte slice.
type BytesSource []byte

// Open returns a fresh reader over the bytes.
func (s BytesSource) Open(_ context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s)), nil
}

// Size returns the slice length.
func (s BytesSource) Size(_ context.Context) (int64, error) {
	return int64(len(s)), nil
}

// BlobSource reads a named blob from a blobstore (local mmap, memory, S3,
// MinIO). Each Open issues a fresh sequential view over the blob.
type BlobSource struct {
	Store blobstore.BlobStore
	Name  string
}

// Open opens the blob and returns a sequential reader over it.
func (s BlobSource) Open(ctx context.Context) (io.ReadCloser, error) {
	blob, err := s.Store.Open(ctx, s.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %q: %w", s.Name, err)
	}
	return &blobReader{
		SectionReader: io.NewSectionReader(blob, 0, blob.Size()),
		blob:          blob,
	}, nil
}

// Size stats the blob.
func (s BlobSource) Size(ctx context.Context) (int64, error) {
	blob, err := s.Store.Open(ctx, s.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to open blob %q: %w", s.Name, err)
	}
	defer blob.Close()
	return blob.Size(), nil
}

type blobReader struct {
	*io.SectionReader
	blob blobstore.Blob
}

func (r *blobReader) Close() error { return r.blob.Close() }
