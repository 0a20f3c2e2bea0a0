package blobstore

import (
	"context"
	"io"
	"path/filepath"

	"github.com/rowgrid/rowgrid/internal/mmap"
)

// LocalStore implements BlobStore for the local filesystem.
//
// Files are memory-mapped: the importer's chunked reads become zero-copy
// slices and the kernel handles paging for files larger than memory.
type LocalStore struct {
	root string
}

// NewLocalStore creates a LocalStore rooted at the given directory.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// Open opens a blob for reading.
func (s *LocalStore) Open(_ context.Context, name string) (Blob, error) {
	m, err := mmap.Open(filepath.Join(s.root, name))
	if err != nil {
		return nil, err
	}
	// Imports scan front to back.
	_ = m.Advise(mmap.AccessSequential)
	return &localBlob{m: m}, nil
}

type localBlob struct {
	m *mmap.Mapping
}

func (b *localBlob) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	data := b.m.Bytes()
	if off < 0 || off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *localBlob) Close() error { return b.m.Close() }

func (b *localBlob) Size() int64 { return b.m.Size() }

func (b *localBlob) Bytes() ([]byte, error) { return b.m.Bytes(), nil }
