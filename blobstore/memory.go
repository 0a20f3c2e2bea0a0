package blobstore

import (
	"bytes"
	"context"
	"sync"
)

// MemoryStore is an in-memory BlobStore for tests and small in-process data.
// Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores a blob under name, replacing any previous contents.
func (m *MemoryStore) Put(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[name] = bytes.Clone(data)
	return nil
}

// Open opens a blob for reading.
func (m *MemoryStore) Open(_ context.Context, name string) (Blob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &memoryBlob{r: bytes.NewReader(bytes.Clone(data))}, nil
}

type memoryBlob struct {
	r *bytes.Reader
}

func (b *memoryBlob) ReadAt(p []byte, off int64) (int, error) { return b.r.ReadAt(p, off) }

func (b *memoryBlob) Close() error { return nil }

func (b *memoryBlob) Size() int64 { return b.r.Size() }
