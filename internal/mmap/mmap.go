// Package mmap provides read-only memory-mapped file access.
//
// Local import sources can be multi-gigabyte delimited files; mapping them
// avoids copying file contents through kernel buffers and lets the chunked
// parser read at its own pace while the OS handles paging.
//
// Mapping is safe for concurrent reads. Close is idempotent, but callers must
// ensure no goroutine touches Bytes() after Close returns.
package mmap

import (
	"errors"
	"os"
	"sync/atomic"
)

var (
	// ErrClosed is returned when accessing a closed mapping.
	ErrClosed = errors.New("mmap: mapping is closed")
	// ErrInvalidSize is returned when the file size cannot be mapped.
	ErrInvalidSize = errors.New("mmap: invalid file size")
)

// AccessPattern hints to the kernel how the mapped data will be read.
type AccessPattern int

const (
	// AccessDefault applies no specific advice.
	AccessDefault AccessPattern = iota
	// AccessSequential expects a front-to-back scan (the ingestion pattern).
	AccessSequential
	// AccessRandom expects scattered reads.
	AccessRandom
)

// Mapping is a read-only memory-mapped file. It owns the mapped byte slice
// and is responsible for unmapping it.
type Mapping struct {
	data   []byte
	closed atomic.Bool
	unmap  func([]byte) error
}

// Open maps the file at path into memory read-only.
// An empty file yields a valid mapping with zero-length Bytes.
func Open(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := fi.Size()
	if size == 0 {
		return &Mapping{}, nil
	}
	if size < 0 || int64(int(size)) != size {
		return nil, ErrInvalidSize
	}

	data, unmap, err := osMap(f, int(size))
	if err != nil {
		return nil, err
	}
	return &Mapping{data: data, unmap: unmap}, nil
}

// Bytes returns the mapped contents. The slice is valid until Close.
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the mapped length in bytes.
func (m *Mapping) Size() int64 { return int64(len(m.data)) }

// Advise passes an access-pattern hint to the kernel. The hint is advisory;
// failures other than unsupported platforms are returned.
func (m *Mapping) Advise(pattern AccessPattern) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if len(m.data) == 0 {
		return nil
	}
	return osAdvise(m.data, pattern)
}

// Close unmaps the file. Safe to call more than once.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	if m.unmap == nil || m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	return m.unmap(data)
}
