// Package wal provides write-ahead logging for the rowgrid store.
//
// Every mutation (batch insert, row update, clear, metadata write) is
// persisted to the log before it is applied in memory, so an interrupted
// import never loses acknowledged batches. Batch inserts use a prepare/commit
// protocol: row payloads are written as prepare entries and made durable by a
// single commit marker, giving batch-granular atomicity with one fsync per
// batch. Checkpoint truncates the log after the store captures a snapshot.
package wal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/rowgrid/rowgrid/model"
)

const logFileName = "rowgrid.wal"

// Log is an append-only operation log.
type Log struct {
	mu           sync.Mutex
	file         *os.File
	writer       io.Writer
	bufWriter    *bufio.Writer
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder

	seqNum           uint64
	filePath         string
	dataOffset       int64
	codecName        string
	compressed       bool
	compressionLevel int
	syncOnCommit     bool
}

// Open opens or creates the log in opts.Dir.
func Open(optFns ...func(o *Options)) (*Log, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := os.MkdirAll(opts.Dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(opts.Dir, logFileName)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_RDWR, 0600) //nolint:gosec // G304: path is configurable
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Log{
		file:             file,
		filePath:         filePath,
		codecName:        opts.Codec,
		compressed:       opts.Compress,
		compressionLevel: opts.CompressionLevel,
		syncOnCommit:     opts.SyncOnCommit,
	}

	if err := l.initFile(opts); err != nil {
		_ = file.Close()
		return nil, err
	}
	if err := l.initCodecs(); err != nil {
		_ = file.Close()
		return nil, err
	}
	if err := l.scanForSeqNum(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to scan log: %w", err)
	}

	return l, nil
}

// Codec returns the codec name recorded in the log header.
func (l *Log) Codec() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.codecName
}

func (l *Log) initFile(opts Options) error {
	info, hasHeader, err := readHeader(l.file)
	if err != nil {
		return err
	}
	if !hasHeader {
		hdrLen, err := writeHeader(l.file, headerInfo{
			Compressed:       opts.Compress,
			CompressionLevel: opts.CompressionLevel,
			Codec:            opts.Codec,
		})
		if err != nil {
			return err
		}
		l.dataOffset = hdrLen
		return nil
	}

	// Existing file: the header wins over the options.
	if info.Codec != opts.Codec {
		return fmt.Errorf("log codec mismatch: file has %q, store configured %q", info.Codec, opts.Codec)
	}
	l.dataOffset = info.HeaderLen
	l.compressed = info.Compressed
	l.compressionLevel = info.CompressionLevel
	return nil
}

func (l *Log) initCodecs() error {
	if _, err := l.file.Seek(l.dataOffset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek log data offset: %w", err)
	}

	if l.compressed {
		level := zstd.EncoderLevelFromZstd(l.compressionLevel)
		compressor, err := zstd.NewWriter(l.file, zstd.WithEncoderLevel(level))
		if err != nil {
			return fmt.Errorf("failed to create compressor: %w", err)
		}
		decompressor, err := zstd.NewReader(nil)
		if err != nil {
			_ = compressor.Close()
			return fmt.Errorf("failed to create decompressor: %w", err)
		}
		l.compressor = compressor
		l.decompressor = decompressor
		l.bufWriter = bufio.NewWriter(compressor)
	} else {
		l.bufWriter = bufio.NewWriter(l.file)
	}
	l.writer = l.bufWriter
	return nil
}

// scanForSeqNum reads existing entries to find the next sequence number.
func (l *Log) scanForSeqNum() error {
	reader, err := l.entryReader()
	if err != nil {
		return err
	}

	var maxSeq uint64
	for {
		var entry Entry
		if err := decodeEntry(reader, &entry); err != nil {
			// EOF is a clean end; any other error means a torn tail,
			// which replay also stops at.
			break
		}
		if entry.SeqNum > maxSeq {
			maxSeq = entry.SeqNum
		}
	}
	l.seqNum = maxSeq

	if _, err := l.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	return nil
}

// entryReader positions the file at the entry stream and returns a reader
// over it, decompressing when needed. Caller must hold l.mu.
func (l *Log) entryReader() (io.Reader, error) {
	if _, err := l.file.Seek(l.dataOffset, io.SeekStart); err != nil {
		return nil, err
	}
	if l.compressed {
		if err := l.decompressor.Reset(l.file); err != nil {
			return nil, fmt.Errorf("failed to reset decompressor: %w", err)
		}
		return l.decompressor, nil
	}
	return bufio.NewReader(l.file), nil
}

// AppendBatch logs a batch insert: one prepare entry per row followed by a
// commit marker, flushed and (by configuration) fsynced once.
func (l *Log) AppendBatch(ids []model.RowID, payloads [][]byte) error {
	if len(ids) != len(payloads) {
		return fmt.Errorf("ids/payloads length mismatch: %d != %d", len(ids), len(payloads))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range ids {
		l.seqNum++
		entry := Entry{Type: OpPrepareRow, SeqNum: l.seqNum, ID: ids[i], Data: payloads[i]}
		if err := l.encodeEntry(&entry); err != nil {
			return fmt.Errorf("failed to encode prepare entry %d: %w", i, err)
		}
	}

	l.seqNum++
	commit := Entry{Type: OpCommitBatch, SeqNum: l.seqNum}
	if err := l.encodeEntry(&commit); err != nil {
		return fmt.Errorf("failed to encode commit marker: %w", err)
	}
	return l.commitLocked()
}

// AppendUpdate logs a full replacement of a row's data mapping.
func (l *Log) AppendUpdate(id model.RowID, payload []byte) error {
	return l.appendOne(Entry{Type: OpUpdateRow, ID: id, Data: payload})
}

// AppendClear logs a clear of the row collection.
func (l *Log) AppendClear() error {
	return l.appendOne(Entry{Type: OpClearAll})
}

// AppendMeta logs the singleton metadata record.
func (l *Log) AppendMeta(payload []byte) error {
	return l.appendOne(Entry{Type: OpPutMeta, Data: payload})
}

func (l *Log) appendOne(entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seqNum++
	entry.SeqNum = l.seqNum
	if err := l.encodeEntry(&entry); err != nil {
		return fmt.Errorf("failed to encode log entry: %w", err)
	}
	return l.commitLocked()
}

// commitLocked flushes buffered entries and fsyncs per configuration.
func (l *Log) commitLocked() error {
	if err := l.flushLocked(); err != nil {
		return err
	}
	if !l.syncOnCommit {
		return nil
	}
	return l.file.Sync()
}

func (l *Log) flushLocked() error {
	if err := l.bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush log buffer: %w", err)
	}
	if l.compressed {
		if err := l.compressor.Flush(); err != nil {
			return fmt.Errorf("failed to flush compressor: %w", err)
		}
	}
	return nil
}

// Checkpoint truncates the log. Call only after the state it describes has
// been captured durably elsewhere (the store snapshot).
func (l *Log) Checkpoint() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seqNum++
	entry := Entry{Type: OpCheckpoint, SeqNum: l.seqNum}
	if err := l.encodeEntry(&entry); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := l.flushLocked(); err != nil {
		return err
	}
	// Checkpoint is an explicit durability boundary.
	if err := l.file.Sync(); err != nil {
		return err
	}
	return l.truncateLocked()
}

func (l *Log) truncateLocked() error {
	if l.compressed && l.compressor != nil {
		if err := l.compressor.Close(); err != nil {
			return fmt.Errorf("failed to close compressor: %w", err)
		}
	}
	if err := l.file.Close(); err != nil {
		return err
	}

	file, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to truncate log file: %w", err)
	}
	l.file = file

	hdrLen, err := writeHeader(l.file, headerInfo{
		Compressed:       l.compressed,
		CompressionLevel: l.compressionLevel,
		Codec:            l.codecName,
	})
	if err != nil {
		_ = l.file.Close()
		return err
	}
	l.dataOffset = hdrLen
	if _, err := l.file.Seek(l.dataOffset, io.SeekStart); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("failed to seek log data offset: %w", err)
	}

	if l.compressed {
		level := zstd.EncoderLevelFromZstd(l.compressionLevel)
		compressor, err := zstd.NewWriter(file, zstd.WithEncoderLevel(level))
		if err != nil {
			_ = file.Close()
			return fmt.Errorf("failed to recreate compressor: %w", err)
		}
		l.compressor = compressor
		l.bufWriter = bufio.NewWriter(compressor)
	} else {
		l.bufWriter = bufio.NewWriter(file)
	}
	l.writer = l.bufWriter
	l.seqNum = 0

	return nil
}

// Close flushes and closes the log. Idempotent.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	if err := l.flushLocked(); err != nil {
		return err
	}
	if l.compressed && l.compressor != nil {
		if err := l.compressor.Close(); err != nil {
			return fmt.Errorf("failed to close compressor: %w", err)
		}
	}
	if l.decompressor != nil {
		l.decompressor.Close()
	}

	err := l.file.Close()
	l.file = nil
	return err
}
