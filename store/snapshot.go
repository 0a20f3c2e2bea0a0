package store

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/rowgrid/rowgrid/codec"
	"github.com/rowgrid/rowgrid/model"
)

const snapshotFileName = "rowgrid.snap"

var snapshotMagic = [4]byte{'R', 'G', 'S', '1'}

const snapshotVersion = uint16(1)

// Snapshot layout:
//
//	[magic:4][version:2][codecLen:1][codec][compLen:1][compression]
//	then, in the (possibly compressed) body:
//	[nextID:8][metaPresent:1]([metaLen:4][meta])[rowCount:8]
//	rowCount * ([id:8][dataLen:4][data])
//
// The header is plain so a reader can pick the codec and decompressor before
// touching the body.

// writeSnapshotLocked captures the full store state atomically: write to a
// temp file, fsync, rename over the previous snapshot, fsync the directory.
// Caller must hold s.mu.
func (s *Store) writeSnapshotLocked() error {
	final := filepath.Join(s.dir, snapshotFileName)
	tmp := final + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // G304: path is configurable
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	defer os.Remove(tmp)

	if err := s.writeSnapshotBody(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return syncDir(s.dir)
}

func (s *Store) writeSnapshotBody(f *os.File) error {
	codecName := s.codec.Name()
	compName := s.opts.SnapshotCompression.name()

	hdr := make([]byte, 0, 8+len(codecName)+len(compName))
	hdr = append(hdr, snapshotMagic[:]...)
	hdr = binary.LittleEndian.AppendUint16(hdr, snapshotVersion)
	hdr = append(hdr, uint8(len(codecName)))
	hdr = append(hdr, codecName...)
	hdr = append(hdr, uint8(len(compName)))
	hdr = append(hdr, compName...)
	if _, err := f.Write(hdr); err != nil {
		return fmt.Errorf("failed to write snapshot header: %w", err)
	}

	var (
		w      io.Writer
		finish func() error
	)
	switch s.opts.SnapshotCompression {
	case CompressionZstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			return fmt.Errorf("failed to create snapshot compressor: %w", err)
		}
		w, finish = zw, zw.Close
	case CompressionLZ4:
		lw := lz4.NewWriter(f)
		w, finish = lw, lw.Close
	default:
		bw := bufio.NewWriter(f)
		w, finish = bw, bw.Flush
	}

	if err := s.encodeSnapshotBody(w); err != nil {
		_ = finish()
		return err
	}
	if err := finish(); err != nil {
		return fmt.Errorf("failed to finish snapshot body: %w", err)
	}
	return nil
}

func (s *Store) encodeSnapshotBody(w io.Writer) error {
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], s.nextID)
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}

	if s.meta != nil {
		if _, err := w.Write([]byte{1}); err != nil {
			return err
		}
		b, err := s.codec.Marshal(*s.meta)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
		if err := writeBlock(w, b); err != nil {
			return err
		}
	} else if _, err := w.Write([]byte{0}); err != nil {
		return err
	}

	binary.LittleEndian.PutUint64(buf[:], s.live.GetCardinality())
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}

	it := s.live.Iterator()
	for it.HasNext() {
		id := it.Next()
		binary.LittleEndian.PutUint64(buf[:], id)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
		b, err := s.codec.Marshal(s.rows[model.RowID(id)])
		if err != nil {
			return fmt.Errorf("failed to encode row %d: %w", id, err)
		}
		if err := writeBlock(w, b); err != nil {
			return err
		}
	}
	return nil
}

// loadSnapshot restores store state from the snapshot file, if one exists.
func (s *Store) loadSnapshot() error {
	path := filepath.Join(s.dir, snapshotFileName)
	f, err := os.Open(path) //nolint:gosec // G304: path is configurable
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	snapCodec, comp, err := readSnapshotHeader(f)
	if err != nil {
		return err
	}
	if snapCodec.Name() != s.codec.Name() {
		// The snapshot is self-describing; decode with its own codec.
		s.logger.Warn("snapshot codec differs from configured codec",
			"snapshot", snapCodec.Name(), "configured", s.codec.Name())
	}

	var r io.Reader
	switch comp {
	case CompressionZstd:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create snapshot decompressor: %w", err)
		}
		defer zr.Close()
		r = zr
	case CompressionLZ4:
		r = lz4.NewReader(f)
	default:
		r = bufio.NewReader(f)
	}

	return s.decodeSnapshotBody(r, snapCodec)
}

func readSnapshotHeader(f *os.File) (codec.Codec, Compression, error) {
	fixed := make([]byte, 7)
	if _, err := io.ReadFull(f, fixed); err != nil {
		return nil, 0, fmt.Errorf("failed to read snapshot header: %w", err)
	}
	if [4]byte(fixed[0:4]) != snapshotMagic {
		return nil, 0, fmt.Errorf("unsupported snapshot format: invalid magic")
	}
	if v := binary.LittleEndian.Uint16(fixed[4:6]); v != snapshotVersion {
		return nil, 0, fmt.Errorf("unsupported snapshot version: %d", v)
	}

	codecName := make([]byte, fixed[6])
	if _, err := io.ReadFull(f, codecName); err != nil {
		return nil, 0, fmt.Errorf("failed to read snapshot codec name: %w", err)
	}
	c, ok := codec.ByName(string(codecName))
	if !ok {
		return nil, 0, fmt.Errorf("unknown snapshot codec: %q", codecName)
	}

	var compLen [1]byte
	if _, err := io.ReadFull(f, compLen[:]); err != nil {
		return nil, 0, fmt.Errorf("failed to read snapshot header: %w", err)
	}
	compName := make([]byte, compLen[0])
	if _, err := io.ReadFull(f, compName); err != nil {
		return nil, 0, fmt.Errorf("failed to read snapshot compression name: %w", err)
	}
	comp, ok := compressionByName(string(compName))
	if !ok {
		return nil, 0, fmt.Errorf("unknown snapshot compression: %q", compName)
	}
	return c, comp, nil
}

func (s *Store) decodeSnapshotBody(r io.Reader, snapCodec codec.Codec) error {
	var buf [8]byte

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fmt.Errorf("failed to read snapshot nextID: %w", err)
	}
	s.nextID = binary.LittleEndian.Uint64(buf[:])

	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return fmt.Errorf("failed to read snapshot meta flag: %w", err)
	}
	if buf[0] == 1 {
		b, err := readBlock(r)
		if err != nil {
			return fmt.Errorf("failed to read snapshot metadata: %w", err)
		}
		var meta model.TableMeta
		if err := snapCodec.Unmarshal(b, &meta); err != nil {
			return fmt.Errorf("failed to decode snapshot metadata: %w", err)
		}
		s.meta = &meta
	}

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fmt.Errorf("failed to read snapshot row count: %w", err)
	}
	count := binary.LittleEndian.Uint64(buf[:])

	for i := uint64(0); i < count; i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return fmt.Errorf("failed to read snapshot row id: %w", err)
		}
		id := binary.LittleEndian.Uint64(buf[:])

		b, err := readBlock(r)
		if err != nil {
			return fmt.Errorf("failed to read snapshot row %d: %w", id, err)
		}
		var data map[string]string
		if err := snapCodec.Unmarshal(b, &data); err != nil {
			return fmt.Errorf("failed to decode snapshot row %d: %w", id, err)
		}
		s.rows[model.RowID(id)] = data
		s.live.Add(id)
	}
	return nil
}

func writeBlock(w io.Writer, b []byte) error {
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(b))) //nolint:gosec
	if _, err := w.Write(size[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBlock(r io.Reader) ([]byte, error) {
	var size [4]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return nil, err
	}
	b := make([]byte, binary.LittleEndian.Uint32(size[:]))
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir) //nolint:gosec // G304: path is configurable
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
