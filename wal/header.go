package wal

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

var (
	logMagic          = [4]byte{'R', 'G', 'W', '1'}
	logHeaderVersion  = uint16(1)
	logHeaderFixedLen = 16 // excludes the variable-length codec name
)

type headerInfo struct {
	Compressed       bool
	CompressionLevel int
	Codec            string
	HeaderLen        int64
}

func writeHeader(w io.Writer, info headerInfo) (int64, error) {
	var flags uint16
	level := uint8(0)
	if info.Compressed {
		flags |= 1
		level = uint8(info.CompressionLevel)
	}

	buf := make([]byte, 0, logHeaderFixedLen+len(info.Codec))
	buf = append(buf, logMagic[:]...)
	var fixed [12]byte
	binary.LittleEndian.PutUint16(fixed[0:2], logHeaderVersion)
	binary.LittleEndian.PutUint16(fixed[2:4], flags)
	fixed[4] = level
	fixed[5] = uint8(len(info.Codec))
	// fixed[6:12] reserved
	buf = append(buf, fixed[:]...)
	buf = append(buf, info.Codec...)

	if _, err := w.Write(buf); err != nil {
		return 0, fmt.Errorf("failed to write log header: %w", err)
	}
	return int64(len(buf)), nil
}

// readHeader reads the header of an existing log file. The second return
// value is false when the file is empty (no header yet).
func readHeader(f *os.File) (headerInfo, bool, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return headerInfo{}, false, fmt.Errorf("failed to seek log: %w", err)
	}

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		if err == io.EOF {
			return headerInfo{}, false, nil
		}
		return headerInfo{}, false, fmt.Errorf("failed to read log header magic: %w", err)
	}
	if magic != logMagic {
		return headerInfo{}, false, fmt.Errorf("unsupported log format: invalid header magic")
	}

	fixed := make([]byte, logHeaderFixedLen-4)
	if _, err := io.ReadFull(f, fixed); err != nil {
		return headerInfo{}, true, fmt.Errorf("failed to read log header: %w", err)
	}

	version := binary.LittleEndian.Uint16(fixed[0:2])
	if version != logHeaderVersion {
		return headerInfo{}, true, fmt.Errorf("unsupported log header version: %d", version)
	}
	flags := binary.LittleEndian.Uint16(fixed[2:4])
	level := int(fixed[4])
	codecLen := int(fixed[5])

	codecName := make([]byte, codecLen)
	if _, err := io.ReadFull(f, codecName); err != nil {
		return headerInfo{}, true, fmt.Errorf("failed to read log codec name: %w", err)
	}

	return headerInfo{
		Compressed:       (flags & 1) != 0,
		CompressionLevel: level,
		Codec:            string(codecName),
		HeaderLen:        int64(logHeaderFixedLen + codecLen),
	}, true, nil
}
