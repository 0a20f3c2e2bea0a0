package wal

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rowgrid/rowgrid/model"
)

// encodeEntry writes an entry in binary format.
// Format: [Type:1][SeqNum:8][ID:8][DataLen:4][Data:N]
// DataLen/Data are present only for payload-carrying types.
func (l *Log) encodeEntry(entry *Entry) error {
	if entry.Type == OpInsert {
		return fmt.Errorf("logical entry type %d cannot be written to disk", entry.Type)
	}

	var head [17]byte
	head[0] = byte(entry.Type)
	binary.LittleEndian.PutUint64(head[1:9], entry.SeqNum)
	binary.LittleEndian.PutUint64(head[9:17], uint64(entry.ID))
	if _, err := l.writer.Write(head[:]); err != nil {
		return err
	}

	if !entryHasPayload(entry.Type) {
		return nil
	}

	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(entry.Data))) //nolint:gosec
	if _, err := l.writer.Write(size[:]); err != nil {
		return err
	}
	if len(entry.Data) > 0 {
		if _, err := l.writer.Write(entry.Data); err != nil {
			return err
		}
	}
	return nil
}

// decodeEntry reads a single entry from r.
func decodeEntry(r io.Reader, entry *Entry) error {
	var head [17]byte
	if _, err := io.ReadFull(r, head[:1]); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, head[1:]); err != nil {
		return unexpectedEOF(err)
	}

	entry.Type = OperationType(head[0])
	entry.SeqNum = binary.LittleEndian.Uint64(head[1:9])
	entry.ID = model.RowID(binary.LittleEndian.Uint64(head[9:17]))
	entry.Data = nil

	if !entryHasPayload(entry.Type) {
		return nil
	}

	var size [4]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return unexpectedEOF(err)
	}
	n := binary.LittleEndian.Uint32(size[:])
	if n > 0 {
		entry.Data = make([]byte, n)
		if _, err := io.ReadFull(r, entry.Data); err != nil {
			return unexpectedEOF(err)
		}
	}
	return nil
}

func entryHasPayload(t OperationType) bool {
	return t == OpPrepareRow || t == OpUpdateRow || t == OpPutMeta
}

// unexpectedEOF maps a mid-entry EOF to io.ErrUnexpectedEOF so callers can
// tell a clean end of stream from a torn write.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
