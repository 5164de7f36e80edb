// Package store persists Raft hard state for Bunraft: the (term, votedFor)
// pair in a crash-atomic meta file and the log in CRC32-framed append-only
// segment files.
package store

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/kartikbazzad/bunraft/internal/wire"
)

// Log record layout: CRC32(4) + Term(8) + Index(8) + CmdLen(4) + Cmd.
const recordHeaderSize = 24

// encodeRecord serializes a log entry to bytes.
func encodeRecord(e wire.LogEntry) []byte {
	total := recordHeaderSize + len(e.Command)
	buf := make([]byte, total)
	off := 4 // skip CRC
	binary.LittleEndian.PutUint64(buf[off:off+8], e.Term)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], e.Index)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(e.Command)))
	off += 4
	copy(buf[off:], e.Command)
	crc := crc32.ChecksumIEEE(buf[4:])
	binary.LittleEndian.PutUint32(buf[0:4], crc)
	return buf
}

// decodeRecord deserializes a log entry from bytes.
func decodeRecord(data []byte) (wire.LogEntry, error) {
	if len(data) < recordHeaderSize {
		return wire.LogEntry{}, fmt.Errorf("record too short: %d", len(data))
	}
	expected := binary.LittleEndian.Uint32(data[0:4])
	actual := crc32.ChecksumIEEE(data[4:])
	if expected != actual {
		return wire.LogEntry{}, fmt.Errorf("record CRC mismatch")
	}
	off := 4
	term := binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	index := binary.LittleEndian.Uint64(data[off : off+8])
	off += 8
	cl := binary.LittleEndian.Uint32(data[off : off+4])
	off += 4
	if int(cl) != len(data)-off {
		return wire.LogEntry{}, fmt.Errorf("record length mismatch")
	}
	cmd := make([]byte, cl)
	copy(cmd, data[off:])
	return wire.LogEntry{Term: term, Index: index, Command: cmd}, nil
}

// Meta record layout: CRC32(4) + Term(8) + VotedFor(8). VotedFor 0 means no
// vote cast in the current term.
const metaSize = 20

func encodeMeta(term, votedFor uint64) []byte {
	buf := make([]byte, metaSize)
	binary.LittleEndian.PutUint64(buf[4:12], term)
	binary.LittleEndian.PutUint64(buf[12:20], votedFor)
	crc := crc32.ChecksumIEEE(buf[4:])
	binary.LittleEndian.PutUint32(buf[0:4], crc)
	return buf
}

func decodeMeta(data []byte) (term, votedFor uint64, err error) {
	if len(data) != metaSize {
		return 0, 0, fmt.Errorf("meta record size %d, want %d", len(data), metaSize)
	}
	expected := binary.LittleEndian.Uint32(data[0:4])
	actual := crc32.ChecksumIEEE(data[4:])
	if expected != actual {
		return 0, 0, fmt.Errorf("meta record CRC mismatch")
	}
	return binary.LittleEndian.Uint64(data[4:12]), binary.LittleEndian.Uint64(data[12:20]), nil
}
