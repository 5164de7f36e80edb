package store

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kartikbazzad/bunraft/internal/wire"
)

const defaultSegmentSize = 64 * 1024 * 1024 // 64MB; segment rotates when full

// segment is a single log file (log-*.seg), named by the index of its first
// entry. Records are length(4)+encoded record.
type segment struct {
	firstIndex uint64
	file       *os.File
	size       int64
	max        int64
}

func segmentName(dir string, firstIndex uint64) string {
	return filepath.Join(dir, fmt.Sprintf("log-%016x.seg", firstIndex))
}

func createSegment(dir string, firstIndex uint64) (*segment, error) {
	f, err := os.OpenFile(segmentName(dir, firstIndex), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &segment{firstIndex: firstIndex, file: f, size: info.Size(), max: defaultSegmentSize}, nil
}

func (s *segment) write(e wire.LogEntry) error {
	data := encodeRecord(e)
	buf := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(data)))
	copy(buf[4:], data)
	if _, err := s.file.Write(buf); err != nil {
		return err
	}
	s.size += int64(len(buf))
	return nil
}

func (s *segment) sync() error {
	return s.file.Sync()
}

func (s *segment) isFull() bool {
	return s.size >= s.max
}

func (s *segment) close() error {
	if s.file != nil {
		_ = s.file.Sync()
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// readSegment reads all intact records from a segment file. A torn tail
// (short or corrupt final record, from a crash mid-write) ends the scan
// without error; anything before it is returned.
func readSegment(path string) ([]wire.LogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []wire.LogEntry
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
			break // EOF or torn length prefix
		}
		recLen := binary.LittleEndian.Uint32(lenBuf[:])
		if recLen < recordHeaderSize || recLen > 32*1024*1024 {
			break // torn or corrupt tail
		}
		data := make([]byte, recLen)
		if _, err := io.ReadFull(f, data); err != nil {
			break
		}
		rec, err := decodeRecord(data)
		if err != nil {
			break
		}
		out = append(out, rec)
	}
	return out, nil
}

// listSegments returns the segment first-indices present in dir, ascending.
func listSegments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var firsts []uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "log-") || !strings.HasSuffix(name, ".seg") {
			continue
		}
		hex := strings.TrimSuffix(strings.TrimPrefix(name, "log-"), ".seg")
		first, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			continue
		}
		firsts = append(firsts, first)
	}
	sort.Slice(firsts, func(i, j int) bool { return firsts[i] < firsts[j] })
	return firsts, nil
}
