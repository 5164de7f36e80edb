package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kartikbazzad/bunraft/internal/wire"
)

const metaFileName = "state.meta"

// Store is the durable state store for a Bunraft node: currentTerm, votedFor,
// and the full log. SaveState and Append are synced to disk before they
// return; a crash at any instant leaves a state Open can recover.
type Store struct {
	mu sync.Mutex

	dir      string
	term     uint64
	votedFor uint64
	entries  []wire.LogEntry // recovered log, 1-based indices, no sentinel

	tail *segment // open segment receiving appends; nil until first append
}

// Open opens (or creates) the store under dir and recovers the persisted
// (term, votedFor, log) triple. Torn tail records from a crash mid-append
// are dropped.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	s := &Store{dir: dir}

	metaPath := filepath.Join(dir, metaFileName)
	data, err := os.ReadFile(metaPath)
	switch {
	case err == nil:
		term, votedFor, err := decodeMeta(data)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		s.term, s.votedFor = term, votedFor
	case os.IsNotExist(err):
		// Fresh node: term 0, no vote.
	default:
		return nil, fmt.Errorf("store: read meta: %w", err)
	}

	firsts, err := listSegments(dir)
	if err != nil {
		return nil, fmt.Errorf("store: list segments: %w", err)
	}
	for _, first := range firsts {
		recs, err := readSegment(segmentName(dir, first))
		if err != nil {
			return nil, fmt.Errorf("store: read segment %d: %w", first, err)
		}
		for _, rec := range recs {
			// Contiguity check; a record that skips ahead is corruption.
			if want := uint64(len(s.entries) + 1); rec.Index != want {
				if rec.Index < want {
					// Re-append after truncation overwrote this index; the
					// later record wins.
					s.entries = s.entries[:rec.Index-1]
				} else {
					return nil, fmt.Errorf("store: log gap at index %d (have %d)", rec.Index, want-1)
				}
			}
			s.entries = append(s.entries, rec)
		}
	}
	return s, nil
}

// State returns the recovered (currentTerm, votedFor). VotedFor 0 means none.
func (s *Store) State() (term, votedFor uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.term, s.votedFor
}

// Entries returns the recovered log entries in index order. The caller owns
// the returned slice.
func (s *Store) Entries() []wire.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// SaveState durably records (currentTerm, votedFor). The write is
// crash-atomic: temp file, fsync, rename, fsync dir.
func (s *Store) SaveState(term, votedFor uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := filepath.Join(s.dir, metaFileName+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("store: save state: %w", err)
	}
	if _, err := f.Write(encodeMeta(term, votedFor)); err != nil {
		f.Close()
		return fmt.Errorf("store: save state: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("store: save state: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("store: save state: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, metaFileName)); err != nil {
		return fmt.Errorf("store: save state: %w", err)
	}
	if err := s.syncDir(); err != nil {
		return fmt.Errorf("store: save state: %w", err)
	}
	s.term, s.votedFor = term, votedFor
	return nil
}

// Append durably appends entries to the log and syncs. Entries must be
// contiguous with the stored log.
func (s *Store) Append(entries []wire.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(entries) == 0 {
		return nil
	}
	if want := uint64(len(s.entries) + 1); entries[0].Index != want {
		return fmt.Errorf("store: append at index %d, want %d", entries[0].Index, want)
	}
	for _, e := range entries {
		if s.tail == nil || s.tail.isFull() {
			if err := s.rotate(e.Index); err != nil {
				return err
			}
		}
		if err := s.tail.write(e); err != nil {
			return fmt.Errorf("store: append: %w", err)
		}
		s.entries = append(s.entries, e)
	}
	if err := s.tail.sync(); err != nil {
		return fmt.Errorf("store: append sync: %w", err)
	}
	return nil
}

func (s *Store) rotate(firstIndex uint64) error {
	if s.tail != nil {
		if err := s.tail.close(); err != nil {
			return fmt.Errorf("store: rotate: %w", err)
		}
	}
	seg, err := createSegment(s.dir, firstIndex)
	if err != nil {
		return fmt.Errorf("store: rotate: %w", err)
	}
	s.tail = seg
	return nil
}

// TruncateSuffix durably removes all entries with index >= from. Whole
// segments past the point are deleted; the segment containing it is rewritten.
func (s *Store) TruncateSuffix(from uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if from == 0 || from > uint64(len(s.entries)) {
		return nil
	}

	if s.tail != nil {
		if err := s.tail.close(); err != nil {
			return fmt.Errorf("store: truncate: %w", err)
		}
		s.tail = nil
	}

	firsts, err := listSegments(s.dir)
	if err != nil {
		return fmt.Errorf("store: truncate: %w", err)
	}
	for _, first := range firsts {
		if first >= from {
			if err := os.Remove(segmentName(s.dir, first)); err != nil {
				return fmt.Errorf("store: truncate: %w", err)
			}
			continue
		}
		// Does this segment reach past the truncation point?
		recs, err := readSegment(segmentName(s.dir, first))
		if err != nil {
			return fmt.Errorf("store: truncate: %w", err)
		}
		if len(recs) == 0 || recs[len(recs)-1].Index < from {
			continue
		}
		if err := s.rewriteSegment(first, recs, from); err != nil {
			return err
		}
	}
	if err := s.syncDir(); err != nil {
		return fmt.Errorf("store: truncate: %w", err)
	}
	s.entries = s.entries[:from-1]
	return nil
}

// rewriteSegment rewrites a segment keeping only records below from,
// crash-atomically via temp file + rename.
func (s *Store) rewriteSegment(first uint64, recs []wire.LogEntry, from uint64) error {
	path := segmentName(s.dir, first)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("store: truncate rewrite: %w", err)
	}
	seg := &segment{firstIndex: first, file: f, max: defaultSegmentSize}
	for _, rec := range recs {
		if rec.Index >= from {
			break
		}
		if err := seg.write(rec); err != nil {
			f.Close()
			return fmt.Errorf("store: truncate rewrite: %w", err)
		}
	}
	if err := seg.close(); err != nil {
		return fmt.Errorf("store: truncate rewrite: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: truncate rewrite: %w", err)
	}
	return nil
}

func (s *Store) syncDir() error {
	d, err := os.Open(s.dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tail != nil {
		err := s.tail.close()
		s.tail = nil
		return err
	}
	return nil
}
