package raft

import (
	"github.com/kartikbazzad/bunraft/internal/wire"
)

// raftLog is the in-memory view of the replicated log. Slot 0 holds a
// sentinel entry (term 0, index 0) so the prev-log check for the first real
// entry needs no special case. All access goes through the index helpers so
// a future compaction can introduce a base offset in one place.
type raftLog struct {
	baseIndex uint64 // index of the sentinel; fixed at 0 until compaction exists
	entries   []wire.LogEntry
}

func newLog(recovered []wire.LogEntry) *raftLog {
	l := &raftLog{
		entries: make([]wire.LogEntry, 1, len(recovered)+1),
	}
	l.entries[0] = wire.LogEntry{Term: 0, Index: 0}
	l.entries = append(l.entries, recovered...)
	return l
}

func (l *raftLog) slot(index uint64) uint64 {
	return index - l.baseIndex
}

// lastIndex returns the index of the last entry (0 if only the sentinel).
func (l *raftLog) lastIndex() uint64 {
	return l.baseIndex + uint64(len(l.entries)) - 1
}

// lastTerm returns the term of the last entry (0 if only the sentinel).
func (l *raftLog) lastTerm() uint64 {
	return l.entries[len(l.entries)-1].Term
}

// term returns the term of the entry at index, and whether it exists. The
// sentinel matches (0, true) at index 0.
func (l *raftLog) term(index uint64) (uint64, bool) {
	if index < l.baseIndex || index > l.lastIndex() {
		return 0, false
	}
	return l.entries[l.slot(index)].Term, true
}

// entry returns the entry at index. The caller must know it exists.
func (l *raftLog) entry(index uint64) wire.LogEntry {
	return l.entries[l.slot(index)]
}

// slice returns entries in [from, to), capped at the log end. The returned
// slice is a copy safe to hand to the transport.
func (l *raftLog) slice(from, to uint64) []wire.LogEntry {
	if to > l.lastIndex()+1 {
		to = l.lastIndex() + 1
	}
	if from >= to {
		return nil
	}
	out := make([]wire.LogEntry, to-from)
	copy(out, l.entries[l.slot(from):l.slot(to)])
	return out
}

// truncateFrom removes all entries with index >= from. The sentinel is never
// removed.
func (l *raftLog) truncateFrom(from uint64) {
	if from <= l.baseIndex || from > l.lastIndex() {
		return
	}
	l.entries = l.entries[:l.slot(from)]
}

// append adds entries at the end of the log. Entries must be contiguous.
func (l *raftLog) append(entries ...wire.LogEntry) {
	l.entries = append(l.entries, entries...)
}
