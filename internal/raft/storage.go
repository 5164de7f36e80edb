package raft

import (
	"sync"

	"github.com/kartikbazzad/bunraft/internal/wire"
)

// Storage persists the Raft hard state: (currentTerm, votedFor) and the log.
// Every method must be durable before it returns; a node replies to no RPC
// whose answer depends on state that is not yet on disk.
type Storage interface {
	// State returns the recovered (currentTerm, votedFor); votedFor 0 means
	// no vote cast.
	State() (term, votedFor uint64)
	// Entries returns the recovered log in index order.
	Entries() []wire.LogEntry
	// SaveState durably records (currentTerm, votedFor).
	SaveState(term, votedFor uint64) error
	// Append durably appends contiguous entries to the log.
	Append(entries []wire.LogEntry) error
	// TruncateSuffix durably removes all entries with index >= from.
	TruncateSuffix(from uint64) error
}

// MemoryStorage is an in-memory Storage for tests and examples. It provides
// the ordering guarantees but not the durability.
type MemoryStorage struct {
	mu       sync.Mutex
	term     uint64
	votedFor uint64
	entries  []wire.LogEntry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) State() (uint64, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.term, m.votedFor
}

func (m *MemoryStorage) Entries() []wire.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]wire.LogEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *MemoryStorage) SaveState(term, votedFor uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.term, m.votedFor = term, votedFor
	return nil
}

func (m *MemoryStorage) Append(entries []wire.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *MemoryStorage) TruncateSuffix(from uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if from == 0 || from > uint64(len(m.entries)) {
		return nil
	}
	m.entries = m.entries[:from-1]
	return nil
}
