package raft

import (
	"fmt"
	"testing"
	"time"
)

// A single-node cluster elects itself and applies committed commands in
// order, exactly once.
func TestApplyOrderSingleNode(t *testing.T) {
	st := NewMemoryStorage()
	fsm := newMockFSM()
	cfg := DefaultConfig(1, nil)
	n := NewNode(cfg, st, nullTransport{}, fsm)
	n.Start()
	defer n.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n.mu.Lock()
		isLeader := n.state == Leader
		n.mu.Unlock()
		if isLeader {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	const total = 20
	for i := 1; i <= total; i++ {
		idx, _, ok := n.Propose([]byte(fmt.Sprintf("cmd-%d", i)))
		if !ok {
			t.Fatal("single node rejected propose")
		}
		if idx != uint64(i) {
			t.Fatalf("propose %d landed at index %d", i, idx)
		}
	}

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && fsm.count() < total {
		time.Sleep(5 * time.Millisecond)
	}
	if got := fsm.count(); got != total {
		t.Fatalf("applied %d commands, want %d", got, total)
	}
	for i := 1; i <= total; i++ {
		cmd, ok := fsm.command(uint64(i))
		if !ok || string(cmd) != fmt.Sprintf("cmd-%d", i) {
			t.Errorf("index %d applied %q", i, cmd)
		}
	}

	_, _, commit, applied, _ := n.snapshotState()
	if applied > commit {
		t.Errorf("lastApplied %d > commitIndex %d", applied, commit)
	}
	if commit != total {
		t.Errorf("commitIndex = %d, want %d", commit, total)
	}
}
