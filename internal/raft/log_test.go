package raft

import (
	"reflect"
	"testing"

	"github.com/kartikbazzad/bunraft/internal/wire"
)

func TestLogSentinel(t *testing.T) {
	l := newLog(nil)
	if got := l.lastIndex(); got != 0 {
		t.Errorf("lastIndex of empty log = %d, want 0", got)
	}
	if got := l.lastTerm(); got != 0 {
		t.Errorf("lastTerm of empty log = %d, want 0", got)
	}
	term, ok := l.term(0)
	if !ok || term != 0 {
		t.Errorf("term(0) = (%d, %v), want (0, true)", term, ok)
	}
	if _, ok := l.term(1); ok {
		t.Error("term(1) on empty log should not exist")
	}
}

func TestLogAppendAndSlice(t *testing.T) {
	l := newLog(nil)
	l.append(
		wire.LogEntry{Term: 1, Index: 1, Command: []byte("a")},
		wire.LogEntry{Term: 1, Index: 2, Command: []byte("b")},
		wire.LogEntry{Term: 2, Index: 3, Command: []byte("c")},
	)
	if got := l.lastIndex(); got != 3 {
		t.Fatalf("lastIndex = %d, want 3", got)
	}
	if got := l.lastTerm(); got != 2 {
		t.Fatalf("lastTerm = %d, want 2", got)
	}

	got := l.slice(2, 10)
	want := []wire.LogEntry{
		{Term: 1, Index: 2, Command: []byte("b")},
		{Term: 2, Index: 3, Command: []byte("c")},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("slice(2, 10) = %+v, want %+v", got, want)
	}
	if got := l.slice(4, 10); got != nil {
		t.Errorf("slice past end = %+v, want nil", got)
	}

	// Batch cap shape: a bounded window.
	got = l.slice(1, 1+2)
	if len(got) != 2 || got[0].Index != 1 || got[1].Index != 2 {
		t.Errorf("bounded slice = %+v", got)
	}
}

func TestLogTruncateFrom(t *testing.T) {
	l := newLog([]wire.LogEntry{
		{Term: 1, Index: 1, Command: []byte("a")},
		{Term: 1, Index: 2, Command: []byte("b")},
		{Term: 1, Index: 3, Command: []byte("c")},
	})
	l.truncateFrom(2)
	if got := l.lastIndex(); got != 1 {
		t.Fatalf("lastIndex after truncate = %d, want 1", got)
	}
	// The sentinel survives any truncation.
	l.truncateFrom(0)
	l.truncateFrom(1)
	if got := l.lastIndex(); got != 0 {
		t.Fatalf("lastIndex = %d, want 0", got)
	}
	if term, ok := l.term(0); !ok || term != 0 {
		t.Fatal("sentinel lost after truncation")
	}
}

func TestLogRecoveredEntries(t *testing.T) {
	recovered := []wire.LogEntry{
		{Term: 1, Index: 1, Command: []byte("a")},
		{Term: 3, Index: 2, Command: []byte("b")},
	}
	l := newLog(recovered)
	if got := l.lastIndex(); got != 2 {
		t.Fatalf("lastIndex = %d, want 2", got)
	}
	if e := l.entry(2); e.Term != 3 || string(e.Command) != "b" {
		t.Errorf("entry(2) = %+v", e)
	}
}
