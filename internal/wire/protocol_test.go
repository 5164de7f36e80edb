package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	req := AppendEntriesRequest{
		Term:         3,
		LeaderID:     1,
		PrevLogIndex: 4,
		PrevLogTerm:  2,
		Entries: []LogEntry{
			{Term: 3, Index: 5, Command: []byte("set x 1")},
			{Term: 3, Index: 6, Command: []byte("with\nnewline and spaces")},
		},
		LeaderCommit: 4,
	}

	var buf bytes.Buffer
	if err := WriteMessage(&buf, OpAppendEntries, req); err != nil {
		t.Fatalf("write: %v", err)
	}

	header, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if header.OpCode != OpAppendEntries {
		t.Errorf("opcode = %d, want %d", header.OpCode, OpAppendEntries)
	}
	var got AppendEntriesRequest
	if err := ReadBody(&buf, header.Length, &got); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !reflect.DeepEqual(got, req) {
		t.Errorf("round trip = %+v, want %+v", got, req)
	}
}

func TestEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, OpStatus, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	header, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if header.Length != 0 {
		t.Errorf("length = %d, want 0", header.Length)
	}
	var out StatusRequest
	if err := ReadBody(&buf, header.Length, &out); err != nil {
		t.Fatalf("read empty body: %v", err)
	}
}

func TestOversizedHeaderRejected(t *testing.T) {
	raw := []byte{byte(OpPropose), 0xff, 0xff, 0xff, 0xff}
	if _, err := ReadHeader(bytes.NewReader(raw)); err != ErrBodyTooLarge {
		t.Fatalf("err = %v, want ErrBodyTooLarge", err)
	}
}
