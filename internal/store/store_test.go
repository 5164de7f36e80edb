package store

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kartikbazzad/bunraft/internal/wire"
)

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFreshStore(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	term, voted := s.State()
	if term != 0 || voted != 0 {
		t.Errorf("fresh state = (%d, %d), want (0, 0)", term, voted)
	}
	if got := s.Entries(); len(got) != 0 {
		t.Errorf("fresh log has %d entries", len(got))
	}
}

func TestStateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	if err := s.SaveState(7, 3); err != nil {
		t.Fatalf("save state: %v", err)
	}
	s.Close()

	s2 := openTestStore(t, dir)
	term, voted := s2.State()
	if term != 7 || voted != 3 {
		t.Errorf("recovered state = (%d, %d), want (7, 3)", term, voted)
	}
}

func TestLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	want := []wire.LogEntry{
		{Term: 1, Index: 1, Command: []byte("a")},
		{Term: 1, Index: 2, Command: []byte("bb")},
		{Term: 2, Index: 3, Command: []byte("ccc")},
	}
	if err := s.Append(want[:2]); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Append(want[2:]); err != nil {
		t.Fatalf("append: %v", err)
	}
	s.Close()

	s2 := openTestStore(t, dir)
	if got := s2.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("recovered log = %+v, want %+v", got, want)
	}
}

func TestAppendRejectsGap(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	err := s.Append([]wire.LogEntry{{Term: 1, Index: 5, Command: []byte("x")}})
	if err == nil {
		t.Fatal("append with a gap succeeded")
	}
}

func TestTruncateSuffix(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	all := []wire.LogEntry{
		{Term: 1, Index: 1, Command: []byte("a")},
		{Term: 1, Index: 2, Command: []byte("b")},
		{Term: 1, Index: 3, Command: []byte("c")},
	}
	if err := s.Append(all); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.TruncateSuffix(2); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if got := s.Entries(); len(got) != 1 || got[0].Index != 1 {
		t.Fatalf("entries after truncate = %+v", got)
	}

	// Appending after truncation reuses the freed indices.
	replacement := wire.LogEntry{Term: 2, Index: 2, Command: []byte("B")}
	if err := s.Append([]wire.LogEntry{replacement}); err != nil {
		t.Fatalf("append after truncate: %v", err)
	}
	s.Close()

	s2 := openTestStore(t, dir)
	want := []wire.LogEntry{all[0], replacement}
	if got := s2.Entries(); !reflect.DeepEqual(got, want) {
		t.Errorf("recovered log = %+v, want %+v", got, want)
	}
}

func TestTruncateAll(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	if err := s.Append([]wire.LogEntry{{Term: 1, Index: 1, Command: []byte("a")}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.TruncateSuffix(1); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if got := s.Entries(); len(got) != 0 {
		t.Fatalf("entries after full truncate = %+v", got)
	}
	s.Close()

	s2 := openTestStore(t, dir)
	if got := s2.Entries(); len(got) != 0 {
		t.Errorf("recovered log = %+v, want empty", got)
	}
}

// A crash mid-append leaves a torn record at the segment tail; recovery keeps
// everything before it and drops the tail.
func TestTornTailDropped(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	if err := s.Append([]wire.LogEntry{
		{Term: 1, Index: 1, Command: []byte("a")},
		{Term: 1, Index: 2, Command: []byte("b")},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	s.Close()

	firsts, err := listSegments(dir)
	if err != nil || len(firsts) == 0 {
		t.Fatalf("list segments: %v (%d)", err, len(firsts))
	}
	f, err := os.OpenFile(segmentName(dir, firsts[len(firsts)-1]), os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	// A plausible length prefix (40 bytes) followed by only 4 bytes of
	// garbage: the record is short, as after a crash mid-write.
	if _, err := f.Write([]byte{40, 0, 0, 0, 0xde, 0xad, 0xbe, 0xef}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	f.Close()

	s2 := openTestStore(t, dir)
	got := s2.Entries()
	if len(got) != 2 {
		t.Fatalf("recovered %d entries, want 2 (torn tail dropped)", len(got))
	}
}

func TestCorruptMetaRejected(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	if err := s.SaveState(3, 1); err != nil {
		t.Fatalf("save state: %v", err)
	}
	s.Close()

	path := filepath.Join(dir, metaFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write meta: %v", err)
	}

	if _, err := Open(dir); err == nil {
		t.Fatal("open succeeded with a corrupt meta file")
	}
}
