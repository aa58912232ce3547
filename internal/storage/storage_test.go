package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// newTestStorage creates a temporary storage for testing.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	dir, err := os.MkdirTemp("", "storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	s, err := New(filepath.Join(dir, "db"))
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("failed to create storage: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
		os.RemoveAll(dir)
	})

	return s
}

func TestSetAndGet(t *testing.T) {
	s := newTestStorage(t)

	key := []byte("acct-key")
	value := []byte("acct-value")

	if err := s.Set(key, value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !bytes.Equal(got, value) {
		t.Errorf("Get returned %q, want %q", got, value)
	}
}

func TestGetNonExistent(t *testing.T) {
	s := newTestStorage(t)

	got, err := s.Get([]byte("missing"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != nil {
		t.Errorf("Get returned %q, want nil", got)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStorage(t)

	key := []byte("to-delete")
	if err := s.Set(key, []byte("value")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != nil {
		t.Errorf("Get after Delete returned %q, want nil", got)
	}
}

func TestSetBatch(t *testing.T) {
	s := newTestStorage(t)

	pairs := []KeyValue{
		{Key: []byte("batch-1"), Value: []byte("value-1")},
		{Key: []byte("batch-2"), Value: []byte("value-2")},
		{Key: []byte("batch-3"), Value: []byte("value-3")},
	}

	if err := s.SetBatch(pairs); err != nil {
		t.Fatalf("SetBatch failed: %v", err)
	}

	for _, kv := range pairs {
		got, err := s.Get(kv.Key)
		if err != nil {
			t.Fatalf("Get failed for %q: %v", kv.Key, err)
		}

		if !bytes.Equal(got, kv.Value) {
			t.Errorf("Get(%q) = %q, want %q", kv.Key, got, kv.Value)
		}
	}
}

// TestBatchReadsOwnWrites verifies a batch sees its staged writes before commit
// while the store does not.
func TestBatchReadsOwnWrites(t *testing.T) {
	s := newTestStorage(t)

	b := s.NewBatch()
	defer b.Close()

	if err := b.Set([]byte("k"), []byte("staged")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := b.Get([]byte("k"))
	if err != nil {
		t.Fatalf("batch Get failed: %v", err)
	}
	if !bytes.Equal(got, []byte("staged")) {
		t.Errorf("batch Get = %q, want %q", got, "staged")
	}

	committed, err := s.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if committed != nil {
		t.Errorf("store saw uncommitted write %q", committed)
	}

	if err := b.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	committed, _ = s.Get([]byte("k"))
	if !bytes.Equal(committed, []byte("staged")) {
		t.Errorf("after commit Get = %q, want %q", committed, "staged")
	}
}

// TestBatchCloseDiscards verifies closing without commit drops every write.
func TestBatchCloseDiscards(t *testing.T) {
	s := newTestStorage(t)

	if err := s.Set([]byte("k"), []byte("before")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	b := s.NewBatch()
	_ = b.Set([]byte("k"), []byte("after"))
	_ = b.Set([]byte("k2"), []byte("new"))
	b.Close()

	got, _ := s.Get([]byte("k"))
	if !bytes.Equal(got, []byte("before")) {
		t.Errorf("Get = %q, want %q", got, "before")
	}

	if got, _ := s.Get([]byte("k2")); got != nil {
		t.Errorf("discarded key present: %q", got)
	}
}

// TestIteratePrefix verifies prefix scans stay inside the prefix.
func TestIteratePrefix(t *testing.T) {
	s := newTestStorage(t)

	_ = s.SetBatch([]KeyValue{
		{Key: []byte("p:a"), Value: []byte("1")},
		{Key: []byte("p:b"), Value: []byte("2")},
		{Key: []byte("q:a"), Value: []byte("3")},
		{Key: []byte("p"), Value: []byte("4")},
	})

	var keys []string
	err := s.IteratePrefix([]byte("p:"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("IteratePrefix failed: %v", err)
	}

	if len(keys) != 2 || keys[0] != "p:a" || keys[1] != "p:b" {
		t.Errorf("keys = %v, want [p:a p:b]", keys)
	}
}

func TestPrefixUpperBound(t *testing.T) {
	tests := []struct {
		prefix []byte
		want   []byte
	}{
		{[]byte{0x01}, []byte{0x02}},
		{[]byte{0x01, 0xFF}, []byte{0x02}},
		{[]byte{0xFF, 0xFF}, nil},
		{[]byte("p:"), []byte("p;")},
	}

	for _, tt := range tests {
		got := prefixUpperBound(tt.prefix)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("prefixUpperBound(%x) = %x, want %x", tt.prefix, got, tt.want)
		}
	}
}
