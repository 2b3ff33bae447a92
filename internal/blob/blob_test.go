package blob

import (
	"testing"
)

func TestLocalStore_RoundTrip(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}

	loc, err := s.Put("doc-1.pdf", []byte("hello"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if loc != "blob://doc-1.pdf" {
		t.Errorf("locator = %q, want blob://doc-1.pdf", loc)
	}

	data, err := s.Get(loc)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("data = %q, want hello", data)
	}
}

func TestLocalStore_RejectsBadIDs(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}

	for _, id := range []string{"", "../escape", "a/b"} {
		if _, err := s.Put(id, []byte("x")); err == nil {
			t.Errorf("Put(%q) succeeded, want error", id)
		}
	}
	for _, loc := range []string{"", "http://x", "blob://", "blob://../x"} {
		if _, err := s.Get(loc); err == nil {
			t.Errorf("Get(%q) succeeded, want error", loc)
		}
	}
}
