package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshots_PutGet(t *testing.T) {
	t.Parallel()
	s, err := OpenSnapshots(filepath.Join(t.TempDir(), "snapshots"))
	if err != nil {
		t.Fatalf("OpenSnapshots: %v", err)
	}

	page := []byte("<html><form action=\"http://gate.tk/p\"></form></html>")
	id, err := s.Put(page)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(id) != 64 {
		t.Fatalf("expected sha256 hex id, got %q", id)
	}
	again, err := s.Put(page)
	if err != nil || again != id {
		t.Errorf("expected same id on second Put, got %q, %v", again, err)
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(page) {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestSnapshots_GetRejectsBadIDs(t *testing.T) {
	t.Parallel()
	s, err := OpenSnapshots(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSnapshots: %v", err)
	}
	for _, id := range []string{"", "../../etc/passwd", "ab", "ZZ" + string(make([]byte, 62))} {
		if _, err := s.Get(id); !errors.Is(err, ErrSnapshotNotFound) {
			t.Errorf("Get(%q): expected ErrSnapshotNotFound, got %v", id, err)
		}
	}
	missing := "0000000000000000000000000000000000000000000000000000000000000000"
	if _, err := s.Get(missing); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound for unknown id, got %v", err)
	}
}

func TestSnapshots_DetectsTampering(t *testing.T) {
	t.Parallel()
	s, err := OpenSnapshots(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSnapshots: %v", err)
	}
	id, err := s.Put([]byte("<p>original</p>"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := os.WriteFile(s.path(id), []byte("<p>changed</p>"), 0o644); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if _, err := s.Get(id); err == nil || errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected integrity error, got %v", err)
	}
}

func TestOpenSnapshots_RequiresDir(t *testing.T) {
	t.Parallel()
	if _, err := OpenSnapshots(""); err == nil {
		t.Error("expected error for empty dir")
	}
}
