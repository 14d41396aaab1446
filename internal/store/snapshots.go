package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshots keeps the pages behind content detections on the filesystem,
// addressed by the SHA-256 of their bytes. The first two hex characters of
// the id name a subdirectory.
type Snapshots struct {
	dir string
}

// OpenSnapshots creates dir if needed.
func OpenSnapshots(dir string) (*Snapshots, error) {
	if dir == "" {
		return nil, errors.New("snapshot dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Snapshots{dir: dir}, nil
}

// Put stores page and returns its id. A page already stored is not rewritten.
func (s *Snapshots) Put(page []byte) (string, error) {
	sum := sha256.Sum256(page)
	id := hex.EncodeToString(sum[:])

	path := s.path(id)
	if _, err := os.Stat(path); err == nil {
		return id, nil
	}
	if err := writeFileAtomic(path, page, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return id, nil
}

// Get returns the page stored under id after checking it still hashes to id.
func (s *Snapshots) Get(id string) ([]byte, error) {
	if !validSnapshotID(id) {
		return nil, ErrSnapshotNotFound
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != id {
		return nil, fmt.Errorf("snapshot %s integrity check failed: got %s", id, got)
	}
	return data, nil
}

func (s *Snapshots) path(id string) string {
	return filepath.Join(s.dir, id[:2], id+".html")
}

// validSnapshotID accepts lowercase SHA-256 hex only, which also keeps ids
// from escaping the snapshot dir.
func validSnapshotID(id string) bool {
	if len(id) != sha256.Size*2 {
		return false
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// writeFileAtomic writes through a temp file in the target dir and renames
// it into place, so readers never see a partial page.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	tmp = nil

	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
