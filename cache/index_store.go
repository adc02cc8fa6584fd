package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// IndexStore manages per-scope full-text index data next to the JSON records.
// bleve persists an index as a directory, so the store hands out stable
// `<key>.idx` paths, reports whether they exist, and deletes or prunes those
// directories. The index library creates and writes them in place.
type IndexStore struct {
	dir string
}

// NewIndexStore creates the backing directory if needed.
func NewIndexStore(dir string) (*IndexStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir index dir: %w", err)
	}
	return &IndexStore{dir: dir}, nil
}

// Path returns the index location for key. The caller opens or creates the
// index there; the path is stable across runs.
func (s *IndexStore) Path(key string) string {
	return filepath.Join(s.dir, key+indexExt)
}

// Exists reports whether an index has been created for key.
func (s *IndexStore) Exists(key string) bool {
	_, err := os.Stat(s.Path(key))
	return err == nil
}

// Delete removes the index for key, reporting whether it existed. Used for
// corruption recovery: a fresh empty index is built at the same path afterwards.
func (s *IndexStore) Delete(key string) (bool, error) {
	path := s.Path(key)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := os.RemoveAll(path); err != nil {
		return false, err
	}
	return true, nil
}

// Touch bumps the index directory's timestamps so age-based pruning counts a
// search as use.
func (s *IndexStore) Touch(key string) {
	now := time.Now()
	_ = os.Chtimes(s.Path(key), now, now)
}

// Clear deletes index directories matching prefix whose last use is older than
// notAccessedFor (all matching when zero). Returns how many were removed.
func (s *IndexStore) Clear(prefix string, notAccessedFor time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	cutoff := time.Time{}
	if notAccessedFor > 0 {
		cutoff = time.Now().Add(-notAccessedFor)
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, indexExt) {
			continue
		}
		key := strings.TrimSuffix(name, indexExt)
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if !cutoff.IsZero() {
			if fi, err := e.Info(); err != nil || fi.ModTime().After(cutoff) {
				continue
			}
		}
		if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
