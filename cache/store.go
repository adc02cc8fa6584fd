// Package cache persists JSON records and full-text index data under a local cache
// directory, one file (or index directory) per key. JSON record writes are atomic via
// temp+rename; index directories are written in place by the index library.
// The layout is single-process: many concurrent readers and one writer per key are
// fine, concurrent processes sharing a cache directory are not supported.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	jsonExt  = ".json"
	indexExt = ".idx"
)

// Store keeps JSON-serialized records keyed by name in a flat directory.
// A file that fails to parse is deleted and treated as absent, so a corrupt
// cache entry falls through to a fresh fetch instead of wedging the tool.
type Store struct {
	dir string
}

// NewStore creates the backing directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("mkdir cache dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+jsonExt)
}

// Get reads and unmarshals the record at key into out. It returns false when the
// key is absent. A file that exists but cannot be parsed is removed and reported
// as absent. Reading bumps the file's timestamps so age-based pruning sees use.
func (s *Store) Get(key string, out any) (bool, error) {
	path := s.path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		slog.Warn("deleting corrupt cache entry", slog.String("key", key), slog.Any("err", err))
		_ = os.Remove(path)
		return false, nil
	}
	now := time.Now()
	_ = os.Chtimes(path, now, now)
	return true, nil
}

// Set marshals v and writes it at key atomically.
func (s *Store) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return atomicWrite(s.path(key), data)
}

// Delete removes the record at key, reporting whether it existed.
func (s *Store) Delete(key string) (bool, error) {
	err := os.Remove(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Exists reports whether a record is present at key.
func (s *Store) Exists(key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

// List returns the keys starting with prefix, oldest first. When notAccessedFor
// is positive only keys whose file has not been touched within that window are
// returned.
func (s *Store) List(prefix string, notAccessedFor time.Duration) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	cutoff := time.Time{}
	if notAccessedFor > 0 {
		cutoff = time.Now().Add(-notAccessedFor)
	}
	type aged struct {
		key string
		mod time.Time
	}
	var found []aged
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, jsonExt) {
			continue
		}
		key := strings.TrimSuffix(name, jsonExt)
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if !cutoff.IsZero() && fi.ModTime().After(cutoff) {
			continue
		}
		found = append(found, aged{key: key, mod: fi.ModTime()})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].mod.Before(found[j].mod) })
	keys := make([]string, 0, len(found))
	for _, f := range found {
		keys = append(keys, f.key)
	}
	return keys, nil
}

// Clear deletes every record matching prefix and age filter, returning how many
// files were removed.
func (s *Store) Clear(prefix string, notAccessedFor time.Duration) (int, error) {
	keys, err := s.List(prefix, notAccessedFor)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, k := range keys {
		ok, err := s.Delete(k)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

// atomicWrite writes data to a sibling temp file and renames it into place.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
