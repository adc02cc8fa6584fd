// Package index maintains one full-text index per search scope, backed by
// bleve, with the video id as the document key. It owns batched writes,
// corruption recovery and the translation of raw hit locations into
// user-facing padded matches.
package index

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/onnwee/tubescout/cache"
	"github.com/onnwee/tubescout/video"
)

// Indexed field names. Caption tracks are dynamic fields named after their
// language, e.g. "English_Captions".
const (
	FieldTitle          = "Title"
	FieldDescription    = "Description"
	FieldKeywords       = "Keywords"
	CaptionsFieldSuffix = "_Captions"
)

// CaptionsField returns the index field name for a caption track language.
func CaptionsField(languageName string) string {
	return languageName + CaptionsFieldSuffix
}

// CaptionsLanguage extracts the language from a captions field name.
func CaptionsLanguage(field string) (string, bool) {
	if !strings.HasSuffix(field, CaptionsFieldSuffix) {
		return "", false
	}
	return strings.TrimSuffix(field, CaptionsFieldSuffix), true
}

// VideoIndex is the per-scope index coordinator. A single writer batches adds
// and commits; searches run concurrently under the read lock.
type VideoIndex struct {
	mu    sync.RWMutex
	idx   bleve.Index
	store *cache.IndexStore
	key   string
	batch *bleve.Batch
}

// textAnalyzer tokenizes and lowercases without dropping stop words, so every
// word of a phrase hit reports a location.
const textAnalyzer = "unicode_lower"

// buildMapping indexes the three object fields plus dynamic per-language
// caption fields, all with term vectors so searches can report hit locations.
func buildMapping() mapping.IndexMapping {
	textField := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Store = false
		fm.IncludeTermVectors = true
		fm.IncludeInAll = true
		return fm
	}
	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt(FieldTitle, textField())
	doc.AddFieldMappingsAt(FieldDescription, textField())
	doc.AddFieldMappingsAt(FieldKeywords, textField())

	m := bleve.NewIndexMapping()
	// a bad analyzer config surfaces as a mapping error from bleve.New
	_ = m.AddCustomAnalyzer(textAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	m.DefaultAnalyzer = textAnalyzer
	m.DefaultMapping = doc
	// caption fields are added dynamically per language
	doc.Dynamic = true
	return m
}

// OpenOrCreate opens the scope's index or builds a fresh empty one. A blob
// that fails to open is treated as corrupt: it is deleted and replaced, and
// videos are re-indexed on demand.
func OpenOrCreate(store *cache.IndexStore, key string) (*VideoIndex, error) {
	path := store.Path(key)
	if store.Exists(key) {
		idx, err := bleve.Open(path)
		if err == nil {
			return &VideoIndex{idx: idx, store: store, key: key}, nil
		}
		slog.Warn("deleting corrupt index", slog.String("key", key), slog.Any("err", err))
		if _, derr := store.Delete(key); derr != nil {
			return nil, fmt.Errorf("delete corrupt index %s: %w", key, derr)
		}
	}
	idx, err := bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create index %s: %w", key, err)
	}
	return &VideoIndex{idx: idx, store: store, key: key}, nil
}

// Key returns the scope key this index belongs to.
func (vi *VideoIndex) Key() string { return vi.key }

// Close releases the underlying index. The coordinator owns the index for the
// duration of a search; close when done.
func (vi *VideoIndex) Close() error {
	vi.mu.Lock()
	defer vi.mu.Unlock()
	return vi.idx.Close()
}

// IsEmpty reports whether the index holds no documents.
func (vi *VideoIndex) IsEmpty() (bool, error) {
	vi.mu.RLock()
	defer vi.mu.RUnlock()
	n, err := vi.idx.DocCount()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Has reports whether a document exists for the video id.
func (vi *VideoIndex) Has(id string) (bool, error) {
	vi.mu.RLock()
	defer vi.mu.RUnlock()
	return vi.has(id)
}

func (vi *VideoIndex) has(id string) (bool, error) {
	doc, err := vi.idx.Document(id)
	if err != nil {
		return false, err
	}
	return doc != nil, nil
}

// IndexedIDs partitions candidate ids into those present in the index and
// those missing from it, preserving candidate order in the missing slice.
func (vi *VideoIndex) IndexedIDs(candidates []string) (map[string]struct{}, []string, error) {
	vi.mu.RLock()
	defer vi.mu.RUnlock()
	present := make(map[string]struct{}, len(candidates))
	var missing []string
	for _, id := range candidates {
		ok, err := vi.has(id)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			present[id] = struct{}{}
		} else {
			missing = append(missing, id)
		}
	}
	return present, missing, nil
}

// BeginBatch opens a new write batch. Adds go into the batch and hit the
// index only on CommitBatch, so one durable write follows many insertions.
func (vi *VideoIndex) BeginBatch() {
	vi.mu.Lock()
	defer vi.mu.Unlock()
	if vi.batch == nil {
		vi.batch = vi.idx.NewBatch()
	}
}

// Add inserts the video's object fields plus one dynamic field per usable
// caption track. Must be called inside an open batch.
func (vi *VideoIndex) Add(v *video.Video) error {
	vi.mu.Lock()
	defer vi.mu.Unlock()
	if vi.batch == nil {
		return fmt.Errorf("add %s: no open batch", v.ID)
	}
	return vi.batch.Index(v.ID, document(v))
}

// Replace removes any existing document for the video and inserts the current
// one, inside the open batch.
func (vi *VideoIndex) Replace(v *video.Video) error {
	vi.mu.Lock()
	defer vi.mu.Unlock()
	if vi.batch == nil {
		return fmt.Errorf("replace %s: no open batch", v.ID)
	}
	vi.batch.Delete(v.ID)
	return vi.batch.Index(v.ID, document(v))
}

// Remove deletes any document for the video id, inside the open batch. A
// no-op without a batch; used by drift recovery to drop unavailable videos.
func (vi *VideoIndex) Remove(id string) {
	vi.mu.Lock()
	defer vi.mu.Unlock()
	if vi.batch == nil {
		return
	}
	vi.batch.Delete(id)
}

// CommitBatch applies the open batch to the index in one durable write. The
// write lock excludes searches for the duration. A nil/empty batch is a no-op.
func (vi *VideoIndex) CommitBatch() error {
	vi.mu.Lock()
	defer vi.mu.Unlock()
	if vi.batch == nil {
		return nil
	}
	batch := vi.batch
	vi.batch = nil
	if batch.Size() == 0 {
		return nil
	}
	if err := vi.idx.Batch(batch); err != nil {
		return fmt.Errorf("commit batch for %s: %w", vi.key, err)
	}
	return nil
}

// Save marks the scope's persisted index as current. Durability is provided
// by CommitBatch (bleve persists each applied batch); Save records use so
// cache pruning by age sees active scopes.
func (vi *VideoIndex) Save() {
	vi.store.Touch(vi.key)
}

// document builds the indexable field map for a video. Tracks that failed to
// download or contain no text are skipped.
func document(v *video.Video) map[string]any {
	doc := map[string]any{
		FieldTitle:       v.Title,
		FieldDescription: v.Description,
		FieldKeywords:    v.Keywords,
	}
	for _, t := range v.CaptionTracks {
		if t.Error != "" {
			continue
		}
		if full := t.FullText(); full != "" {
			doc[CaptionsField(t.LanguageName)] = full
		}
	}
	return doc
}
