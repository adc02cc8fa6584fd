// Package video implements the domain model: videos with caption tracks, the
// concatenated caption full text used for indexing, padded match excerpts and
// the playlist snapshot. Everything here is pure data and transforms; fetching
// and indexing live in youtubeapi and index.
package video

import (
	"sort"
	"time"
)

// Caption is a single timed subtitle line.
type Caption struct {
	At   int    `json:"at"` // seconds from video start
	Text string `json:"text"`
}

// CaptionTrack is one language's subtitle track. Either Captions or Error is
// set; a failed download records the error on the track instead of failing the
// whole video. The concatenated full text and its offset table are computed
// lazily, see fulltext.go.
type CaptionTrack struct {
	LanguageName string    `json:"languageName"`
	SourceURL    string    `json:"sourceUrl"`
	Captions     []Caption `json:"captions,omitempty"`
	Error        string    `json:"error,omitempty"`

	fulltext trackText
}

// Video mirrors the cached subset of YouTube video metadata.
type Video struct {
	ID            string          `json:"id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Keywords      []string        `json:"keywords,omitempty"`
	Uploaded      time.Time       `json:"uploaded"`
	CaptionTracks []*CaptionTrack `json:"captionTracks,omitempty"`
}

// Sanitize normalizes a video after load or fetch: captions are deduplicated
// by (at, text) and sorted ascending by start time. Idempotent.
func (v *Video) Sanitize() {
	for _, t := range v.CaptionTracks {
		t.sanitize()
	}
}

// Track resolves a caption track by its language name, which the index uses as
// the field discriminator.
func (v *Video) Track(languageName string) *CaptionTrack {
	for _, t := range v.CaptionTracks {
		if t.LanguageName == languageName {
			return t
		}
	}
	return nil
}

func (t *CaptionTrack) sanitize() {
	if len(t.Captions) == 0 {
		return
	}
	type key struct {
		at   int
		text string
	}
	seen := make(map[key]struct{}, len(t.Captions))
	kept := t.Captions[:0]
	for _, c := range t.Captions {
		k := key{c.At, c.Text}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, c)
	}
	t.Captions = kept
	sort.SliceStable(t.Captions, func(i, j int) bool { return t.Captions[i].At < t.Captions[j].At })
}
