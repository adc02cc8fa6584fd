package video

import (
	"strings"
	"sync"
)

// fullTextSeparator joins caption texts in the concatenated track text. The
// separator contributes to offsets only between captions, never before the
// first one. The same separator joins caption texts when a padded hit spans
// several captions.
const fullTextSeparator = " "

// captionOffset records where one caption's normalized text starts inside the
// track's full text.
type captionOffset struct {
	offset int
	at     int    // caption start, seconds
	text   string // whitespace-normalized caption text
}

// trackText is the memoized derived state of a caption track: the concatenated
// full text and the sorted offset→caption table. Built at most once per track
// instance; Once makes that safe under concurrent indexing and searching.
type trackText struct {
	once     sync.Once
	fullText string
	offsets  []captionOffset
}

func (t *CaptionTrack) build() {
	t.fulltext.once.Do(func() {
		var sb strings.Builder
		var offsets []captionOffset
		for _, c := range t.Captions {
			text := normalizeWhitespace(c.Text)
			if text == "" {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString(fullTextSeparator)
			}
			offsets = append(offsets, captionOffset{offset: sb.Len(), at: c.At, text: text})
			sb.WriteString(text)
		}
		t.fulltext.fullText = sb.String()
		t.fulltext.offsets = offsets
	})
}

// FullText returns the concatenation of the track's non-empty captions,
// whitespace-normalized and joined by a single space. This is the field value
// the track is indexed under.
func (t *CaptionTrack) FullText() string {
	t.build()
	return t.fulltext.fullText
}

// CaptionForRange maps a character interval of FullText back to the captions it
// came from. It finds the first caption whose offset is <= start and the last
// caption whose offset is <= end and returns a synthetic caption starting at
// the first one's time whose text joins all involved captions.
func (t *CaptionTrack) CaptionForRange(start, end int) (Caption, bool) {
	t.build()
	offsets := t.fulltext.offsets
	if len(offsets) == 0 {
		return Caption{}, false
	}
	first := lastAtOrBefore(offsets, start)
	last := lastAtOrBefore(offsets, end)
	if last < first {
		last = first
	}
	texts := make([]string, 0, last-first+1)
	for i := first; i <= last; i++ {
		texts = append(texts, offsets[i].text)
	}
	return Caption{At: offsets[first].at, Text: strings.Join(texts, fullTextSeparator)}, true
}

// lastAtOrBefore returns the index of the last entry whose offset is <= pos,
// or 0 when pos precedes every entry.
func lastAtOrBefore(offsets []captionOffset, pos int) int {
	lo, hi := 0, len(offsets)-1
	best := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if offsets[mid].offset <= pos {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}

// normalizeWhitespace collapses every whitespace run to a single space and trims
// the ends. Captions that are only line breaks normalize to "".
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
