package index

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/onnwee/tubescout/video"
)

// QueryParseError marks a query the index library could not parse. The
// message is user-visible.
type QueryParseError struct {
	Query string
	Err   error
}

func (e *QueryParseError) Error() string {
	return fmt.Sprintf("cannot parse query %q: %v", e.Query, e.Err)
}

func (e *QueryParseError) Unwrap() error { return e.Err }

// ValidateQuery parses the query without running it, so callers can reject a
// malformed query before touching any cache or index state.
func ValidateQuery(queryStr string) error {
	qs := query.NewQueryStringQuery(queryStr)
	if _, err := qs.Parse(); err != nil {
		return &QueryParseError{Query: queryStr, Err: err}
	}
	return nil
}

// OrderBy selects the sort key for playlist-scope results.
type OrderBy int

const (
	// OrderNone emits matches in production order for lowest latency.
	OrderNone OrderBy = iota
	OrderByScore
	OrderByUploaded
)

// Order is a sort request: key plus direction.
type Order struct {
	By   OrderBy
	Desc bool
}

// GetVideoFunc resolves a hit's video id to the cached video. The unindexed
// flag reports drift: the video's cache blob exists (or the video is simply
// gone) but the index has no live row for it, so it must be re-indexed.
type GetVideoFunc func(ctx context.Context, id string) (v *video.Video, unindexed bool, err error)

// SearchOptions configures one search pass over a scope's index.
type SearchOptions struct {
	// RelevantIDs restricts hits to the given ids when non-nil.
	RelevantIDs []string
	Padding     uint
	// Playlist marks playlist-like scopes, enabling ordering and
	// uploaded-date hydration.
	Playlist bool
	Order    Order
	GetVideo GetVideoFunc
	// UpdateUploaded receives upload dates learned during hydration so the
	// playlist snapshot can pick them up. May be nil.
	UpdateUploaded func(map[string]time.Time)
}

const searchResultLimit = 10000

// hitLocation is one term occurrence inside a field, in byte offsets. For
// array-valued fields arrayPos identifies the element the offsets are
// relative to.
type hitLocation struct {
	start    int
	length   int
	arrayPos int
}

type rawHit struct {
	id     string
	score  float64
	fields map[string][]hitLocation
}

// hydrateConcurrency bounds parallel video loads during result construction.
const hydrateConcurrency = 5

// Search evaluates the query DSL against the index and lifts the raw hits
// into SearchResults. The returned drift slice holds ids the index has lost
// track of (see GetVideoFunc); the caller re-indexes them and re-runs the
// search restricted to that set, at most once.
func (vi *VideoIndex) Search(ctx context.Context, queryStr string, opts SearchOptions) ([]video.SearchResult, []string, error) {
	qs := query.NewQueryStringQuery(queryStr)
	parsed, err := qs.Parse()
	if err != nil {
		return nil, nil, &QueryParseError{Query: queryStr, Err: err}
	}

	var q query.Query = parsed
	relevant := map[string]struct{}{}
	if opts.RelevantIDs != nil {
		for _, id := range opts.RelevantIDs {
			relevant[id] = struct{}{}
		}
		q = bleve.NewConjunctionQuery(query.NewDocIDQuery(opts.RelevantIDs), parsed)
	}

	req := bleve.NewSearchRequestOptions(q, searchResultLimit, 0, false)
	req.IncludeLocations = true

	vi.mu.RLock()
	res, err := vi.idx.SearchInContext(ctx, req)
	vi.mu.RUnlock()
	if err != nil {
		return nil, nil, fmt.Errorf("search %s: %w", vi.key, err)
	}

	var hits []rawHit
	for _, h := range res.Hits {
		if opts.RelevantIDs != nil {
			if _, ok := relevant[h.ID]; !ok {
				continue
			}
		}
		fields := make(map[string][]hitLocation, len(h.Locations))
		for field, terms := range h.Locations {
			for _, locs := range terms {
				for _, loc := range locs {
					hl := hitLocation{
						start:  int(loc.Start),
						length: int(loc.End - loc.Start),
					}
					// array-valued fields (keywords) report which element was hit
					if len(loc.ArrayPositions) > 0 {
						hl.arrayPos = int(loc.ArrayPositions[0])
					}
					fields[field] = append(fields[field], hl)
				}
			}
		}
		for field := range fields {
			f := fields[field]
			sort.SliceStable(f, func(i, j int) bool {
				if f[i].arrayPos != f[j].arrayPos {
					return f[i].arrayPos < f[j].arrayPos
				}
				return f[i].start < f[j].start
			})
			fields[field] = coalesceSpans(f)
		}
		hits = append(hits, rawHit{id: h.ID, score: h.Score, fields: fields})
	}

	// Resolve every hit's video in parallel, bounded. Videos the index has
	// lost go into the drift set instead of this batch.
	videos := make([]*video.Video, len(hits))
	driftFlags := make([]bool, len(hits))
	errs := make([]error, len(hits))
	sem := make(chan struct{}, hydrateConcurrency)
	var wg sync.WaitGroup
	for i := range hits {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-sem }()
			v, unindexed, err := opts.GetVideo(ctx, hits[i].id)
			if err != nil {
				errs[i] = err
				return
			}
			if unindexed || v == nil {
				driftFlags[i] = true
				return
			}
			videos[i] = v
		}(i)
	}
	wg.Wait()
	var drift []string
	for i, e := range errs {
		if e != nil {
			return nil, nil, e
		}
		if driftFlags[i] {
			drift = append(drift, hits[i].id)
		}
	}

	uploadedUpdates := map[string]time.Time{}
	results := make([]video.SearchResult, 0, len(hits))
	for i, h := range hits {
		v := videos[i]
		if v == nil {
			continue
		}
		r := buildResult(v, h.score, h.fields, opts.Padding)
		if opts.Playlist && !v.Uploaded.IsZero() {
			uploadedUpdates[v.ID] = v.Uploaded
		}
		results = append(results, r)
	}
	if opts.UpdateUploaded != nil && len(uploadedUpdates) > 0 {
		opts.UpdateUploaded(uploadedUpdates)
	}

	if opts.Playlist {
		orderResults(results, opts.Order)
	}
	return results, drift, nil
}

// coalesceSpans joins sorted term locations separated by at most one character
// into single spans. Phrase matches come back from the library one term at a
// time; the user-facing hit for "some phrase" is the whole phrase interval.
// Locations in different array elements are never joined.
func coalesceSpans(locs []hitLocation) []hitLocation {
	if len(locs) < 2 {
		return locs
	}
	out := locs[:1]
	for _, loc := range locs[1:] {
		cur := &out[len(out)-1]
		if loc.arrayPos == cur.arrayPos && loc.start <= cur.start+cur.length+1 {
			if end := loc.start + loc.length; end > cur.start+cur.length {
				cur.length = end - cur.start
			}
			continue
		}
		out = append(out, loc)
	}
	return out
}

// orderResults stable-sorts by the requested key; discovery order breaks ties.
func orderResults(results []video.SearchResult, order Order) {
	switch order.By {
	case OrderByScore:
		sort.SliceStable(results, func(i, j int) bool {
			if order.Desc {
				return results[i].Score > results[j].Score
			}
			return results[i].Score < results[j].Score
		})
	case OrderByUploaded:
		sort.SliceStable(results, func(i, j int) bool {
			if order.Desc {
				return results[i].Video.Uploaded.After(results[j].Video.Uploaded)
			}
			return results[i].Video.Uploaded.Before(results[j].Video.Uploaded)
		})
	}
}

// buildResult lifts one document's per-field hit locations into padded
// excerpts. All match data is copied; nothing retains index internals.
func buildResult(v *video.Video, score float64, fields map[string][]hitLocation, padding uint) video.SearchResult {
	r := video.SearchResult{Video: v, Score: score}
	for field, locs := range fields {
		switch field {
		case FieldTitle:
			r.TitleMatches = titleMatch(v.Title, locs)
		case FieldDescription:
			var padded []video.PaddedMatch
			for _, loc := range locs {
				padded = append(padded, video.Pad(loc.start, loc.length, padding, v.Description))
			}
			r.DescriptionMatches = video.Merge(padded, v.Description)
		case FieldKeywords:
			r.KeywordMatches = keywordMatches(v, locs)
		default:
			if lang, ok := CaptionsLanguage(field); ok {
				if tr := captionTrackMatches(v, lang, locs, padding); tr != nil {
					r.CaptionTrackMatches = append(r.CaptionTrackMatches, *tr)
				}
			}
		}
	}
	sort.SliceStable(r.CaptionTrackMatches, func(i, j int) bool {
		return r.CaptionTrackMatches[i].Track.LanguageName < r.CaptionTrackMatches[j].Track.LanguageName
	})
	return r
}

// titleMatch covers the whole title with every hit as an included interval.
// Titles are short; no padding is applied.
func titleMatch(title string, locs []hitLocation) *video.PaddedMatch {
	if len(locs) == 0 || title == "" {
		return nil
	}
	m := &video.PaddedMatch{Start: 0, End: len(title) - 1, Value: title}
	for _, loc := range locs {
		m.Included = append(m.Included, video.Interval{Start: loc.start, Length: loc.length})
	}
	sort.SliceStable(m.Included, func(i, j int) bool { return m.Included[i].Start < m.Included[j].Start })
	return m
}

// keywordMatches groups hits by the keyword they fall in. Keywords are indexed
// as one array-valued field, so each location already carries its keyword's
// position and offsets relative to that keyword's text.
func keywordMatches(v *video.Video, locs []hitLocation) []video.PaddedMatch {
	if len(v.Keywords) == 0 {
		return nil
	}
	byKeyword := map[int][]video.Interval{}
	var order []int
	for _, loc := range locs {
		ki := loc.arrayPos
		if ki >= len(v.Keywords) {
			continue
		}
		if _, seen := byKeyword[ki]; !seen {
			order = append(order, ki)
		}
		byKeyword[ki] = append(byKeyword[ki], video.Interval{Start: loc.start, Length: loc.length})
	}
	sort.Ints(order)
	matches := make([]video.PaddedMatch, 0, len(order))
	for _, ki := range order {
		kw := v.Keywords[ki]
		if kw == "" {
			continue
		}
		matches = append(matches, video.PaddedMatch{
			Start:    0,
			End:      len(kw) - 1,
			Value:    kw,
			Included: byKeyword[ki],
		})
	}
	return matches
}

// captionTrackMatches pads and merges hits over the track's full text, then
// remaps each merged excerpt back to the captions it spans.
func captionTrackMatches(v *video.Video, language string, locs []hitLocation, padding uint) *video.CaptionTrackResult {
	track := v.Track(language)
	if track == nil {
		return nil
	}
	full := track.FullText()
	if full == "" {
		return nil
	}
	var padded []video.PaddedMatch
	for _, loc := range locs {
		padded = append(padded, video.Pad(loc.start, loc.length, padding, full))
	}
	merged := video.Merge(padded, full)
	result := &video.CaptionTrackResult{Track: track}
	for _, m := range merged {
		c, ok := track.CaptionForRange(m.Start, m.End)
		if !ok {
			continue
		}
		result.Matches = append(result.Matches, video.CaptionMatch{Match: m, Caption: c})
	}
	if len(result.Matches) == 0 {
		return nil
	}
	sort.SliceStable(result.Matches, func(i, j int) bool {
		return result.Matches[i].Caption.At < result.Matches[j].Caption.At
	})
	return result
}
