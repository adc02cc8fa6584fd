package index

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/tubescout/video"
)

// staticVideos resolves hits from a fixed set, reporting none as unindexed.
func staticVideos(videos ...*video.Video) GetVideoFunc {
	byID := map[string]*video.Video{}
	for _, v := range videos {
		byID[v.ID] = v
	}
	return func(ctx context.Context, id string) (*video.Video, bool, error) {
		v, ok := byID[id]
		if !ok {
			return nil, true, nil
		}
		return v, false, nil
	}
}

func searchableVideo() *video.Video {
	v := &video.Video{
		ID:          "v1",
		Title:       "A helper comparable to Match",
		Description: "A helper comparable to Match including one or multiple PaddedMatch.Included matches",
		Keywords:    []string{"golang", "fulltext", "searching"},
		Uploaded:    time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC),
		CaptionTracks: []*video.CaptionTrack{{
			LanguageName: "English",
			Captions: []video.Caption{
				{At: 0, Text: "hello world"},
				{At: 2, Text: "this is"},
				{At: 4, Text: "a test"},
			},
		}},
	}
	v.Sanitize()
	return v
}

func openWith(t *testing.T, videos ...*video.Video) *VideoIndex {
	t.Helper()
	vi, err := OpenOrCreate(newStore(t), "playlist:test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { vi.Close() })
	addAll(t, vi, videos...)
	return vi
}

func TestSearchTitleAndDescription(t *testing.T) {
	v := searchableVideo()
	vi := openWith(t, v)

	results, drift, err := vi.Search(context.Background(), `"comparable to match"`, SearchOptions{
		Padding:  5,
		GetVideo: staticVideos(v),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(drift) != 0 {
		t.Fatalf("drift = %v", drift)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
	r := results[0]
	if r.Video.ID != "v1" || r.Score <= 0 {
		t.Fatalf("result = %+v", r)
	}
	if r.TitleMatches == nil {
		t.Fatal("no title match")
	}
	if r.TitleMatches.Value != v.Title || r.TitleMatches.Start != 0 || r.TitleMatches.End != len(v.Title)-1 {
		t.Fatalf("title match = %+v", r.TitleMatches)
	}
	if len(r.TitleMatches.Included) == 0 {
		t.Fatal("title match has no included hits")
	}
	if len(r.DescriptionMatches) == 0 {
		t.Fatal("no description matches")
	}
	for _, m := range r.DescriptionMatches {
		if m.Value != v.Description[m.Start:m.End+1] {
			t.Fatalf("description excerpt %q out of sync with interval", m.Value)
		}
		for _, inc := range m.Included {
			if inc.Start < 0 || inc.Start+inc.Length > len(m.Value) {
				t.Fatalf("included %+v outside excerpt %q", inc, m.Value)
			}
		}
	}
	// merged output never overlaps or touches
	for i := 0; i+1 < len(r.DescriptionMatches); i++ {
		if r.DescriptionMatches[i].End+1 >= r.DescriptionMatches[i+1].Start {
			t.Fatal("description matches overlap or touch")
		}
	}
}

func TestSearchDescriptionPaddingScenario(t *testing.T) {
	v := searchableVideo()
	vi := openWith(t, v)

	results, _, err := vi.Search(context.Background(), `Description:"comparable to match"`, SearchOptions{
		Padding:  5,
		GetVideo: staticVideos(v),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || len(results[0].DescriptionMatches) != 1 {
		t.Fatalf("results = %+v", results)
	}
	m := results[0].DescriptionMatches[0]
	if m.Value != "lper comparable to Match incl" {
		t.Fatalf("excerpt = %q", m.Value)
	}
	wantStart := strings.Index(v.Description, "comparable") - 5
	if m.Start != wantStart {
		t.Fatalf("start = %d want %d", m.Start, wantStart)
	}
}

func TestSearchKeywords(t *testing.T) {
	v := searchableVideo()
	vi := openWith(t, v)

	results, _, err := vi.Search(context.Background(), "Keywords:fulltext", SearchOptions{GetVideo: staticVideos(v)})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || len(results[0].KeywordMatches) != 1 {
		t.Fatalf("results = %+v", results)
	}
	km := results[0].KeywordMatches[0]
	if km.Value != "fulltext" || km.Start != 0 || km.End != len("fulltext")-1 {
		t.Fatalf("keyword match = %+v", km)
	}
	if len(km.Included) != 1 || km.Included[0].Start != 0 || km.Included[0].Length != len("fulltext") {
		t.Fatalf("included = %+v", km.Included)
	}
}

func TestSearchCaptionsMergeAcrossCaptions(t *testing.T) {
	v := searchableVideo()
	vi := openWith(t, v)

	results, _, err := vi.Search(context.Background(), `"world this"`, SearchOptions{
		Padding:  0,
		GetVideo: staticVideos(v),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
	tracks := results[0].CaptionTrackMatches
	if len(tracks) != 1 {
		t.Fatalf("caption tracks = %+v", tracks)
	}
	if tracks[0].Track.LanguageName != "English" {
		t.Fatalf("track = %q", tracks[0].Track.LanguageName)
	}
	if len(tracks[0].Matches) != 1 {
		t.Fatalf("matches = %+v", tracks[0].Matches)
	}
	cm := tracks[0].Matches[0]
	if cm.Caption.At != 0 {
		t.Fatalf("caption at = %d", cm.Caption.At)
	}
	if cm.Caption.Text != "hello world this is" {
		t.Fatalf("caption text = %q", cm.Caption.Text)
	}
}

func TestSearchCaptionMatchesSortedByTime(t *testing.T) {
	v := &video.Video{
		ID:    "v2",
		Title: "caption order",
		CaptionTracks: []*video.CaptionTrack{{
			LanguageName: "English",
			Captions: []video.Caption{
				{At: 0, Text: "needle early in the track"},
				{At: 30, Text: "completely different content here"},
				{At: 60, Text: "another needle much later"},
			},
		}},
	}
	v.Sanitize()
	vi := openWith(t, v)

	results, _, err := vi.Search(context.Background(), "needle", SearchOptions{Padding: 2, GetVideo: staticVideos(v)})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || len(results[0].CaptionTrackMatches) != 1 {
		t.Fatalf("results = %+v", results)
	}
	matches := results[0].CaptionTrackMatches[0].Matches
	if len(matches) != 2 {
		t.Fatalf("matches = %+v", matches)
	}
	if !(matches[0].Caption.At < matches[1].Caption.At) {
		t.Fatalf("matches not sorted by caption time: %+v", matches)
	}
}

func TestSearchRelevantIDsRestriction(t *testing.T) {
	v1 := searchableVideo()
	v2 := searchableVideo()
	v2.ID = "v2"
	vi := openWith(t, v1, v2)

	results, _, err := vi.Search(context.Background(), "helper", SearchOptions{
		RelevantIDs: []string{"v2"},
		GetVideo:    staticVideos(v1, v2),
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Video.ID != "v2" {
			t.Fatalf("result outside relevant ids: %s", r.Video.ID)
		}
	}
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
}

func TestSearchQueryParseError(t *testing.T) {
	v := searchableVideo()
	vi := openWith(t, v)

	_, _, err := vi.Search(context.Background(), `title:"unterminated`, SearchOptions{GetVideo: staticVideos(v)})
	var qpe *QueryParseError
	if !errors.As(err, &qpe) {
		t.Fatalf("err = %v", err)
	}
	if qpe.Error() == "" || qpe.Query == "" {
		t.Fatal("parse error should carry the query and a message")
	}
}

func TestSearchReportsDrift(t *testing.T) {
	v1 := searchableVideo()
	v2 := searchableVideo()
	v2.ID = "v2"
	vi := openWith(t, v1, v2)

	// v2 resolves as unindexed: excluded from the batch, reported as drift
	getVideo := func(ctx context.Context, id string) (*video.Video, bool, error) {
		if id == "v2" {
			return nil, true, nil
		}
		return v1, false, nil
	}
	results, drift, err := vi.Search(context.Background(), "helper", SearchOptions{GetVideo: getVideo})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Video.ID != "v1" {
		t.Fatalf("results = %+v", results)
	}
	if len(drift) != 1 || drift[0] != "v2" {
		t.Fatalf("drift = %v", drift)
	}
}

func TestSearchOrdering(t *testing.T) {
	old := searchableVideo()
	old.ID = "old"
	old.Uploaded = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := searchableVideo()
	recent.ID = "recent"
	recent.Uploaded = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	vi := openWith(t, old, recent)

	var updates map[string]time.Time
	results, _, err := vi.Search(context.Background(), "helper", SearchOptions{
		Playlist: true,
		Order:    Order{By: OrderByUploaded, Desc: true},
		GetVideo: staticVideos(old, recent),
		UpdateUploaded: func(m map[string]time.Time) {
			updates = m
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].Video.ID != "recent" || results[1].Video.ID != "old" {
		t.Fatalf("order = %s, %s", results[0].Video.ID, results[1].Video.ID)
	}
	if len(updates) != 2 {
		t.Fatalf("uploaded updates = %v", updates)
	}

	results, _, err = vi.Search(context.Background(), "helper", SearchOptions{
		Playlist: true,
		Order:    Order{By: OrderByUploaded},
		GetVideo: staticVideos(old, recent),
	})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Video.ID != "old" {
		t.Fatalf("asc order starts with %s", results[0].Video.ID)
	}
}

func TestCoalesceSpans(t *testing.T) {
	// "comparable to Match": three terms, one-space gaps, one span out
	in := []hitLocation{{start: 9, length: 10}, {start: 20, length: 2}, {start: 23, length: 5}}
	out := coalesceSpans(in)
	if len(out) != 1 || out[0].start != 9 || out[0].length != 19 {
		t.Fatalf("out = %+v", out)
	}
	// distant hits stay separate
	in = []hitLocation{{start: 0, length: 6}, {start: 40, length: 6}}
	out = coalesceSpans(in)
	if len(out) != 2 {
		t.Fatalf("out = %+v", out)
	}
	// different keywords never join even when offsets look adjacent
	in = []hitLocation{{start: 0, length: 3, arrayPos: 0}, {start: 0, length: 3, arrayPos: 1}}
	out = coalesceSpans(in)
	if len(out) != 2 {
		t.Fatalf("out = %+v", out)
	}
}

func TestSearchGetVideoErrorAborts(t *testing.T) {
	v := searchableVideo()
	vi := openWith(t, v)

	boom := errors.New("cache exploded")
	_, _, err := vi.Search(context.Background(), "helper", SearchOptions{
		GetVideo: func(ctx context.Context, id string) (*video.Video, bool, error) {
			return nil, false, boom
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
