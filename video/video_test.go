package video

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestSanitizeDedupesAndSorts(t *testing.T) {
	v := &Video{
		ID: "v1",
		CaptionTracks: []*CaptionTrack{{
			LanguageName: "English",
			Captions: []Caption{
				{At: 4, Text: "later"},
				{At: 0, Text: "first"},
				{At: 4, Text: "later"},
				{At: 2, Text: "middle"},
			},
		}},
	}
	v.Sanitize()
	got := v.CaptionTracks[0].Captions
	want := []Caption{{At: 0, Text: "first"}, {At: 2, Text: "middle"}, {At: 4, Text: "later"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("captions = %+v", got)
	}
	// idempotent
	v.Sanitize()
	if !reflect.DeepEqual(v.CaptionTracks[0].Captions, want) {
		t.Fatal("sanitize not idempotent")
	}
}

func TestVideoJSONRoundTrip(t *testing.T) {
	v := &Video{
		ID:          "v1",
		Title:       "A title",
		Description: "Some description",
		Keywords:    []string{"go", "search", "go"},
		Uploaded:    time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC),
		CaptionTracks: []*CaptionTrack{{
			LanguageName: "English",
			SourceURL:    "https://example.test/tt",
			Captions:     []Caption{{At: 0, Text: "hello"}},
		}, {
			LanguageName: "German",
			Error:        "download failed: 404",
		}},
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var got Video
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != v.ID || got.Title != v.Title || !got.Uploaded.Equal(v.Uploaded) {
		t.Fatalf("metadata mismatch: %+v", got)
	}
	if !reflect.DeepEqual(got.Keywords, v.Keywords) {
		t.Fatalf("keywords = %v", got.Keywords)
	}
	if len(got.CaptionTracks) != 2 {
		t.Fatalf("tracks = %d", len(got.CaptionTracks))
	}
	if got.CaptionTracks[1].Error != "download failed: 404" {
		t.Fatalf("track error = %q", got.CaptionTracks[1].Error)
	}
	if !reflect.DeepEqual(got.CaptionTracks[0].Captions, v.CaptionTracks[0].Captions) {
		t.Fatal("captions mismatch")
	}
}

func TestTrackLookup(t *testing.T) {
	v := &Video{CaptionTracks: []*CaptionTrack{
		{LanguageName: "English"},
		{LanguageName: "German"},
	}}
	if tr := v.Track("German"); tr == nil || tr.LanguageName != "German" {
		t.Fatalf("lookup = %+v", tr)
	}
	if tr := v.Track("French"); tr != nil {
		t.Fatal("missing track should be nil")
	}
}
