package video

import (
	"strings"
	"sync"
	"testing"
)

func track(captions ...Caption) *CaptionTrack {
	return &CaptionTrack{LanguageName: "English", Captions: captions}
}

func TestFullTextJoinsAndNormalizes(t *testing.T) {
	tr := track(
		Caption{At: 0, Text: "hello   world"},
		Caption{At: 2, Text: "\n"},
		Caption{At: 4, Text: " this\tis "},
		Caption{At: 6, Text: "a test"},
	)
	got := tr.FullText()
	if got != "hello world this is a test" {
		t.Fatalf("full text = %q", got)
	}
}

func TestFullTextNoLeadingSeparator(t *testing.T) {
	tr := track(Caption{At: 0, Text: "first"}, Caption{At: 1, Text: "second"})
	ft := tr.FullText()
	if strings.HasPrefix(ft, " ") {
		t.Fatalf("leading separator in %q", ft)
	}
	// "first" starts at 0, "second" at len("first")+1
	c, ok := tr.CaptionForRange(6, 6)
	if !ok || c.At != 1 || c.Text != "second" {
		t.Fatalf("offset 6 mapped to %+v", c)
	}
}

func TestCaptionForRangeSpansAdjacentCaptions(t *testing.T) {
	tr := track(
		Caption{At: 0, Text: "hello world"},
		Caption{At: 2, Text: "this is"},
		Caption{At: 4, Text: "a test"},
	)
	ft := tr.FullText()
	phrase := "world this"
	start := strings.Index(ft, phrase)
	if start < 0 {
		t.Fatalf("phrase not in %q", ft)
	}
	c, ok := tr.CaptionForRange(start, start+len(phrase)-1)
	if !ok {
		t.Fatal("no caption for range")
	}
	if c.At != 0 {
		t.Fatalf("caption at = %d", c.At)
	}
	if c.Text != "hello world this is" {
		t.Fatalf("caption text = %q", c.Text)
	}
}

func TestCaptionForRangeBeforeFirstOffset(t *testing.T) {
	tr := track(Caption{At: 3, Text: "only"})
	c, ok := tr.CaptionForRange(0, 1)
	if !ok || c.At != 3 || c.Text != "only" {
		t.Fatalf("got %+v ok=%v", c, ok)
	}
}

func TestCaptionForRangeEmptyTrack(t *testing.T) {
	tr := track()
	if _, ok := tr.CaptionForRange(0, 5); ok {
		t.Fatal("empty track should have no mapping")
	}
}

func TestFullTextMemoizedOnce(t *testing.T) {
	tr := track(Caption{At: 0, Text: "alpha"}, Caption{At: 1, Text: "beta"})
	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = tr.FullText()
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		if r != "alpha beta" {
			t.Fatalf("concurrent FullText = %q", r)
		}
	}
}
