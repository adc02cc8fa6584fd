package youtubeapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/onnwee/tubescout/config"
	"github.com/onnwee/tubescout/testutil"
)

func newTestClient(t *testing.T, m *testutil.MockYouTubeServer) *Client {
	t.Helper()
	cfg := &config.Config{APIKey: "test", HTTPTimeout: 5 * time.Second}
	c, err := New(context.Background(), cfg, option.WithEndpoint(m.URL))
	if err != nil {
		t.Fatal(err)
	}
	c.SetWatchBaseURL(m.URL)
	return c
}

func TestParseAlias(t *testing.T) {
	cases := []struct {
		in    string
		kind  aliasKind
		value string
	}{
		{"UCxxxxxxxxxxxxxxxxxxxxxx", aliasChannelID, "UCxxxxxxxxxxxxxxxxxxxxxx"},
		{"@somehandle", aliasHandle, "somehandle"},
		{"somehandle", aliasHandle, "somehandle"},
		{"https://www.youtube.com/channel/UCabc", aliasChannelID, "UCabc"},
		{"https://youtube.com/@handle", aliasHandle, "handle"},
		{"https://www.youtube.com/user/legacy", aliasUser, "legacy"},
		{"https://www.youtube.com/c/customslug", aliasSlug, "customslug"},
		{"youtube.com/somename", aliasSlug, "somename"},
	}
	for _, c := range cases {
		kind, value := parseAlias(c.in)
		if kind != c.kind || value != c.value {
			t.Errorf("parseAlias(%q) = (%v, %q), want (%v, %q)", c.in, kind, value, c.kind, c.value)
		}
	}
}

func TestGetVideo(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	m.MockVideoResponse("v1", "A title", "desc", []string{"go", "search"}, "2024-05-06T07:08:09Z")
	c := newTestClient(t, m)
	info, err := c.GetVideo(context.Background(), "v1")
	if err != nil {
		t.Fatal(err)
	}
	if info.Title != "A title" || info.Description != "desc" || len(info.Keywords) != 2 {
		t.Fatalf("info = %+v", info)
	}
	want := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	if !info.Uploaded.Equal(want) {
		t.Fatalf("uploaded = %v", info.Uploaded)
	}
}

func TestGetVideoNotFound(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	m.MockEmptyVideoResponse()
	c := newTestClient(t, m)
	_, err := c.GetVideo(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestGetVideoEmptyID(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	c := newTestClient(t, m)
	_, err := c.GetVideo(context.Background(), "")
	if !errors.Is(err, ErrInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestPlaylistVideosPaging(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	m.MockPlaylistItemsPages([][][2]string{
		{{"a", "2024-01-01T00:00:00Z"}, {"b", ""}},
		{{"c", "2024-02-01T00:00:00Z"}},
	})
	c := newTestClient(t, m)
	s := c.PlaylistVideos("PLxyz")
	var ids []string
	var withDates int
	for {
		v, ok, err := s.Next(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		ids = append(ids, v.ID)
		if v.Uploaded != nil {
			withDates++
		}
	}
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Fatalf("ids = %v", ids)
	}
	if withDates != 2 {
		t.Fatalf("dates = %d", withDates)
	}
	// stream stays exhausted
	if _, ok, _ := s.Next(context.Background()); ok {
		t.Fatal("exhausted stream yielded a video")
	}
}

func TestUploadsPlaylistID(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	m.MockChannelResponse("UCabc", "UUabc")
	c := newTestClient(t, m)
	got, err := c.UploadsPlaylistID(context.Background(), "UCabc")
	if err != nil {
		t.Fatal(err)
	}
	if got != "UUabc" {
		t.Fatalf("uploads = %q", got)
	}
}

func TestResolveChannelID(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	c := newTestClient(t, m)
	got, err := c.ResolveChannel(context.Background(), "UCxxxxxxxxxxxxxxxxxxxxxx")
	if err != nil {
		t.Fatal(err)
	}
	if got != "UCxxxxxxxxxxxxxxxxxxxxxx" {
		t.Fatalf("resolved = %q", got)
	}
	if _, err := c.ResolveChannel(context.Background(), "  "); !errors.Is(err, ErrInput) {
		t.Fatalf("blank alias err = %v", err)
	}
}

func TestCaptionManifestAndDownload(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	m.MockWatchPage("v1", [][2]string{{"English", m.URL + "/tt/en"}})
	m.MockTimedText("/tt/en", [][2]string{{"0", "hello world"}, {"2.52", "this is"}})
	c := newTestClient(t, m)

	tracks, err := c.CaptionManifest(context.Background(), "v1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tracks) != 1 || tracks[0].LanguageName != "English" {
		t.Fatalf("tracks = %+v", tracks)
	}
	captions, err := c.Captions(context.Background(), tracks[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(captions) != 2 {
		t.Fatalf("captions = %+v", captions)
	}
	if captions[0].Text != "hello world" || captions[0].At != 0 {
		t.Fatalf("first = %+v", captions[0])
	}
	if captions[1].At != 2 {
		t.Fatalf("second at = %d", captions[1].At)
	}
}

func TestCaptionManifestNoTracks(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	m.Handlers["/watch"] = func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>no captions here</html>"))
	}
	c := newTestClient(t, m)
	tracks, err := c.CaptionManifest(context.Background(), "v1")
	if err != nil {
		t.Fatal(err)
	}
	if tracks != nil {
		t.Fatalf("tracks = %+v", tracks)
	}
}

func TestParseTimedTextModernShape(t *testing.T) {
	doc := []byte(`<timedtext><body>` +
		`<p t="0" d="1000">first line</p>` +
		`<p t="2500" d="1000"><s>seg one</s><s> seg two</s></p>` +
		`</body></timedtext>`)
	captions, err := parseTimedText(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(captions) != 2 {
		t.Fatalf("captions = %+v", captions)
	}
	if captions[0].Text != "first line" || captions[0].At != 0 {
		t.Fatalf("first = %+v", captions[0])
	}
	if captions[1].At != 2 || captions[1].Text != "seg one seg two" {
		t.Fatalf("second = %+v", captions[1])
	}
}

func TestParseTimedTextUnescapesEntities(t *testing.T) {
	doc := []byte(`<transcript><text start="0" dur="1">Tom &amp;amp; Jerry</text></transcript>`)
	captions, err := parseTimedText(doc)
	if err != nil {
		t.Fatal(err)
	}
	// XML decoding unescapes once, html.UnescapeString handles double-escaped text
	if captions[0].Text != "Tom & Jerry" {
		t.Fatalf("text = %q", captions[0].Text)
	}
}

func TestParseTimedTextGarbage(t *testing.T) {
	if _, err := parseTimedText([]byte("not xml at all")); err == nil {
		t.Fatal("expected error")
	}
}

func TestRetryRecoversFromServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`<transcript><text start="0" dur="1">ok</text></transcript>`))
	}))
	defer srv.Close()
	c := &Client{httpClient: srv.Client(), watchBaseURL: srv.URL}
	captions, err := c.Captions(context.Background(), CaptionTrackInfo{LanguageName: "English", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if len(captions) != 1 || captions[0].Text != "ok" {
		t.Fatalf("captions = %+v", captions)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	c := &Client{httpClient: srv.Client(), watchBaseURL: srv.URL}
	_, err := c.Captions(context.Background(), CaptionTrackInfo{LanguageName: "English", BaseURL: srv.URL})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != maxAttempts {
		t.Fatalf("calls = %d want %d", calls.Load(), maxAttempts)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorClass
	}{
		{ErrNotFound, ErrorClassFatal},
		{ErrInput, ErrorClassFatal},
		{context.Canceled, ErrorClassFatal},
		{errors.New("read tcp: connection reset by peer"), ErrorClassRetryable},
		{errors.New("dial tcp: i/o timeout"), ErrorClassRetryable},
		{errors.New("some business logic failure"), ErrorClassFatal},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("Classify(%v) = %v want %v", c.err, got, c.want)
		}
	}
}
