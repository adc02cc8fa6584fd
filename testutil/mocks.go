// Package testutil provides httptest doubles for the YouTube endpoints the
// client talks to: the Data API (JSON) and the watch-page/timedtext pair that
// serves caption tracks.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockYouTubeServer creates a test server that mocks YouTube Data API and
// timedtext responses.
type MockYouTubeServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockYouTubeServer creates a new mock server. Handlers are keyed by URL
// path; unhandled paths return 404.
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *MockYouTubeServer) respondJSON(path string, payload any) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // test mock response
	}
}

// MockVideoResponse adds a handler for the videos endpoint.
func (m *MockYouTubeServer) MockVideoResponse(id, title, description string, tags []string, publishedAt string) {
	m.respondJSON("/youtube/v3/videos", map[string]any{
		"items": []map[string]any{{
			"id": id,
			"snippet": map[string]any{
				"title":       title,
				"description": description,
				"tags":        tags,
				"publishedAt": publishedAt,
			},
		}},
	})
}

// MockEmptyVideoResponse makes the videos endpoint return no items.
func (m *MockYouTubeServer) MockEmptyVideoResponse() {
	m.respondJSON("/youtube/v3/videos", map[string]any{"items": []any{}})
}

// MockPlaylistItemsPages adds a paging handler for the playlistItems endpoint.
// Each page is a list of [videoID, publishedAt] pairs; empty publishedAt omits
// the field.
func (m *MockYouTubeServer) MockPlaylistItemsPages(pages [][][2]string) {
	m.Handlers["/youtube/v3/playlistItems"] = func(w http.ResponseWriter, r *http.Request) {
		pageIdx := 0
		if tok := r.URL.Query().Get("pageToken"); tok != "" {
			_, _ = fmt.Sscanf(tok, "page%d", &pageIdx)
		}
		if pageIdx >= len(pages) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		items := make([]map[string]any, 0, len(pages[pageIdx]))
		for _, pair := range pages[pageIdx] {
			cd := map[string]any{"videoId": pair[0]}
			if pair[1] != "" {
				cd["videoPublishedAt"] = pair[1]
			}
			items = append(items, map[string]any{"contentDetails": cd})
		}
		resp := map[string]any{"items": items}
		if pageIdx+1 < len(pages) {
			resp["nextPageToken"] = fmt.Sprintf("page%d", pageIdx+1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp) //nolint:errcheck // test mock response
	}
}

// MockChannelResponse adds a handler for the channels endpoint returning one
// channel id with an uploads playlist.
func (m *MockYouTubeServer) MockChannelResponse(channelID, uploadsPlaylistID string) {
	m.respondJSON("/youtube/v3/channels", map[string]any{
		"items": []map[string]any{{
			"id": channelID,
			"contentDetails": map[string]any{
				"relatedPlaylists": map[string]any{"uploads": uploadsPlaylistID},
			},
		}},
	})
}

// MockWatchPage serves a watch page embedding the given caption tracks as
// (languageName, baseURL) pairs.
func (m *MockYouTubeServer) MockWatchPage(videoID string, tracks [][2]string) {
	m.Handlers["/watch"] = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("v") != videoID {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		blob := `{"captionTracks":[`
		for i, tr := range tracks {
			if i > 0 {
				blob += ","
			}
			blob += fmt.Sprintf(`{"baseUrl":%q,"name":{"simpleText":%q},"languageCode":"xx"}`, tr[1], tr[0])
		}
		blob += `]}`
		_, _ = w.Write([]byte("<html><script>var ytInitialPlayerResponse = " + blob + ";</script></html>"))
	}
}

// MockTimedText serves a legacy-format transcript at path; captions is a list
// of (startSeconds, text) pairs.
func (m *MockYouTubeServer) MockTimedText(path string, captions [][2]string) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		doc := "<transcript>"
		for _, c := range captions {
			doc += fmt.Sprintf(`<text start="%s" dur="2">%s</text>`, c[0], c[1])
		}
		doc += "</transcript>"
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(doc))
	}
}
