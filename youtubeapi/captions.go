package youtubeapi

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/onnwee/tubescout/video"
)

// CaptionTrackInfo identifies one downloadable caption track of a video.
type CaptionTrackInfo struct {
	LanguageName string
	BaseURL      string
}

// captionTracksRE extracts the captionTracks JSON array from a watch page.
var captionTracksRE = regexp.MustCompile(`"captionTracks":(\[.*?\])`)

type watchCaptionTrack struct {
	BaseURL string `json:"baseUrl"`
	Name    struct {
		SimpleText string `json:"simpleText"`
		Runs       []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"name"`
	LanguageCode string `json:"languageCode"`
}

// CaptionManifest lists the caption tracks available for a video. Caption
// content is not served by the Data API without channel-owner OAuth, so the
// track list (with its timedtext URLs) comes from the watch page.
func (c *Client) CaptionManifest(ctx context.Context, videoID string) ([]CaptionTrackInfo, error) {
	pageURL := c.watchBaseURL + "/watch?v=" + videoID
	var body []byte
	err := withRetry(ctx, "watch page", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("video %s: %w", videoID, ErrNotFound)
		}
		if resp.StatusCode != http.StatusOK {
			return &statusError{code: resp.StatusCode, what: "watch page for " + videoID}
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		return err
	})
	if err != nil {
		return nil, err
	}
	m := captionTracksRE.FindSubmatch(body)
	if m == nil {
		// no captions on this video
		return nil, nil
	}
	var raw []watchCaptionTrack
	if err := json.Unmarshal(m[1], &raw); err != nil {
		return nil, fmt.Errorf("parse caption tracks for %s: %w", videoID, err)
	}
	tracks := make([]CaptionTrackInfo, 0, len(raw))
	for _, t := range raw {
		if t.BaseURL == "" {
			continue
		}
		name := t.Name.SimpleText
		if name == "" {
			var parts []string
			for _, r := range t.Name.Runs {
				parts = append(parts, r.Text)
			}
			name = strings.Join(parts, "")
		}
		if name == "" {
			name = t.LanguageCode
		}
		tracks = append(tracks, CaptionTrackInfo{LanguageName: name, BaseURL: t.BaseURL})
	}
	return tracks, nil
}

// timedtext XML, current shape: <timedtext><body><p t="ms" d="ms">..</p></body></timedtext>
type ttDocument struct {
	XMLName xml.Name      `xml:"timedtext"`
	Body    struct {
		Paragraphs []ttParagraph `xml:"p"`
	} `xml:"body"`
}

type ttParagraph struct {
	Start int    `xml:"t,attr"`
	Text  string `xml:",chardata"`
	Segs  []struct {
		Text string `xml:",chardata"`
	} `xml:"s"`
}

// legacy shape: <transcript><text start="s" dur="s">..</text></transcript>
type legacyTranscript struct {
	XMLName xml.Name      `xml:"transcript"`
	Texts   []legacyEntry `xml:"text"`
}

type legacyEntry struct {
	Start string `xml:"start,attr"`
	Text  string `xml:",chardata"`
}

// Captions downloads and parses a track's timed captions. The track-level
// contract is soft-fail: the caller records the returned error on the track
// rather than failing the video.
func (c *Client) Captions(ctx context.Context, info CaptionTrackInfo) ([]video.Caption, error) {
	var body []byte
	err := withRetry(ctx, "timedtext", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.BaseURL, nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return &statusError{code: resp.StatusCode, what: "timedtext " + info.LanguageName}
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		return err
	})
	if err != nil {
		return nil, err
	}
	return parseTimedText(body)
}

// parseTimedText accepts both timedtext shapes YouTube serves.
func parseTimedText(body []byte) ([]video.Caption, error) {
	var tt ttDocument
	if err := xml.Unmarshal(body, &tt); err == nil && len(tt.Body.Paragraphs) > 0 {
		captions := make([]video.Caption, 0, len(tt.Body.Paragraphs))
		for _, p := range tt.Body.Paragraphs {
			text := p.Text
			if text == "" && len(p.Segs) > 0 {
				var sb strings.Builder
				for _, s := range p.Segs {
					sb.WriteString(s.Text)
				}
				text = sb.String()
			}
			captions = append(captions, video.Caption{At: p.Start / 1000, Text: html.UnescapeString(text)})
		}
		return captions, nil
	}
	var legacy legacyTranscript
	if err := xml.Unmarshal(body, &legacy); err == nil && len(legacy.Texts) > 0 {
		captions := make([]video.Caption, 0, len(legacy.Texts))
		for _, e := range legacy.Texts {
			start, err := strconv.ParseFloat(e.Start, 64)
			if err != nil {
				continue
			}
			captions = append(captions, video.Caption{At: int(start), Text: html.UnescapeString(e.Text)})
		}
		return captions, nil
	}
	return nil, fmt.Errorf("unrecognized timedtext document")
}
