// Package youtubeapi wraps the YouTube Data API and the timedtext caption
// endpoint behind the small read-side surface the search core consumes:
// channel alias resolution, paged playlist listing, video metadata and caption
// download. Transient failures are retried with exponential backoff.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/tubescout/config"
)

const defaultWatchBaseURL = "https://www.youtube.com"

const playlistPageSize = 50

// Client provides the read-side YouTube operations.
type Client struct {
	svc          *yt.Service
	httpClient   *http.Client
	watchBaseURL string
}

// New builds a client from config. An API key is sufficient; when an OAuth
// token is configured it is preferred (higher quota, private playlists).
// Extra options are appended last so tests can redirect the API endpoint.
func New(ctx context.Context, cfg *config.Config, opts ...option.ClientOption) (*Client, error) {
	hc := &http.Client{Timeout: cfg.HTTPTimeout}
	base := []option.ClientOption{}
	if cfg.OAuthToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.OAuthToken})
		base = append(base, option.WithTokenSource(ts))
	} else {
		base = append(base, option.WithAPIKey(cfg.APIKey))
	}
	svc, err := yt.NewService(ctx, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Client{svc: svc, httpClient: hc, watchBaseURL: defaultWatchBaseURL}, nil
}

// SetWatchBaseURL redirects watch-page and caption fetches, for tests.
func (c *Client) SetWatchBaseURL(u string) { c.watchBaseURL = u }

// GetVideo fetches a single video's metadata (no captions).
func (c *Client) GetVideo(ctx context.Context, id string) (*VideoInfo, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty video id", ErrInput)
	}
	var res *yt.VideoListResponse
	err := withRetry(ctx, "videos.list", func() error {
		var err error
		res, err = c.svc.Videos.List([]string{"snippet"}).Id(id).Context(ctx).Do()
		return mapStatus(err)
	})
	if err != nil {
		return nil, err
	}
	if len(res.Items) == 0 {
		return nil, fmt.Errorf("video %s: %w", id, ErrNotFound)
	}
	sn := res.Items[0].Snippet
	info := &VideoInfo{ID: id, Title: sn.Title, Description: sn.Description, Keywords: sn.Tags}
	if t, err := time.Parse(time.RFC3339, sn.PublishedAt); err == nil {
		info.Uploaded = t.UTC()
	}
	return info, nil
}

// VideoInfo is the metadata subset the core caches.
type VideoInfo struct {
	ID          string
	Title       string
	Description string
	Keywords    []string
	Uploaded    time.Time
}

// PlaylistVideo is one entry of a playlist listing. Uploaded may be nil; the
// playlistItems endpoint omits it for private or removed videos.
type PlaylistVideo struct {
	ID       string
	Uploaded *time.Time
}

// VideoStream lazily pages through a playlist's videos in remote order.
type VideoStream struct {
	c          *Client
	playlistID string
	pageToken  string
	buf        []PlaylistVideo
	exhausted  bool
}

// PlaylistVideos returns a lazy stream over the playlist's videos. Pages of 50
// are fetched on demand as the stream is drained.
func (c *Client) PlaylistVideos(playlistID string) *VideoStream {
	return &VideoStream{c: c, playlistID: playlistID}
}

// Next yields the next video, reporting false when the listing is exhausted.
func (s *VideoStream) Next(ctx context.Context) (PlaylistVideo, bool, error) {
	for len(s.buf) == 0 {
		if s.exhausted {
			return PlaylistVideo{}, false, nil
		}
		if err := s.fetchPage(ctx); err != nil {
			return PlaylistVideo{}, false, err
		}
	}
	v := s.buf[0]
	s.buf = s.buf[1:]
	return v, true, nil
}

func (s *VideoStream) fetchPage(ctx context.Context) error {
	var res *yt.PlaylistItemListResponse
	err := withRetry(ctx, "playlistItems.list", func() error {
		call := s.c.svc.PlaylistItems.List([]string{"contentDetails"}).
			PlaylistId(s.playlistID).MaxResults(playlistPageSize).Context(ctx)
		if s.pageToken != "" {
			call = call.PageToken(s.pageToken)
		}
		var err error
		res, err = call.Do()
		return mapStatus(err)
	})
	if err != nil {
		return fmt.Errorf("list playlist %s: %w", s.playlistID, err)
	}
	for _, item := range res.Items {
		pv := PlaylistVideo{ID: item.ContentDetails.VideoId}
		if item.ContentDetails.VideoPublishedAt != "" {
			if t, err := time.Parse(time.RFC3339, item.ContentDetails.VideoPublishedAt); err == nil {
				u := t.UTC()
				pv.Uploaded = &u
			}
		}
		s.buf = append(s.buf, pv)
	}
	s.pageToken = res.NextPageToken
	if s.pageToken == "" {
		s.exhausted = true
	}
	return nil
}

// ResolveChannel maps a channel alias (handle, user name, custom slug, channel
// id, or any URL of these) to the canonical channel id.
func (c *Client) ResolveChannel(ctx context.Context, alias string) (string, error) {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return "", fmt.Errorf("%w: empty channel alias", ErrInput)
	}
	kind, value := parseAlias(alias)
	switch kind {
	case aliasChannelID:
		return value, nil
	case aliasHandle:
		// A bare alias could be a handle, a legacy user name or a custom
		// slug; try the cheap lookups before falling back to search.
		id, err := c.channelBy(ctx, func(call *yt.ChannelsListCall) *yt.ChannelsListCall {
			return call.ForHandle(value)
		}, alias)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return id, err
		}
		id, err = c.channelBy(ctx, func(call *yt.ChannelsListCall) *yt.ChannelsListCall {
			return call.ForUsername(value)
		}, alias)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return id, err
		}
		return c.searchChannel(ctx, value)
	case aliasUser:
		return c.channelBy(ctx, func(call *yt.ChannelsListCall) *yt.ChannelsListCall {
			return call.ForUsername(value)
		}, alias)
	case aliasSlug:
		return c.searchChannel(ctx, value)
	default:
		return "", fmt.Errorf("%w: unrecognized channel alias %q", ErrInput, alias)
	}
}

func (c *Client) channelBy(ctx context.Context, bind func(*yt.ChannelsListCall) *yt.ChannelsListCall, alias string) (string, error) {
	var res *yt.ChannelListResponse
	err := withRetry(ctx, "channels.list", func() error {
		var err error
		res, err = bind(c.svc.Channels.List([]string{"id"})).Context(ctx).Do()
		return mapStatus(err)
	})
	if err != nil {
		return "", err
	}
	if len(res.Items) == 0 {
		return "", fmt.Errorf("channel %s: %w", alias, ErrNotFound)
	}
	return res.Items[0].Id, nil
}

// searchChannel resolves a legacy custom slug, which the channels endpoint
// cannot look up directly.
func (c *Client) searchChannel(ctx context.Context, slug string) (string, error) {
	var res *yt.SearchListResponse
	err := withRetry(ctx, "search.list", func() error {
		var err error
		res, err = c.svc.Search.List([]string{"id"}).Q(slug).Type("channel").MaxResults(1).Context(ctx).Do()
		return mapStatus(err)
	})
	if err != nil {
		return "", err
	}
	if len(res.Items) == 0 || res.Items[0].Id == nil || res.Items[0].Id.ChannelId == "" {
		return "", fmt.Errorf("channel %s: %w", slug, ErrNotFound)
	}
	return res.Items[0].Id.ChannelId, nil
}

// UploadsPlaylistID returns the channel's Uploads playlist id.
func (c *Client) UploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	var res *yt.ChannelListResponse
	err := withRetry(ctx, "channels.list", func() error {
		var err error
		res, err = c.svc.Channels.List([]string{"contentDetails"}).Id(channelID).Context(ctx).Do()
		return mapStatus(err)
	})
	if err != nil {
		return "", err
	}
	if len(res.Items) == 0 || res.Items[0].ContentDetails == nil {
		return "", fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	uploads := res.Items[0].ContentDetails.RelatedPlaylists.Uploads
	if uploads == "" {
		return "", fmt.Errorf("channel %s has no uploads playlist: %w", channelID, ErrNotFound)
	}
	return uploads, nil
}

type aliasKind int

const (
	aliasUnknown aliasKind = iota
	aliasChannelID
	aliasHandle
	aliasUser
	aliasSlug
)

// parseAlias classifies the alias forms: raw channel id, @handle, legacy user
// name or custom slug, or any youtube.com URL of those.
func parseAlias(alias string) (aliasKind, string) {
	if strings.Contains(alias, "://") || strings.HasPrefix(alias, "www.") || strings.HasPrefix(alias, "youtube.com/") {
		raw := alias
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return aliasUnknown, ""
		}
		path := strings.Trim(u.Path, "/")
		parts := strings.Split(path, "/")
		if len(parts) == 0 || parts[0] == "" {
			return aliasUnknown, ""
		}
		switch {
		case parts[0] == "channel" && len(parts) > 1:
			return aliasChannelID, parts[1]
		case parts[0] == "user" && len(parts) > 1:
			return aliasUser, parts[1]
		case parts[0] == "c" && len(parts) > 1:
			return aliasSlug, parts[1]
		case strings.HasPrefix(parts[0], "@"):
			return aliasHandle, strings.TrimPrefix(parts[0], "@")
		default:
			return aliasSlug, parts[0]
		}
	}
	switch {
	case strings.HasPrefix(alias, "UC") && len(alias) == 24:
		return aliasChannelID, alias
	case strings.HasPrefix(alias, "@"):
		return aliasHandle, strings.TrimPrefix(alias, "@")
	default:
		return aliasHandle, alias
	}
}
