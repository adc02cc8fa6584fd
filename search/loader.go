package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/tubescout/telemetry"
	"github.com/onnwee/tubescout/video"
	"github.com/onnwee/tubescout/youtubeapi"
)

// VideoStream pages through a playlist's videos lazily.
type VideoStream interface {
	Next(ctx context.Context) (youtubeapi.PlaylistVideo, bool, error)
}

// Client is the YouTube surface the engine consumes (seam for tests).
type Client interface {
	ResolveChannel(ctx context.Context, alias string) (string, error)
	UploadsPlaylistID(ctx context.Context, channelID string) (string, error)
	PlaylistVideos(playlistID string) VideoStream
	GetVideo(ctx context.Context, id string) (*youtubeapi.VideoInfo, error)
	CaptionManifest(ctx context.Context, videoID string) ([]youtubeapi.CaptionTrackInfo, error)
	Captions(ctx context.Context, info youtubeapi.CaptionTrackInfo) ([]video.Caption, error)
}

// apiClient adapts *youtubeapi.Client to the Client seam (its PlaylistVideos
// returns the concrete stream type).
type apiClient struct {
	*youtubeapi.Client
}

func (a apiClient) PlaylistVideos(playlistID string) VideoStream {
	return a.Client.PlaylistVideos(playlistID)
}

// WrapClient adapts the concrete YouTube client for the engine.
func WrapClient(c *youtubeapi.Client) Client { return apiClient{c} }

// loadVideo returns the cached video or fetches, sanitizes and persists it.
// The fetched flag reports a cache miss that went to the network.
func (e *Engine) loadVideo(ctx context.Context, id string) (*video.Video, bool, error) {
	key := VideoKey(id)
	var cached video.Video
	ok, err := e.storage.Videos.Get(key, &cached)
	if err != nil {
		return nil, false, err
	}
	if ok {
		telemetry.CacheHits.Inc()
		cached.Sanitize()
		return &cached, false, nil
	}
	telemetry.CacheMisses.Inc()

	v, err := e.fetchVideo(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if err := e.storage.Videos.Set(key, v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// fetchVideo pulls metadata, the caption manifest and every track's captions.
// A track whose download fails records the error on the track; the video fetch
// itself only fails on metadata or manifest errors.
func (e *Engine) fetchVideo(ctx context.Context, id string) (*video.Video, error) {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("video_id", id), slog.String("component", "video_fetch"))
	telemetry.FetchesStarted.Inc()
	start := time.Now()

	info, err := e.client.GetVideo(ctx, id)
	if err != nil {
		telemetry.FetchesFailed.Inc()
		return nil, err
	}
	v := &video.Video{
		ID:          info.ID,
		Title:       info.Title,
		Description: info.Description,
		Keywords:    info.Keywords,
		Uploaded:    info.Uploaded,
	}

	tracks, err := e.client.CaptionManifest(ctx, id)
	if err != nil {
		telemetry.FetchesFailed.Inc()
		return nil, err
	}
	for _, ti := range tracks {
		track := &video.CaptionTrack{LanguageName: ti.LanguageName, SourceURL: ti.BaseURL}
		captions, err := e.client.Captions(ctx, ti)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			track.Error = err.Error()
			logger.Warn("caption track download failed", slog.String("language", ti.LanguageName), slog.Any("err", err))
		} else {
			track.Captions = captions
		}
		v.CaptionTracks = append(v.CaptionTracks, track)
	}
	v.Sanitize()

	dur := time.Since(start)
	telemetry.FetchesSucceeded.Inc()
	telemetry.FetchDuration.Observe(dur.Seconds())
	logger.Debug("video fetched", slog.Int("tracks", len(v.CaptionTracks)), slog.Duration("fetch_duration", dur))
	return v, nil
}

// resolveChannelID maps an alias to the canonical channel id, caching the
// resolution under alias:<alias>.
func (e *Engine) resolveChannelID(ctx context.Context, alias string) (string, error) {
	type aliasRecord struct {
		ChannelID string `json:"channelId"`
	}
	key := aliasKeyPrefix + alias
	var rec aliasRecord
	ok, err := e.storage.Channels.Get(key, &rec)
	if err != nil {
		return "", err
	}
	if ok && rec.ChannelID != "" {
		return rec.ChannelID, nil
	}
	id, err := e.client.ResolveChannel(ctx, alias)
	if err != nil {
		return "", err
	}
	if err := e.storage.Channels.Set(key, aliasRecord{ChannelID: id}); err != nil {
		return "", err
	}
	return id, nil
}
