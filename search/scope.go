// Package search drives a scope's full search: resolving the scope to a
// canonical key, refreshing the playlist snapshot, partitioning cached vs
// uncached videos and running the concurrent fetch/index/search pipeline that
// streams results back to the caller.
package search

import (
	"fmt"
	"path/filepath"

	"github.com/onnwee/tubescout/cache"
	"github.com/onnwee/tubescout/youtubeapi"
)

// ScopeKind discriminates the scope variants.
type ScopeKind int

const (
	// ScopeVideos searches an explicit set of videos, one index per video.
	ScopeVideos ScopeKind = iota
	// ScopePlaylist searches the head of a playlist.
	ScopePlaylist
	// ScopeChannel searches the head of a channel's Uploads playlist.
	ScopeChannel
)

// Scope is the set of videos one search is restricted to.
type Scope struct {
	Kind ScopeKind

	// ScopeVideos
	IDs []string

	// ScopePlaylist / ScopeChannel
	Playlist   string // playlist id
	Channel    string // channel alias: handle, user name, slug, id or URL
	Top        int
	CacheHours float64
}

// Videos builds a video-set scope.
func Videos(ids ...string) Scope {
	return Scope{Kind: ScopeVideos, IDs: ids}
}

// Playlist builds a playlist scope searching the first top videos, refreshing
// the snapshot when older than cacheHours.
func Playlist(id string, top int, cacheHours float64) Scope {
	return Scope{Kind: ScopePlaylist, Playlist: id, Top: top, CacheHours: cacheHours}
}

// Channel builds a channel scope over the channel's Uploads playlist.
func Channel(alias string, top int, cacheHours float64) Scope {
	return Scope{Kind: ScopeChannel, Channel: alias, Top: top, CacheHours: cacheHours}
}

// Validate checks scope parameters before any remote or disk work.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeVideos:
		if len(s.IDs) == 0 {
			return fmt.Errorf("%w: no video ids", youtubeapi.ErrInput)
		}
		for _, id := range s.IDs {
			if id == "" {
				return fmt.Errorf("%w: empty video id", youtubeapi.ErrInput)
			}
		}
	case ScopePlaylist:
		if s.Playlist == "" {
			return fmt.Errorf("%w: empty playlist id", youtubeapi.ErrInput)
		}
		if s.Top <= 0 {
			return fmt.Errorf("%w: top must be positive", youtubeapi.ErrInput)
		}
	case ScopeChannel:
		if s.Channel == "" {
			return fmt.Errorf("%w: empty channel alias", youtubeapi.ErrInput)
		}
		if s.Top <= 0 {
			return fmt.Errorf("%w: top must be positive", youtubeapi.ErrInput)
		}
	default:
		return fmt.Errorf("%w: unknown scope kind %d", youtubeapi.ErrInput, s.Kind)
	}
	return nil
}

// Key prefixes for persisted state.
const (
	videoKeyPrefix    = "video:"
	playlistKeyPrefix = "playlist:"
	channelKeyPrefix  = "channel:"
	aliasKeyPrefix    = "alias:"
)

// VideoKey is the cache key of a single video's JSON blob and per-video index.
func VideoKey(id string) string { return videoKeyPrefix + id }

// Storage groups the per-type stores under one cache directory:
//
//	<cacheDir>/videos/video:<id>.json          video metadata + captions
//	<cacheDir>/videos/video:<id>.idx           per-video index (video-set scopes)
//	<cacheDir>/playlists/playlist:<id>.{json,idx}
//	<cacheDir>/channels/channel:<id>.{json,idx}
//	<cacheDir>/channels/alias:<alias>.json     alias -> channel id
type Storage struct {
	Videos       *cache.Store
	VideoIndexes *cache.IndexStore

	Playlists       *cache.Store
	PlaylistIndexes *cache.IndexStore

	Channels       *cache.Store
	ChannelIndexes *cache.IndexStore
}

// OpenStorage creates the cache layout under cacheDir.
func OpenStorage(cacheDir string) (*Storage, error) {
	s := &Storage{}
	var err error
	videosDir := filepath.Join(cacheDir, "videos")
	if s.Videos, err = cache.NewStore(videosDir); err != nil {
		return nil, err
	}
	if s.VideoIndexes, err = cache.NewIndexStore(videosDir); err != nil {
		return nil, err
	}
	playlistsDir := filepath.Join(cacheDir, "playlists")
	if s.Playlists, err = cache.NewStore(playlistsDir); err != nil {
		return nil, err
	}
	if s.PlaylistIndexes, err = cache.NewIndexStore(playlistsDir); err != nil {
		return nil, err
	}
	channelsDir := filepath.Join(cacheDir, "channels")
	if s.Channels, err = cache.NewStore(channelsDir); err != nil {
		return nil, err
	}
	if s.ChannelIndexes, err = cache.NewIndexStore(channelsDir); err != nil {
		return nil, err
	}
	return s, nil
}

// snapshotStore returns the JSON store and index store for a playlist-like
// scope kind.
func (s *Storage) snapshotStore(kind ScopeKind) (*cache.Store, *cache.IndexStore) {
	if kind == ScopeChannel {
		return s.Channels, s.ChannelIndexes
	}
	return s.Playlists, s.PlaylistIndexes
}
