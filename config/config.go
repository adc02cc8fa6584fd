// Package config loads environment variables and provides a typed Config used across the tool.
// It applies sensible defaults so the binary can run locally with minimal setup.
// Remote fetches need YOUTUBE_API_KEY or YOUTUBE_OAUTH_TOKEN; a warm cache searches offline.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	// YouTube
	APIKey     string
	OAuthToken string // optional bearer token; raises quota and unlocks private playlists

	// Storage
	CacheDir string

	// Pipeline tuning
	FetchConcurrency int
	FetchQueueCap    int
	IndexBatchSize   int

	// Search defaults
	Padding    uint
	CacheHours float64

	// HTTP
	HTTPTimeout time.Duration
}

// Load reads environment variables and applies defaults. It doesn't fail if the API key
// is missing; use ValidateRemoteReady() when a search needs to reach YouTube.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.APIKey = os.Getenv("YOUTUBE_API_KEY")
	cfg.OAuthToken = os.Getenv("YOUTUBE_OAUTH_TOKEN")

	cfg.CacheDir = os.Getenv("CACHE_DIR")
	if cfg.CacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir for default cache: %w", err)
		}
		cfg.CacheDir = filepath.Join(home, ".cache", "tubescout")
	}

	cfg.FetchConcurrency = intEnv("FETCH_CONCURRENCY", 5)
	cfg.FetchQueueCap = intEnv("FETCH_QUEUE_CAPACITY", 5)
	cfg.IndexBatchSize = intEnv("INDEX_BATCH_SIZE", 5)

	cfg.Padding = uint(intEnv("PADDING", 23))

	cfg.CacheHours = 24
	if s := os.Getenv("CACHE_HOURS"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 {
			return nil, fmt.Errorf("invalid CACHE_HOURS: %q", s)
		}
		cfg.CacheHours = f
	}

	cfg.HTTPTimeout = 30 * time.Second
	if s := os.Getenv("HTTP_TIMEOUT"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %q", s)
		}
		cfg.HTTPTimeout = d
	}

	return cfg, nil
}

// ValidateRemoteReady checks required fields when a search must fetch from YouTube.
func (c *Config) ValidateRemoteReady() error {
	if c.APIKey == "" && c.OAuthToken == "" {
		return fmt.Errorf("missing youtube credentials: require YOUTUBE_API_KEY or YOUTUBE_OAUTH_TOKEN")
	}
	return nil
}

func intEnv(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}
