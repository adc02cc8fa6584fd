// Command tubescout is a local full-text search engine over YouTube video
// metadata and caption tracks. It:
//   - Loads configuration and initializes structured logging.
//   - Downloads and caches the metadata and captions a search needs, on demand.
//   - Maintains one full-text index per scope (videos, playlist or channel)
//     under the cache directory.
//   - Streams highlighted, time-stamped matches to stdout as they are found.
//
// Shutdown is graceful on SIGINT/SIGTERM: in-flight index batches are
// committed before exit so progress is kept.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/tubescout/config"
	"github.com/onnwee/tubescout/index"
	"github.com/onnwee/tubescout/search"
	"github.com/onnwee/tubescout/telemetry"
	"github.com/onnwee/tubescout/video"
	"github.com/onnwee/tubescout/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	var (
		channel    = flag.String("channel", "", "channel alias (handle, user name, slug, id or URL)")
		playlist   = flag.String("playlist", "", "playlist id")
		videos     = flag.String("videos", "", "comma-separated video ids")
		query      = flag.String("for", "", "search query")
		top        = flag.Int("top", 50, "number of videos from the head of a playlist-like scope")
		cacheHours = flag.Float64("cache-hours", cfg.CacheHours, "playlist snapshot freshness window")
		padding    = flag.Uint("padding", cfg.Padding, "characters of context around each hit")
		orderBy    = flag.String("order-by", "", "playlist result order: score|uploaded, suffix ' asc' for ascending")
	)
	flag.Parse()

	scope, err := buildScope(*channel, *playlist, *videos, *top, *cacheHours)
	if err != nil {
		slog.Error("invalid scope", slog.Any("err", err))
		os.Exit(2)
	}
	if *query == "" {
		slog.Error("missing -for query")
		os.Exit(2)
	}
	order, err := parseOrder(*orderBy)
	if err != nil {
		slog.Error("invalid -order-by", slog.Any("err", err))
		os.Exit(2)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("tubescout", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.ValidateRemoteReady(); err != nil {
		slog.Warn("no youtube credentials; only cached videos are searchable", slog.Any("err", err))
	}
	client, err := youtubeapi.New(ctx, cfg)
	if err != nil {
		slog.Error("youtube client", slog.Any("err", err))
		os.Exit(1)
	}
	storage, err := search.OpenStorage(cfg.CacheDir)
	if err != nil {
		slog.Error("open cache", slog.Any("err", err))
		os.Exit(1)
	}
	engine := search.NewEngine(search.WrapClient(client), storage, cfg)

	items, err := engine.Execute(ctx, scope, *query, search.Options{Padding: *padding, Order: order})
	if err != nil {
		slog.Error("search failed", slog.Any("err", err))
		os.Exit(1)
	}
	exitCode := 0
	for it := range items {
		if it.Err != nil {
			slog.Error("search aborted", slog.Any("err", it.Err))
			exitCode = 1
			break
		}
		printResult(it.Result)
	}
	os.Exit(exitCode)
}

func buildScope(channel, playlist, videos string, top int, cacheHours float64) (search.Scope, error) {
	set := 0
	for _, s := range []string{channel, playlist, videos} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return search.Scope{}, fmt.Errorf("exactly one of -channel, -playlist, -videos is required")
	}
	switch {
	case videos != "":
		var ids []string
		for _, id := range strings.Split(videos, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		return search.Videos(ids...), nil
	case playlist != "":
		return search.Playlist(playlist, top, cacheHours), nil
	default:
		return search.Channel(channel, top, cacheHours), nil
	}
}

func parseOrder(s string) (index.Order, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return index.Order{}, nil
	}
	desc := true
	if strings.HasSuffix(s, " asc") {
		desc = false
		s = strings.TrimSuffix(s, " asc")
	} else {
		s = strings.TrimSuffix(s, " desc")
	}
	switch strings.TrimSpace(s) {
	case "score":
		return index.Order{By: index.OrderByScore, Desc: desc}, nil
	case "uploaded":
		return index.Order{By: index.OrderByUploaded, Desc: desc}, nil
	default:
		return index.Order{}, fmt.Errorf("unknown order key %q", s)
	}
}

// printResult renders one match to stdout: the video line, then excerpts with
// their hits bracketed, caption excerpts prefixed with their timestamp.
func printResult(r *video.SearchResult) {
	fmt.Printf("%s  %s  https://youtu.be/%s\n", r.Video.Uploaded.Format("2006-01-02"), r.Video.Title, r.Video.ID)
	if r.TitleMatches != nil {
		fmt.Printf("  title:       %s\n", highlight(*r.TitleMatches))
	}
	for _, m := range r.DescriptionMatches {
		fmt.Printf("  description: …%s…\n", highlight(m))
	}
	for _, m := range r.KeywordMatches {
		fmt.Printf("  keyword:     %s\n", highlight(m))
	}
	for _, tr := range r.CaptionTrackMatches {
		for _, cm := range tr.Matches {
			at := cm.Caption.At
			fmt.Printf("  %s %02d:%02d:%02d  …%s…\n", tr.Track.LanguageName, at/3600, at/60%60, at%60, highlight(cm.Match))
		}
	}
}

// highlight brackets the included hit intervals inside the padded excerpt.
func highlight(m video.PaddedMatch) string {
	var sb strings.Builder
	pos := 0
	for _, inc := range m.Included {
		if inc.Start < pos || inc.Start+inc.Length > len(m.Value) {
			continue
		}
		sb.WriteString(m.Value[pos:inc.Start])
		sb.WriteString("[")
		sb.WriteString(m.Value[inc.Start : inc.Start+inc.Length])
		sb.WriteString("]")
		pos = inc.Start + inc.Length
	}
	sb.WriteString(m.Value[pos:])
	return sb.String()
}
