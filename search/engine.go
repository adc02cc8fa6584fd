package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/tubescout/config"
	"github.com/onnwee/tubescout/index"
	"github.com/onnwee/tubescout/telemetry"
	"github.com/onnwee/tubescout/video"
)

// Engine owns the stores and the YouTube client and executes scope searches.
// Safe for sequential searches; one search owns its scope's index for the
// duration.
type Engine struct {
	client  Client
	storage *Storage

	fetchConcurrency int
	queueCap         int
	batchSize        int
}

// NewEngine wires an engine from config.
func NewEngine(client Client, storage *Storage, cfg *config.Config) *Engine {
	telemetry.Init()
	return &Engine{
		client:           client,
		storage:          storage,
		fetchConcurrency: cfg.FetchConcurrency,
		queueCap:         cfg.FetchQueueCap,
		batchSize:        cfg.IndexBatchSize,
	}
}

// Options tunes one search.
type Options struct {
	// Padding is the number of context characters on each side of a hit.
	Padding uint
	// Order applies to playlist-like scopes only. Matches from videos
	// indexed during this search are ordered per emitted batch; a total
	// order requires all videos cached (documented best-effort).
	Order index.Order
}

// Item is one element of the result stream: a result or a terminal error.
type Item struct {
	Result *video.SearchResult
	Err    error
}

// Execute runs a search over the scope and streams results on the returned
// channel, closed when the search finishes. Invalid input and malformed
// queries fail fast before any cache or index state is touched; later errors
// arrive as the final Item.
func (e *Engine) Execute(ctx context.Context, scope Scope, query string, opts Options) (<-chan Item, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if err := index.ValidateQuery(query); err != nil {
		return nil, err
	}
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())

	out := make(chan Item, e.queueCap)
	go func() {
		defer close(out)
		ctx, span := telemetry.StartSpan(ctx, "search", "execute",
			attribute.Int("scope.kind", int(scope.Kind)),
			attribute.String("query", query),
		)
		defer span.End()
		start := time.Now()

		var err error
		switch scope.Kind {
		case ScopeVideos:
			err = e.runVideos(ctx, scope, query, opts, out)
		default:
			err = e.runPlaylist(ctx, scope, query, opts, out)
		}
		telemetry.TotalSearchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			telemetry.RecordError(span, err)
			// terminal item: delivered even under cancellation, the caller
			// drains the stream until close
			out <- Item{Err: err}
			return
		}
		telemetry.SetSpanSuccess(span)
	}()
	return out, nil
}

// emit delivers an item unless the caller has gone away.
func emit(ctx context.Context, out chan<- Item, it Item) bool {
	select {
	case out <- it:
		if it.Result != nil {
			telemetry.ResultsEmitted.Inc()
		}
		return true
	case <-ctx.Done():
		return false
	}
}

// emitResults streams a search pass's results.
func emitResults(ctx context.Context, out chan<- Item, results []video.SearchResult) bool {
	for i := range results {
		r := results[i]
		if !emit(ctx, out, Item{Result: &r}) {
			return false
		}
	}
	return true
}

// runVideos searches an explicit video set: one index per video, fetched and
// indexed on first use. Results preserve input order.
func (e *Engine) runVideos(ctx context.Context, scope Scope, query string, opts Options, out chan<- Item) error {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "search"))
	for _, id := range scope.IDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.searchSingleVideo(ctx, id, query, opts, out); err != nil {
			return err
		}
		logger.Debug("video scope searched", slog.String("video_id", id))
	}
	return nil
}

func (e *Engine) searchSingleVideo(ctx context.Context, id, query string, opts Options, out chan<- Item) error {
	vi, err := index.OpenOrCreate(e.storage.VideoIndexes, VideoKey(id))
	if err != nil {
		return err
	}
	defer vi.Close()

	empty, err := vi.IsEmpty()
	if err != nil {
		return err
	}
	if empty {
		v, _, err := e.loadVideo(ctx, id)
		if err != nil {
			return err
		}
		vi.BeginBatch()
		if err := vi.Add(v); err != nil {
			return err
		}
		if err := vi.CommitBatch(); err != nil {
			return err
		}
		telemetry.BatchesCommitted.Inc()
		vi.Save()
	}

	searchOpts := index.SearchOptions{
		RelevantIDs: []string{id},
		Padding:     opts.Padding,
		GetVideo:    e.getVideoFunc(vi),
	}
	telemetry.SearchesRun.Inc()
	results, drift, err := vi.Search(ctx, query, searchOpts)
	if err != nil {
		return err
	}
	if !emitResults(ctx, out, results) {
		return ctx.Err()
	}
	if len(drift) > 0 {
		return e.recoverDrift(ctx, vi, drift, query, searchOpts, out)
	}
	return nil
}

// getVideoFunc resolves hits to cached videos during result construction.
// Drift is detected by set difference: the video loads (from cache or by
// refetch) but the index holds no document for it, or the video is gone
// remotely; either way it must be re-indexed.
func (e *Engine) getVideoFunc(vi *index.VideoIndex) index.GetVideoFunc {
	return func(ctx context.Context, id string) (*video.Video, bool, error) {
		v, _, err := e.loadVideo(ctx, id)
		if err != nil {
			if isNotFound(err) {
				return nil, true, nil
			}
			return nil, false, err
		}
		has, err := vi.Has(id)
		if err != nil {
			return nil, false, err
		}
		if !has {
			return v, true, nil
		}
		return v, false, nil
	}
}

// recoverDrift re-indexes videos the index lost track of and re-runs the
// search restricted to them, once. Videos that no longer load are dropped
// from the index instead.
func (e *Engine) recoverDrift(ctx context.Context, vi *index.VideoIndex, drift []string, query string, opts index.SearchOptions, out chan<- Item) error {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "search"))
	logger.Info("re-indexing videos missing from index", slog.Int("count", len(drift)))
	telemetry.IndexRecoveries.Inc()

	seen := map[string]struct{}{}
	var reindexed []string
	vi.BeginBatch()
	for _, id := range drift {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		v, _, err := e.loadVideo(ctx, id)
		if err != nil {
			if isNotFound(err) {
				vi.Remove(id)
				logger.Warn("dropping unavailable video from index", slog.String("video_id", id))
				continue
			}
			return err
		}
		if err := vi.Replace(v); err != nil {
			return err
		}
		reindexed = append(reindexed, id)
	}
	if err := vi.CommitBatch(); err != nil {
		return err
	}
	telemetry.BatchesCommitted.Inc()
	vi.Save()

	if len(reindexed) == 0 {
		return nil
	}
	recoveryOpts := opts
	recoveryOpts.RelevantIDs = reindexed
	telemetry.SearchesRun.Inc()
	results, _, err := vi.Search(ctx, query, recoveryOpts)
	if err != nil {
		return err
	}
	if !emitResults(ctx, out, results) {
		return ctx.Err()
	}
	return nil
}
