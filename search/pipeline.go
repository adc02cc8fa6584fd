package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/tubescout/cache"
	"github.com/onnwee/tubescout/index"
	"github.com/onnwee/tubescout/telemetry"
	"github.com/onnwee/tubescout/video"
	"github.com/onnwee/tubescout/youtubeapi"
)

// runPlaylist executes a playlist or channel scope: resolve, refresh, then
// two concurrent branches feeding the caller's stream — a search over the
// already-indexed subset and a fetch→index→search pipeline for the rest.
// Both branches finish before the one-shot drift recovery pass.
func (e *Engine) runPlaylist(ctx context.Context, scope Scope, query string, opts Options, out chan<- Item) error {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "search"))

	scopeKey, playlistID, err := e.resolveScope(ctx, scope)
	if err != nil {
		return err
	}
	store, istore := e.storage.snapshotStore(scope.Kind)
	logger = logger.With(slog.String("scope", scopeKey))

	refreshStart := time.Now()
	pl, err := e.loadOrRefresh(ctx, scope, scopeKey, playlistID, store)
	if err != nil {
		return err
	}
	telemetry.SearchStepDuration.WithLabelValues("refresh").Observe(time.Since(refreshStart).Seconds())
	relevant := pl.VideoIDs(scope.Top)
	if len(relevant) == 0 {
		logger.Info("scope has no videos")
		return nil
	}

	vi, err := index.OpenOrCreate(istore, scopeKey)
	if err != nil {
		return err
	}
	defer vi.Close()

	partitionStart := time.Now()
	present, missing, err := vi.IndexedIDs(relevant)
	if err != nil {
		return err
	}
	telemetry.SearchStepDuration.WithLabelValues("partition").Observe(time.Since(partitionStart).Seconds())
	indexed := make([]string, 0, len(present))
	for _, id := range relevant {
		if _, ok := present[id]; ok {
			indexed = append(indexed, id)
		}
	}
	logger.Info("scope partitioned",
		slog.Int("relevant", len(relevant)),
		slog.Int("indexed", len(indexed)),
		slog.Int("unindexed", len(missing)),
	)

	// snapshot mutations come from both branches
	var plMu sync.Mutex
	updateUploaded := func(dates map[string]time.Time) {
		plMu.Lock()
		defer plMu.Unlock()
		changed := false
		for id, t := range dates {
			if pl.SetUploaded(id, t) {
				changed = true
			}
		}
		if changed {
			if err := store.Set(scopeKey, pl); err != nil {
				logger.Warn("persisting upload dates failed", slog.Any("err", err))
			}
		}
	}
	baseOpts := index.SearchOptions{
		Padding:        opts.Padding,
		Playlist:       true,
		Order:          opts.Order,
		GetVideo:       e.getVideoFunc(vi),
		UpdateUploaded: updateUploaded,
	}

	var driftMu sync.Mutex
	var drift []string
	collectDrift := func(ids []string) {
		if len(ids) == 0 {
			return
		}
		driftMu.Lock()
		drift = append(drift, ids...)
		driftMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	if len(indexed) > 0 {
		g.Go(func() error {
			searchOpts := baseOpts
			searchOpts.RelevantIDs = indexed
			telemetry.SearchesRun.Inc()
			results, d, err := vi.Search(gctx, query, searchOpts)
			if err != nil {
				return err
			}
			collectDrift(d)
			if !emitResults(gctx, out, results) {
				return gctx.Err()
			}
			return nil
		})
	}
	if len(missing) > 0 {
		g.Go(func() error {
			return e.fetchIndexSearch(gctx, vi, missing, query, baseOpts, out, collectDrift)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(drift) > 0 {
		return e.recoverDrift(ctx, vi, drift, query, baseOpts, out)
	}
	return nil
}

// resolveScope computes the canonical scope key and the playlist id to
// enumerate. Channel aliases resolve (cached) to the channel id; the Uploads
// playlist lookup happens at refresh time.
func (e *Engine) resolveScope(ctx context.Context, scope Scope) (scopeKey, playlistID string, err error) {
	if scope.Kind == ScopeChannel {
		channelID, err := e.resolveChannelID(ctx, scope.Channel)
		if err != nil {
			return "", "", err
		}
		return channelKeyPrefix + channelID, channelID, nil
	}
	return playlistKeyPrefix + scope.Playlist, scope.Playlist, nil
}

// loadOrRefresh loads the scope's snapshot and refreshes it from the remote
// listing when missing, stale or too short for the requested top.
func (e *Engine) loadOrRefresh(ctx context.Context, scope Scope, scopeKey, playlistID string, store *cache.Store) (*video.Playlist, error) {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("scope", scopeKey), slog.String("component", "playlist_refresh"))
	pl := &video.Playlist{}
	if _, err := store.Get(scopeKey, pl); err != nil {
		return nil, err
	}
	if !pl.Stale(scope.CacheHours, scope.Top) {
		telemetry.PlaylistRefreshes.WithLabelValues(scopeKey, "cache_hit").Inc()
		return pl, nil
	}

	listID := playlistID
	if scope.Kind == ScopeChannel {
		uploads, err := e.client.UploadsPlaylistID(ctx, playlistID)
		if err != nil {
			return nil, err
		}
		listID = uploads
	}

	stream := e.client.PlaylistVideos(listID)
	var remote []video.PlaylistEntry
	for len(remote) < scope.Top {
		pv, ok, err := stream.Next(ctx)
		if err != nil {
			// keep a usable (if stale) snapshot when the remote refresh
			// fails but we already have enough ids to search
			if len(pl.Videos) > 0 && !errors.Is(err, youtubeapi.ErrNotFound) && ctx.Err() == nil {
				logger.Warn("playlist refresh failed, searching stale snapshot", slog.Any("err", err))
				telemetry.PlaylistRefreshes.WithLabelValues(scopeKey, "stale_fallback").Inc()
				return pl, nil
			}
			return nil, err
		}
		if !ok {
			break
		}
		remote = append(remote, video.PlaylistEntry{ID: pv.ID, Uploaded: pv.Uploaded})
	}
	pl.Update(remote)
	if err := store.Set(scopeKey, pl); err != nil {
		return nil, err
	}
	telemetry.PlaylistRefreshes.WithLabelValues(scopeKey, "refreshed").Inc()
	logger.Info("snapshot refreshed", slog.Int("remote", len(remote)), slog.Int("total", len(pl.Videos)))
	return pl, nil
}

// fetchIndexSearch drains the unindexed ids through a bounded fetch fan-out
// into a single index-writing consumer that commits small batches and
// searches each batch as soon as it is durable, streaming matches out.
func (e *Engine) fetchIndexSearch(ctx context.Context, vi *index.VideoIndex, unindexed []string, query string, baseOpts index.SearchOptions, out chan<- Item, collectDrift func([]string)) error {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "fetch_pipeline"))
	fetched := make(chan *video.Video, e.queueCap)

	g, gctx := errgroup.WithContext(ctx)

	// Producer: up to fetchConcurrency in-flight fetches. A permit is held
	// until the fetched video is accepted by the bounded channel, so a slow
	// consumer exerts backpressure on the fan-out.
	g.Go(func() error {
		defer close(fetched)
		sem := make(chan struct{}, e.fetchConcurrency)
		fg, fctx := errgroup.WithContext(gctx)
		for _, id := range unindexed {
			if fctx.Err() != nil {
				break
			}
			select {
			case sem <- struct{}{}:
			case <-fctx.Done():
			}
			if fctx.Err() != nil {
				break
			}
			id := id
			fg.Go(func() error {
				v, _, err := e.loadVideo(fctx, id)
				if err != nil {
					<-sem
					if isNotFound(err) {
						logger.Warn("skipping unavailable video", slog.String("video_id", id), slog.Any("err", err))
						return nil
					}
					return err
				}
				select {
				case fetched <- v:
				case <-fctx.Done():
				}
				<-sem
				return nil
			})
		}
		return fg.Wait()
	})

	// Consumer: the single index writer. Flush when the batch is full, the
	// producer completed, or no further video is queued right now.
	g.Go(func() error {
		var batchIDs []string
		vi.BeginBatch()

		flush := func() error {
			if len(batchIDs) == 0 {
				return nil
			}
			commitStart := time.Now()
			if err := vi.CommitBatch(); err != nil {
				return err
			}
			telemetry.BatchesCommitted.Inc()
			telemetry.CommitDuration.Observe(time.Since(commitStart).Seconds())
			vi.Save()

			searchOpts := baseOpts
			searchOpts.RelevantIDs = batchIDs
			telemetry.SearchesRun.Inc()
			results, d, err := vi.Search(gctx, query, searchOpts)
			if err != nil {
				return err
			}
			collectDrift(d)
			if !emitResults(gctx, out, results) {
				return gctx.Err()
			}
			logger.Debug("batch searched", slog.Int("batch", len(batchIDs)), slog.Int("matches", len(results)))
			batchIDs = batchIDs[:0]
			vi.BeginBatch()
			return nil
		}

		for {
			select {
			case v, ok := <-fetched:
				if !ok {
					return flush()
				}
				if err := vi.Replace(v); err != nil {
					return err
				}
				batchIDs = append(batchIDs, v.ID)
				telemetry.SetQueueDepth(len(fetched))
				if len(batchIDs) >= e.batchSize || len(fetched) == 0 {
					if err := flush(); err != nil {
						return err
					}
				}
			case <-gctx.Done():
				// preserve progress: commit and save what we have before
				// surfacing the cancellation
				if err := vi.CommitBatch(); err == nil && len(batchIDs) > 0 {
					telemetry.BatchesCommitted.Inc()
					vi.Save()
				}
				return gctx.Err()
			}
		}
	})

	return g.Wait()
}

func isNotFound(err error) bool {
	return errors.Is(err, youtubeapi.ErrNotFound)
}
