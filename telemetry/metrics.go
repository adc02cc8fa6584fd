// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	FetchesStarted   prometheus.Counter
	FetchesFailed    prometheus.Counter
	FetchesSucceeded prometheus.Counter
	SearchesRun      prometheus.Counter
	ResultsEmitted   prometheus.Counter
	BatchesCommitted prometheus.Counter
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	IndexRecoveries  prometheus.Counter

	// Histograms (seconds)
	FetchDuration       prometheus.Observer
	CommitDuration      prometheus.Observer
	TotalSearchDuration prometheus.Observer

	// Gauges
	FetchQueueDepth prometheus.Gauge

	// Vectors
	PlaylistRefreshes  *prometheus.CounterVec
	SearchStepDuration *prometheus.HistogramVec
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		FetchesStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "video_fetches_started_total", Help: "Number of video fetches started"})
		FetchesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "video_fetches_failed_total", Help: "Number of video fetches failed"})
		FetchesSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "video_fetches_succeeded_total", Help: "Number of video fetches succeeded"})
		SearchesRun = promauto.NewCounter(prometheus.CounterOpts{Name: "index_searches_total", Help: "Number of index search passes executed"})
		ResultsEmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "search_results_emitted_total", Help: "Number of search results yielded to callers"})
		BatchesCommitted = promauto.NewCounter(prometheus.CounterOpts{Name: "index_batches_committed_total", Help: "Number of index batches committed"})
		CacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "video_cache_hits_total", Help: "Number of video loads served from the local cache"})
		CacheMisses = promauto.NewCounter(prometheus.CounterOpts{Name: "video_cache_misses_total", Help: "Number of video loads that required a remote fetch"})
		IndexRecoveries = promauto.NewCounter(prometheus.CounterOpts{Name: "index_drift_recoveries_total", Help: "Number of drift recovery passes run"})

		// Buckets tuned for single-video fetches (captions included) and
		// small batch commits.
		FetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "video_fetch_duration_seconds",
			Help:    "Video fetch duration seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		})
		CommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "index_commit_duration_seconds",
			Help:    "Index batch commit duration seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		})
		TotalSearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "search_total_duration_seconds",
			Help:    "Total scope search duration seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		})

		FetchQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{Name: "video_fetch_queue_depth", Help: "Videos fetched but not yet indexed"})

		PlaylistRefreshes = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playlist_refreshes_total",
				Help: "Playlist snapshot refreshes by outcome",
			},
			[]string{"scope", "outcome"},
		)

		SearchStepDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_step_duration_seconds",
				Help:    "Duration of individual search pipeline steps",
				Buckets: []float64{0.01, 0.05, 0.25, 1, 5, 15, 60},
			},
			[]string{"step"},
		)
	})
}

// SetQueueDepth sets the fetch queue depth gauge (no-op before Init).
func SetQueueDepth(n int) {
	if FetchQueueDepth != nil {
		FetchQueueDepth.Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context carrying the correlation id, replacing any earlier one.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
