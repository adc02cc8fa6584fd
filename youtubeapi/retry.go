package youtubeapi

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

const maxAttempts = 4 // initial try + 3 retries

// withRetry runs op, retrying transient failures with exponential backoff and
// jitter. Fatal errors and context cancellation surface immediately.
func withRetry(ctx context.Context, what string, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoff(attempt - 1)
			slog.Warn("youtube request retrying",
				slog.String("op", what),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("err", lastErr),
			)
			if err := sleepWithContext(ctx, delay); err != nil {
				return err
			}
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if Classify(err) == ErrorClassFatal {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

func backoff(attempt int) time.Duration {
	d := 250 * time.Millisecond * time.Duration(1<<(attempt-1))
	if d > 4*time.Second {
		d = 4 * time.Second
	}
	//nolint:gosec // G404: math/rand is sufficient for backoff jitter, not used for security
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d + jitter
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
