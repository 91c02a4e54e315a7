// Package runner drives any RunOnce(ctx) error function on a fixed
// interval, logging each cycle's outcome. It generalizes the teacher's
// single-purpose order-expiry ticker into the shape both the scraper and
// the speculator need: run once immediately, then again every interval
// until the context is canceled.
package runner

import (
	"context"
	"log/slog"
	"time"
)

// Periodic runs fn once immediately, then once per interval, until ctx is
// canceled. A failing cycle is logged and does not stop subsequent runs.
func Periodic(ctx context.Context, logger *slog.Logger, name string, interval time.Duration, fn func(ctx context.Context) error) {
	logger.InfoContext(ctx, "starting periodic runner", "name", name, "interval", interval.String())

	if err := fn(ctx); err != nil {
		logger.ErrorContext(ctx, "cycle failed", "name", name, "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "periodic runner stopped", "name", name)
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				logger.ErrorContext(ctx, "cycle failed", "name", name, "error", err)
			}
		}
	}
}
