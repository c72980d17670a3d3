package tasks

import (
	"context"
	"fmt"
	"time"
)

// newFetchSweepTask creates the periodic sweep over every registered
// user's search queries.
func newFetchSweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "fetch_sweep")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting scheduled fetch sweep")
		startTime := time.Now()

		err := deps.Fetcher.Sweep(ctx)

		duration := time.Since(startTime)
		if err != nil {
			log.ErrorContext(ctx, "Fetch sweep failed", "error", err, "duration", duration)
			return fmt.Errorf("fetch sweep failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled fetch sweep completed", "duration", duration)
		return nil
	}
}
