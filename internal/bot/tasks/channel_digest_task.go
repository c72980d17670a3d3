package tasks

import (
	"context"
	"fmt"
	"time"
)

// newChannelDigestTask creates the task that pushes today's new papers
// in the default categories to the configured channel.
func newChannelDigestTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "channel_digest")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting channel digest")
		startTime := time.Now()

		delivered, err := deps.Fetcher.ChannelDigest(ctx)

		duration := time.Since(startTime)
		if err != nil {
			log.ErrorContext(ctx, "Channel digest failed", "error", err, "duration", duration)
			return fmt.Errorf("channel digest failed: %w", err)
		}

		log.InfoContext(ctx, "Channel digest completed", "delivered", delivered, "duration", duration)
		return nil
	}
}
