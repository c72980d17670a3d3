// Package delivery implements exactly-once-per-user paper delivery on
// top of the persistent delivery log.
package delivery

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/binbla/ArxivPusherBot/internal/database"
)

// SendFunc delivers one paper to the target user. The transport owns
// rendering so it can fall back to a plainer representation when the
// rich one is rejected.
type SendFunc func(ctx context.Context, paper *database.Paper) error

// Engine deduplicates deliveries per (paper, user) pair. It is safe
// for concurrent use across users.
type Engine struct {
	store  database.Store
	logger *slog.Logger
}

// NewEngine creates a delivery engine backed by the given store.
func NewEngine(store database.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		store:  store,
		logger: logger.With("component", "delivery"),
	}
}

// DeliverIfNew sends the paper to the user unless a delivery is already
// recorded. The delivery is recorded only after the send succeeds, so a
// crash between send and record re-delivers on the next run rather than
// silently dropping. Returns true when a message was actually sent.
func (e *Engine) DeliverIfNew(ctx context.Context, paper *database.Paper, userID int64, send SendFunc) (bool, error) {
	if paper == nil {
		return false, fmt.Errorf("cannot deliver nil paper")
	}

	sent, err := e.store.IsSent(ctx, paper.ArxivID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check delivery state for paper %s: %w", paper.ArxivID, err)
	}
	if sent {
		e.logger.DebugContext(ctx, "Skipping already delivered paper", "arxiv_id", paper.ArxivID, "user_id", userID)
		return false, nil
	}

	if err := send(ctx, paper); err != nil {
		return false, fmt.Errorf("failed to send paper %s to user %d: %w", paper.ArxivID, userID, err)
	}

	if _, err := e.store.MarkSent(ctx, paper.ArxivID, userID); err != nil {
		// The message is out; surface the bookkeeping failure but
		// report the delivery as made.
		e.logger.ErrorContext(ctx, "Delivery sent but not recorded", "arxiv_id", paper.ArxivID, "user_id", userID, "error", err)
		return true, fmt.Errorf("delivery of paper %s to user %d sent but not recorded: %w", paper.ArxivID, userID, err)
	}

	e.logger.InfoContext(ctx, "Paper delivered", "arxiv_id", paper.ArxivID, "user_id", userID)
	return true, nil
}
