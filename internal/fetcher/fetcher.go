// Package fetcher ties the paper source, enrichment, and delivery
// engine together into the periodic sweep and the on-demand fetch.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/binbla/ArxivPusherBot/internal/database"
	"github.com/binbla/ArxivPusherBot/internal/delivery"
)

// Source is the paper index surface the fetcher consumes.
type Source interface {
	Search(ctx context.Context, query string, maxResults int) (all, fresh []*database.Paper, err error)
	FetchTodayNew(ctx context.Context, categories []string) ([]*database.Paper, error)
}

// Enricher fills AI-generated fields on fresh papers.
type Enricher interface {
	Enrich(ctx context.Context, papers []*database.Paper) error
}

// SendFunc delivers one paper to a chat. Rendering happens at the
// transport so the dedup engine stays format-agnostic.
type SendFunc func(ctx context.Context, chatID int64, paper *database.Paper) error

// Fetcher runs the search → enrich → persist → deliver pipeline.
type Fetcher struct {
	store         database.Store
	source        Source
	enricher      Enricher
	engine        *delivery.Engine
	send          SendFunc
	channelChatID int64
	categories    []string
	logger        *slog.Logger
}

// NewFetcher wires the pipeline. channelChatID and categories feed the
// channel digest; a zero channelChatID disables it.
func NewFetcher(
	store database.Store,
	source Source,
	enricher Enricher,
	engine *delivery.Engine,
	send SendFunc,
	channelChatID int64,
	categories []string,
	logger *slog.Logger,
) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fetcher{
		store:         store,
		source:        source,
		enricher:      enricher,
		engine:        engine,
		send:          send,
		channelChatID: channelChatID,
		categories:    categories,
		logger:        logger.With("component", "fetcher"),
	}
}

// Sweep runs every registered Telegram user's queries in stored order
// and delivers matching papers. Per-user and per-query failures are
// logged and skipped; a sweep error is only returned when the user list
// itself cannot be loaded. Users with no queries are skipped.
func (f *Fetcher) Sweep(ctx context.Context) error {
	users, err := f.store.GetUsersByPlatform(ctx, database.PlatformTelegram)
	if err != nil {
		return fmt.Errorf("sweep failed to load users: %w", err)
	}

	f.logger.InfoContext(ctx, "Starting fetch sweep", "users", len(users))

	var delivered int
	for _, user := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if len(user.SearchQueries) == 0 {
			continue
		}

		n, err := f.runQueries(ctx, user.UserID, user.SearchQueries)
		delivered += n
		if err != nil {
			f.logger.ErrorContext(ctx, "Sweep failed for user, continuing", "user_id", user.UserID, "error", err)
		}
	}

	f.logger.InfoContext(ctx, "Fetch sweep complete", "delivered", delivered)
	return nil
}

// FetchUser runs one user's queries immediately and returns how many
// papers were delivered. Used by the on-demand fetch command.
func (f *Fetcher) FetchUser(ctx context.Context, userID int64) (int, error) {
	user, err := f.store.GetUserConfig(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user == nil || len(user.SearchQueries) == 0 {
		return 0, nil
	}
	return f.runQueries(ctx, userID, user.SearchQueries)
}

// runQueries processes queries in stored order. A failed query is
// logged and the rest proceed; the last error is returned so callers
// can report partial failure.
func (f *Fetcher) runQueries(ctx context.Context, userID int64, queries database.QueryList) (int, error) {
	var delivered int
	var lastErr error

	for _, q := range queries {
		n, err := f.processQuery(ctx, userID, q)
		delivered += n
		if err != nil {
			f.logger.ErrorContext(ctx, "Query failed, continuing with next", "user_id", userID, "query", q.Query, "error", err)
			lastErr = err
		}
	}
	return delivered, lastErr
}

// processQuery is one unit of sweep work: search, enrich and persist
// fresh papers, then deliver all results to the user in index order.
func (f *Fetcher) processQuery(ctx context.Context, userID int64, q database.SearchQuery) (int, error) {
	all, fresh, err := f.source.Search(ctx, q.Query, q.MaxResults)
	if err != nil {
		return 0, err
	}

	f.persistFresh(ctx, fresh)

	var delivered int
	for _, paper := range all {
		sent, err := f.engine.DeliverIfNew(ctx, paper, userID, f.sendTo(userID))
		if err != nil {
			f.logger.ErrorContext(ctx, "Delivery failed, continuing", "user_id", userID, "arxiv_id", paper.ArxivID, "error", err)
			continue
		}
		if sent {
			delivered++
		}
	}
	return delivered, nil
}

// ChannelDigest pushes today's new papers in the default categories to
// the configured channel through the same dedup engine; the channel
// chat id plays the user-id role in the delivery log.
func (f *Fetcher) ChannelDigest(ctx context.Context) (int, error) {
	if f.channelChatID == 0 {
		return 0, fmt.Errorf("no channel chat configured")
	}

	papers, err := f.source.FetchTodayNew(ctx, f.categories)
	if err != nil {
		return 0, err
	}

	var fresh []*database.Paper
	for _, paper := range papers {
		exists, err := f.store.PaperExists(ctx, paper.ArxivID)
		if err != nil {
			return 0, err
		}
		if !exists {
			fresh = append(fresh, paper)
		}
	}
	f.persistFresh(ctx, fresh)

	var delivered int
	for _, paper := range papers {
		sent, err := f.engine.DeliverIfNew(ctx, paper, f.channelChatID, f.sendTo(f.channelChatID))
		if err != nil {
			f.logger.ErrorContext(ctx, "Channel delivery failed, continuing", "arxiv_id", paper.ArxivID, "error", err)
			continue
		}
		if sent {
			delivered++
		}
	}

	f.logger.InfoContext(ctx, "Channel digest complete", "papers", len(papers), "delivered", delivered)
	return delivered, nil
}

// persistFresh enriches new papers and stores them. Enrichment and
// per-paper insert failures are logged; the papers still flow to
// delivery with whatever fields they have.
func (f *Fetcher) persistFresh(ctx context.Context, fresh []*database.Paper) {
	if len(fresh) == 0 {
		return
	}

	if err := f.enricher.Enrich(ctx, fresh); err != nil {
		f.logger.ErrorContext(ctx, "Enrichment failed", "papers", len(fresh), "error", err)
	}

	for _, paper := range fresh {
		if _, err := f.store.InsertPaper(ctx, paper); err != nil {
			f.logger.ErrorContext(ctx, "Failed to persist paper", "arxiv_id", paper.ArxivID, "error", err)
		}
	}
}

func (f *Fetcher) sendTo(chatID int64) delivery.SendFunc {
	return func(ctx context.Context, paper *database.Paper) error {
		return f.send(ctx, chatID, paper)
	}
}
