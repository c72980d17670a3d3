// Package arxiv implements the client for the arXiv Atom API, including
// result splitting against the paper store.
package arxiv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/binbla/ArxivPusherBot/internal/config"
	"github.com/binbla/ArxivPusherBot/internal/database"
)

// Client queries the arXiv export API and reconciles results against
// the local paper store.
type Client struct {
	httpClient        *http.Client
	baseURL           string
	maxResults        int
	defaultCategories []string
	store             database.Store
	logger            *slog.Logger
}

// NewClient creates a new arXiv API client. The store is consulted to
// split search results into known and fresh papers.
func NewClient(cfg *config.ArxivConfig, store database.Store, logger *slog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("arxiv config is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		baseURL:           cfg.BaseURL,
		maxResults:        cfg.MaxResults,
		defaultCategories: cfg.DefaultCategories,
		store:             store,
		logger:            logger.With("component", "arxiv_client"),
	}, nil
}

// Search queries the API and returns (all, fresh): all results in the
// API's descending submission-date order, and the subset not yet in the
// store. Papers already stored get their enrichment fields (tags,
// description, translation) attached from the stored row. On a failed
// remote call both slices are nil and the error is returned for the
// caller to log; the caller's loop is expected to continue.
func (c *Client) Search(ctx context.Context, query string, maxResults int) (all, fresh []*database.Paper, err error) {
	if query == "" {
		return nil, nil, fmt.Errorf("search query cannot be empty")
	}
	if maxResults <= 0 {
		maxResults = c.maxResults
	}

	c.logger.InfoContext(ctx, "Searching arXiv", "query", query, "max_results", maxResults)

	body, err := c.fetch(ctx, query, maxResults)
	if err != nil {
		return nil, nil, err
	}

	papers, skipped, err := parseFeed(body)
	if err != nil {
		return nil, nil, fmt.Errorf("query %q: %w", query, err)
	}
	for _, skipErr := range skipped {
		c.logger.WarnContext(ctx, "Skipping malformed feed entry", "query", query, "error", skipErr)
	}

	for _, paper := range papers {
		stored, err := c.store.GetPaper(ctx, paper.ArxivID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to reconcile paper %s: %w", paper.ArxivID, err)
		}
		if stored == nil {
			fresh = append(fresh, paper)
			continue
		}
		paper.Tags = stored.Tags
		paper.Description = stored.Description
		paper.Translation = stored.Translation
	}

	c.logger.DebugContext(ctx, "Search complete", "query", query, "total", len(papers), "fresh", len(fresh))
	return papers, fresh, nil
}

// FetchRecent returns the latest submissions in one category.
func (c *Client) FetchRecent(ctx context.Context, category string, maxResults int) (all, fresh []*database.Paper, err error) {
	if category == "" {
		return nil, nil, fmt.Errorf("category cannot be empty")
	}
	return c.Search(ctx, "cat:"+category, maxResults)
}

// FetchTodayNew returns papers in the given categories whose published
// date falls on the current UTC day, filtered client-side. A nil
// category list falls back to the configured defaults. Per-category
// fetch failures are logged and skipped.
func (c *Client) FetchTodayNew(ctx context.Context, categories []string) ([]*database.Paper, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if categories == nil {
		categories = c.defaultCategories
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)

	var todayPapers []*database.Paper
	for _, cat := range categories {
		c.logger.InfoContext(ctx, "Fetching new papers", "category", cat)

		papers, _, err := c.FetchRecent(ctx, cat, 0)
		if err != nil {
			c.logger.ErrorContext(ctx, "Failed to fetch recent papers", "category", cat, "error", err)
			continue
		}

		for _, p := range papers {
			if p.Published.UTC().Truncate(24 * time.Hour).Equal(today) {
				todayPapers = append(todayPapers, p)
			}
		}
	}

	return todayPapers, nil
}

// fetch performs one API request and returns the response body.
func (c *Client) fetch(ctx context.Context, query string, maxResults int) ([]byte, error) {
	params := url.Values{}
	params.Set("search_query", query)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build arXiv request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("arXiv request for query %q failed: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv request for query %q returned status %d", query, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read arXiv response for query %q: %w", query, err)
	}

	return body, nil
}
