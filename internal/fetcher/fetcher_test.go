package fetcher_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/binbla/ArxivPusherBot/internal/database"
	"github.com/binbla/ArxivPusherBot/internal/delivery"
	"github.com/binbla/ArxivPusherBot/internal/fetcher"
)

// fakeSource serves canned results per query and can fail selectively.
type fakeSource struct {
	mu          sync.Mutex
	results     map[string][]*database.Paper
	failQueries map[string]bool
	today       []*database.Paper
	store       database.Store
	searches    []string
}

func (s *fakeSource) Search(ctx context.Context, query string, _ int) ([]*database.Paper, []*database.Paper, error) {
	s.mu.Lock()
	s.searches = append(s.searches, query)
	s.mu.Unlock()

	if s.failQueries[query] {
		return nil, nil, errors.New("index unreachable")
	}

	all := s.results[query]
	var fresh []*database.Paper
	for _, p := range all {
		exists, err := s.store.PaperExists(ctx, p.ArxivID)
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			fresh = append(fresh, p)
		}
	}
	return all, fresh, nil
}

func (s *fakeSource) FetchTodayNew(context.Context, []string) ([]*database.Paper, error) {
	return s.today, nil
}

// fakeEnricher stamps every paper it sees.
type fakeEnricher struct {
	mu       sync.Mutex
	enriched []string
}

func (e *fakeEnricher) Enrich(_ context.Context, papers []*database.Paper) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range papers {
		p.Description = "enriched"
		e.enriched = append(e.enriched, p.ArxivID)
	}
	return nil
}

type sentRecord struct {
	chatID int64
	title  string
}

type capture struct {
	mu   sync.Mutex
	sent []sentRecord
}

func (c *capture) send(_ context.Context, chatID int64, paper *database.Paper) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentRecord{chatID: chatID, title: paper.Title})
	return nil
}

func (c *capture) byChat(chatID int64) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, s := range c.sent {
		if s.chatID == chatID {
			out = append(out, s.title)
		}
	}
	return out
}

type fetcherFixture struct {
	store    database.Store
	source   *fakeSource
	enricher *fakeEnricher
	capture  *capture
	fetcher  *fetcher.Fetcher
}

func newFetcherFixture(t *testing.T, channelChatID int64) *fetcherFixture {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := database.NewStore(db, logger)
	source := &fakeSource{
		results:     make(map[string][]*database.Paper),
		failQueries: make(map[string]bool),
		store:       store,
	}
	enricher := &fakeEnricher{}
	cap := &capture{}

	f := fetcher.NewFetcher(
		store,
		source,
		enricher,
		delivery.NewEngine(store, logger),
		cap.send,
		channelChatID,
		[]string{"cs.AI"},
		logger,
	)

	return &fetcherFixture{store: store, source: source, enricher: enricher, capture: cap, fetcher: f}
}

func seedUser(t *testing.T, store database.Store, userID int64, queries ...database.SearchQuery) {
	t.Helper()
	err := store.UpsertUser(context.Background(), &database.UserConfig{
		UserID:        userID,
		Platform:      database.PlatformTelegram,
		SearchQueries: queries,
	})
	if err != nil {
		t.Fatalf("UpsertUser(%d): %v", userID, err)
	}
}

func TestSweepDeliversPerUser(t *testing.T) {
	t.Parallel()

	fx := newFetcherFixture(t, 0)
	ctx := context.Background()

	fx.source.results["robots"] = []*database.Paper{
		{ArxivID: "2501.00001", Title: "Robots One"},
		{ArxivID: "2501.00002", Title: "Robots Two"},
	}
	fx.source.results["planets"] = []*database.Paper{
		{ArxivID: "2501.00003", Title: "Planets One"},
	}

	seedUser(t, fx.store, 1, database.SearchQuery{Query: "robots", MaxResults: 5})
	seedUser(t, fx.store, 2, database.SearchQuery{Query: "planets", MaxResults: 5})
	seedUser(t, fx.store, 3) // zero queries, skipped

	if err := fx.fetcher.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if got := fx.capture.byChat(1); len(got) != 2 {
		t.Errorf("user 1 expected 2 deliveries, got %v", got)
	}
	if got := fx.capture.byChat(2); len(got) != 1 {
		t.Errorf("user 2 expected 1 delivery, got %v", got)
	}
	if got := fx.capture.byChat(3); len(got) != 0 {
		t.Errorf("zero-query user must be skipped, got %v", got)
	}

	// Fresh papers were enriched and persisted.
	if len(fx.enricher.enriched) != 3 {
		t.Errorf("expected 3 papers enriched, got %v", fx.enricher.enriched)
	}
	stored, err := fx.store.GetPaper(ctx, "2501.00001")
	if err != nil {
		t.Fatalf("GetPaper: %v", err)
	}
	if stored == nil || stored.Description != "enriched" {
		t.Errorf("fresh paper not persisted with enrichment: %+v", stored)
	}

	// A second sweep must not re-deliver or re-enrich.
	if err := fx.fetcher.Sweep(ctx); err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if got := fx.capture.byChat(1); len(got) != 2 {
		t.Errorf("second sweep must not re-deliver, got %v", got)
	}
	if len(fx.enricher.enriched) != 3 {
		t.Errorf("known papers must not be re-enriched, got %v", fx.enricher.enriched)
	}
}

func TestSweepIsolatesQueryFailures(t *testing.T) {
	t.Parallel()

	fx := newFetcherFixture(t, 0)
	ctx := context.Background()

	fx.source.failQueries["broken"] = true
	fx.source.results["working"] = []*database.Paper{
		{ArxivID: "2501.00010", Title: "Still Works"},
	}

	seedUser(t, fx.store, 1,
		database.SearchQuery{Query: "broken", MaxResults: 5},
		database.SearchQuery{Query: "working", MaxResults: 5},
	)
	seedUser(t, fx.store, 2, database.SearchQuery{Query: "working", MaxResults: 5})

	if err := fx.fetcher.Sweep(ctx); err != nil {
		t.Fatalf("Sweep must not fail on per-query errors: %v", err)
	}

	if got := fx.capture.byChat(1); len(got) != 1 {
		t.Errorf("failing query must not block the user's next query, got %v", got)
	}
	if got := fx.capture.byChat(2); len(got) != 1 {
		t.Errorf("one user's failure must not block others, got %v", got)
	}
}

func TestSweepPreservesQueryOrder(t *testing.T) {
	t.Parallel()

	fx := newFetcherFixture(t, 0)
	ctx := context.Background()

	fx.source.results["a"] = nil
	fx.source.results["b"] = nil
	fx.source.results["c"] = nil

	seedUser(t, fx.store, 1,
		database.SearchQuery{Query: "a", MaxResults: 1},
		database.SearchQuery{Query: "b", MaxResults: 1},
		database.SearchQuery{Query: "c", MaxResults: 1},
	)

	if err := fx.fetcher.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(fx.source.searches) != len(want) {
		t.Fatalf("expected %d searches, got %v", len(want), fx.source.searches)
	}
	for i, q := range want {
		if fx.source.searches[i] != q {
			t.Errorf("search %d = %q, want %q (stored order)", i, fx.source.searches[i], q)
		}
	}
}

func TestFetchUser(t *testing.T) {
	t.Parallel()

	fx := newFetcherFixture(t, 0)
	ctx := context.Background()

	fx.source.results["graphs"] = []*database.Paper{
		{ArxivID: "2501.00020", Title: "Graphs"},
	}
	seedUser(t, fx.store, 9, database.SearchQuery{Query: "graphs", MaxResults: 3})

	delivered, err := fx.fetcher.FetchUser(ctx, 9)
	if err != nil {
		t.Fatalf("FetchUser: %v", err)
	}
	if delivered != 1 {
		t.Errorf("expected 1 delivery, got %d", delivered)
	}

	// Unknown user and zero-query user both deliver nothing.
	delivered, err = fx.fetcher.FetchUser(ctx, 12345)
	if err != nil {
		t.Fatalf("FetchUser unknown: %v", err)
	}
	if delivered != 0 {
		t.Errorf("expected 0 deliveries for unknown user, got %d", delivered)
	}
}

func TestChannelDigest(t *testing.T) {
	t.Parallel()

	const channelID = int64(-100500)
	fx := newFetcherFixture(t, channelID)
	ctx := context.Background()

	fx.source.today = []*database.Paper{
		{ArxivID: "2501.00030", Title: "Fresh Today"},
		{ArxivID: "2501.00031", Title: "Also Today"},
	}

	delivered, err := fx.fetcher.ChannelDigest(ctx)
	if err != nil {
		t.Fatalf("ChannelDigest: %v", err)
	}
	if delivered != 2 {
		t.Errorf("expected 2 channel deliveries, got %d", delivered)
	}
	if got := fx.capture.byChat(channelID); len(got) != 2 {
		t.Errorf("expected channel messages, got %v", got)
	}

	// The digest is deduplicated like any other delivery.
	delivered, err = fx.fetcher.ChannelDigest(ctx)
	if err != nil {
		t.Fatalf("second ChannelDigest: %v", err)
	}
	if delivered != 0 {
		t.Errorf("expected repeat digest to deliver nothing, got %d", delivered)
	}
}

func TestChannelDigestUnconfigured(t *testing.T) {
	t.Parallel()

	fx := newFetcherFixture(t, 0)

	if _, err := fx.fetcher.ChannelDigest(context.Background()); err == nil {
		t.Error("expected error when no channel chat is configured")
	}
}
