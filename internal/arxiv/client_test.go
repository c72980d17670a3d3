package arxiv_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/binbla/ArxivPusherBot/internal/arxiv"
	"github.com/binbla/ArxivPusherBot/internal/config"
	"github.com/binbla/ArxivPusherBot/internal/database"
)

const feedTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ArXiv Query Results</title>
  <opensearch:totalResults xmlns:opensearch="http://a9.com/-/spec/opensearch/1.1/">2</opensearch:totalResults>
  <entry>
    <id>http://arxiv.org/abs/1706.03762v5</id>
    <updated>%[1]s</updated>
    <published>%[1]s</published>
    <title>Attention Is All
 You Need</title>
    <summary>  The dominant sequence transduction models are based on complex
recurrent or convolutional neural networks.
</summary>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
    <arxiv:comment xmlns:arxiv="http://arxiv.org/schemas/atom">15 pages, 5 figures</arxiv:comment>
    <link href="http://arxiv.org/abs/1706.03762v5" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/1706.03762v5" rel="related" type="application/pdf"/>
    <arxiv:primary_category xmlns:arxiv="http://arxiv.org/schemas/atom" term="cs.CL"/>
    <category term="cs.CL"/>
    <category term="cs.LG"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <updated>%[2]s</updated>
    <published>%[2]s</published>
    <title>A Fresh Paper</title>
    <summary>Something new under the sun.</summary>
    <author><name>Jane Doe</name></author>
    <link href="http://arxiv.org/abs/2401.00001v1" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/2401.00001v1" rel="related" type="application/pdf"/>
    <category term="cs.AI"/>
  </entry>
</feed>`

func newTestClient(t *testing.T, handler http.Handler) (*arxiv.Client, database.Store) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := database.NewStore(db, logger)

	client, err := arxiv.NewClient(&config.ArxivConfig{
		BaseURL:           server.URL,
		MaxResults:        20,
		RequestTimeout:    5 * time.Second,
		DefaultCategories: []string{"cs.AI"},
	}, store, logger)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client, store
}

func fixedFeedHandler(t *testing.T, published1, published2 time.Time) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("sortBy"); got != "submittedDate" {
			t.Errorf("expected sortBy=submittedDate, got %q", got)
		}
		fmt.Fprintf(w, feedTemplate,
			published1.Format(time.RFC3339),
			published2.Format(time.RFC3339))
	})
}

func TestSearchSplitsFreshAndAttachesEnrichment(t *testing.T) {
	t.Parallel()

	published := time.Date(2017, 6, 12, 17, 57, 34, 0, time.UTC)
	client, store := newTestClient(t, fixedFeedHandler(t, published, published))
	ctx := context.Background()

	// Pre-store the first paper with enrichment already on it.
	stored := &database.Paper{
		ArxivID:     "1706.03762v5",
		Title:       "Attention Is All You Need",
		Published:   published,
		Updated:     published,
		Tags:        database.StringList{"transformer"},
		Description: "Introduces the Transformer architecture.",
		Translation: "提出了 Transformer 架构。",
	}
	if _, err := store.InsertPaper(ctx, stored); err != nil {
		t.Fatalf("InsertPaper: %v", err)
	}

	all, fresh, err := client.Search(ctx, "attention", 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(all) != 2 {
		t.Fatalf("expected 2 results, got %d", len(all))
	}
	if len(fresh) != 1 {
		t.Fatalf("expected 1 fresh paper, got %d", len(fresh))
	}
	if fresh[0].ArxivID != "2401.00001v1" {
		t.Errorf("wrong fresh paper: %s", fresh[0].ArxivID)
	}

	// Known paper must carry stored enrichment and keep its position.
	known := all[0]
	if known.ArxivID != "1706.03762v5" {
		t.Fatalf("expected known paper first, got %s", known.ArxivID)
	}
	if len(known.Tags) != 1 || known.Tags[0] != "transformer" {
		t.Errorf("stored tags not attached: %+v", known.Tags)
	}
	if known.Description == "" || known.Translation == "" {
		t.Error("stored description/translation not attached")
	}

	// Hard-wrapped feed text is normalized.
	if known.Title != "Attention Is All You Need" {
		t.Errorf("title not normalized: %q", known.Title)
	}
	if known.Comment != "15 pages, 5 figures" {
		t.Errorf("comment not parsed: %q", known.Comment)
	}
	if known.PDFLink != "http://arxiv.org/pdf/1706.03762v5" {
		t.Errorf("pdf link not parsed: %q", known.PDFLink)
	}
	if len(known.Authors) != 2 {
		t.Errorf("authors not parsed: %+v", known.Authors)
	}
}

func TestSearchRemoteFailure(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}))

	all, fresh, err := client.Search(context.Background(), "anything", 0)
	if err == nil {
		t.Fatal("expected error from failing remote")
	}
	if all != nil || fresh != nil {
		t.Error("expected nil results on remote failure")
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.NotFoundHandler())

	if _, _, err := client.Search(context.Background(), "", 0); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestFetchTodayNewFiltersOnUTCDate(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	yesterday := now.Add(-48 * time.Hour)
	client, _ := newTestClient(t, fixedFeedHandler(t, yesterday, now))

	papers, err := client.FetchTodayNew(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchTodayNew: %v", err)
	}

	if len(papers) != 1 {
		t.Fatalf("expected 1 paper published today, got %d", len(papers))
	}
	if papers[0].ArxivID != "2401.00001v1" {
		t.Errorf("wrong paper passed the date filter: %s", papers[0].ArxivID)
	}
}

func TestFetchRecentRequiresCategory(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.NotFoundHandler())

	if _, _, err := client.FetchRecent(context.Background(), "", 0); err == nil {
		t.Error("expected error for empty category")
	}
}
