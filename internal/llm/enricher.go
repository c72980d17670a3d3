package llm

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/binbla/ArxivPusherBot/internal/database"
)

// Enricher fills the AI-generated fields of paper records: tags, a
// short Chinese summary, and a Chinese translation of the abstract.
type Enricher struct {
	generator Generator
	sem       *semaphore.Weighted
	maxTags   int
	logger    *slog.Logger
}

// NewEnricher creates an Enricher that processes at most concurrency
// papers at a time.
func NewEnricher(generator Generator, concurrency int64, maxTags int, logger *slog.Logger) *Enricher {
	if concurrency < 1 {
		concurrency = 1
	}
	if maxTags < 1 {
		maxTags = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Enricher{
		generator: generator,
		sem:       semaphore.NewWeighted(concurrency),
		maxTags:   maxTags,
		logger:    logger.With("component", "enricher"),
	}
}

// Enrich mutates the given papers in place, filling Tags, Description,
// and Translation. Papers are processed concurrently up to the
// configured bound; within one paper the three fields are generated
// independently, and a failed field stays at its zero value without
// affecting the others. Enrich returns once every paper has been
// attempted; it only fails early when the context is cancelled.
func (e *Enricher) Enrich(ctx context.Context, papers []*database.Paper) error {
	var wg sync.WaitGroup

	for _, paper := range papers {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return err
		}

		wg.Add(1)
		go func(p *database.Paper) {
			defer wg.Done()
			defer e.sem.Release(1)
			e.enrichOne(ctx, p)
		}(paper)
	}

	wg.Wait()
	return ctx.Err()
}

// enrichOne generates the three fields of one paper in parallel.
func (e *Enricher) enrichOne(ctx context.Context, paper *database.Paper) {
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		raw, err := e.generator.Generate(ctx, systemPrompt, tagPrompt(paper.Title, paper.Summary, e.maxTags))
		if err != nil {
			e.logger.WarnContext(ctx, "Tag generation failed", "arxiv_id", paper.ArxivID, "error", err)
			return
		}
		paper.Tags = parseTags(raw, e.maxTags)
	}()

	go func() {
		defer wg.Done()
		summary, err := e.generator.Generate(ctx, systemPrompt, summaryPrompt(paper.Title, paper.Summary))
		if err != nil {
			e.logger.WarnContext(ctx, "Summary generation failed", "arxiv_id", paper.ArxivID, "error", err)
			return
		}
		paper.Description = summary
	}()

	go func() {
		defer wg.Done()
		translation, err := e.generator.Generate(ctx, systemPrompt, translationPrompt(paper.Summary))
		if err != nil {
			e.logger.WarnContext(ctx, "Translation generation failed", "arxiv_id", paper.ArxivID, "error", err)
			return
		}
		paper.Translation = translation
	}()

	wg.Wait()
	e.logger.DebugContext(ctx, "Paper enriched", "arxiv_id", paper.ArxivID, "tags", len(paper.Tags))
}

// parseTags splits raw model output into at most maxTags tags. The
// model is asked for comma-separated output but also returns semicolons
// and newlines in practice; order is preserved, empties dropped.
func parseTags(raw string, maxTags int) database.StringList {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '，' || r == ';' || r == '；' || r == '\n'
	})

	tags := make(database.StringList, 0, len(fields))
	for _, f := range fields {
		if tag := strings.TrimSpace(f); tag != "" {
			tags = append(tags, tag)
		}
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}
