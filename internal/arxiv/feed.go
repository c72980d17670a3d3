package arxiv

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/binbla/ArxivPusherBot/internal/database"
)

// atomFeed mirrors the subset of the arXiv Atom response the bot reads.
// The API serves Atom 1.0 with arXiv extension elements.
type atomFeed struct {
	XMLName      xml.Name    `xml:"feed"`
	TotalResults int         `xml:"totalResults"`
	Entries      []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Summary    string         `xml:"summary"`
	Published  string         `xml:"published"`
	Updated    string         `xml:"updated"`
	Comment    string         `xml:"comment"`
	Authors    []atomAuthor   `xml:"author"`
	Categories []atomCategory `xml:"category"`
	Links      []atomLink     `xml:"link"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

type atomLink struct {
	Rel   string `xml:"rel,attr"`
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

// parseFeed decodes an Atom response body and converts every entry.
// Entries that cannot be converted are skipped, not fatal.
func parseFeed(data []byte) ([]*database.Paper, []error, error) {
	var feed atomFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, nil, fmt.Errorf("failed to decode atom feed: %w", err)
	}

	papers := make([]*database.Paper, 0, len(feed.Entries))
	var skipped []error
	for i := range feed.Entries {
		paper, err := entryToPaper(&feed.Entries[i])
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		papers = append(papers, paper)
	}

	return papers, skipped, nil
}

// entryToPaper converts one Atom entry into the stored paper shape.
// The arXiv id is the last path segment of the entry id URL, version
// suffix included.
func entryToPaper(entry *atomEntry) (*database.Paper, error) {
	id := entry.ID
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		id = id[idx+1:]
	}
	if id == "" {
		return nil, fmt.Errorf("entry has no id")
	}

	published, err := parseEntryTime(entry.Published)
	if err != nil {
		return nil, fmt.Errorf("entry %s: bad published date: %w", id, err)
	}
	updated, err := parseEntryTime(entry.Updated)
	if err != nil {
		return nil, fmt.Errorf("entry %s: bad updated date: %w", id, err)
	}

	authors := make(database.StringList, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			authors = append(authors, name)
		}
	}

	categories := make(database.StringList, 0, len(entry.Categories))
	for _, c := range entry.Categories {
		if c.Term != "" {
			categories = append(categories, c.Term)
		}
	}

	var absLink, pdfLink string
	for _, l := range entry.Links {
		switch {
		case l.Title == "pdf":
			pdfLink = l.Href
		case l.Rel == "alternate":
			absLink = l.Href
		}
	}
	if absLink == "" {
		absLink = entry.ID
	}

	return &database.Paper{
		ArxivID:    id,
		Title:      normalizeWhitespace(entry.Title),
		Authors:    authors,
		Summary:    normalizeWhitespace(entry.Summary),
		Published:  published,
		Updated:    updated,
		Categories: categories,
		Link:       absLink,
		PDFLink:    pdfLink,
		Comment:    normalizeWhitespace(entry.Comment),
	}, nil
}

// parseEntryTime handles the two timestamp shapes the API emits.
func parseEntryTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// normalizeWhitespace collapses the hard-wrapped text arXiv feeds carry
// into single-line strings.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
