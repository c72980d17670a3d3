package telegram

import (
	"fmt"
	"strings"

	"github.com/go-telegram/bot"

	"github.com/binbla/ArxivPusherBot/internal/database"
)

// FormatPaper renders one paper as a MarkdownV2 message: title,
// authors, publication date, the AI fields when present, then comment,
// categories, and the abstract/PDF/ar5iv links.
func FormatPaper(p *database.Paper) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("Ti: `%s`", bot.EscapeMarkdown(p.Title)))
	lines = append(lines, "Au: "+bot.EscapeMarkdown(strings.Join(p.Authors, ", ")))
	lines = append(lines, fmt.Sprintf("Pu: *%s*", bot.EscapeMarkdown(p.Published.Format("2006-01-02 15:04"))))
	lines = append(lines, "")

	if p.Translation != "" {
		lines = append(lines, "Translation: "+bot.EscapeMarkdown(p.Translation))
	}
	if len(p.Tags) > 0 {
		lines = append(lines, "Tags: "+bot.EscapeMarkdown(strings.Join(p.Tags, ", ")))
	}
	if p.Description != "" {
		lines = append(lines, fmt.Sprintf("Summary: *%s*", bot.EscapeMarkdown(p.Description)))
	}
	lines = append(lines, "")

	if p.Comment != "" {
		lines = append(lines, bot.EscapeMarkdown("Comment: "+p.Comment))
	}
	lines = append(lines, bot.EscapeMarkdown("Categories: "+strings.Join(p.Categories, ", ")))

	ar5ivLink := "https://ar5iv.labs.arxiv.org/html/" + p.ArxivID
	lines = append(lines, fmt.Sprintf("Continue: [Links](%s) \\| [PDF](%s) \\| [Ar5iv](%s)",
		p.Link, p.PDFLink, ar5ivLink))

	return strings.Join(lines, "\n")
}

// FormatPaperPlain renders the fallback plain-text variant.
func FormatPaperPlain(p *database.Paper) string {
	var lines []string

	lines = append(lines, "Ti: "+p.Title)
	lines = append(lines, "Au: "+strings.Join(p.Authors, ", "))
	lines = append(lines, "Pu: "+p.Published.Format("2006-01-02 15:04"))
	lines = append(lines, "")

	if p.Translation != "" {
		lines = append(lines, "Translation: "+p.Translation)
	}
	if len(p.Tags) > 0 {
		lines = append(lines, "Tags: "+strings.Join(p.Tags, ", "))
	}
	if p.Description != "" {
		lines = append(lines, "Summary: "+p.Description)
	}
	lines = append(lines, "")

	if p.Comment != "" {
		lines = append(lines, "Comment: "+p.Comment)
	}
	lines = append(lines, "Categories: "+strings.Join(p.Categories, ", "))
	lines = append(lines, "Links: "+p.Link+" | "+p.PDFLink)

	return strings.Join(lines, "\n")
}
