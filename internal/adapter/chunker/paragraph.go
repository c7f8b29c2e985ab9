package chunker

import (
	"strings"
	"unicode/utf8"

	"docqa/internal/domain"
)

// Page is the extracted text of one page or segment.
type Page struct {
	Number int
	Text   string
}

// ParagraphSplitter splits extracted text on blank lines, keeping the page
// number of every paragraph.
type ParagraphSplitter struct {
	minChars int
}

// NewParagraphSplitter creates a splitter that drops paragraphs of minChars
// characters or fewer (table debris, page numbers).
func NewParagraphSplitter(minChars int) *ParagraphSplitter {
	if minChars < 0 {
		minChars = 0
	}
	return &ParagraphSplitter{minChars: minChars}
}

// Split treats text as a single unpaginated page.
func (s *ParagraphSplitter) Split(source string, text string) []domain.ParagraphRecord {
	return s.SplitPages(source, []Page{{Number: domain.PageUnpaginated, Text: text}})
}

// SplitPages splits every page into paragraphs in page order.
func (s *ParagraphSplitter) SplitPages(source string, pages []Page) []domain.ParagraphRecord {
	var out []domain.ParagraphRecord
	for _, page := range pages {
		normalized := strings.ReplaceAll(page.Text, "\r\n", "\n")
		normalized = strings.ReplaceAll(normalized, "\r", "\n")

		for _, part := range strings.Split(normalized, "\n\n") {
			part = strings.TrimSpace(part)
			if part == "" || utf8.RuneCountInString(part) <= s.minChars {
				continue
			}
			out = append(out, domain.ParagraphRecord{
				Text:   part,
				Page:   page.Number,
				Source: source,
			})
		}
	}
	return out
}

// PagesFromText splits extracted text on form feeds, the page separator
// written by text extractors such as pdftotext. Pages are numbered from 1;
// text without form feeds is a single unpaginated page.
func PagesFromText(text string) []Page {
	if !strings.Contains(text, "\f") {
		return []Page{{Number: domain.PageUnpaginated, Text: text}}
	}
	parts := strings.Split(text, "\f")
	pages := make([]Page, 0, len(parts))
	for i, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		pages = append(pages, Page{Number: i + 1, Text: part})
	}
	return pages
}
