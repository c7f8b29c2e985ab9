package chunker

import (
	"regexp"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/port"
)

var (
	blankLines      = regexp.MustCompile(`\n{2,}`)
	consentNoise    = regexp.MustCompile(`(?i)(cookie|accept|privacy).{0,40}`)
	navigationNoise = regexp.MustCompile(`(?i)(terms|subscribe|sign in|login).{0,40}`)
)

// CleanWebText collapses blank lines and strips cookie banners and
// navigation prompts from scraped page text.
func CleanWebText(s string) string {
	s = blankLines.ReplaceAllString(s, "\n")
	s = consentNoise.ReplaceAllString(s, "")
	s = navigationNoise.ReplaceAllString(s, "")
	return s
}

// LineChunker packs whole lines into chunks of at most maxTokens, so no
// sentence is cut in half. Output stops once hardMaxTokens have been kept.
type LineChunker struct {
	maxTokens     int
	hardMaxTokens int
	counter       port.TokenCounter
}

func NewLineChunker(maxTokens, hardMaxTokens int, counter port.TokenCounter) *LineChunker {
	return &LineChunker{
		maxTokens:     maxTokens,
		hardMaxTokens: hardMaxTokens,
		counter:       counter,
	}
}

// Chunk splits text into line-aligned chunks. A single line longer than
// maxTokens becomes a chunk of its own.
func (c *LineChunker) Chunk(text string) []string {
	var chunks []string
	var current []string
	currentTokens := 0

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		lineTokens := c.counter.CountTokens(line)
		if len(current) > 0 && currentTokens+lineTokens > c.maxTokens {
			chunks = append(chunks, strings.Join(current, "\n"))
			current, currentTokens = nil, 0
		}
		current = append(current, line)
		currentTokens += lineTokens
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n"))
	}

	return c.capTotal(chunks)
}

// capTotal keeps leading chunks until the hard token cap would be exceeded.
func (c *LineChunker) capTotal(chunks []string) []string {
	if c.hardMaxTokens <= 0 {
		return chunks
	}

	kept := 0
	total := 0
	for _, chunk := range chunks {
		t := c.counter.CountTokens(chunk)
		if total+t > c.hardMaxTokens {
			break
		}
		total += t
		kept++
	}
	return chunks[:kept]
}

// Split cleans scraped text and turns every chunk into a page 1 record of source.
func (c *LineChunker) Split(source string, text string) []domain.ParagraphRecord {
	chunks := c.Chunk(CleanWebText(text))
	out := make([]domain.ParagraphRecord, len(chunks))
	for i, chunk := range chunks {
		out[i] = domain.ParagraphRecord{Text: chunk, Page: 1, Source: source}
	}
	return out
}
