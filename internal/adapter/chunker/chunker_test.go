package chunker

import (
	"strings"
	"testing"

	"docqa/internal/adapter/analyzer"
	"docqa/internal/domain"
)

func TestParagraphSplitter_Split(t *testing.T) {
	s := NewParagraphSplitter(10)

	text := "Short\n\nThis is a long enough paragraph.\r\n\r\nAnother paragraph that is long.\n\n   \n\n"
	paras := s.Split("talk.mp3", text)

	if len(paras) != 2 {
		t.Fatalf("expected 2 paragraphs, got %d: %+v", len(paras), paras)
	}
	if paras[0].Text != "This is a long enough paragraph." {
		t.Errorf("unexpected first paragraph %q", paras[0].Text)
	}
	for _, p := range paras {
		if p.Page != domain.PageUnpaginated {
			t.Errorf("expected unpaginated page %d, got %d", domain.PageUnpaginated, p.Page)
		}
		if p.Source != "talk.mp3" {
			t.Errorf("expected source talk.mp3, got %s", p.Source)
		}
	}
}

func TestParagraphSplitter_MinLengthIsExclusive(t *testing.T) {
	s := NewParagraphSplitter(10)

	paras := s.Split("f", "0123456789\n\n0123456789A")
	if len(paras) != 1 || paras[0].Text != "0123456789A" {
		t.Errorf("expected only the 11 character paragraph, got %+v", paras)
	}
}

func TestParagraphSplitter_SplitPages(t *testing.T) {
	s := NewParagraphSplitter(10)

	paras := s.SplitPages("paper.pdf", []Page{
		{Number: 1, Text: "Introduction to the study.\n\nMethods were applied."},
		{Number: 2, Text: "Results show improvement."},
	})

	if len(paras) != 3 {
		t.Fatalf("expected 3 paragraphs, got %d", len(paras))
	}
	wantPages := []int{1, 1, 2}
	for i, p := range paras {
		if p.Page != wantPages[i] {
			t.Errorf("paragraph %d: expected page %d, got %d", i, wantPages[i], p.Page)
		}
	}
}

func TestLineChunker_PacksWholeLines(t *testing.T) {
	c := NewLineChunker(10, 0, analyzer.ApproxCounter{})

	line := strings.Repeat("a", 14) // 4 tokens
	chunks := c.Chunk(strings.Join([]string{line, line, "", line}, "\n"))

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[0] != line+"\n"+line {
		t.Errorf("unexpected first chunk %q", chunks[0])
	}
	if chunks[1] != line {
		t.Errorf("unexpected second chunk %q", chunks[1])
	}
}

func TestLineChunker_OversizedLineStandsAlone(t *testing.T) {
	c := NewLineChunker(5, 0, analyzer.ApproxCounter{})

	long := strings.Repeat("b", 70) // 20 tokens
	chunks := c.Chunk("ok line\n" + long + "\nend")

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[1] != long {
		t.Errorf("expected oversized line alone, got %q", chunks[1])
	}
}

func TestLineChunker_HardCap(t *testing.T) {
	c := NewLineChunker(10, 15, analyzer.ApproxCounter{})

	line := strings.Repeat("c", 35) // 10 tokens
	chunks := c.Chunk(strings.Join([]string{line, line, line}, "\n"))

	if len(chunks) != 1 {
		t.Errorf("expected hard cap to keep 1 chunk, got %d", len(chunks))
	}
}

func TestCleanWebText(t *testing.T) {
	raw := "Accept all cookies to continue reading\nReal content line\n\n\nLogin here"
	got := CleanWebText(raw)

	if strings.Contains(strings.ToLower(got), "cookie") || strings.Contains(strings.ToLower(got), "login") {
		t.Errorf("boilerplate not removed: %q", got)
	}
	if !strings.Contains(got, "Real content line") {
		t.Errorf("content removed: %q", got)
	}
	if strings.Contains(got, "\n\n") {
		t.Errorf("blank lines not collapsed: %q", got)
	}
}

func TestLineChunker_Split(t *testing.T) {
	c := NewLineChunker(400, 50000, analyzer.ApproxCounter{})

	paras := c.Split("https://example.com/a", "Accept cookies\nFirst fact about the topic.\nSecond fact.")
	if len(paras) != 1 {
		t.Fatalf("expected 1 paragraph, got %d", len(paras))
	}
	p := paras[0]
	if p.Page != 1 || p.Source != "https://example.com/a" {
		t.Errorf("unexpected record metadata: %+v", p)
	}
	if p.Text != "First fact about the topic.\nSecond fact." {
		t.Errorf("unexpected text %q", p.Text)
	}
}
