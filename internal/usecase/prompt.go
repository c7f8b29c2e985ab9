package usecase

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"text/template"
	"unicode/utf8"

	"docqa/internal/domain"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

var prompts = template.Must(template.New("prompts").Funcs(templateFuncs()).ParseFS(promptTemplates, "templates/*.txt"))

// PromptData is rendered into the prompt templates.
type PromptData struct {
	Query   string
	Context []ContextEntry
}

// ContextEntry is one retrieved record as shown to the model.
type ContextEntry struct {
	Page int
	Text string
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatContext": func(entries []ContextEntry) string {
			lines := make([]string, len(entries))
			for i, e := range entries {
				lines[i] = fmt.Sprintf("Page %d: %s", e.Page, e.Text)
			}
			return strings.Join(lines, "\n\n")
		},
	}
}

func renderPrompt(name string, data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// buildContext keeps records in rank order and caps each text at charCap runes.
func buildContext(records []domain.ScoredRecord, charCap int) []ContextEntry {
	entries := make([]ContextEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, ContextEntry{
			Page: r.Record.Page,
			Text: truncateRunes(r.Record.Text, charCap, "..."),
		})
	}
	return entries
}

func truncateRunes(s string, limit int, marker string) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + marker
}

// pageCitation matches inline page markers such as "(p. 3)", "(page 3)",
// "(pp. 3)" and "(第3頁)", with ASCII or full-width parentheses.
var pageCitation = regexp.MustCompile(`[ \t]*[(（]\s*(?i:pp?\.?|pages?|第)\s*(\d+)\s*頁?\s*[)）]`)

// stripUnverifiedCitations removes page markers whose page is not in pages.
func stripUnverifiedCitations(answer string, pages map[int]struct{}) string {
	return pageCitation.ReplaceAllStringFunc(answer, func(m string) string {
		sub := pageCitation.FindStringSubmatch(m)
		page, err := strconv.Atoi(sub[1])
		if err == nil {
			if _, ok := pages[page]; ok {
				return m
			}
		}
		return ""
	})
}

func contextPages(entries []ContextEntry) map[int]struct{} {
	pages := make(map[int]struct{}, len(entries))
	for _, e := range entries {
		pages[e.Page] = struct{}{}
	}
	return pages
}

func sourcesMeta(records []domain.ScoredRecord, snippetChars int) []domain.SourceMeta {
	metas := make([]domain.SourceMeta, 0, len(records))
	for _, r := range records {
		if r.Record.Source == "" {
			continue
		}
		snippet := truncateRunes(strings.ReplaceAll(r.Record.Text, "\n", " "), snippetChars, "")
		metas = append(metas, domain.SourceMeta{
			Snippet: snippet,
			Text:    snippet,
			Source:  r.Record.Source,
			Page:    r.Record.Page,
			Time:    r.Record.Time,
			Score:   r.Score,
		})
	}
	return metas
}
