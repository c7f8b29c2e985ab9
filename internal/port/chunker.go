package port

import "docqa/internal/domain"

// Splitter turns extracted text into paragraph records.
type Splitter interface {
	Split(source string, text string) []domain.ParagraphRecord
}
