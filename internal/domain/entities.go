package domain

// PageUnpaginated is the page number recorded for sources without pages.
const PageUnpaginated = 0

// ParagraphRecord is one retrievable unit of text inside a collection.
type ParagraphRecord struct {
	Text   string `json:"text"`
	Page   int    `json:"page"`
	Source string `json:"source,omitempty"`
	Time   string `json:"time,omitempty"`
}

// ScoredRecord is a search hit. Distance is the Euclidean distance to the
// query vector; Score is derived from it by ScoreFromDistance.
type ScoredRecord struct {
	Record   ParagraphRecord
	Distance float64
	Score    float64
}

// CollectionStats describes the persisted state of one collection.
type CollectionStats struct {
	ID        string   `json:"id"`
	Exists    bool     `json:"exists"`
	Dimension int      `json:"dimension"`
	Count     int      `json:"count"`
	Sources   []string `json:"sources,omitempty"`
}

// ScoreFromDistance maps a Euclidean distance to a score in (0, 1].
// An exact match scores 1 and the score falls monotonically as distance grows.
func ScoreFromDistance(d float64) float64 {
	if d < 0 {
		d = 0
	}
	return 1 / (1 + d)
}
