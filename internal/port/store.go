package port

import "docqa/internal/domain"

// CollectionStore owns the vector index and aligned records of every collection.
type CollectionStore interface {
	// Reset replaces the collection with an empty one at dim.
	Reset(id string, dim int) error

	// InitAppend creates the collection at dim unless it already exists.
	InitAppend(id string, dim int) error

	// AddEmbeddings appends vectors and their records together.
	AddEmbeddings(id string, vectors [][]float32, records []domain.ParagraphRecord) error

	// Replace swaps the collection content for vectors and records atomically.
	Replace(id string, vectors [][]float32, records []domain.ParagraphRecord) error

	// HasData reports whether the collection holds at least one record.
	HasData(id string) bool

	// Search returns up to k records nearest to query, skipping records whose
	// source is not in sources when sources is non-empty.
	Search(id string, query []float32, k int, sources []string) ([]domain.ScoredRecord, error)

	// Delete removes the collection and its persisted storage.
	Delete(id string) error

	// List returns the ids of all persisted collections.
	List() ([]string, error)

	// Stats describes one collection.
	Stats(id string) (domain.CollectionStats, error)
}
