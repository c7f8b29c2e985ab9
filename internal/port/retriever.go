package port

import (
	"context"

	"docqa/internal/domain"
)

// Retriever finds the records of a collection closest to a query.
type Retriever interface {
	// Retrieve embeds query and returns up to k records of collectionID,
	// optionally restricted to the given sources.
	Retrieve(ctx context.Context, collectionID, query string, k int, sources []string) (Retrieval, error)
}

// Retrieval is the ranked result of a Retrieve call.
type Retrieval struct {
	Records     []domain.ScoredRecord
	QueryTokens int
}
