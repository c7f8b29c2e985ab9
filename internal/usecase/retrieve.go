package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"docqa/internal/adapter/metrics"
	"docqa/internal/domain"
	"docqa/internal/port"
)

// RetrieveUseCase embeds a query and searches one collection with it.
type RetrieveUseCase struct {
	embedder          port.Embedder
	store             port.CollectionStore
	metrics           *metrics.Collectors
	logger            *zap.Logger
	minScoreThreshold float64 // Filter results below this score (0 = disabled)
}

// NewRetrieveUseCase creates a new retrieve use case. m and logger may be nil.
func NewRetrieveUseCase(
	embedder port.Embedder,
	store port.CollectionStore,
	m *metrics.Collectors,
	logger *zap.Logger,
	minScoreThreshold float64,
) *RetrieveUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrieveUseCase{
		embedder:          embedder,
		store:             store,
		metrics:           m,
		logger:            logger,
		minScoreThreshold: minScoreThreshold,
	}
}

// Retrieve returns up to k records of collectionID nearest to query, best
// first. QueryTokens is set even when nothing matches.
func (u *RetrieveUseCase) Retrieve(ctx context.Context, collectionID, query string, k int, sources []string) (port.Retrieval, error) {
	emb, err := u.embedder.Embed(ctx, []string{query})
	if err != nil {
		return port.Retrieval{}, err
	}
	if len(emb.Vectors) != 1 {
		return port.Retrieval{}, fmt.Errorf("%w: expected 1 query vector, got %d", domain.ErrEmbeddingFailed, len(emb.Vectors))
	}

	start := time.Now()
	records, err := u.store.Search(collectionID, emb.Vectors[0], k, sources)
	u.metrics.ObserveSearch(time.Since(start))
	if err != nil {
		return port.Retrieval{QueryTokens: emb.PromptTokens}, err
	}

	for i := range records {
		records[i].Score = domain.ScoreFromDistance(records[i].Distance)
	}
	if u.minScoreThreshold > 0 {
		records = u.filterByThreshold(records)
	}

	u.logger.Debug("retrieved",
		zap.String("collection", collectionID),
		zap.Int("k", k),
		zap.Strings("sources", sources),
		zap.Int("hits", len(records)))

	return port.Retrieval{Records: records, QueryTokens: emb.PromptTokens}, nil
}

// filterByThreshold removes results below the minimum score threshold.
func (u *RetrieveUseCase) filterByThreshold(results []domain.ScoredRecord) []domain.ScoredRecord {
	filtered := make([]domain.ScoredRecord, 0, len(results))
	for _, r := range results {
		if r.Score >= u.minScoreThreshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
