package usecase

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"docqa/config"
	"docqa/internal/adapter/analyzer"
	"docqa/internal/adapter/chunker"
	"docqa/internal/adapter/embedding"
	"docqa/internal/adapter/ledger"
	"docqa/internal/adapter/llm"
	"docqa/internal/adapter/metrics"
	"docqa/internal/adapter/store"
	"docqa/internal/port"
)

// countingEmbedder counts Embed calls and can be switched to fail.
type countingEmbedder struct {
	port.Embedder
	calls atomic.Int32
	err   error
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) (port.EmbedResult, error) {
	e.calls.Add(1)
	if e.err != nil {
		return port.EmbedResult{}, e.err
	}
	return e.Embedder.Embed(ctx, texts)
}

type fixture struct {
	store     *store.Store
	ledger    *ledger.Ledger
	embedder  *countingEmbedder
	generator *llm.MockGenerator
	metrics   *metrics.Collectors
	pricing   Pricing
	retrieve  *RetrieveUseCase
	answer    *AnswerUseCase
	ingest    *IngestUseCase
	ephemeral *EphemeralUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewStore(filepath.Join(dir, "collections"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	l, err := ledger.Open(filepath.Join(dir, "costs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	counter := analyzer.ApproxCounter{}
	f := &fixture{
		store:     st,
		ledger:    l,
		embedder:  &countingEmbedder{Embedder: embedding.NewMockEmbedder(4, counter)},
		generator: &llm.MockGenerator{},
		metrics:   metrics.New(prometheus.NewRegistry()),
		pricing:   PricingFromConfig(config.DefaultConfig().Pricing),
	}

	f.retrieve = NewRetrieveUseCase(f.embedder, st, f.metrics, nil, 0)
	f.answer = NewAnswerUseCase(f.retrieve, f.generator, st, l, AnswerOptions{
		Pricing: f.pricing,
		Metrics: f.metrics,
	})
	f.ingest = NewIngestUseCase(f.embedder, st, l, chunker.NewParagraphSplitter(10), f.pricing, f.metrics, nil)
	f.ephemeral = NewEphemeralUseCase(f.ingest, f.answer, st, chunker.NewLineChunker(400, 50000, counter), nil)
	return f
}
