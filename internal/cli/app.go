package cli

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"docqa/config"
	"docqa/internal/adapter/analyzer"
	"docqa/internal/adapter/cache"
	"docqa/internal/adapter/chunker"
	"docqa/internal/adapter/embedding"
	"docqa/internal/adapter/ledger"
	"docqa/internal/adapter/llm"
	"docqa/internal/adapter/metrics"
	"docqa/internal/adapter/store"
	"docqa/internal/port"
	"docqa/internal/usecase"
)

// app holds the components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collectors
	store    *store.Store
	ledger   *ledger.Ledger
	counter  port.TokenCounter

	queryCache *cache.QueryCache
}

// openApp opens the collection store and the cost ledger under the data dir.
// Model clients are created lazily by the commands that need them.
func openApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	if err := config.EnsureDataDir(cfg.Storage.DataDir); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	st, err := store.NewStore(config.CollectionsDir(cfg.Storage.DataDir), store.Options{
		OverFetch: cfg.Retrieve.OverFetch,
		Logger:    logger.Named("store"),
	})
	if err != nil {
		return nil, err
	}

	l, err := ledger.Open(config.LedgerPath(cfg.Storage.DataDir), logger.Named("ledger"))
	if err != nil {
		st.Close()
		return nil, err
	}

	var counter port.TokenCounter = analyzer.ApproxCounter{}
	if cfg.Embedding.Provider != "mock" {
		counter = analyzer.NewCounter(cfg.Embedding.Model, logger)
	}

	reg := prometheus.NewRegistry()
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics.New(reg),
		store:    st,
		ledger:   l,
		counter:  counter,

		queryCache: cache.NewQueryCache(256, 10*time.Minute),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close collection store", zap.Error(err))
	}
	if err := a.ledger.Close(); err != nil {
		a.logger.Warn("failed to close cost ledger", zap.Error(err))
	}
	a.logMetrics()
}

// logMetrics writes the number of series per metric family at debug level.
func (a *app) logMetrics() {
	families, err := a.registry.Gather()
	if err != nil {
		a.logger.Debug("failed to gather metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		a.logger.Debug("metric", zap.String("name", mf.GetName()), zap.Int("series", len(mf.GetMetric())))
	}
}

func (a *app) pricing() usecase.Pricing {
	return usecase.PricingFromConfig(a.cfg.Pricing)
}

func (a *app) embedder() (port.Embedder, error) {
	ec := a.cfg.Embedding
	opts := embedding.Options{
		Model:             ec.Model,
		BaseURL:           ec.BaseURL,
		BatchTokenBudget:  ec.BatchTokenBudget,
		Timeout:           time.Duration(ec.TimeoutSecs) * time.Second,
		RequestsPerSecond: ec.RequestsPerSecond,
		Logger:            a.logger.Named("embedding"),
	}

	switch ec.Provider {
	case "openai":
		return embedding.NewOpenAIEmbedder(ec.APIKeyEnv, opts, a.counter)
	case "ollama":
		return embedding.NewOllamaEmbedder(opts, a.counter), nil
	case "mock":
		return embedding.NewMockEmbedder(ec.Dimension, a.counter), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", ec.Provider)
	}
}

func (a *app) generator() (port.Generator, error) {
	gc := a.cfg.Generation
	if gc.Provider == "mock" {
		return &llm.MockGenerator{}, nil
	}
	return llm.NewClient(gc.Provider, llm.Options{
		Model:       gc.Model,
		BaseURL:     gc.BaseURL,
		APIKeyEnv:   gc.APIKeyEnv,
		Temperature: gc.Temperature,
		Timeout:     time.Duration(gc.TimeoutSecs) * time.Second,
		Logger:      a.logger.Named("llm"),
	})
}

func (a *app) ingestUseCase(emb port.Embedder) *usecase.IngestUseCase {
	return usecase.NewIngestUseCase(emb, a.store, a.ledger,
		chunker.NewParagraphSplitter(a.cfg.Ingest.MinParagraphChars),
		a.pricing(), a.metrics, a.logger.Named("ingest"))
}

func (a *app) answerUseCase(emb port.Embedder, gen port.Generator) *usecase.AnswerUseCase {
	queryEmb := cache.NewCachedEmbedder(emb, a.queryCache)
	retrieveUC := usecase.NewRetrieveUseCase(queryEmb, a.store, a.metrics, a.logger.Named("retrieve"), a.cfg.Retrieve.MinScoreThreshold)
	return usecase.NewAnswerUseCase(retrieveUC, gen, a.store, a.ledger, usecase.AnswerOptions{
		TopK:           a.cfg.Retrieve.TopK,
		ContextCharCap: a.cfg.Retrieve.ContextCharCap,
		SnippetChars:   a.cfg.Retrieve.SnippetChars,
		Pricing:        a.pricing(),
		Metrics:        a.metrics,
		Logger:         a.logger.Named("answer"),
	})
}

// models creates the embedder and the generator.
func (a *app) models() (port.Embedder, port.Generator, error) {
	emb, err := a.embedder()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	gen, err := a.generator()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create chat client: %w", err)
	}
	return emb, gen, nil
}
