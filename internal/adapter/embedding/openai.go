package embedding

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"docqa/internal/adapter/upstream"
	"docqa/internal/domain"
	"docqa/internal/port"
)

const defaultBatchTokenBudget = 7000

// Options configures an OpenAI-compatible embedder.
type Options struct {
	Model             string
	BaseURL           string
	BatchTokenBudget  int
	Timeout           time.Duration
	RequestsPerSecond float64
	Logger            *zap.Logger
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint, splitting
// input into requests that each stay under a token budget.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	budget  int
	timeout time.Duration
	limiter *rate.Limiter
	counter port.TokenCounter
	logger  *zap.Logger
}

// NewOpenAIEmbedder creates an embedder authenticated with the key in apiKeyEnv.
func NewOpenAIEmbedder(apiKeyEnv string, opts Options, counter port.TokenCounter) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	return NewOpenAICompatibleEmbedder(apiKey, opts, counter), nil
}

// NewOllamaEmbedder creates an embedder for a local Ollama server.
func NewOllamaEmbedder(opts Options, counter port.TokenCounter) *OpenAIEmbedder {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434/v1"
	}
	return NewOpenAICompatibleEmbedder("ollama", opts, counter)
}

// NewOpenAICompatibleEmbedder creates an embedder with an explicit API key.
func NewOpenAICompatibleEmbedder(apiKey string, opts Options, counter port.TokenCounter) *OpenAIEmbedder {
	clientConfig := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		clientConfig.BaseURL = opts.BaseURL
	}

	if opts.Model == "" {
		opts.Model = string(openai.LargeEmbedding3)
	}
	if opts.BatchTokenBudget <= 0 {
		opts.BatchTokenBudget = defaultBatchTokenBudget
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   opts.Model,
		budget:  opts.BatchTokenBudget,
		timeout: opts.Timeout,
		limiter: limiter,
		counter: counter,
		logger:  opts.Logger,
	}
}

// Embed returns one vector per text in input order. Nothing is returned
// unless every batch succeeds.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) (port.EmbedResult, error) {
	if len(texts) == 0 {
		return port.EmbedResult{}, nil
	}

	var result port.EmbedResult
	result.Vectors = make([][]float32, 0, len(texts))

	for i, batch := range Batches(texts, e.budget, e.counter) {
		vectors, tokens, err := e.embedBatch(ctx, batch)
		if err != nil {
			return port.EmbedResult{}, upstream.Wrap(domain.ErrEmbeddingFailed,
				fmt.Sprintf("embed batch %d of %d texts", i+1, len(batch)), err)
		}
		result.Vectors = append(result.Vectors, vectors...)
		result.PromptTokens += tokens
	}

	return result, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, int, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(reqCtx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, 0, err
	}

	if len(resp.Data) != len(texts) {
		return nil, 0, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) || embeddings[data.Index] != nil {
			return nil, 0, fmt.Errorf("unexpected embedding index %d", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}

	tokens := resp.Usage.PromptTokens
	if tokens == 0 {
		for _, t := range texts {
			tokens += e.counter.CountTokens(t)
		}
	}

	e.logger.Debug("embedding batch done",
		zap.String("model", e.model),
		zap.Int("texts", len(texts)),
		zap.Int("prompt_tokens", tokens),
		zap.Duration("took", time.Since(start)))

	return embeddings, tokens, nil
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Batches groups texts in order so that each group's estimated token count
// stays within budget. A text larger than budget forms a group of its own.
func Batches(texts []string, budget int, counter port.TokenCounter) [][]string {
	var batches [][]string
	var batch []string
	batchTokens := 0

	for _, text := range texts {
		t := counter.CountTokens(text)
		if len(batch) > 0 && batchTokens+t > budget {
			batches = append(batches, batch)
			batch, batchTokens = nil, 0
		}
		batch = append(batch, text)
		batchTokens += t
	}
	if len(batch) > 0 {
		batches = append(batches, batch)
	}
	return batches
}

// MockEmbedder derives deterministic vectors from rune values. It needs no
// network and is used by tests and the "mock" provider.
type MockEmbedder struct {
	dimension int
	counter   port.TokenCounter
}

func NewMockEmbedder(dimension int, counter port.TokenCounter) *MockEmbedder {
	return &MockEmbedder{dimension: dimension, counter: counter}
}

func (e *MockEmbedder) Embed(ctx context.Context, texts []string) (port.EmbedResult, error) {
	if err := ctx.Err(); err != nil {
		return port.EmbedResult{}, upstream.Wrap(domain.ErrEmbeddingFailed, "mock embed", err)
	}

	result := port.EmbedResult{Vectors: make([][]float32, len(texts))}
	for i, text := range texts {
		vec := make([]float32, e.dimension)
		j := 0
		for _, r := range text {
			if j >= e.dimension {
				break
			}
			vec[j] = float32(r) / 1000.0
			j++
		}
		result.Vectors[i] = vec
		if e.counter != nil {
			result.PromptTokens += e.counter.CountTokens(text)
		}
	}
	return result, nil
}

func (e *MockEmbedder) ModelName() string {
	return "mock"
}
