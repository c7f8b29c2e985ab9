package llm

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"docqa/internal/adapter/upstream"
	"docqa/internal/domain"
	"docqa/internal/port"
)

// Provider configurations
var providers = map[string]struct {
	baseURL   string
	keyEnvVar string
}{
	"deepseek": {"https://api.deepseek.com/v1", "DEEPSEEK_API_KEY"},
	"openai":   {"https://api.openai.com/v1", "OPENAI_API_KEY"},
	"local":    {"http://localhost:11434/v1", ""},
}

// Options configures a chat client.
type Options struct {
	Model       string
	BaseURL     string
	APIKeyEnv   string // overrides the provider default
	Temperature float32
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Client is an OpenAI-compatible chat completion client.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	logger      *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// Stats tracks usage across calls.
type Stats struct {
	TotalCalls            int
	TotalPromptTokens     int
	TotalCompletionTokens int
}

// NewClient creates a client for the named provider. A custom BaseURL makes
// any provider name acceptable.
func NewClient(provider string, opts Options) (*Client, error) {
	p, ok := providers[provider]
	if !ok && opts.BaseURL == "" {
		return nil, fmt.Errorf("unknown provider: %s (set generation.base_url for custom endpoints)", provider)
	}

	keyEnv := p.keyEnvVar
	if opts.APIKeyEnv != "" {
		keyEnv = opts.APIKeyEnv
	}
	apiKey := "none"
	if keyEnv != "" && provider != "local" {
		apiKey = os.Getenv(keyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("API key not found. Set %s environment variable", keyEnv)
		}
	}

	if opts.BaseURL == "" {
		opts.BaseURL = p.baseURL
	}
	return NewCompatibleClient(apiKey, opts), nil
}

// NewCompatibleClient creates a client with an explicit API key and base URL.
func NewCompatibleClient(apiKey string, opts Options) *Client {
	clientConfig := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		clientConfig.BaseURL = opts.BaseURL
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4o
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       opts.Model,
		temperature: opts.Temperature,
		timeout:     opts.Timeout,
		logger:      opts.Logger,
	}
}

// Generate sends a system and a user message and returns the first choice.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (port.Generation, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// go-openai omits a zero temperature, which the API reads as 1.
	temperature := c.temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return port.Generation{}, upstream.Wrap(domain.ErrGenerationFailed, "chat completion", err)
	}

	if len(resp.Choices) == 0 {
		return port.Generation{}, fmt.Errorf("chat completion: %w: no choices returned", domain.ErrGenerationFailed)
	}

	gen := port.Generation{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}

	c.mu.Lock()
	c.stats.TotalCalls++
	c.stats.TotalPromptTokens += gen.PromptTokens
	c.stats.TotalCompletionTokens += gen.CompletionTokens
	c.mu.Unlock()

	c.logger.Debug("chat completion done",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", gen.PromptTokens),
		zap.Int("completion_tokens", gen.CompletionTokens),
		zap.Duration("took", time.Since(start)))

	return gen, nil
}

// GetStats returns the current usage statistics.
func (c *Client) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Client) ModelName() string {
	return c.model
}
