package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for docqa.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieve   RetrieveConfig   `yaml:"retrieve"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// StorageConfig holds where collections and the cost ledger live.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"`    // "openai", "mock"
	Model             string  `yaml:"model"`       // e.g., "text-embedding-3-large"
	APIKeyEnv         string  `yaml:"api_key_env"` // Environment variable for API key
	BaseURL           string  `yaml:"base_url"`
	Dimension         int     `yaml:"dimension"` // only used by the mock provider
	BatchTokenBudget  int     `yaml:"batch_token_budget"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 = unlimited
}

// GenerationConfig holds chat model configuration.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"` // "openai", "mock"
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// RetrieveConfig holds retrieval and context assembly configuration.
type RetrieveConfig struct {
	TopK           int `yaml:"top_k"`
	OverFetch      int `yaml:"over_fetch"`       // candidates fetched per requested result before source filtering
	ContextCharCap int `yaml:"context_char_cap"` // per-record cap inside the prompt context
	SnippetChars   int `yaml:"snippet_chars"`

	MinScoreThreshold float64 `yaml:"min_score_threshold"` // 0 keeps every hit
}

// IngestConfig holds configuration for turning plain text into paragraphs.
type IngestConfig struct {
	Includes          []string `yaml:"includes"`
	Excludes          []string `yaml:"excludes"`
	MinParagraphChars int      `yaml:"min_paragraph_chars"`
	ChunkTokens       int      `yaml:"chunk_tokens"`
	MaxTokens         int      `yaml:"max_tokens"`
	Workers           int      `yaml:"workers"`
}

// PricingConfig holds USD prices used for cost reporting.
type PricingConfig struct {
	ChatInPer1K      float64 `yaml:"chat_in_per_1k"`
	ChatOutPer1K     float64 `yaml:"chat_out_per_1k"`
	EmbedPer1M       float64 `yaml:"embed_per_1m"`
	TranscribePerMin float64 `yaml:"transcribe_per_min"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console", "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: ".docqa",
		},
		Embedding: EmbeddingConfig{
			Provider:         "openai",
			Model:            "text-embedding-3-large",
			APIKeyEnv:        "OPENAI_API_KEY",
			Dimension:        64,
			BatchTokenBudget: 7000,
			TimeoutSecs:      60,
		},
		Generation: GenerationConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0,
			TimeoutSecs: 120,
		},
		Retrieve: RetrieveConfig{
			TopK:           5,
			OverFetch:      3,
			ContextCharCap: 1200,
			SnippetChars:   160,
		},
		Ingest: IngestConfig{
			Includes:          []string{"**/*.txt", "**/*.md"},
			Excludes:          []string{"**/.git/**", "**/node_modules/**", "**/.docqa/**"},
			MinParagraphChars: 10,
			ChunkTokens:       400,
			MaxTokens:         50000,
			Workers:           4,
		},
		Pricing: PricingConfig{
			ChatInPer1K:      0.005,
			ChatOutPer1K:     0.015,
			EmbedPer1M:       0.13,
			TranscribePerMin: 0.006,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for docqa.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "docqa.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".docqa", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// LoadEnv reads a .env file from dir into the process environment.
// Variables already set in the environment win.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

// ApplyEnv overrides prices from PRICE_* environment variables.
// Unparseable values are ignored.
func (c *Config) ApplyEnv() {
	overrides := []struct {
		key string
		dst *float64
	}{
		{"PRICE_CHAT_IN", &c.Pricing.ChatInPer1K},
		{"PRICE_CHAT_OUT", &c.Pricing.ChatOutPer1K},
		{"PRICE_EMBED_IN", &c.Pricing.EmbedPer1M},
		{"PRICE_TRANSCRIBE_PER_MIN", &c.Pricing.TranscribePerMin},
	}
	for _, o := range overrides {
		raw, ok := os.LookupEnv(o.key)
		if !ok || raw == "" {
			continue
		}
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 {
			*o.dst = v
		}
	}
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// CollectionsDir returns the directory holding one subdirectory per collection.
func CollectionsDir(dataDir string) string {
	return filepath.Join(dataDir, "collections")
}

// LedgerPath returns the path to the cost ledger database.
func LedgerPath(dataDir string) string {
	return filepath.Join(dataDir, "costs.db")
}

// EnsureDataDir ensures the data directory and its collections directory exist.
func EnsureDataDir(dataDir string) error {
	return os.MkdirAll(CollectionsDir(dataDir), 0755)
}
