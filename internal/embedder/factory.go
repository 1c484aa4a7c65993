package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Environment variables consulted by the factory
const (
	EnvProvider     = "KRAKEN_EMBEDDING_PROVIDER"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// Config holds embedder configuration
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimension  int
	Timeout    time.Duration
	MaxRetries int // Total attempts per request; 0 or 1 disables retry
}

func (c Config) providerOptions() ProviderOptions {
	retry := NoRetry()
	if c.MaxRetries > 1 {
		retry = DefaultRetryConfig()
		retry.MaxRetries = c.MaxRetries
	}
	return ProviderOptions{
		APIKey:    c.APIKey,
		Model:     c.Model,
		BaseURL:   c.BaseURL,
		Dimension: c.Dimension,
		Timeout:   c.Timeout,
		Retry:     retry,
	}
}

// New creates an embedder with explicit configuration.
// An empty provider falls back to DetectProvider.
func New(cfg Config) (Embedder, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = DetectProvider()
	}

	opts := cfg.providerOptions()
	switch provider {
	case ProviderJina:
		return NewJinaProvider(opts)
	case ProviderOpenAI:
		return NewOpenAIProvider(opts)
	case ProviderLangchain, "ollama":
		return NewLangchainProvider(opts)
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. KRAKEN_EMBEDDING_PROVIDER (jina, openai, langchain, local)
// 2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (Embedder, error) {
	return New(Config{Provider: DetectProvider()})
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvJinaAPIKey) != "" {
		return ProviderJina
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}

	return ProviderLocal
}
