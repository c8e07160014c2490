package embedder

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Environment variables consulted by NewFromEnv and DetectProvider
const (
	EnvProvider     = "COMMENTLENS_EMBEDDING_PROVIDER"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// Config holds embedder configuration
type Config struct {
	Provider          string
	APIKey            string
	Model             string
	BaseURL           string
	Dimension         int
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. COMMENTLENS_EMBEDDING_PROVIDER (jina, openai, local)
// 2. Check for API keys: JINA_API_KEY, OPENAI_API_KEY
// 3. Default to local if no API keys found
func NewFromEnv() (Embedder, error) {
	provider := DetectProvider()
	key := ""
	switch provider {
	case ProviderJina:
		key = os.Getenv(EnvJinaAPIKey)
	case ProviderOpenAI:
		key = os.Getenv(EnvOpenAIAPIKey)
	}
	return New(Config{Provider: provider, APIKey: key})
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	opts := []RemoteOption{
		WithBaseURL(cfg.BaseURL),
		WithModel(cfg.Model),
		WithDimension(cfg.Dimension),
		WithHTTPTimeout(cfg.Timeout),
		WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderJina:
		return NewJinaProvider(cfg.APIKey, opts...)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, opts...)
	case ProviderLocal, "":
		return NewLocalProvider(cfg.Dimension)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnknownProvider, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	if provider := os.Getenv(EnvProvider); provider != "" {
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
