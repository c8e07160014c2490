// Package config loads engine settings from an optional TOML file overlaid
// with environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/commentlens/internal/embedder"
	"github.com/dshills/commentlens/internal/learning"
	"github.com/dshills/commentlens/internal/quota"
	"github.com/dshills/commentlens/internal/scoring"
	"github.com/dshills/commentlens/internal/vectorstore"
)

// Environment variables
const (
	EnvConfigPath = "COMMENTLENS_CONFIG"
	EnvDBPath     = "COMMENTLENS_DB_PATH"
	EnvLogLevel   = "COMMENTLENS_LOG_LEVEL"
)

// DefaultDBPath is the default location of the SQLite store
const DefaultDBPath = "~/.commentlens/commentlens.db"

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Duration is a time.Duration that reads and writes as "10s" in TOML
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration as a Go duration string
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// StorageConfig configures the persistent store
type StorageConfig struct {
	Path          string `toml:"path"`
	MaxBytes      int64  `toml:"max_bytes"`
	CollectionCap int    `toml:"collection_cap"`
	HotCacheSize  int    `toml:"hot_cache_size"`
}

// EmbeddingConfig configures the embedding provider
type EmbeddingConfig struct {
	Provider          string   `toml:"provider"`
	APIKey            string   `toml:"-"`
	Model             string   `toml:"model"`
	BaseURL           string   `toml:"base_url"`
	Dimension         int      `toml:"dimension"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
}

// SearchConfig configures the query path
type SearchConfig struct {
	StrategyTimeout Duration `toml:"strategy_timeout"`
	Threshold       float64  `toml:"threshold"`
	MaxResults      int      `toml:"max_results"`
	CandidateLimit  int      `toml:"candidate_limit"`
}

// LearningConfig configures the adaptation loop and its logs
type LearningConfig struct {
	Interval       Duration `toml:"interval"`
	Step           float64  `toml:"step"`
	MinSamples     int      `toml:"min_samples"`
	MaxDecisions   int      `toml:"max_decisions"`
	MaxDecisionAge Duration `toml:"max_decision_age"`
	MaxSearches    int      `toml:"max_searches"`
}

// Config is the full engine configuration
type Config struct {
	LogLevel  string          `toml:"log_level"`
	Storage   StorageConfig   `toml:"storage"`
	Quota     quota.Limits    `toml:"quota"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Policy    scoring.Policy  `toml:"policy"`
	Search    SearchConfig    `toml:"search"`
	Learning  LearningConfig  `toml:"learning"`
}

// Default returns the stock configuration
func Default() Config {
	policy := scoring.DefaultPolicy()
	return Config{
		LogLevel: "info",
		Storage: StorageConfig{
			Path:          DefaultDBPath,
			CollectionCap: vectorstore.DefaultMaxSize,
			HotCacheSize:  1000,
		},
		Quota: quota.DefaultLimits(),
		Embedding: EmbeddingConfig{
			Timeout: Duration{10 * time.Second},
		},
		Policy: policy,
		Search: SearchConfig{
			StrategyTimeout: Duration{5 * time.Second},
			Threshold:       policy.SemanticThreshold,
			MaxResults:      20,
			CandidateLimit:  50,
		},
		Learning: LearningConfig{
			Interval:       Duration{learning.DefaultInterval},
			Step:           learning.DefaultStep,
			MinSamples:     learning.DefaultMinSamples,
			MaxDecisions:   learning.DefaultMaxDecisions,
			MaxDecisionAge: Duration{learning.DefaultMaxDecisionAge},
			MaxSearches:    learning.DefaultMaxSearches,
		},
	}
}

// Load reads the TOML file at path over the defaults, then applies the
// environment. An empty path skips the file; a missing file is an error.
// Load reads the TOML file at path (optional when empty) over the defaults,
// then applies the environment and validates the result
func Load(path string) (Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides file values with the environment. Provider detection
// follows: explicit provider, then a Jina key, then an OpenAI key, then local.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvDBPath); v != "" {
		c.Storage.Path = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(embedder.EnvProvider); v != "" {
		c.Embedding.Provider = v
	}
	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))

	jinaKey, openAIKey := getenv(embedder.EnvJinaAPIKey), getenv(embedder.EnvOpenAIAPIKey)
	if c.Embedding.Provider == "" {
		switch {
		case jinaKey != "":
			c.Embedding.Provider = embedder.ProviderJina
		case openAIKey != "":
			c.Embedding.Provider = embedder.ProviderOpenAI
		default:
			c.Embedding.Provider = embedder.ProviderLocal
		}
	}

	switch c.Embedding.Provider {
	case embedder.ProviderJina:
		c.Embedding.APIKey = jinaKey
	case embedder.ProviderOpenAI:
		c.Embedding.APIKey = openAIKey
	}
}

// Validate rejects negative limits, out-of-range thresholds and unknown providers
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.Embedding.Provider {
	case embedder.ProviderJina, embedder.ProviderOpenAI, embedder.ProviderLocal, "":
	default:
		errs = append(errs, fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	check(c.Storage.MaxBytes >= 0, "storage.max_bytes must be >= 0")
	check(c.Storage.CollectionCap >= 0, "storage.collection_cap must be >= 0")
	check(c.Quota.Minute >= 0 && c.Quota.Hour >= 0 && c.Quota.Day >= 0, "quota limits must be >= 0")
	check(c.Embedding.Dimension >= 0, "embedding.dimension must be >= 0")
	check(c.Embedding.RequestsPerSecond >= 0, "embedding.requests_per_second must be >= 0")
	check(c.Search.MaxResults >= 0, "search.max_results must be >= 0")
	check(c.Learning.MaxDecisions >= 0 && c.Learning.MaxSearches >= 0, "learning log sizes must be >= 0")

	for name, v := range map[string]float64{
		"search.threshold":          c.Search.Threshold,
		"policy.decision_threshold": c.Policy.DecisionThreshold,
		"policy.quality_floor":      c.Policy.QualityFloor,
		"policy.rate_limit_floor":   c.Policy.RateLimitFloor,
		"policy.semantic_threshold": c.Policy.SemanticThreshold,
		"policy.pattern_threshold":  c.Policy.PatternThreshold,
		"policy.query_threshold":    c.Policy.QueryThreshold,
	} {
		check(v >= 0 && v <= 1, "%s must be within [0,1], got %v", name, v)
	}
	check(c.Policy.ThresholdMin <= c.Policy.ThresholdMax, "policy.threshold_min must not exceed policy.threshold_max")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a level name onto a slog level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// DBPath returns the storage path with a leading ~ expanded
func (c *Config) DBPath() (string, error) {
	path := c.Storage.Path
	if path == "" {
		path = DefaultDBPath
	}
	if path == ":memory:" || !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// EmbedderConfig returns the provider factory settings
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:          c.Embedding.Provider,
		APIKey:            c.Embedding.APIKey,
		Model:             c.Embedding.Model,
		BaseURL:           c.Embedding.BaseURL,
		Dimension:         c.Embedding.Dimension,
		Timeout:           c.Embedding.Timeout.Duration,
		RequestsPerSecond: c.Embedding.RequestsPerSecond,
		Burst:             c.Embedding.Burst,
	}
}

// LearningOptions returns the learning store settings
func (c *Config) LearningOptions() learning.Options {
	opts := learning.DefaultOptions(c.Policy)
	opts.MaxDecisions = c.Learning.MaxDecisions
	opts.MaxDecisionAge = c.Learning.MaxDecisionAge.Duration
	opts.MaxSearches = c.Learning.MaxSearches
	return opts
}

// LoopConfig returns the adaptation loop settings
func (c *Config) LoopConfig() learning.LoopConfig {
	return learning.LoopConfig{
		Interval:   c.Learning.Interval.Duration,
		Step:       c.Learning.Step,
		MinSamples: c.Learning.MinSamples,
	}
}
