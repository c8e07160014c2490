package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/commentlens/internal/embedder"
)

func envOf(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "commentlens.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load("", envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, embedder.ProviderLocal, cfg.Embedding.Provider)
	assert.Equal(t, 60, cfg.Quota.Minute)
	assert.Equal(t, 0.75, cfg.Search.Threshold)
	assert.Equal(t, time.Hour, cfg.Learning.Interval.Duration)
	assert.Equal(t, 20, cfg.Policy.MinLength)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[storage]
path = "/tmp/lens.db"
max_bytes = 1048576

[quota]
minute = 5

[embedding]
provider = "openai"
timeout = "3s"

[policy]
min_length = 30
decision_threshold = 0.6

[learning]
interval = "15m"
`)

	cfg, err := load(path, envOf(map[string]string{embedder.EnvOpenAIAPIKey: "sk-test"}))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/lens.db", cfg.Storage.Path)
	assert.Equal(t, int64(1048576), cfg.Storage.MaxBytes)
	assert.Equal(t, 5, cfg.Quota.Minute)
	assert.Equal(t, 1000, cfg.Quota.Hour, "unset keys keep their defaults")
	assert.Equal(t, embedder.ProviderOpenAI, cfg.Embedding.Provider)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, 3*time.Second, cfg.Embedding.Timeout.Duration)
	assert.Equal(t, 30, cfg.Policy.MinLength)
	assert.Equal(t, 0.6, cfg.Policy.DecisionThreshold)
	assert.Equal(t, 0.7, cfg.Policy.QualityFloor)
	assert.Equal(t, 15*time.Minute, cfg.Learning.Interval.Duration)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	path := writeConfig(t, "[storage]\npath = \"/tmp/file.db\"\n")

	cfg, err := load(path, envOf(map[string]string{
		EnvDBPath:   "/tmp/env.db",
		EnvLogLevel: "warn",
	}))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/env.db", cfg.Storage.Path)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_ProviderDetection(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
		key  string
	}{
		{"nothing set", nil, embedder.ProviderLocal, ""},
		{"openai key", map[string]string{embedder.EnvOpenAIAPIKey: "o"}, embedder.ProviderOpenAI, "o"},
		{"jina beats openai", map[string]string{embedder.EnvOpenAIAPIKey: "o", embedder.EnvJinaAPIKey: "j"}, embedder.ProviderJina, "j"},
		{"explicit provider", map[string]string{embedder.EnvProvider: "LOCAL", embedder.EnvJinaAPIKey: "j"}, embedder.ProviderLocal, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load("", envOf(tt.env))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Embedding.Provider)
			assert.Equal(t, tt.key, cfg.Embedding.APIKey)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), "missing.toml"), envOf(nil))
	assert.Error(t, err)

	_, err = load(writeConfig(t, "log_level = ["), envOf(nil))
	assert.Error(t, err)

	_, err = load("", envOf(map[string]string{embedder.EnvProvider: "cohere"}))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative quota", func(c *Config) { c.Quota.Minute = -1 }},
		{"threshold above one", func(c *Config) { c.Search.Threshold = 1.5 }},
		{"negative max bytes", func(c *Config) { c.Storage.MaxBytes = -10 }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"inverted threshold bounds", func(c *Config) { c.Policy.ThresholdMin = 0.9 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}

func TestDBPath(t *testing.T) {
	cfg := Default()
	cfg.Storage.Path = ":memory:"
	path, err := cfg.DBPath()
	require.NoError(t, err)
	assert.Equal(t, ":memory:", path)

	cfg.Storage.Path = "~/lens.db"
	path, err = cfg.DBPath()
	require.NoError(t, err)
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "lens.db"), path)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
