package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name           string
		provider       string
		jinaKey        string
		openaiKey      string
		expectedResult string
	}{
		{name: "explicit jina provider", provider: "jina", expectedResult: ProviderJina},
		{name: "explicit openai provider", provider: "OpenAI", expectedResult: ProviderOpenAI},
		{name: "explicit local provider", provider: "local", expectedResult: ProviderLocal},
		{name: "jina key present", jinaKey: "test-key", expectedResult: ProviderJina},
		{name: "openai key present", openaiKey: "test-key", expectedResult: ProviderOpenAI},
		{name: "both keys, jina takes precedence", jinaKey: "jina-key", openaiKey: "openai-key", expectedResult: ProviderJina},
		{name: "no provider, no keys - fallback to local", expectedResult: ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvProvider, tt.provider)
			t.Setenv(EnvJinaAPIKey, tt.jinaKey)
			t.Setenv(EnvOpenAIAPIKey, tt.openaiKey)

			assert.Equal(t, tt.expectedResult, DetectProvider())
		})
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Run("local provider (no keys)", func(t *testing.T) {
		t.Setenv(EnvProvider, "")
		t.Setenv(EnvJinaAPIKey, "")
		t.Setenv(EnvOpenAIAPIKey, "")

		emb, err := NewFromEnv()
		require.NoError(t, err)
		defer emb.Close()

		assert.Equal(t, ProviderLocal, emb.Provider())
		assert.Equal(t, LocalDimension, emb.Dimension())
	})

	t.Run("jina with api key", func(t *testing.T) {
		t.Setenv(EnvProvider, "jina")
		t.Setenv(EnvJinaAPIKey, "test-jina-key")

		emb, err := NewFromEnv()
		require.NoError(t, err)
		defer emb.Close()

		assert.Equal(t, ProviderJina, emb.Provider())
		assert.Equal(t, JinaDimension, emb.Dimension())
	})

	t.Run("jina without api key", func(t *testing.T) {
		t.Setenv(EnvProvider, "jina")
		t.Setenv(EnvJinaAPIKey, "")

		_, err := NewFromEnv()
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("openai with api key", func(t *testing.T) {
		t.Setenv(EnvProvider, "")
		t.Setenv(EnvJinaAPIKey, "")
		t.Setenv(EnvOpenAIAPIKey, "test-openai-key")

		emb, err := NewFromEnv()
		require.NoError(t, err)
		defer emb.Close()

		assert.Equal(t, ProviderOpenAI, emb.Provider())
		assert.Equal(t, DefaultOpenAIModel, emb.Model())
	})
}

func TestNew(t *testing.T) {
	tests := []struct {
		name         string
		cfg          Config
		wantProvider string
		wantDim      int
		wantErr      error
	}{
		{name: "empty defaults to local", cfg: Config{}, wantProvider: ProviderLocal, wantDim: LocalDimension},
		{name: "local custom dimension", cfg: Config{Provider: "local", Dimension: 256}, wantProvider: ProviderLocal, wantDim: 256},
		{name: "openai", cfg: Config{Provider: "openai", APIKey: "k"}, wantProvider: ProviderOpenAI, wantDim: OpenAIDimension},
		{name: "jina custom model", cfg: Config{Provider: "jina", APIKey: "k", Model: "jina-embeddings-v2-base-en", Dimension: 768}, wantProvider: ProviderJina, wantDim: 768},
		{name: "openai missing key", cfg: Config{Provider: "openai"}, wantErr: ErrNoProviderEnabled},
		{name: "unknown provider", cfg: Config{Provider: "cohere"}, wantErr: ErrUnknownProvider},
		{name: "local dimension too small", cfg: Config{Provider: "local", Dimension: 10}, wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb, err := New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer emb.Close()

			assert.Equal(t, tt.wantProvider, emb.Provider())
			assert.Equal(t, tt.wantDim, emb.Dimension())
		})
	}
}
