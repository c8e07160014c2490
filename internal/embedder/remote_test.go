package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func embeddingsServer(t *testing.T, calls *atomic.Int32, status func(n int32) int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if code := status(n); code != http.StatusOK {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Answer in reverse order to exercise index sorting
		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"index":     i,
				"embedding": []float32{float32(i), 1, 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"model": req.Model, "data": data})
	}))
}

// failFirst answers code for the first n calls, then succeeds
func failFirst(n int32, code int) func(int32) int {
	return func(call int32) int {
		if call <= n {
			return code
		}
		return http.StatusOK
	}
}

func TestRemoteProvider_GenerateBatch(t *testing.T) {
	var calls atomic.Int32
	server := embeddingsServer(t, &calls, func(int32) int { return http.StatusOK })
	defer server.Close()

	p, err := NewOpenAIProvider("test-key", WithBaseURL(server.URL), WithDimension(3), WithRetry(fastRetry()))
	require.NoError(t, err)
	defer p.Close()

	resp, err := p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "b", "c"}})
	require.NoError(t, err)
	require.Len(t, resp.Embeddings, 3)
	assert.Equal(t, ProviderOpenAI, resp.Provider)
	assert.Equal(t, DefaultOpenAIModel, resp.Model)

	for i, emb := range resp.Embeddings {
		assert.Equal(t, float32(i), emb.Vector[0], "embedding %d out of order", i)
		assert.Equal(t, 3, emb.Dimension)
		assert.Equal(t, ProviderOpenAI, emb.Provider)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestRemoteProvider_GenerateEmbedding(t *testing.T) {
	var calls atomic.Int32
	server := embeddingsServer(t, &calls, func(int32) int { return http.StatusOK })
	defer server.Close()

	p, err := NewJinaProvider("test-key", WithBaseURL(server.URL+"/"), WithModel("custom-model"))
	require.NoError(t, err)

	emb, err := p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, ProviderJina, emb.Provider)
	assert.Equal(t, "custom-model", emb.Model)

	_, err = p.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: ""})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestRemoteProvider_Retry(t *testing.T) {
	tests := []struct {
		name      string
		status    func(n int32) int
		wantErr   bool
		wantCalls int32
	}{
		{
			name:      "recovers after server error",
			status:    failFirst(2, http.StatusServiceUnavailable),
			wantCalls: 3,
		},
		{
			name:      "retries throttling",
			status:    failFirst(1, http.StatusTooManyRequests),
			wantCalls: 2,
		},
		{
			name:      "gives up after max retries",
			status:    func(int32) int { return http.StatusInternalServerError },
			wantErr:   true,
			wantCalls: MaxRetries,
		},
		{
			name:      "does not retry client errors",
			status:    func(int32) int { return http.StatusUnauthorized },
			wantErr:   true,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := embeddingsServer(t, &calls, tt.status)
			defer server.Close()

			p, err := NewOpenAIProvider("test-key", WithBaseURL(server.URL), WithRetry(fastRetry()))
			require.NoError(t, err)

			_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"x"}})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrProviderFailed)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestRemoteProvider_Validation(t *testing.T) {
	p, err := NewOpenAIProvider("test-key")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = p.GenerateBatch(ctx, BatchEmbeddingRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"ok", ""}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	texts := make([]string, MaxBatchSize+1)
	for i := range texts {
		texts[i] = "t"
	}
	_, err = p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts})
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}

func TestRemoteProvider_RateLimitHonorsContext(t *testing.T) {
	var calls atomic.Int32
	server := embeddingsServer(t, &calls, func(int32) int { return http.StatusOK })
	defer server.Close()

	p, err := NewOpenAIProvider("test-key", WithBaseURL(server.URL), WithRateLimit(0.001, 1), WithRetry(fastRetry()))
	require.NoError(t, err)

	// First request consumes the only token
	_, err = p.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"x"}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{"y"}})
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryWithBackoff_RetryAfterCapped(t *testing.T) {
	cfg := fastRetry()
	cfg.MaxDelay = 10 * time.Millisecond

	attempts := 0
	start := time.Now()
	out, err := retryWithBackoff(context.Background(), cfg, func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, &apiError{StatusCode: http.StatusTooManyRequests, RetryAfter: time.Hour}
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, out)
	assert.Equal(t, 2, attempts)
	assert.Less(t, time.Since(start), time.Second, "Retry-After must be capped at MaxDelay")
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
	assert.Zero(t, parseRetryAfter("-1"))
}
