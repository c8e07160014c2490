package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Default endpoints
	DefaultJinaBaseURL   = "https://api.jina.ai"
	DefaultOpenAIBaseURL = "https://api.openai.com"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536

	// Batch limits
	MaxBatchSize = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	defaultHTTPTimeout = 30 * time.Second
)

// RemoteProvider implements Embedder against an OpenAI-compatible /v1/embeddings API
type RemoteProvider struct {
	name       string
	apiKey     string
	model      string
	baseURL    string
	dimension  int
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
}

// RemoteOption configures a RemoteProvider
type RemoteOption func(*RemoteProvider)

// WithBaseURL points the provider at a different endpoint root
func WithBaseURL(url string) RemoteOption {
	return func(p *RemoteProvider) {
		if url != "" {
			p.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithModel overrides the default model
func WithModel(model string) RemoteOption {
	return func(p *RemoteProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithDimension overrides the reported embedding dimension
func WithDimension(dim int) RemoteOption {
	return func(p *RemoteProvider) {
		if dim > 0 {
			p.dimension = dim
		}
	}
}

// WithHTTPTimeout sets the per-request HTTP timeout
func WithHTTPTimeout(d time.Duration) RemoteOption {
	return func(p *RemoteProvider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

// WithRateLimit throttles outgoing requests with a token bucket
func WithRateLimit(requestsPerSecond float64, burst int) RemoteOption {
	return func(p *RemoteProvider) {
		if requestsPerSecond <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithRetry replaces the retry policy
func WithRetry(cfg RetryConfig) RemoteOption {
	return func(p *RemoteProvider) { p.retry = cfg }
}

// NewRemoteProvider creates a provider named name with the given defaults
func NewRemoteProvider(name, apiKey, baseURL, model string, dimension int, opts ...RemoteOption) (*RemoteProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key for %s not set", ErrNoProviderEnabled, name)
	}

	p := &RemoteProvider{
		name:       name,
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		retry:      DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// NewJinaProvider creates a Jina AI embedder
func NewJinaProvider(apiKey string, opts ...RemoteOption) (*RemoteProvider, error) {
	return NewRemoteProvider(ProviderJina, apiKey, DefaultJinaBaseURL, DefaultJinaModel, JinaDimension, opts...)
}

// NewOpenAIProvider creates an OpenAI embedder
func NewOpenAIProvider(apiKey string, opts ...RemoteOption) (*RemoteProvider, error) {
	return NewRemoteProvider(ProviderOpenAI, apiKey, DefaultOpenAIBaseURL, DefaultOpenAIModel, OpenAIDimension, opts...)
}

func (p *RemoteProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	// Use batch API for consistency
	resp, err := p.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

func (p *RemoteProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := ValidateBatchRequest(req); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	embeddings, err := retryWithBackoff(ctx, p.retry, func() ([]*Embedding, error) {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return p.callAPI(ctx, req.Texts, model)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrProviderFailed, p.name, err)
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   p.name,
		Model:      model,
	}, nil
}

func (p *RemoteProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &apiError{
			StatusCode: resp.StatusCode,
			Body:       string(bodyBytes),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResp.Data))
	}

	// Providers may return items out of order
	sort.Slice(apiResp.Data, func(i, j int) bool { return apiResp.Data[i].Index < apiResp.Data[j].Index })

	respModel := apiResp.Model
	if respModel == "" {
		respModel = model
	}

	embeddings := make([]*Embedding, len(apiResp.Data))
	for i, data := range apiResp.Data {
		embeddings[i] = &Embedding{
			Vector:    data.Embedding,
			Dimension: len(data.Embedding),
			Provider:  p.name,
			Model:     respModel,
		}
	}

	return embeddings, nil
}

func (p *RemoteProvider) Dimension() int {
	return p.dimension
}

func (p *RemoteProvider) Provider() string {
	return p.name
}

func (p *RemoteProvider) Model() string {
	return p.model
}

func (p *RemoteProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
