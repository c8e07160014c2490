package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnknownProvider   = errors.New("unknown embedding provider")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedding is one vector and the provider/model that produced it
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
}

// EmbeddingRequest asks for the embedding of a single text
type EmbeddingRequest struct {
	Text  string
	Model string // empty uses the provider default
}

// BatchEmbeddingRequest asks for embeddings of several texts in one call
type BatchEmbeddingRequest struct {
	Texts []string
	Model string
}

// BatchEmbeddingResponse holds embeddings in request order
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Vectors returns the raw vectors in request order
func (r *BatchEmbeddingResponse) Vectors() [][]float32 {
	out := make([][]float32, len(r.Embeddings))
	for i, e := range r.Embeddings {
		out[i] = e.Vector
	}
	return out
}

// Embedder is an embedding provider. Implementations must be safe for
// concurrent use; the decision engine calls them from several goroutines.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)

	// Dimension is the width of every vector the provider returns
	Dimension() int
	Provider() string
	Model() string
	Close() error
}

// IsLocal reports whether e is the deterministic local provider
func IsLocal(e Embedder) bool {
	return e != nil && e.Provider() == ProviderLocal
}

// ValidateRequest rejects blank text
func ValidateRequest(req EmbeddingRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyText
	}
	return nil
}

// ValidateBatchRequest rejects an empty batch or any blank text in it
func ValidateBatchRequest(req BatchEmbeddingRequest) error {
	if len(req.Texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range req.Texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}
