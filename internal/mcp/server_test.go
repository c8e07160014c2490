package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/commentlens/internal/config"
	"github.com/dshills/commentlens/internal/kvstore"
)

const audioQuestion = "Does anyone know how to fix the audio sync issue in this video? The sound drifts after ten minutes, and it gets worse on mobile devices too."

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	s, err := NewServer(cfg,
		WithStore(kvstore.NewMemoryStore(0)),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRegisterer(prometheus.NewRegistry()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func callRequest(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func decodeResult(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
}

func ingest(t *testing.T, s *Server, collection string) map[string]interface{} {
	t.Helper()
	res, err := s.handleIngestComments(context.Background(), callRequest(map[string]interface{}{
		"collection_id": collection,
		"comments": []interface{}{
			map[string]interface{}{
				"id":          "q1",
				"text":        audioQuestion,
				"author":      "@mira",
				"likes":       float64(12),
				"is_question": true,
			},
			map[string]interface{}{"id": "s1", "text": "nice"},
		},
	}))
	require.NoError(t, err)
	return decodeResult(t, res)
}

func TestNewServer_WiresComponents(t *testing.T) {
	s := newTestServer(t)

	assert.NotNil(t, s.engine)
	assert.NotNil(t, s.indexer)
	assert.NotNil(t, s.searcher)
	assert.NotNil(t, s.registry)
	assert.Equal(t, "local", s.engine.Provider())
}

func TestIngestComments(t *testing.T) {
	s := newTestServer(t)

	out := ingest(t, s, "video-1")
	assert.Equal(t, float64(2), out["received"])
	assert.Equal(t, float64(1), out["computed"])
	assert.Equal(t, float64(1), out["inserted"])
	assert.Equal(t, true, out["persisted"])

	skipped, ok := out["skipped"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), skipped["too_short"])

	// Stored ids are not decided again
	out = ingest(t, s, "video-1")
	assert.Equal(t, float64(1), out["duplicates"])
	assert.Equal(t, float64(0), out["inserted"])
}

func TestIngestComments_InvalidParams(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing collection", map[string]interface{}{"comments": []interface{}{map[string]interface{}{"id": "a", "text": "b"}}}},
		{"missing comments", map[string]interface{}{"collection_id": "v"}},
		{"comment not an object", map[string]interface{}{"collection_id": "v", "comments": []interface{}{"text"}}},
		{"comment without id", map[string]interface{}{"collection_id": "v", "comments": []interface{}{map[string]interface{}{"text": "b"}}}},
		{"bad timestamp", map[string]interface{}{"collection_id": "v", "comments": []interface{}{
			map[string]interface{}{"id": "a", "text": "b", "published_at": "yesterday"},
		}}},
		{"negative likes", map[string]interface{}{"collection_id": "v", "comments": []interface{}{
			map[string]interface{}{"id": "a", "text": "b", "likes": float64(-1)},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleIngestComments(ctx, callRequest(tt.args))
			requireMCPCode(t, err, ErrorCodeInvalidParams)
		})
	}
}

func TestSearchComments(t *testing.T) {
	s := newTestServer(t)
	ingest(t, s, "video-1")

	res, err := s.handleSearchComments(context.Background(), callRequest(map[string]interface{}{
		"collection_id": "video-1",
		"query":         "how do I fix the audio",
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)

	assert.Equal(t, "technical", out["intent"])
	assert.NotEmpty(t, out["search_id"])

	results, ok := out["results"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, results)
	top := results[0].(map[string]interface{})
	assert.Equal(t, "q1", top["id"])
	assert.Equal(t, float64(1), top["rank"])

	assert.Len(t, s.learning.Searches(), 1)
}

func TestSearchComments_Errors(t *testing.T) {
	s := newTestServer(t)
	ingest(t, s, "video-1")
	ctx := context.Background()

	_, err := s.handleSearchComments(ctx, callRequest(map[string]interface{}{
		"collection_id": "video-1",
		"query":         "   ",
	}))
	requireMCPCode(t, err, ErrorCodeEmptyQuery)

	_, err = s.handleSearchComments(ctx, callRequest(map[string]interface{}{
		"collection_id": "unknown",
		"query":         "audio",
	}))
	requireMCPCode(t, err, ErrorCodeCollectionNotFound)

	_, err = s.handleSearchComments(ctx, callRequest(map[string]interface{}{
		"collection_id": "video-1",
		"query":         "audio",
		"max_results":   float64(500),
	}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleSearchComments(ctx, callRequest(map[string]interface{}{
		"collection_id": "video-1",
		"query":         "audio",
		"strategies":    []interface{}{"fuzzy"},
	}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)

	_, err = s.handleSearchComments(ctx, callRequest(map[string]interface{}{
		"collection_id": "video-1",
		"query":         "audio",
		"threshold":     float64(2),
	}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)
}

func TestExplainDecision(t *testing.T) {
	s := newTestServer(t)
	ingest(t, s, "video-1")
	ctx := context.Background()

	t.Run("recorded by comment id", func(t *testing.T) {
		res, err := s.handleExplainDecision(ctx, callRequest(map[string]interface{}{"id": "s1"}))
		require.NoError(t, err)
		out := decodeResult(t, res)
		assert.Equal(t, true, out["recorded"])
		assert.Equal(t, "skip", out["outcome"])
		assert.Equal(t, "too_short", out["reason"])
	})

	t.Run("preview records nothing", func(t *testing.T) {
		before := len(s.learning.Decisions())
		res, err := s.handleExplainDecision(ctx, callRequest(map[string]interface{}{
			"text":        audioQuestion,
			"is_question": true,
		}))
		require.NoError(t, err)
		out := decodeResult(t, res)
		assert.Equal(t, false, out["recorded"])
		assert.Contains(t, out, "factors")
		assert.Equal(t, before, len(s.learning.Decisions()))
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.handleExplainDecision(ctx, callRequest(map[string]interface{}{"id": "nope"}))
		requireMCPCode(t, err, ErrorCodeDecisionNotFound)
	})

	t.Run("nothing given", func(t *testing.T) {
		_, err := s.handleExplainDecision(ctx, callRequest(map[string]interface{}{}))
		requireMCPCode(t, err, ErrorCodeInvalidParams)
	})
}

func TestAddPattern(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, err := s.handleAddPattern(ctx, callRequest(map[string]interface{}{
		"name": "audio-trouble",
		"text": "the audio is out of sync with the video",
	}))
	require.NoError(t, err)
	out := decodeResult(t, res)
	assert.Equal(t, true, out["added"])
	assert.Equal(t, float64(s.engine.Dimension()), out["dimension"])
	require.Len(t, s.registry.Patterns(), 1)

	_, err = s.handleAddPattern(ctx, callRequest(map[string]interface{}{"name": "x"}))
	requireMCPCode(t, err, ErrorCodeInvalidParams)
}

func TestGetStatus(t *testing.T) {
	s := newTestServer(t)
	ingest(t, s, "video-1")
	ctx := context.Background()

	res, err := s.handleGetStatus(ctx, callRequest(map[string]interface{}{}))
	require.NoError(t, err)
	out := decodeResult(t, res)

	collections, ok := out["collections"].([]interface{})
	require.True(t, ok)
	require.Len(t, collections, 1)
	coll := collections[0].(map[string]interface{})
	assert.Equal(t, "video-1", coll["id"])
	assert.Equal(t, float64(1), coll["entries"])

	learningState := out["learning"].(map[string]interface{})
	assert.Equal(t, float64(2), learningState["decisions"])

	health := out["health"].(map[string]interface{})
	assert.Equal(t, true, health["storage_accessible"])

	_, err = s.handleGetStatus(ctx, callRequest(map[string]interface{}{"collection_id": "missing"}))
	requireMCPCode(t, err, ErrorCodeCollectionNotFound)
}

func TestClose_Idempotent(t *testing.T) {
	s := newTestServer(t)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
