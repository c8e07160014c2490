package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/commentlens/internal/decision"
	"github.com/dshills/commentlens/internal/indexer"
	"github.com/dshills/commentlens/internal/searcher"
	"github.com/dshills/commentlens/internal/vectorstore"
	"github.com/dshills/commentlens/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeCollectionNotFound = -32001 // Collection has never been ingested
	ErrorCodeIngestionRunning   = -32002 // Another ingestion is running for the collection
	ErrorCodeDecisionNotFound   = -32003 // No recorded decision with that id
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// maxReportedErrors caps per-comment error messages in responses
const maxReportedErrors = 5

// handleIngestComments handles the ingest_comments tool invocation
func (s *Server) handleIngestComments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	collectionID, err := requireString(args, "collection_id")
	if err != nil {
		return nil, err
	}

	rawComments, ok := args["comments"].([]interface{})
	if !ok || len(rawComments) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "comments parameter is required", map[string]interface{}{
			"param":  "comments",
			"reason": "missing or empty",
		})
	}

	units := make([]types.TextUnit, 0, len(rawComments))
	for i, raw := range rawComments {
		unit, err := parseComment(raw)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid comment", map[string]interface{}{
				"param":  fmt.Sprintf("comments[%d]", i),
				"reason": err.Error(),
			})
		}
		units = append(units, unit)
	}

	stats, err := s.indexer.IndexComments(ctx, collectionID, units)
	if errors.Is(err, indexer.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIngestionRunning, "ingestion already running for this collection", map[string]interface{}{
			"collection_id": collectionID,
		})
	}
	if err != nil && stats == nil {
		return nil, newMCPError(ErrorCodeInternalError, "ingestion failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	skipped := make(map[string]int, len(stats.Skipped))
	for reason, n := range stats.Skipped {
		skipped[string(reason)] = n
	}
	response := map[string]interface{}{
		"collection_id": collectionID,
		"received":      stats.Received,
		"invalid":       stats.Invalid,
		"duplicates":    stats.Duplicates,
		"computed":      stats.Computed,
		"reused":        stats.Reused,
		"skipped":       skipped,
		"failed":        stats.Failed,
		"inserted":      stats.Inserted,
		"pruned":        stats.Pruned,
		"persisted":     stats.Persisted,
		"duration_ms":   stats.Duration.Milliseconds(),
	}
	if err != nil {
		response["interrupted"] = err.Error()
	}
	if n := len(stats.ErrorMessages); n > 0 {
		response["errors"] = stats.ErrorMessages[:min(n, maxReportedErrors)]
		response["error_count"] = n
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// parseComment converts one tool argument object into a TextUnit
func parseComment(raw interface{}) (types.TextUnit, error) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return types.TextUnit{}, errors.New("comment must be an object")
	}

	unit := types.TextUnit{
		ID:   getStringDefault(obj, "id", ""),
		Text: getStringDefault(obj, "text", ""),
		Context: types.SourceContext{
			Author:                getStringDefault(obj, "author", ""),
			ReplyToAuthor:         getStringDefault(obj, "reply_to", ""),
			Sentiment:             types.ParseSentiment(getStringDefault(obj, "sentiment", "")),
			Likes:                 getIntDefault(obj, "likes", 0),
			Replies:               getIntDefault(obj, "replies", 0),
			IsQuestion:            getBoolDefault(obj, "is_question", false),
			IsBusinessOpportunity: getBoolDefault(obj, "is_business", false),
			IsControversial:       getBoolDefault(obj, "is_controversial", false),
		},
	}
	if unit.ID == "" {
		return unit, types.ErrMissingID
	}
	if unit.Context.Likes < 0 || unit.Context.Replies < 0 {
		return unit, errors.New("likes and replies must be >= 0")
	}
	if ts := getStringDefault(obj, "published_at", ""); ts != "" {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return unit, fmt.Errorf("published_at: %w", err)
		}
		unit.Context.PublishedAt = t
	}
	return unit, nil
}

// handleSearchComments handles the search_comments tool invocation
func (s *Server) handleSearchComments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	collectionID, err := requireString(args, "collection_id")
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	maxResults := getIntDefault(args, "max_results", 20)
	if maxResults < 1 || maxResults > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "max_results must be between 1 and 100", map[string]interface{}{
			"param": "max_results",
			"value": maxResults,
		})
	}

	threshold := getFloatDefault(args, "threshold", 0)
	if threshold < 0 || threshold > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "threshold must be between 0 and 1", map[string]interface{}{
			"param": "threshold",
			"value": threshold,
		})
	}

	var strategies []types.Strategy
	if raw, ok := args["strategies"].([]interface{}); ok {
		for _, item := range raw {
			name, _ := item.(string)
			st, ok := types.ParseStrategy(name)
			if !ok {
				return nil, newMCPError(ErrorCodeInvalidParams, "invalid strategy", map[string]interface{}{
					"param":   "strategies",
					"value":   item,
					"allowed": types.AllStrategies,
				})
			}
			strategies = append(strategies, st)
		}
	}

	resp, err := s.searcher.Search(ctx, searcher.Request{
		Query:        query,
		CollectionID: collectionID,
		Strategies:   strategies,
		Threshold:    threshold,
		MaxResults:   maxResults,
	})
	switch {
	case errors.Is(err, vectorstore.ErrCollectionNotFound):
		return nil, newMCPError(ErrorCodeCollectionNotFound, "collection not found", map[string]interface{}{
			"collection_id": collectionID,
		})
	case errors.Is(err, searcher.ErrEmptyQuery):
		return nil, newMCPError(ErrorCodeEmptyQuery, "query cannot be empty", nil)
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	results := make([]map[string]interface{}, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]interface{}{
			"rank":        r.Rank,
			"id":          r.Candidate.EntryID,
			"author":      r.Candidate.Author,
			"text":        r.Candidate.Text,
			"final_score": r.FinalScore,
			"confidence":  r.Confidence,
			"similarity":  r.Candidate.Similarity,
			"strategies":  r.Candidate.Strategies,
			"expansions":  r.Candidate.Expansions,
			"patterns":    r.Candidate.Patterns,
			"topic":       r.Topic,
			"scores": map[string]interface{}{
				"relevance":  r.Scores.Relevance,
				"quality":    r.Scores.Quality,
				"diversity":  r.Scores.Diversity,
				"recency":    r.Scores.Recency,
				"engagement": r.Scores.Engagement,
				"context":    r.Scores.Context,
			},
		})
	}

	runs := make(map[string]interface{}, len(resp.Runs))
	for _, run := range resp.Runs {
		entry := map[string]interface{}{
			"results":     run.Results,
			"weight":      run.Weight,
			"duration_ms": run.Duration.Milliseconds(),
		}
		if run.Err != nil {
			entry["error"] = run.Err.Error()
		}
		runs[string(run.Strategy)] = entry
	}

	response := map[string]interface{}{
		"search_id":       resp.SearchID,
		"intent":          resp.Intent,
		"strategies_used": resp.StrategiesUsed,
		"strategy_runs":   runs,
		"candidates":      resp.Candidates,
		"confidence":      resp.Confidence,
		"results":         results,
		"total_results":   len(results),
		"duration_ms":     resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleExplainDecision handles the explain_decision tool invocation
func (s *Server) handleExplainDecision(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id := getStringDefault(args, "id", "")
	text := getStringDefault(args, "text", "")

	var (
		d        types.Decision
		recorded bool
	)
	switch {
	case id != "":
		found, ok := s.learning.FindDecision(id)
		if !ok {
			return nil, newMCPError(ErrorCodeDecisionNotFound, "no recorded decision with this id", map[string]interface{}{
				"id": id,
			})
		}
		d, recorded = found, true
	case text != "":
		d = s.engine.Preview(ctx, types.TextUnit{
			ID:   "preview",
			Text: text,
			Context: types.SourceContext{
				IsQuestion:            getBoolDefault(args, "is_question", false),
				IsBusinessOpportunity: getBoolDefault(args, "is_business", false),
				Likes:                 getIntDefault(args, "likes", 0),
			},
		})
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "either id or text is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing",
		})
	}

	return mcp.NewToolResultText(formatJSON(explainDecision(d, recorded))), nil
}

func explainDecision(d types.Decision, recorded bool) map[string]interface{} {
	return map[string]interface{}{
		"recorded":     recorded,
		"decision_id":  d.ID,
		"unit_id":      d.UnitID,
		"fingerprint":  d.Fingerprint,
		"outcome":      d.Outcome,
		"should_embed": d.ShouldEmbed,
		"reason":       d.Reason,
		"score":        d.Score,
		"confidence":   d.Confidence,
		"query":        d.Query,
		"decided_at":   d.DecidedAt.Format(time.RFC3339),
		"factors": map[string]interface{}{
			"text_quality":       d.Factors.TextQuality,
			"importance":         d.Factors.Importance,
			"quota_availability": d.Factors.QuotaAvailability,
			"minute_quota":       d.Factors.MinuteQuota,
			"cache_absent":       d.Factors.CacheAbsent,
			"cost_benefit_ratio": d.Factors.CostBenefitRatio,
			"recommendation":     d.Factors.Recommendation,
		},
	}
}

// handleAddPattern handles the add_pattern tool invocation
func (s *Server) handleAddPattern(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	text, err := requireString(args, "text")
	if err != nil {
		return nil, err
	}

	vec, d, err := s.engine.EmbedQuery(ctx, text)
	if errors.Is(err, decision.ErrGated) {
		return nil, newMCPError(ErrorCodeInvalidParams, "pattern text refused by the embedding gate", map[string]interface{}{
			"param":  "text",
			"reason": string(d.Reason),
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to embed pattern", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if err := s.registry.AddPattern(ctx, vectorstore.Pattern{Name: name, Text: text, Vector: vec}); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to store pattern", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"added":     true,
		"name":      name,
		"dimension": len(vec),
		"patterns":  len(s.registry.Patterns()),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	filter := getStringDefault(args, "collection_id", "")

	ids := s.registry.IDs()
	if filter != "" {
		if _, ok := s.registry.Lookup(filter); !ok {
			return nil, newMCPError(ErrorCodeCollectionNotFound, "collection not found", map[string]interface{}{
				"collection_id": filter,
			})
		}
		ids = []string{filter}
	}

	collections := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		c, ok := s.registry.Lookup(id)
		if !ok {
			continue
		}
		collections = append(collections, map[string]interface{}{
			"id":        id,
			"entries":   c.Len(),
			"max_size":  c.MaxSize(),
			"dimension": c.Dimension(),
			"ingesting": s.indexer.Indexing(id),
		})
	}

	q := s.quota.Snapshot()
	health := map[string]interface{}{
		"storage_accessible": true,
		"provider":           s.engine.Provider(),
		"dimension":          s.engine.Dimension(),
	}
	bytesInUse, err := s.kv.BytesInUse(ctx)
	if err != nil {
		health["storage_accessible"] = false
		health["storage_error"] = err.Error()
	}

	response := map[string]interface{}{
		"collections": collections,
		"patterns":    len(s.registry.Patterns()),
		"quota": map[string]interface{}{
			"minute":  q.Minute,
			"hour":    q.Hour,
			"day":     q.Day,
			"overall": q.Overall,
		},
		"learning": map[string]interface{}{
			"threshold": s.learning.Threshold(),
			"decisions": len(s.learning.Decisions()),
			"searches":  len(s.learning.Searches()),
		},
		"storage": map[string]interface{}{
			"bytes_in_use":   bytesInUse,
			"size_mb":        fmt.Sprintf("%.2f", float64(bytesInUse)/(1024*1024)),
			"cached_vectors": s.cache.Len(),
		},
		"health": health,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// requireString extracts a mandatory non-blank string parameter
func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || strings.TrimSpace(val) == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
