package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// ingestCommentsTool returns the tool definition for ingest_comments
func ingestCommentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_comments",
		Description: "Decide which comments are worth embedding and add them to a collection",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection_id": map[string]interface{}{
					"type":        "string",
					"description": "Collection to add comments to (one per analyzed video)",
				},
				"comments": map[string]interface{}{
					"type":        "array",
					"description": "Comments with the flags computed by the ingestion taggers",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"id":               map[string]interface{}{"type": "string"},
							"text":             map[string]interface{}{"type": "string"},
							"author":           map[string]interface{}{"type": "string"},
							"reply_to":         map[string]interface{}{"type": "string"},
							"sentiment":        map[string]interface{}{"type": "string", "enum": []string{"positive", "negative", "neutral"}},
							"likes":            map[string]interface{}{"type": "integer", "minimum": 0},
							"replies":          map[string]interface{}{"type": "integer", "minimum": 0},
							"is_question":      map[string]interface{}{"type": "boolean"},
							"is_business":      map[string]interface{}{"type": "boolean"},
							"is_controversial": map[string]interface{}{"type": "boolean"},
							"published_at":     map[string]interface{}{"type": "string", "description": "RFC 3339 timestamp"},
						},
						"required": []string{"id", "text"},
					},
				},
			},
			Required: []string{"collection_id", "comments"},
		},
	}
}

// searchCommentsTool returns the tool definition for search_comments
func searchCommentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_comments",
		Description: "Search a comment collection with a free-text query and return re-ranked results",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection_id": map[string]interface{}{
					"type":        "string",
					"description": "Collection to search",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     20,
					"minimum":     1,
					"maximum":     100,
				},
				"strategies": map[string]interface{}{
					"type":        "array",
					"description": "Override the strategies selected from the query intent",
					"items": map[string]interface{}{
						"type": "string",
						"enum": []string{"exact", "semantic", "context", "pattern"},
					},
				},
				"threshold": map[string]interface{}{
					"type":        "number",
					"description": "Semantic similarity threshold (0-1)",
					"minimum":     0,
					"maximum":     1,
				},
			},
			Required: []string{"collection_id", "query"},
		},
	}
}

// explainDecisionTool returns the tool definition for explain_decision
func explainDecisionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "explain_decision",
		Description: "Explain an embedding decision: look up a recorded one by id, or preview one for a text",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Decision id or comment id of a recorded decision",
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text to evaluate without recording a decision",
				},
				"is_question": map[string]interface{}{
					"type":    "boolean",
					"default": false,
				},
				"is_business": map[string]interface{}{
					"type":    "boolean",
					"default": false,
				},
				"likes": map[string]interface{}{
					"type":    "integer",
					"default": 0,
				},
			},
		},
	}
}

// addPatternTool returns the tool definition for add_pattern
func addPatternTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_pattern",
		Description: "Register a named exemplar text used by the pattern search strategy",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Unique pattern name",
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Exemplar comment text",
				},
			},
			Required: []string{"name", "text"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report collections, quota, learning state and storage usage",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"collection_id": map[string]interface{}{
					"type":        "string",
					"description": "Restrict the report to one collection",
				},
			},
		},
	}
}
