// Package mcp implements the Model Context Protocol (MCP) server for commentlens.
//
// The server exposes five tools to MCP clients:
//   - ingest_comments: Gate, embed and store a batch of comments in a collection
//   - search_comments: Run the multi-strategy search and re-rank the hits
//   - explain_decision: Show the factor breakdown behind an embedding decision
//   - add_pattern: Register an exemplar text for the pattern strategy
//   - get_status: Report collections, quota, learning and storage state
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport. Stdout is reserved
// for protocol messages; all logging goes to stderr.
//
// # Tool: ingest_comments
//
//	Request:
//	{
//	  "name": "ingest_comments",
//	  "arguments": {
//	    "collection_id": "video-123",
//	    "comments": [
//	      {"id": "c1", "text": "audio was broken, how to fix?", "author": "ana",
//	       "likes": 4, "is_question": true}
//	    ]
//	  }
//	}
//
//	Response:
//	{
//	  "collection_id": "video-123",
//	  "received": 1,
//	  "computed": 1,
//	  "reused": 0,
//	  "skipped": {},
//	  "inserted": 1,
//	  "persisted": true
//	}
//
// # Tool: search_comments
//
//	Request:
//	{
//	  "name": "search_comments",
//	  "arguments": {
//	    "collection_id": "video-123",
//	    "query": "how do I fix the audio",
//	    "max_results": 10
//	  }
//	}
//
// The response lists ranked results with their score breakdown, the
// detected intent, and which strategies produced candidates.
//
// # Error Handling
//
// Handlers return *MCPError values which the framework encodes as JSON-RPC errors.
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (storage, provider, etc.)
//   - -32001: Collection not found
//   - -32002: Ingestion already running for the collection
//   - -32003: Decision not found
//   - -32004: Empty query
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "commentlens": {
//	      "command": "/usr/local/bin/commentlens",
//	      "env": {
//	        "JINA_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
package mcp
