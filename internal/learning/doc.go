// Package learning holds the adaptive state of the engine and the loop that
// tunes it.
//
// Store is injected into the decision engine (threshold, search relevance),
// the search orchestrator (strategy weights and outcomes) and the MCP layer
// (decision explanations). Its durable subset crosses Persist/Load as JSON
// under a single key; decision and search logs are kept in memory only.
//
// Loop runs Adapt on a ticker. Each pass:
//
//  1. Raises the decision threshold when most recent decisions computed
//     embeddings or quota ran low, and lowers it when few did and quota
//     was ample.
//  2. Publishes strategy weights of 0.5 + 0.5·successRate.
//  3. Persists the store.
package learning
