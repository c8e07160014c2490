// Package scoring implements the pure scorers that feed the embedding
// decision: text quality, importance and cost/benefit. Every constant lives
// in Policy so callers can tune or probe them without touching the formulas.
package scoring
