// Package decision implements the embedding decision engine.
//
// Each text unit passes through factor collection (text quality, importance,
// quota, cache state, cost/benefit) and ends in one of three outcomes:
//
//	reuse_cache  a valid cached vector exists for the fingerprint
//	skip         rate_limit, too_short, invalid_input or a below-threshold score
//	compute      high_value or moderate_value
//
// Every decision is appended to the learning store. A compute asks the primary
// provider for a vector, falls back to the local provider when that fails, then
// caches the result and consumes quota. Search queries go through the same
// gate via EmbedQuery with looser length and score thresholds.
package decision
