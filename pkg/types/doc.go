// Package types provides shared type definitions for the commentlens engine.
//
// This package defines the domain types passed between the decision engine,
// the vector collections, the search orchestrator and the ranking engine.
//
// # Core Types
//
// TextUnit is an immutable comment offered for embedding, together with the
// flags the ingestion pipeline computed for it:
//
//	unit := types.TextUnit{
//	    ID:   "c-123",
//	    Text: "How do I fix the audio drift after the 10 minute mark?",
//	    Context: types.SourceContext{
//	        Author:     "@mira",
//	        IsQuestion: true,
//	        Likes:      14,
//	    },
//	}
//
// Decision is the ternary outcome (skip, reuse cache, compute) produced for a
// unit, with the factor breakdown that led to it.
//
// Candidate is a merged search hit with per-strategy provenance, and
// RankedResult is a candidate after re-ranking.
package types
