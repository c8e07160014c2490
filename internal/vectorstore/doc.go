// Package vectorstore keeps comment vectors per collection and answers
// nearest-neighbor queries by cosine similarity.
//
// A Collection is append-only: entries are never mutated once inserted and
// leave only through pruning, which drops the oldest entries by StoredAt once
// the cap is exceeded. The Registry owns collections and the global set of
// named patterns, and persists both to a kvstore.Store with vectors encoded as
// little-endian float32 blobs.
package vectorstore
