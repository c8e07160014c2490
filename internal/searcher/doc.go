// Package searcher answers free-text queries against a comment collection.
//
// A search runs in two stages. The Orchestrator classifies the query intent,
// picks two or three retrieval strategies for it and runs them concurrently
// against the collection:
//
//   - exact: token overlap between the query and the stored comment text
//   - semantic: nearest neighbours of the query embedding
//   - context: nearest neighbours of synonym-expanded query variants, with a
//     relaxed threshold
//   - pattern: comments close to named exemplar vectors that match the query
//
// Candidates are merged by entry id, keeping the best similarity and the set
// of strategies that found each one. A strategy that fails or times out
// contributes nothing; it never aborts the others.
//
// The Searcher then builds a context snapshot of the collection and hands the
// merged candidates to the ranking engine for the final diversity-constrained
// ordering.
//
// # Basic Usage
//
//	s, err := searcher.New(searcher.Config{
//	    Orchestrator: orch,
//	    Snapshots:    snapshot.NewBuilder(snapshot.DefaultOptions()),
//	    Ranker:       ranking.NewEngine(ranking.Options{}),
//	    Learning:     store,
//	})
//
//	resp, err := s.Search(ctx, searcher.Request{
//	    Query:        "how do I fix the audio",
//	    CollectionID: "video-42",
//	})
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s (%.2f)\n", r.Rank, r.Candidate.Text, r.FinalScore)
//	}
//
// Query embeddings pass through the same decision gate as comments, so a
// search made while the quota is exhausted degrades to the lexical strategy.
package searcher
