// Package indexer ingests comments into vector collections.
//
// IndexComments drives one batch through the pipeline:
//
//  1. Drop invalid units and units already stored in the collection
//  2. Run the rest through the decision engine in priority tiers
//  3. Insert every vectorized unit, pruning the oldest entries past the cap
//  4. Persist the collection (best-effort)
//
// Only one ingestion may run per collection at a time; a second concurrent
// call fails fast with ErrIndexingInProgress instead of queueing.
//
//	idx, _ := indexer.New(indexer.Config{Processor: engine, Registry: reg})
//	stats, err := idx.IndexComments(ctx, "video-42", units)
//	if errors.Is(err, indexer.ErrIndexingInProgress) {
//	    // try again later
//	}
//	fmt.Printf("computed=%d reused=%d skipped=%v\n", stats.Computed, stats.Reused, stats.Skipped)
//
// A unit that could not be embedded is simply not searchable yet; it never
// fails the batch.
package indexer
