package decision

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/commentlens/pkg/types"
)

// Tier is the priority bucket of a unit within a batch
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// BatchResult holds per-unit results in input order
type BatchResult struct {
	Results  []VectorizeResult
	Tiers    map[Tier]int
	Duration time.Duration

	// Err is set when ctx ended before every tier ran; unprocessed units have
	// a zero Decision
	Err error
}

// Counts tallies results by outcome
func (b *BatchResult) Counts() (computed, reused, skipped, failed int) {
	for _, r := range b.Results {
		switch {
		case r.Decision.ID == "":
			continue
		case r.FromCache:
			reused++
		case r.Vectorized:
			computed++
		case r.Reason == types.ReasonAllMethodsFailed:
			failed++
		default:
			skipped++
		}
	}
	return
}

func (e *Engine) tierOf(score float64) Tier {
	switch {
	case score >= e.policy.HighTierScore:
		return TierHigh
	case score >= e.policy.MediumTierScore:
		return TierMedium
	default:
		return TierLow
	}
}

// ProcessBatch vectorizes units tier by tier, highest priority first. Tiers
// run sequentially with a pause before the medium tier; units within a tier
// run concurrently up to the configured limit.
func (e *Engine) ProcessBatch(ctx context.Context, units []types.TextUnit) BatchResult {
	start := e.now()
	res := BatchResult{
		Results: make([]VectorizeResult, len(units)),
		Tiers:   map[Tier]int{TierHigh: 0, TierMedium: 0, TierLow: 0},
	}

	buckets := map[Tier][]int{}
	for i, u := range units {
		res.Results[i].Unit = u
		preview := e.evaluate(ctx, u, e.commentGate())
		tier := e.tierOf(preview.Score)
		buckets[tier] = append(buckets[tier], i)
		res.Tiers[tier]++
	}

	for _, tier := range []Tier{TierHigh, TierMedium, TierLow} {
		idx := buckets[tier]
		if len(idx) == 0 {
			continue
		}

		if tier == TierMedium && e.tierDelay > 0 {
			select {
			case <-ctx.Done():
				res.Err = ctx.Err()
				res.Duration = e.now().Sub(start)
				return res
			case <-time.After(e.tierDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			res.Err = err
			res.Duration = e.now().Sub(start)
			return res
		}

		var g errgroup.Group
		g.SetLimit(e.tierConcurrency)
		for _, i := range idx {
			g.Go(func() error {
				res.Results[i] = e.Vectorize(ctx, units[i])
				return nil
			})
		}
		_ = g.Wait()

		e.logger.Debug("batch tier processed", "tier", tier, "units", len(idx))
	}

	res.Duration = e.now().Sub(start)
	return res
}
