package decision

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/commentlens/internal/cachestore"
	"github.com/dshills/commentlens/internal/embedder"
	"github.com/dshills/commentlens/pkg/types"
)

// FallbackProviderID marks records produced by the local provider after the primary failed
const FallbackProviderID = "local:fallback"

// Computed is a freshly generated vector and its provenance
type Computed struct {
	Vector     []float32
	ProviderID string
	Quality    float64
}

// VectorizeResult is the outcome of carrying out a decision for one unit
type VectorizeResult struct {
	Unit       types.TextUnit
	Decision   types.Decision
	Vectorized bool
	Reason     types.ReasonCode
	Vector     []float32
	ProviderID string
	FromCache  bool
}

// Vectorize decides on unit and, when warranted, returns its vector from the
// cache or a provider. Failures are reported in the result, never returned.
func (e *Engine) Vectorize(ctx context.Context, unit types.TextUnit) VectorizeResult {
	d := e.Decide(ctx, unit)
	return e.carryOut(ctx, unit, d)
}

func (e *Engine) carryOut(ctx context.Context, unit types.TextUnit, d types.Decision) VectorizeResult {
	res := VectorizeResult{Unit: unit, Decision: d, Reason: d.Reason}

	switch d.Outcome {
	case types.OutcomeSkip:
		return res

	case types.OutcomeReuseCache:
		rec, err := e.cache.Get(ctx, d.Fingerprint)
		if err == nil && rec != nil {
			res.Vectorized = true
			res.Vector = rec.Vector
			res.ProviderID = rec.ProviderID
			res.FromCache = true
			return res
		}
		// Entry vanished between status check and read
		e.logger.Warn("cached embedding unreadable, recomputing", "fingerprint", d.Fingerprint, "error", err)
	}

	computed, err := e.compute(ctx, strings.TrimSpace(unit.Text))
	if err != nil {
		e.logger.Error("embedding failed",
			"unit", unit.ID,
			"fingerprint", d.Fingerprint,
			"reason", types.ReasonAllMethodsFailed,
			"quality", d.Factors.TextQuality,
			"importance", d.Factors.Importance,
			"quota", d.Factors.QuotaAvailability,
			"cb_ratio", d.Factors.CostBenefitRatio,
			"error", err,
		)
		res.Reason = types.ReasonAllMethodsFailed
		return res
	}

	e.Commit(ctx, d, computed)

	res.Vectorized = true
	res.Vector = computed.Vector
	res.ProviderID = computed.ProviderID
	return res
}

// compute embeds text with the primary provider, falling back to the local
// provider on failure. Calls run detached from ctx cancellation so an
// abandoned request still fills the cache.
func (e *Engine) compute(ctx context.Context, text string) (Computed, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.embedTimeout)
	defer cancel()

	emb, err := e.primary.GenerateEmbedding(callCtx, embedder.EmbeddingRequest{Text: text})
	if err == nil {
		quality := e.policy.RemoteQuality
		if embedder.IsLocal(e.primary) {
			quality = e.policy.LocalQuality
		}
		return Computed{Vector: emb.Vector, ProviderID: e.primary.Provider(), Quality: quality}, nil
	}

	e.metrics.RecordProviderFailure(e.primary.Provider())
	e.logger.Warn("primary provider failed, using local fallback", "provider", e.primary.Provider(), "error", err)

	emb, fbErr := e.fallback.GenerateEmbedding(callCtx, embedder.EmbeddingRequest{Text: text})
	if fbErr != nil {
		e.metrics.RecordProviderFailure(FallbackProviderID)
		return Computed{}, fmt.Errorf("%w: primary: %v; fallback: %v", embedder.ErrProviderFailed, err, fbErr)
	}
	return Computed{Vector: emb.Vector, ProviderID: FallbackProviderID, Quality: e.policy.FallbackQuality}, nil
}

// Commit applies the side effects of a compute decision: the vector is cached
// best-effort and one unit of quota is consumed.
func (e *Engine) Commit(ctx context.Context, d types.Decision, c Computed) {
	rec := &cachestore.Record{
		Vector:     c.Vector,
		Dimension:  len(c.Vector),
		CreatedAt:  e.now(),
		Quality:    c.Quality,
		ProviderID: c.ProviderID,
	}
	if err := e.cache.Put(context.WithoutCancel(ctx), d.Fingerprint, rec); err != nil {
		e.logger.Warn("embedding not cached", "fingerprint", d.Fingerprint, "reason", d.Reason, "error", err)
	}

	e.quota.Consume(1)
	snap := e.quota.Snapshot()
	e.metrics.SetQuota("minute", snap.Minute)
	e.metrics.SetQuota("hour", snap.Hour)
	e.metrics.SetQuota("day", snap.Day)
}

// EmbedQuery runs a search query through the same gate as comments, with the
// query length and score thresholds. It returns ErrGated when refused.
func (e *Engine) EmbedQuery(ctx context.Context, text string) ([]float32, types.Decision, error) {
	unit := types.TextUnit{ID: "query", Text: text}
	d := e.evaluate(ctx, unit, e.queryGate())
	e.record(d)

	if d.Outcome == types.OutcomeSkip {
		return nil, d, fmt.Errorf("%w: %s", ErrGated, d.Reason)
	}

	res := e.carryOut(ctx, unit, d)
	if !res.Vectorized {
		return nil, d, fmt.Errorf("%w: %s", embedder.ErrProviderFailed, res.Reason)
	}
	return res.Vector, d, nil
}
