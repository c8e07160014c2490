package decision

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/commentlens/internal/embedder"
	"github.com/dshills/commentlens/internal/quota"
	"github.com/dshills/commentlens/pkg/types"
)

func TestProcessBatch(t *testing.T) {
	var mu sync.Mutex
	var order []string

	primary := &mockEmbedder{
		name:      embedder.ProviderOpenAI,
		dimension: 32,
		embedFunc: func(_ context.Context, text string) ([]float32, error) {
			mu.Lock()
			order = append(order, text)
			mu.Unlock()
			v := make([]float32, 32)
			v[0] = 1
			return v, nil
		},
	}
	f := newFixture(t, primary, nil, quota.DefaultLimits())

	medium := "Watching this during lunch, with my coworkers today"
	units := []types.TextUnit{
		{ID: "low", Text: "ok ok ok ok ok ok ok ok ok ok"},
		{ID: "medium", Text: medium},
		{ID: "short", Text: "love"},
		{ID: "high", Text: audioQuestion},
	}

	res := f.engine.ProcessBatch(context.Background(), units)
	require.NoError(t, res.Err)
	require.Len(t, res.Results, 4)

	// Results stay in input order
	for i, r := range res.Results {
		assert.Equal(t, units[i].ID, r.Unit.ID)
	}

	assert.Equal(t, 1, res.Tiers[TierHigh])
	assert.Equal(t, 3, res.Tiers[TierMedium]+res.Tiers[TierLow])
	assert.GreaterOrEqual(t, res.Tiers[TierLow], 1)

	// High tier is embedded before medium
	require.Equal(t, []string{audioQuestion, medium}, order)

	assert.True(t, res.Results[3].Vectorized)
	assert.True(t, res.Results[1].Vectorized)
	assert.Equal(t, types.ReasonLowQuality, res.Results[0].Reason)
	assert.Equal(t, types.ReasonTooShort, res.Results[2].Reason)

	computed, reused, skipped, failed := res.Counts()
	assert.Equal(t, 2, computed)
	assert.Equal(t, 0, reused)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, 0, failed)
}

func TestProcessBatch_ReusesCache(t *testing.T) {
	f := newFixture(t, remote(), nil, quota.DefaultLimits())
	units := []types.TextUnit{{ID: "a", Text: audioQuestion}}

	first := f.engine.ProcessBatch(context.Background(), units)
	require.True(t, first.Results[0].Vectorized)

	second := f.engine.ProcessBatch(context.Background(), units)
	_, reused, _, _ := second.Counts()
	assert.Equal(t, 1, reused)
}

func TestProcessBatch_CanceledContext(t *testing.T) {
	f := newFixture(t, remote(), nil, quota.DefaultLimits())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.engine.ProcessBatch(ctx, []types.TextUnit{{ID: "a", Text: audioQuestion}})
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, res.Results[0].Decision.ID)
	assert.Equal(t, "a", res.Results[0].Unit.ID)
}

func TestProcessBatch_Empty(t *testing.T) {
	f := newFixture(t, remote(), nil, quota.DefaultLimits())
	res := f.engine.ProcessBatch(context.Background(), nil)
	assert.NoError(t, res.Err)
	assert.Empty(t, res.Results)
}
