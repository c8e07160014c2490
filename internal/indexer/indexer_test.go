package indexer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/commentlens/internal/cachestore"
	"github.com/dshills/commentlens/internal/decision"
	"github.com/dshills/commentlens/internal/kvstore"
	"github.com/dshills/commentlens/internal/learning"
	"github.com/dshills/commentlens/internal/quota"
	"github.com/dshills/commentlens/internal/scoring"
	"github.com/dshills/commentlens/internal/vectorstore"
	"github.com/dshills/commentlens/pkg/types"
)

const audioQuestion = "Does anyone know how to fix the audio sync issue in this video? The sound drifts after ten minutes, and it gets worse on mobile devices too."

var epoch = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

// stubProcessor vectorizes every unit with a one-hot vector
type stubProcessor struct {
	mu    sync.Mutex
	calls int
	seen  []string
	block chan struct{}
}

func (s *stubProcessor) ProcessBatch(_ context.Context, units []types.TextUnit) decision.BatchResult {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	res := decision.BatchResult{Results: make([]decision.VectorizeResult, len(units))}
	for i, u := range units {
		s.mu.Lock()
		s.seen = append(s.seen, u.ID)
		s.mu.Unlock()
		if strings.TrimSpace(u.Text) == "" {
			res.Results[i] = decision.VectorizeResult{
				Unit:     u,
				Decision: types.Decision{ID: "d-" + u.ID, Outcome: types.OutcomeSkip, Reason: types.ReasonInvalidInput},
				Reason:   types.ReasonInvalidInput,
			}
			continue
		}
		v := make([]float32, 8)
		v[i%8] = 1
		res.Results[i] = decision.VectorizeResult{
			Unit:       u,
			Decision:   types.Decision{ID: "d-" + u.ID, Outcome: types.OutcomeCompute, Reason: types.ReasonModerateValue},
			Vectorized: true,
			Reason:     types.ReasonModerateValue,
			Vector:     v,
		}
	}
	return res
}

func unitsFrom(n int) []types.TextUnit {
	units := make([]types.TextUnit, n)
	for i := range units {
		units[i] = types.TextUnit{
			ID:   fmt.Sprintf("c%02d", i),
			Text: fmt.Sprintf("comment number %d about the video", i),
			Context: types.SourceContext{
				Author:      fmt.Sprintf("@user%d", i),
				Likes:       i,
				Sentiment:   types.SentimentPositive,
				PublishedAt: epoch.Add(time.Duration(i) * time.Minute),
			},
		}
	}
	return units
}

func TestIndexComments_StoresAndPersists(t *testing.T) {
	kv := kvstore.NewMemoryStore(0)
	reg := vectorstore.NewRegistry(kv, 0)
	idx, err := New(Config{Processor: &stubProcessor{}, Registry: reg})
	require.NoError(t, err)

	stats, err := idx.IndexComments(context.Background(), "video-1", unitsFrom(3))
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Received)
	assert.Equal(t, 3, stats.Decided)
	assert.Equal(t, 3, stats.Computed)
	assert.Equal(t, 3, stats.Inserted)
	assert.True(t, stats.Persisted)

	entry, ok := reg.Collection("video-1").Get("c01")
	require.True(t, ok)
	assert.Equal(t, "@user1", entry.Author)
	assert.Equal(t, 1.0, entry.Sentiment)
	assert.Equal(t, epoch.Add(time.Minute), entry.StoredAt)

	// A fresh registry over the same store sees the persisted collection
	restored, err := vectorstore.NewRegistry(kv, 0).Load(context.Background(), "video-1")
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Len())
}

func TestIndexComments_SkipsDuplicatesAndInvalid(t *testing.T) {
	proc := &stubProcessor{}
	reg := vectorstore.NewRegistry(nil, 0)
	idx, err := New(Config{Processor: proc, Registry: reg})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = idx.IndexComments(ctx, "video-1", unitsFrom(2))
	require.NoError(t, err)

	units := append(unitsFrom(3),
		types.TextUnit{Text: "no id here"},
		types.TextUnit{ID: "blank", Text: "  "},
		types.TextUnit{ID: "c02", Text: "repeat"},
	)
	stats, err := idx.IndexComments(ctx, "video-1", units)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Invalid)
	assert.Equal(t, 3, stats.Duplicates)
	assert.Equal(t, 1, stats.Skipped[types.ReasonInvalidInput])
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, []string{"c00", "c01", "c02", "blank"}, proc.seen, "blank text still reaches the decision step")
	_, stored := reg.Collection("video-1").Get("blank")
	assert.False(t, stored)
}

func TestIndexComments_PrunesToCap(t *testing.T) {
	reg := vectorstore.NewRegistry(nil, 5)
	idx, err := New(Config{Processor: &stubProcessor{}, Registry: reg})
	require.NoError(t, err)

	stats, err := idx.IndexComments(context.Background(), "video-1", unitsFrom(8))
	require.NoError(t, err)

	coll := reg.Collection("video-1")
	assert.Equal(t, 5, coll.Len())
	assert.Equal(t, 3, stats.Pruned)
	_, ok := coll.Get("c00")
	assert.False(t, ok, "oldest entry should be pruned")
	_, ok = coll.Get("c07")
	assert.True(t, ok)
}

func TestIndexComments_RejectsConcurrentRun(t *testing.T) {
	proc := &stubProcessor{block: make(chan struct{})}
	idx, err := New(Config{Processor: proc, Registry: vectorstore.NewRegistry(nil, 0)})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := idx.IndexComments(context.Background(), "video-1", unitsFrom(1))
		done <- err
	}()

	require.Eventually(t, func() bool { return idx.Indexing("video-1") }, time.Second, time.Millisecond)

	_, err = idx.IndexComments(context.Background(), "video-1", unitsFrom(1))
	assert.ErrorIs(t, err, ErrIndexingInProgress)

	// Other collections are not blocked
	proc2 := &stubProcessor{}
	other, err := New(Config{Processor: proc2, Registry: vectorstore.NewRegistry(nil, 0)})
	require.NoError(t, err)
	_, err = other.IndexComments(context.Background(), "video-2", unitsFrom(1))
	assert.NoError(t, err)

	close(proc.block)
	require.NoError(t, <-done)
	assert.False(t, idx.Indexing("video-1"))
}

func TestIndexComments_RequiresCollection(t *testing.T) {
	idx, err := New(Config{Processor: &stubProcessor{}, Registry: vectorstore.NewRegistry(nil, 0)})
	require.NoError(t, err)

	_, err = idx.IndexComments(context.Background(), "", unitsFrom(1))
	assert.ErrorIs(t, err, ErrMissingCollection)
}

func TestIndexComments_WithDecisionEngine(t *testing.T) {
	policy := scoring.DefaultPolicy()
	store := learning.NewStore(learning.DefaultOptions(policy))
	engine, err := decision.NewEngine(decision.Config{
		Policy:    policy,
		Quota:     quota.NewTracker(quota.DefaultLimits()),
		Cache:     cachestore.New(kvstore.NewMemoryStore(0)),
		Learning:  store,
		TierDelay: -1,
	})
	require.NoError(t, err)

	reg := vectorstore.NewRegistry(nil, 0)
	idx, err := New(Config{Processor: engine, Registry: reg})
	require.NoError(t, err)

	units := []types.TextUnit{
		{ID: "short", Text: "love"},
		{ID: "question", Text: audioQuestion, Context: types.SourceContext{Author: "@mira", IsQuestion: true}},
		{ID: "empty", Text: ""},
	}
	stats, err := idx.IndexComments(context.Background(), "video-1", units)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Decided)
	assert.Equal(t, 0, stats.Invalid)
	assert.Equal(t, 1, stats.Computed)
	assert.Equal(t, 1, stats.Skipped[types.ReasonTooShort])
	assert.Equal(t, 1, stats.Skipped[types.ReasonInvalidInput])
	assert.Equal(t, 1, stats.Inserted)

	var logged []types.ReasonCode
	for _, d := range store.Decisions() {
		logged = append(logged, d.Reason)
	}
	assert.Contains(t, logged, types.ReasonInvalidInput, "empty text is recorded in the decision log")

	entry, ok := reg.Collection("video-1").Get("question")
	require.True(t, ok)
	assert.Len(t, entry.Vector, engine.Dimension())
}
