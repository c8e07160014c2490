package ranking

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/commentlens/internal/snapshot"
	"github.com/dshills/commentlens/internal/vectorstore"
	"github.com/dshills/commentlens/pkg/types"
)

var now = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(Options{Now: func() time.Time { return now }})
}

func candidate(id, author, text string, sim float64) types.Candidate {
	return types.Candidate{
		EntryID:    id,
		Author:     author,
		Text:       text,
		Similarity: sim,
		Score:      sim,
		Strategies: []types.Strategy{types.StrategySemantic},
		StoredAt:   now.Add(-time.Hour),
	}
}

func TestRank_DiversityConstraint(t *testing.T) {
	var cands []types.Candidate
	for i, word := range []string{"audio", "mixer", "preamp", "cable"} {
		cands = append(cands, candidate(fmt.Sprintf("ann-%d", i), "ann", word+" "+word+" works great", 0.99-float64(i)*0.01))
	}
	for i, word := range []string{"lighting", "tripod", "battery", "editing", "thumbnail"} {
		author := []string{"bob", "cat", "dan", "eve", "fay"}[i]
		cands = append(cands, candidate(author, author, word+" "+word+" matters", 0.5))
	}

	results := newTestEngine().Rank(cands, "how do I fix the audio", types.IntentTechnical, nil, 0)

	var ids []string
	for i, r := range results {
		ids = append(ids, r.Candidate.EntryID)
		assert.Equal(t, i+1, r.Rank)
		assert.NoError(t, r.Validate())
	}
	assert.ElementsMatch(t, []string{"ann-0", "bob", "cat", "dan", "eve", "fay"}, ids,
		"later results by ann fall inside the author window and are dropped")
	assert.Equal(t, "ann-0", ids[0])
}

func TestRank_SingleAuthorKeepsFirst(t *testing.T) {
	var cands []types.Candidate
	for i, word := range []string{"audio", "mixer", "preamp", "cable"} {
		cands = append(cands, candidate(fmt.Sprint(i), "ann", word+" "+word+" works", 0.9-float64(i)*0.01))
	}

	results := newTestEngine().Rank(cands, "audio", types.IntentUnknown, nil, 0)
	require.Len(t, results, 1)
	assert.Equal(t, "0", results[0].Candidate.EntryID)
}

func TestRank_TopicWindow(t *testing.T) {
	cands := []types.Candidate{
		candidate("1", "ann", "camera camera settings", 0.9),
		candidate("2", "bob", "camera camera lenses", 0.89),
		candidate("3", "cat", "lighting lighting tips", 0.6),
	}

	results := newTestEngine().Rank(cands, "camera", types.IntentUnknown, nil, 0)

	var ids []string
	for _, r := range results {
		ids = append(ids, r.Candidate.EntryID)
	}
	assert.Equal(t, []string{"1", "3"}, ids, "duplicate topic inside the window is dropped")
	assert.Equal(t, "camera", results[0].Topic)
	assert.Equal(t, "lighting", results[1].Topic)
}

func TestRank_WindowsOnlyCoverLeadingPositions(t *testing.T) {
	e := NewEngine(Options{Now: func() time.Time { return now }, AuthorWindow: 1, TopicWindow: 1})
	cands := []types.Candidate{
		candidate("1", "ann", "camera camera settings", 0.9),
		candidate("2", "ann", "camera camera lenses", 0.89),
	}

	results := e.Rank(cands, "camera", types.IntentUnknown, nil, 0)
	require.Len(t, results, 2, "repeats are allowed once the windows are full")
}

func TestRank_MaxResults(t *testing.T) {
	var cands []types.Candidate
	for i := 0; i < 30; i++ {
		cands = append(cands, candidate(fmt.Sprint(i), fmt.Sprintf("user%d", i), fmt.Sprintf("comment%d text", i), 0.8))
	}

	e := newTestEngine()
	assert.Len(t, e.Rank(cands, "comment", types.IntentUnknown, nil, 0), DefaultMaxResults)
	assert.Len(t, e.Rank(cands, "comment", types.IntentUnknown, nil, 3), 3)
	assert.Nil(t, e.Rank(nil, "comment", types.IntentUnknown, nil, 0))
}

func TestRank_Scores(t *testing.T) {
	c := candidate("1", "ann", "The audio was broken, how to fix it?", 0.8)
	c.Likes = 10
	c.Sentiment = -1
	c.StoredAt = now.Add(-7 * 24 * time.Hour)

	results := newTestEngine().Rank([]types.Candidate{c}, "how do I fix the audio", types.IntentTechnical, nil, 0)
	require.Len(t, results, 1)
	s := results[0].Scores

	assert.InDelta(t, 0.5, s.Recency, 1e-9)
	assert.Equal(t, 1.0, s.Engagement)
	assert.Equal(t, 1.0, s.Diversity)
	assert.Equal(t, 0.0, s.Context)
	// similarity 0.8, both query words present, technical text
	assert.InDelta(t, 0.4*0.8+0.3+0.3, s.Relevance, 1e-9)
	assert.GreaterOrEqual(t, results[0].FinalScore, 0.0)
	assert.LessOrEqual(t, results[0].FinalScore, 1.0)
}

func TestRank_ContextFromSnapshot(t *testing.T) {
	t0 := now.Add(-2 * time.Hour)
	entries := []*vectorstore.Entry{
		{ID: "a", Author: "ann", Text: "first", Likes: 40, StoredAt: t0},
		{ID: "b", Author: "bob", Text: "@ann yes", StoredAt: t0.Add(10 * time.Minute)},
		{ID: "c", Author: "cat", ReplyToAuthor: "bob", Text: "agreed", StoredAt: t0.Add(20 * time.Minute)},
		{ID: "z", Author: "zed", Text: "alone", StoredAt: t0.Add(90 * time.Minute)},
	}
	snap := snapshot.NewBuilder(snapshot.Options{}).BuildEntries("v", entries)

	cands := []types.Candidate{
		candidate("a", "ann", "first", 0.8),
		candidate("z", "zed", "alone", 0.8),
	}
	results := newTestEngine().Rank(cands, "first", types.IntentOpinion, snap, 0)
	require.Len(t, results, 2)

	byID := map[string]types.RankedResult{}
	for _, r := range results {
		byID[r.Candidate.EntryID] = r
	}
	// a: busiest period, leading thread, most influential author
	assert.InDelta(t, 0.9, byID["a"].Scores.Context, 1e-9)
	// z: its own period of one, no thread, no engagement
	assert.InDelta(t, 0.1, byID["z"].Scores.Context, 1e-9)
}

func TestWeightsFor(t *testing.T) {
	opinion := WeightsFor(types.IntentOpinion)
	factual := WeightsFor(types.IntentFactual)
	assert.Greater(t, opinion.Quality+opinion.Context, factual.Quality+factual.Context)
	assert.Greater(t, factual.Relevance+factual.Recency, opinion.Relevance+opinion.Recency)
	assert.Equal(t, defaultWeights, WeightsFor("nonsense"))

	for in, w := range intentWeights {
		sum := w.Relevance + w.Quality + w.Diversity + w.Recency + w.Engagement + w.Context
		assert.InDelta(t, 1.0, sum, 1e-9, string(in))
	}
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "audio", Topic("The audio, audio sync is broken"))
	assert.Equal(t, "audio", Topic("broken audio"), "ties break alphabetically")
	assert.Equal(t, "", Topic("ok ok so"))
}
