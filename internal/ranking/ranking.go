// Package ranking re-scores merged search candidates and selects a
// diversity-constrained top list.
package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/dshills/commentlens/internal/intent"
	"github.com/dshills/commentlens/internal/scoring"
	"github.com/dshills/commentlens/internal/snapshot"
	"github.com/dshills/commentlens/pkg/types"
)

// Defaults
const (
	DefaultMaxResults   = 20
	DefaultAuthorWindow = 5
	DefaultTopicWindow  = 10
	DefaultHalfLife     = 7 * 24 * time.Hour
	minTopicLength      = 4
)

// Options tunes an Engine
type Options struct {
	MaxResults   int
	AuthorWindow int // leading positions where authors must be distinct
	TopicWindow  int // leading positions where topics must be distinct
	HalfLife     time.Duration
	Now          func() time.Time
}

// Engine ranks candidates
type Engine struct {
	opts Options
}

// NewEngine creates a ranking engine; zero option fields take their defaults
func NewEngine(opts Options) *Engine {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.AuthorWindow <= 0 {
		opts.AuthorWindow = DefaultAuthorWindow
	}
	if opts.TopicWindow <= 0 {
		opts.TopicWindow = DefaultTopicWindow
	}
	if opts.HalfLife <= 0 {
		opts.HalfLife = DefaultHalfLife
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{opts: opts}
}

// Rank scores every candidate and returns at most maxResults results
// (MaxResults when maxResults <= 0) with 1-based ranks.
func (e *Engine) Rank(candidates []types.Candidate, query string, in types.Intent, snap *snapshot.Snapshot, maxResults int) []types.RankedResult {
	if len(candidates) == 0 {
		return nil
	}
	if maxResults <= 0 {
		maxResults = e.opts.MaxResults
	}

	queryWords := scoring.ContentWords(query)
	if len(queryWords) == 0 {
		queryWords = scoring.Words(query)
	}

	topics := make([]string, len(candidates))
	authorCount := map[string]int{}
	topicCount := map[string]int{}
	maxEngagement := 0
	for i := range candidates {
		topics[i] = Topic(candidates[i].Text)
		if a := candidates[i].Author; a != "" {
			authorCount[a]++
		}
		if topics[i] != "" {
			topicCount[topics[i]]++
		}
		maxEngagement = max(maxEngagement, candidates[i].Engagement())
	}

	weights := WeightsFor(in)
	now := e.opts.Now()
	results := make([]types.RankedResult, len(candidates))
	for i, c := range candidates {
		scores := types.ScoreBreakdown{
			Relevance:  relevance(c, queryWords, in),
			Quality:    quality(c),
			Diversity:  diversity(authorCount[c.Author], topicCount[topics[i]]),
			Recency:    e.recency(c.StoredAt, now),
			Engagement: engagement(c.Engagement(), maxEngagement),
			Context:    contextScore(c, snap),
		}
		results[i] = types.RankedResult{
			Candidate:  c,
			Scores:     scores,
			FinalScore: clamp01(weights.apply(scores)),
			Confidence: clamp01(0.7*scores.Relevance + 0.3*float64(len(c.Strategies))/float64(len(types.AllStrategies))),
			Topic:      topics[i],
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		return results[i].Candidate.EntryID < results[j].Candidate.EntryID
	})

	selected := e.selectDiverse(results, maxResults)
	for i := range selected {
		selected[i].Rank = i + 1
	}
	return selected
}

// selectDiverse walks results in score order and drops any result whose
// author already appears in the author window or whose topic already appears
// in the topic window. Dropped results are not reconsidered.
func (e *Engine) selectDiverse(results []types.RankedResult, limit int) []types.RankedResult {
	selected := make([]types.RankedResult, 0, min(limit, len(results)))
	for _, r := range results {
		if len(selected) >= limit {
			break
		}
		if e.authorTaken(selected, r.Candidate.Author) || e.topicTaken(selected, r.Topic) {
			continue
		}
		selected = append(selected, r)
	}
	return selected
}

func (e *Engine) authorTaken(selected []types.RankedResult, author string) bool {
	if author == "" || len(selected) >= e.opts.AuthorWindow {
		return false
	}
	for _, s := range selected {
		if s.Candidate.Author == author {
			return true
		}
	}
	return false
}

func (e *Engine) topicTaken(selected []types.RankedResult, topic string) bool {
	if topic == "" || len(selected) >= e.opts.TopicWindow {
		return false
	}
	for _, s := range selected {
		if s.Topic == topic {
			return true
		}
	}
	return false
}

// Topic returns the most frequent content word of at least four letters,
// breaking ties alphabetically; empty when there is none
func Topic(text string) string {
	counts := map[string]int{}
	for _, w := range scoring.ContentWords(text) {
		if len([]rune(w)) >= minTopicLength {
			counts[w]++
		}
	}
	best, bestCount := "", 0
	for w, n := range counts {
		if n > bestCount || (n == bestCount && w < best) {
			best, bestCount = w, n
		}
	}
	return best
}

func relevance(c types.Candidate, queryWords []string, in types.Intent) float64 {
	return 0.4*clamp01(c.Similarity) + 0.3*tokenOverlap(queryWords, c.Text) + 0.3*intentAlignment(c.Text, in)
}

func tokenOverlap(queryWords []string, text string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	have := map[string]bool{}
	for _, w := range scoring.Words(text) {
		have[w] = true
	}
	hits := 0
	for _, w := range queryWords {
		if have[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(queryWords))
}

// intentAlignment is 1 when the text reads with the same intent as the query,
// otherwise it grows with the density of the query intent's keywords
func intentAlignment(text string, in types.Intent) float64 {
	if in == types.IntentUnknown || in == "" {
		return 0.5
	}
	res := intent.Classify(text)
	if res.Intent == in {
		return 1
	}
	return clamp01(3 * res.Density[in])
}

func quality(c types.Candidate) float64 {
	words := scoring.Words(c.Text)
	length := math.Min(float64(len([]rune(c.Text)))/200, 1)
	eng := math.Min(float64(c.Engagement())/50, 1)
	return 0.3*length + 0.3*scoring.UniqueRatio(words) + 0.2*eng + 0.2*math.Min(math.Abs(c.Sentiment), 1)
}

func diversity(authorOccurrences, topicOccurrences int) float64 {
	penalty := 0.0
	if authorOccurrences > 1 {
		penalty += 0.25 * float64(authorOccurrences-1)
	}
	if topicOccurrences > 1 {
		penalty += 0.15 * float64(topicOccurrences-1)
	}
	return clamp01(1 - penalty)
}

func (e *Engine) recency(storedAt, now time.Time) float64 {
	if storedAt.IsZero() {
		return 0
	}
	age := now.Sub(storedAt)
	if age <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(e.opts.HalfLife))
}

func engagement(value, maxValue int) float64 {
	if maxValue <= 0 || value <= 0 {
		return 0
	}
	return math.Log1p(float64(value)) / math.Log1p(float64(maxValue))
}

// contextScore adds up to 0.3 each for activity-period, thread and author
// standing in the snapshot
func contextScore(c types.Candidate, snap *snapshot.Snapshot) float64 {
	if snap == nil {
		return 0
	}
	score := 0.0

	if idx, ok := snap.Temporal.PeriodOf[c.EntryID]; ok && snap.Temporal.BusiestCount > 0 {
		score += 0.3 * float64(snap.Temporal.Periods[idx].Count) / float64(snap.Temporal.BusiestCount)
	}

	switch size := snap.Conversational.ThreadSize(c.EntryID); {
	case size >= 3:
		score += 0.3
	case size == 2:
		score += 0.15
	}

	social := snap.Social.Influence[c.Author]
	if snap.Social.Viral[c.EntryID] {
		social = math.Max(social, 1)
	}
	score += 0.3 * clamp01(social)

	return score
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
