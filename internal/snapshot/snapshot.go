// Package snapshot derives the temporal, conversational and social context
// of a collection. Snapshots are rebuilt per query and never persisted.
package snapshot

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dshills/commentlens/internal/vectorstore"
)

// Trend labels
const (
	TrendImproving  = "improving"
	TrendDeclining  = "declining"
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Community types
const (
	CommunityDiscussion = "discussion"
	CommunitySupportive = "supportive"
	CommunityCritical   = "critical"
	CommunityBroadcast  = "broadcast"
)

// Engagement tiers
const (
	TierHigh   = "high"
	TierMedium = "medium"
	TierLow    = "low"
)

// Options tunes the builder
type Options struct {
	ActivityGap        time.Duration // gap that separates activity periods
	SentimentSlopeMin  float64       // per hour
	EngagementSlopeMin float64       // per hour
	LinkSimilarity     float64
	LinkWindow         int // earlier entries compared per entry
	ProximityGap       time.Duration
	LeaderSize         int
	ViralMultiple      float64
	HighEngagement     float64 // mean engagement for the high tier
	MediumEngagement   float64
	DiscussionShare    float64 // share of reply entries for a discussion community
	SentimentLean      float64
}

// DefaultOptions returns the standard builder settings
func DefaultOptions() Options {
	return Options{
		ActivityGap:        time.Hour,
		SentimentSlopeMin:  0.001,
		EngagementSlopeMin: 0.1,
		LinkSimilarity:     0.85,
		LinkWindow:         200,
		ProximityGap:       5 * time.Minute,
		LeaderSize:         3,
		ViralMultiple:      3,
		HighEngagement:     20,
		MediumEngagement:   5,
		DiscussionShare:    0.3,
		SentimentLean:      0.3,
	}
}

// Period is a run of activity without a gap longer than ActivityGap
type Period struct {
	Start time.Time
	End   time.Time
	Count int
}

// Temporal describes activity over time
type Temporal struct {
	Periods         []Period
	PeriodOf        map[string]int
	BusiestCount    int
	SentimentSlope  float64
	EngagementSlope float64
	SentimentTrend  string
	EngagementTrend string
}

// Thread is a group of linked entries
type Thread struct {
	EntryIDs []string
	Authors  []string
}

// Conversational describes reply structure
type Conversational struct {
	Threads  []Thread
	ThreadOf map[string]int
	Leaders  []int // indexes of threads with at least LeaderSize entries
}

// ThreadSize returns the size of the thread holding entry id, 0 if unknown
func (c *Conversational) ThreadSize(id string) int {
	i, ok := c.ThreadOf[id]
	if !ok {
		return 0
	}
	return len(c.Threads[i].EntryIDs)
}

// Social describes the audience
type Social struct {
	CommunityType  string
	EngagementTier string
	MeanEngagement float64
	MeanSentiment  float64
	Influence      map[string]float64 // author to 0..1
	Viral          map[string]bool    // entry id
}

// Snapshot is the full derived context of one collection
type Snapshot struct {
	CollectionID   string
	Entries        int
	Temporal       Temporal
	Conversational Conversational
	Social         Social
}

// Builder computes snapshots
type Builder struct {
	opts Options
}

// NewBuilder creates a builder; zero option fields take their defaults
func NewBuilder(opts Options) *Builder {
	def := DefaultOptions()
	if opts.ActivityGap <= 0 {
		opts.ActivityGap = def.ActivityGap
	}
	if opts.SentimentSlopeMin <= 0 {
		opts.SentimentSlopeMin = def.SentimentSlopeMin
	}
	if opts.EngagementSlopeMin <= 0 {
		opts.EngagementSlopeMin = def.EngagementSlopeMin
	}
	if opts.LinkSimilarity <= 0 {
		opts.LinkSimilarity = def.LinkSimilarity
	}
	if opts.LinkWindow <= 0 {
		opts.LinkWindow = def.LinkWindow
	}
	if opts.ProximityGap <= 0 {
		opts.ProximityGap = def.ProximityGap
	}
	if opts.LeaderSize <= 0 {
		opts.LeaderSize = def.LeaderSize
	}
	if opts.ViralMultiple <= 0 {
		opts.ViralMultiple = def.ViralMultiple
	}
	if opts.HighEngagement <= 0 {
		opts.HighEngagement = def.HighEngagement
	}
	if opts.MediumEngagement <= 0 {
		opts.MediumEngagement = def.MediumEngagement
	}
	if opts.DiscussionShare <= 0 {
		opts.DiscussionShare = def.DiscussionShare
	}
	if opts.SentimentLean <= 0 {
		opts.SentimentLean = def.SentimentLean
	}
	return &Builder{opts: opts}
}

// Build derives a snapshot from the current entries of c
func (b *Builder) Build(c *vectorstore.Collection) *Snapshot {
	return b.BuildEntries(c.ID(), c.Entries())
}

// BuildEntries derives a snapshot from entries. The result depends only on
// the entries, never on the clock.
func (b *Builder) BuildEntries(collectionID string, entries []*vectorstore.Entry) *Snapshot {
	sorted := append([]*vectorstore.Entry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StoredAt.Before(sorted[j].StoredAt)
	})

	return &Snapshot{
		CollectionID:   collectionID,
		Entries:        len(sorted),
		Temporal:       b.temporal(sorted),
		Conversational: b.conversational(sorted),
		Social:         b.social(sorted),
	}
}

func (b *Builder) temporal(entries []*vectorstore.Entry) Temporal {
	t := Temporal{
		PeriodOf:        make(map[string]int, len(entries)),
		SentimentTrend:  TrendStable,
		EngagementTrend: TrendStable,
	}
	if len(entries) == 0 {
		return t
	}

	current := Period{Start: entries[0].StoredAt, End: entries[0].StoredAt}
	for i, e := range entries {
		if i > 0 && e.StoredAt.Sub(current.End) > b.opts.ActivityGap {
			t.Periods = append(t.Periods, current)
			current = Period{Start: e.StoredAt, End: e.StoredAt}
		}
		current.End = e.StoredAt
		current.Count++
		t.PeriodOf[e.ID] = len(t.Periods)
	}
	t.Periods = append(t.Periods, current)
	for _, p := range t.Periods {
		t.BusiestCount = max(t.BusiestCount, p.Count)
	}

	origin := entries[0].StoredAt
	xs := make([]float64, len(entries))
	sentiment := make([]float64, len(entries))
	engagement := make([]float64, len(entries))
	for i, e := range entries {
		xs[i] = e.StoredAt.Sub(origin).Hours()
		sentiment[i] = e.Sentiment
		engagement[i] = float64(e.Engagement())
	}

	t.SentimentSlope = slope(xs, sentiment)
	t.EngagementSlope = slope(xs, engagement)

	switch {
	case t.SentimentSlope > b.opts.SentimentSlopeMin:
		t.SentimentTrend = TrendImproving
	case t.SentimentSlope < -b.opts.SentimentSlopeMin:
		t.SentimentTrend = TrendDeclining
	}
	switch {
	case t.EngagementSlope > b.opts.EngagementSlopeMin:
		t.EngagementTrend = TrendIncreasing
	case t.EngagementSlope < -b.opts.EngagementSlopeMin:
		t.EngagementTrend = TrendDecreasing
	}
	return t
}

// slope is the least-squares slope of ys over xs, 0 when xs has no spread
func slope(xs, ys []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	var sx, sy, sxy, sxx float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
		sxy += xs[i] * ys[i]
		sxx += xs[i] * xs[i]
	}
	denom := n*sxx - sx*sx
	if math.Abs(denom) < 1e-12 {
		return 0
	}
	return (n*sxy - sx*sy) / denom
}

func (b *Builder) conversational(entries []*vectorstore.Entry) Conversational {
	uf := newUnionFind(len(entries))

	for i, e := range entries {
		mentions := mentionedAuthors(e)
		start := max(0, i-b.opts.LinkWindow)

		for j := i - 1; j >= start; j-- {
			prev := entries[j]
			if prev.Author != "" && mentions[strings.ToLower(prev.Author)] {
				uf.union(i, j)
				// Link to the latest comment by that author only
				delete(mentions, strings.ToLower(prev.Author))
				continue
			}
			if vectorstore.CosineSimilarity(e.Vector, prev.Vector) > b.opts.LinkSimilarity {
				uf.union(i, j)
			}
		}

		if i > 0 && e.StoredAt.Sub(entries[i-1].StoredAt) < b.opts.ProximityGap {
			uf.union(i, i-1)
		}
	}

	c := Conversational{ThreadOf: make(map[string]int, len(entries))}
	rootThread := map[int]int{}
	for i, e := range entries {
		root := uf.find(i)
		idx, ok := rootThread[root]
		if !ok {
			idx = len(c.Threads)
			rootThread[root] = idx
			c.Threads = append(c.Threads, Thread{})
		}
		th := &c.Threads[idx]
		th.EntryIDs = append(th.EntryIDs, e.ID)
		if e.Author != "" && !containsString(th.Authors, e.Author) {
			th.Authors = append(th.Authors, e.Author)
		}
		c.ThreadOf[e.ID] = idx
	}

	for i, th := range c.Threads {
		if len(th.EntryIDs) >= b.opts.LeaderSize {
			c.Leaders = append(c.Leaders, i)
		}
	}
	return c
}

// mentionedAuthors returns the lowercased authors an entry refers back to
func mentionedAuthors(e *vectorstore.Entry) map[string]bool {
	out := map[string]bool{}
	if e.ReplyToAuthor != "" {
		out[strings.ToLower(e.ReplyToAuthor)] = true
	}
	for _, field := range strings.Fields(e.Text) {
		if !strings.HasPrefix(field, "@") || len(field) < 2 {
			continue
		}
		name := strings.TrimRight(field[1:], ".,:;!?")
		if name != "" {
			out[strings.ToLower(name)] = true
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (b *Builder) social(entries []*vectorstore.Entry) Social {
	s := Social{
		CommunityType:  CommunityBroadcast,
		EngagementTier: TierLow,
		Influence:      map[string]float64{},
		Viral:          map[string]bool{},
	}
	if len(entries) == 0 {
		return s
	}

	var totalEng, totalSentiment float64
	replies := 0
	byAuthor := map[string]float64{}
	for _, e := range entries {
		eng := float64(e.Engagement())
		totalEng += eng
		totalSentiment += e.Sentiment
		if e.ReplyToAuthor != "" || strings.Contains(e.Text, "@") {
			replies++
		}
		if e.Author != "" {
			byAuthor[e.Author] += eng
		}
	}

	n := float64(len(entries))
	s.MeanEngagement = totalEng / n
	s.MeanSentiment = totalSentiment / n

	switch {
	case s.MeanEngagement >= b.opts.HighEngagement:
		s.EngagementTier = TierHigh
	case s.MeanEngagement >= b.opts.MediumEngagement:
		s.EngagementTier = TierMedium
	}

	switch {
	case float64(replies)/n >= b.opts.DiscussionShare:
		s.CommunityType = CommunityDiscussion
	case s.MeanSentiment >= b.opts.SentimentLean:
		s.CommunityType = CommunitySupportive
	case s.MeanSentiment <= -b.opts.SentimentLean:
		s.CommunityType = CommunityCritical
	}

	maxAuthor := 0.0
	for _, v := range byAuthor {
		maxAuthor = max(maxAuthor, v)
	}
	for author, v := range byAuthor {
		if maxAuthor > 0 {
			s.Influence[author] = v / maxAuthor
		} else {
			s.Influence[author] = 0
		}
	}

	if s.MeanEngagement > 0 {
		for _, e := range entries {
			if float64(e.Engagement()) > b.opts.ViralMultiple*s.MeanEngagement {
				s.Viral[e.ID] = true
			}
		}
	}
	return s
}
