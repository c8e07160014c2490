package types

import "time"

// Candidate is a merged search hit carrying its strategy provenance
type Candidate struct {
	// Identification
	EntryID string
	Author  string
	Text    string

	// Engagement
	Likes     int
	Replies   int
	Sentiment float64 // -1..1
	StoredAt  time.Time

	// Scoring
	Similarity     float64 // max raw similarity across strategies
	Score          float64 // max strategy-weighted similarity
	Strategies     []Strategy
	StrategyScores map[Strategy]float64
	Expansions     []string // expanded query variants that matched
	Patterns       []string // pattern names that matched
}

// Engagement returns the combined engagement count (replies weigh double)
func (c *Candidate) Engagement() int {
	return c.Likes + 2*c.Replies
}

// ScoreBreakdown holds the per-dimension scores of a ranked result
type ScoreBreakdown struct {
	Relevance  float64
	Quality    float64
	Diversity  float64
	Recency    float64
	Engagement float64
	Context    float64
}

// RankedResult is a candidate after re-ranking; produced fresh per query
type RankedResult struct {
	Candidate  Candidate
	Scores     ScoreBreakdown
	FinalScore float64
	Rank       int // Position in result set (1-based)
	Confidence float64
	Topic      string
}

// Validate checks if the ranked result is valid
func (r *RankedResult) Validate() error {
	if r.Candidate.EntryID == "" {
		return ErrMissingID
	}

	if r.Rank < 1 {
		return ErrInvalidRank
	}

	if r.FinalScore < 0 || r.FinalScore > 1 {
		return ErrInvalidScore
	}

	if r.Confidence < 0 || r.Confidence > 1 {
		return ErrInvalidScore
	}

	return nil
}
