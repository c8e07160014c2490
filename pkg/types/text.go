package types

import (
	"strings"
	"time"
)

// Sentiment is the coarse sentiment label attached by the ingestion taggers
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Score maps a sentiment label onto [-1, 1]
func (s Sentiment) Score() float64 {
	switch s {
	case SentimentPositive:
		return 1
	case SentimentNegative:
		return -1
	default:
		return 0
	}
}

// ParseSentiment converts a free-form label into a Sentiment, defaulting to neutral
func ParseSentiment(label string) Sentiment {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "positive", "pos":
		return SentimentPositive
	case "negative", "neg":
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// SourceContext carries caller-supplied flags computed upstream
type SourceContext struct {
	Author                string
	ReplyToAuthor         string // Nullable - empty when not a reply
	Sentiment             Sentiment
	Likes                 int
	Replies               int
	IsQuestion            bool
	IsBusinessOpportunity bool
	IsControversial       bool
	PublishedAt           time.Time
}

// Engagement returns the combined engagement count (replies weigh double)
func (c SourceContext) Engagement() int {
	return c.Likes + 2*c.Replies
}

// TextUnit is an immutable span of text considered for embedding
type TextUnit struct {
	ID      string
	Text    string
	Context SourceContext
}

// Validate checks if the text unit carries usable text
func (u *TextUnit) Validate() error {
	if u.ID == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(u.Text) == "" {
		return ErrEmptyText
	}
	return nil
}
