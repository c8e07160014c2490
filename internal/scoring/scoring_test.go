package scoring

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/commentlens/pkg/types"
)

const audioQuestion = "Does anyone know how to fix the audio sync issue in this video? The sound drifts after ten minutes, and it gets worse on mobile devices too."

type fixedRelevance float64

func (f fixedRelevance) SearchRelevance(string) float64 { return float64(f) }

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "it's", "42"}, Words("Hello, WORLD!  it's 42?"))
	assert.Empty(t, Words("  ... !!! "))
}

func TestScoreText(t *testing.T) {
	p := DefaultPolicy()

	q := p.ScoreText(audioQuestion)
	assert.Equal(t, 140, q.Length)
	assert.Equal(t, 27, q.WordCount)
	assert.InDelta(t, 26.0/27.0, q.UniqueWordRatio, 1e-9)
	// question mark, domain term, clause separator
	assert.InDelta(t, 0.6, q.StructuralScore, 1e-9)
	assert.InDelta(t, 0.6329, q.Overall, 1e-3)
}

func TestScoreText_StructuralFlags(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name string
		text string
		want float64
	}{
		{"none", "nice one", 0},
		{"question", "really though?", 0.2},
		{"digit", "minute 3 was great", 0.2},
		{"url", "see https://example.com", 0.2},
		{"domain term", "great editing", 0.2},
		{"clause", "good, not great", 0.2},
		{"all", "Why does the video at 3:10 link www.example.com, because?", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, p.ScoreText(tt.text).StructuralScore, 1e-9)
		})
	}
}

func TestScoreText_Bounds(t *testing.T) {
	p := DefaultPolicy()
	for _, text := range []string{"", "a", strings.Repeat("word ", 400), audioQuestion} {
		q := p.ScoreText(text)
		assert.GreaterOrEqual(t, q.Overall, 0.0)
		assert.LessOrEqual(t, q.Overall, 1.0)
	}
	assert.Equal(t, 0.0, p.ScoreText("").Overall)
}

func TestImportanceScorer(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name      string
		text      string
		ctx       types.SourceContext
		relevance RelevanceSource
		want      float64
	}{
		{"plain", "nice video", types.SourceContext{}, nil, 0},
		{"business flag", "nice video", types.SourceContext{IsBusinessOpportunity: true}, nil, 0.3},
		{"question flag", "nice video", types.SourceContext{IsQuestion: true}, nil, 0.2},
		{"question mark", "nice video?", types.SourceContext{}, nil, 0.2},
		{"high likes", "nice video", types.SourceContext{Likes: 10}, nil, 0.2},
		{"high replies", "nice video", types.SourceContext{Replies: 5}, nil, 0.2},
		{"controversial", "nice video", types.SourceContext{IsControversial: true}, nil, 0.2},
		{"transactional", "what is the price", types.SourceContext{}, nil, 0.15},
		{"educational", "I learned so much", types.SourceContext{}, nil, 0.1},
		{"opinion", "I think so", types.SourceContext{}, nil, 0.05},
		{"audio question", audioQuestion, types.SourceContext{}, nil, 0.5},
		{"learned relevance", "nice video", types.SourceContext{}, fixedRelevance(0.5), 0.15},
		{
			"clamped",
			audioQuestion + " where can I buy it",
			types.SourceContext{IsBusinessOpportunity: true, IsControversial: true, Likes: 50},
			fixedRelevance(1),
			1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewImportanceScorer(p, tt.relevance)
			assert.InDelta(t, tt.want, s.Score(tt.text, tt.ctx), 1e-9)
		})
	}
}

func TestEstimateCostBenefit(t *testing.T) {
	p := DefaultPolicy()

	cb := p.EstimateCostBenefit(audioQuestion, types.SourceContext{}, 0.5, false)
	assert.InDelta(t, 35.0, cb.Costs.Tokens, 1e-9)
	assert.InDelta(t, 0.0027, cb.Costs.Total, 1e-9)
	assert.InDelta(t, 0.019325, cb.Benefits.Total, 1e-6)
	assert.InDelta(t, 7.157, cb.Ratio, 1e-3)
	assert.Equal(t, RecommendEmbed, cb.Recommendation)

	cached := p.EstimateCostBenefit(audioQuestion, types.SourceContext{}, 0.5, true)
	assert.Less(t, cached.Ratio, cb.Ratio)
}

func TestEstimateCostBenefit_Recommendation(t *testing.T) {
	p := DefaultPolicy()
	p.CostBenefitCutoff = 100

	cb := p.EstimateCostBenefit("short text here", types.SourceContext{}, 0, false)
	assert.Equal(t, RecommendSkip, cb.Recommendation)
	assert.Greater(t, cb.Ratio, 0.0)
}

func TestPolicy_ClampThreshold(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 0.3, p.ClampThreshold(0.1))
	assert.Equal(t, 0.85, p.ClampThreshold(0.99))
	assert.Equal(t, 0.6, p.ClampThreshold(0.6))
	assert.Equal(t, 168.0, p.CacheMaxAge().Hours())
}

func TestContentWords(t *testing.T) {
	assert.Equal(t, []string{"fix", "audio"}, ContentWords("how do I fix the audio"))
	assert.Equal(t, []string{"audio", "broken", "fix"}, ContentWords("audio was broken, how to fix?"))
}
