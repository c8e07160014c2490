package scoring

import (
	"unicode/utf8"

	"github.com/dshills/commentlens/pkg/types"
)

// Recommendations emitted by the estimator
const (
	RecommendEmbed = "embed"
	RecommendSkip  = "skip"
)

// Benefits breaks down the estimated value of embedding a text
type Benefits struct {
	SearchImprovement float64
	UserSatisfaction  float64
	LearningValue     float64
	Reusability       float64
	Total             float64
}

// Costs breaks down the estimated price of embedding a text
type Costs struct {
	Tokens  float64
	Compute float64
	Latency float64
	Total   float64
}

// CostBenefit is advisory input to the decision score, never a veto
type CostBenefit struct {
	Ratio          float64
	Benefits       Benefits
	Costs          Costs
	Recommendation string
}

// EstimateCostBenefit weighs the provider cost of text against its expected value.
// importance comes from the ImportanceScorer and cached reports whether a
// valid embedding already exists.
func (p Policy) EstimateCostBenefit(text string, ctx types.SourceContext, importance float64, cached bool) CostBenefit {
	length := float64(utf8.RuneCountInString(text))
	tokens := length * p.TokensPerChar

	costs := Costs{
		Tokens:  tokens,
		Compute: tokens * p.PricePerToken,
		Latency: p.LatencyCost,
	}
	costs.Total = costs.Compute + costs.Latency

	words := float64(len(Words(text)))
	learning := 1.0
	if cached {
		learning = 0.2
	}
	generality := 1 - 0.5*ratioCapped(words, 100)
	popularity := ratioCapped(float64(ctx.Likes), 100)

	b := Benefits{
		SearchImprovement: p.BenefitUnit * clamp01(importance),
		UserSatisfaction:  p.BenefitUnit * ratioCapped(float64(ctx.Engagement()), p.EngagementCap),
		LearningValue:     p.BenefitUnit * learning,
		Reusability:       p.BenefitUnit * (0.5*generality + 0.5*popularity),
	}
	b.Total = b.SearchImprovement + b.UserSatisfaction + b.LearningValue + b.Reusability

	cb := CostBenefit{
		Benefits:       b,
		Costs:          costs,
		Recommendation: RecommendSkip,
	}
	if costs.Total > 0 {
		cb.Ratio = b.Total / costs.Total
	}
	if b.Total > p.CostBenefitCutoff*costs.Total {
		cb.Recommendation = RecommendEmbed
	}
	return cb
}
