package ranking

import "github.com/dshills/commentlens/pkg/types"

// Weights blends the per-dimension scores into a final score
type Weights struct {
	Relevance  float64
	Quality    float64
	Diversity  float64
	Recency    float64
	Engagement float64
	Context    float64
}

var defaultWeights = Weights{Relevance: 0.35, Quality: 0.2, Diversity: 0.1, Recency: 0.1, Engagement: 0.1, Context: 0.15}

// Opinion leans on quality and context, factual on relevance and recency
var intentWeights = map[types.Intent]Weights{
	types.IntentBusiness:   {Relevance: 0.35, Quality: 0.2, Diversity: 0.1, Recency: 0.1, Engagement: 0.15, Context: 0.1},
	types.IntentTechnical:  {Relevance: 0.4, Quality: 0.2, Diversity: 0.05, Recency: 0.15, Engagement: 0.1, Context: 0.1},
	types.IntentOpinion:    {Relevance: 0.2, Quality: 0.25, Diversity: 0.1, Recency: 0.05, Engagement: 0.15, Context: 0.25},
	types.IntentFactual:    {Relevance: 0.4, Quality: 0.15, Diversity: 0.1, Recency: 0.2, Engagement: 0.05, Context: 0.1},
	types.IntentComparison: {Relevance: 0.35, Quality: 0.2, Diversity: 0.15, Recency: 0.1, Engagement: 0.05, Context: 0.15},
	types.IntentEmotional:  {Relevance: 0.25, Quality: 0.15, Diversity: 0.1, Recency: 0.1, Engagement: 0.2, Context: 0.2},
	types.IntentUnknown:    defaultWeights,
}

// WeightsFor returns the weight table for intent
func WeightsFor(intent types.Intent) Weights {
	if w, ok := intentWeights[intent]; ok {
		return w
	}
	return defaultWeights
}

func (w Weights) apply(s types.ScoreBreakdown) float64 {
	return w.Relevance*s.Relevance +
		w.Quality*s.Quality +
		w.Diversity*s.Diversity +
		w.Recency*s.Recency +
		w.Engagement*s.Engagement +
		w.Context*s.Context
}
