package scoring

import "time"

// Policy holds every tunable constant of the embedding and retrieval pipeline.
// Values are defaults, not contracts; tests override them to probe boundaries.
type Policy struct {
	// Text quality
	LengthCap        int      `toml:"length_cap"`
	WordCap          int      `toml:"word_cap"`
	LengthWeight     float64  `toml:"length_weight"`
	WordWeight       float64  `toml:"word_weight"`
	UniqueWeight     float64  `toml:"unique_weight"`
	StructuralWeight float64  `toml:"structural_weight"`
	DomainTerms      []string `toml:"domain_terms"`

	// Importance
	BusinessWeight        float64 `toml:"business_weight"`
	QuestionWeight        float64 `toml:"question_weight"`
	EngagementWeight      float64 `toml:"engagement_weight"`
	ControversialWeight   float64 `toml:"controversial_weight"`
	HighEngagementLikes   int     `toml:"high_engagement_likes"`
	HighEngagementReplies int     `toml:"high_engagement_replies"`
	TransactionalWeight   float64 `toml:"transactional_weight"`
	EducationalWeight     float64 `toml:"educational_weight"`
	ProblemWeight         float64 `toml:"problem_weight"`
	OpinionWeight         float64 `toml:"opinion_weight"`
	HelpWeight            float64 `toml:"help_weight"`
	RelevanceWeight       float64 `toml:"relevance_weight"`

	// Cost/benefit
	TokensPerChar     float64 `toml:"tokens_per_char"`
	PricePerToken     float64 `toml:"price_per_token"`
	LatencyCost       float64 `toml:"latency_cost"`
	BenefitUnit       float64 `toml:"benefit_unit"`
	EngagementCap     float64 `toml:"engagement_cap"`
	CostBenefitCutoff float64 `toml:"cost_benefit_cutoff"`

	// Decision
	MinLength         int     `toml:"min_length"`
	RateLimitFloor    float64 `toml:"rate_limit_floor"`
	DecisionThreshold float64 `toml:"decision_threshold"`
	ThresholdMin      float64 `toml:"threshold_min"`
	ThresholdMax      float64 `toml:"threshold_max"`
	HighValueScore    float64 `toml:"high_value_score"`
	LowQualityCutoff  float64 `toml:"low_quality_cutoff"`
	LowImportanceCut  float64 `toml:"low_importance_cutoff"`
	QualityScoreW     float64 `toml:"quality_score_weight"`
	ImportanceScoreW  float64 `toml:"importance_score_weight"`
	QuotaScoreW       float64 `toml:"quota_score_weight"`
	CacheAbsentW      float64 `toml:"cache_absent_weight"`
	CostBenefitW      float64 `toml:"cost_benefit_weight"`
	RatioCap          float64 `toml:"ratio_cap"`

	// Cache validity
	CacheMaxAgeHours float64 `toml:"cache_max_age_hours"`
	QualityFloor     float64 `toml:"quality_floor"`

	// Record quality by provenance
	RemoteQuality   float64 `toml:"remote_quality"`
	LocalQuality    float64 `toml:"local_quality"`
	FallbackQuality float64 `toml:"fallback_quality"`

	// Query gate
	QueryMinLength int     `toml:"query_min_length"`
	QueryThreshold float64 `toml:"query_threshold"`

	// Batch tiers
	HighTierScore   float64 `toml:"high_tier_score"`
	MediumTierScore float64 `toml:"medium_tier_score"`

	// Retrieval thresholds
	SemanticThreshold float64 `toml:"semantic_threshold"`
	ContextRelax      float64 `toml:"context_relax"`
	PatternThreshold  float64 `toml:"pattern_threshold"`
}

// DefaultDomainTerms lists vocabulary common to video comment sections
var DefaultDomainTerms = []string{
	"video", "audio", "sound", "music", "camera", "editing", "channel",
	"subscribe", "content", "episode", "tutorial", "quality", "stream",
	"product", "price", "review", "upload", "thumbnail", "microphone",
}

// DefaultPolicy returns the stock scoring policy
func DefaultPolicy() Policy {
	return Policy{
		LengthCap:        500,
		WordCap:          50,
		LengthWeight:     0.2,
		WordWeight:       0.2,
		UniqueWeight:     0.3,
		StructuralWeight: 0.3,
		DomainTerms:      DefaultDomainTerms,

		BusinessWeight:        0.3,
		QuestionWeight:        0.2,
		EngagementWeight:      0.2,
		ControversialWeight:   0.2,
		HighEngagementLikes:   10,
		HighEngagementReplies: 5,
		TransactionalWeight:   0.15,
		EducationalWeight:     0.1,
		ProblemWeight:         0.15,
		OpinionWeight:         0.05,
		HelpWeight:            0.15,
		RelevanceWeight:       0.3,

		TokensPerChar:     0.25,
		PricePerToken:     0.00002,
		LatencyCost:       0.002,
		BenefitUnit:       0.01,
		EngagementCap:     50,
		CostBenefitCutoff: 2,

		MinLength:         20,
		RateLimitFloor:    0.05,
		DecisionThreshold: 0.5,
		ThresholdMin:      0.3,
		ThresholdMax:      0.85,
		HighValueScore:    0.8,
		LowQualityCutoff:  0.35,
		LowImportanceCut:  0.2,
		QualityScoreW:     0.2,
		ImportanceScoreW:  0.3,
		QuotaScoreW:       0.15,
		CacheAbsentW:      0.15,
		CostBenefitW:      0.2,
		RatioCap:          10,

		CacheMaxAgeHours: 7 * 24,
		QualityFloor:     0.7,

		RemoteQuality:   0.95,
		LocalQuality:    0.8,
		FallbackQuality: 0.5,

		QueryMinLength: 3,
		QueryThreshold: 0.3,

		HighTierScore:   0.7,
		MediumTierScore: 0.5,

		SemanticThreshold: 0.75,
		ContextRelax:      0.9,
		PatternThreshold:  0.7,
	}
}

// CacheMaxAge returns the cache validity window
func (p Policy) CacheMaxAge() time.Duration {
	return time.Duration(p.CacheMaxAgeHours * float64(time.Hour))
}

// ClampThreshold bounds an adaptive decision threshold to the policy range
func (p Policy) ClampThreshold(v float64) float64 {
	if v < p.ThresholdMin {
		return p.ThresholdMin
	}
	if v > p.ThresholdMax {
		return p.ThresholdMax
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func ratioCapped(v, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return clamp01(v / limit)
}
