package types

import "time"

// Outcome is the terminal state of an embedding decision
type Outcome string

const (
	OutcomeSkip       Outcome = "skip"
	OutcomeReuseCache Outcome = "reuse_cache"
	OutcomeCompute    Outcome = "compute"
)

// ReasonCode explains why a decision reached its outcome
type ReasonCode string

const (
	ReasonValidCache    ReasonCode = "valid_cache"
	ReasonRateLimit     ReasonCode = "rate_limit"
	ReasonTooShort      ReasonCode = "too_short"
	ReasonInvalidInput  ReasonCode = "invalid_input"
	ReasonLowQuality    ReasonCode = "low_quality"
	ReasonLowImportance ReasonCode = "low_importance"
	ReasonMarginalValue ReasonCode = "marginal_value"
	ReasonHighValue     ReasonCode = "high_value"
	ReasonModerateValue ReasonCode = "moderate_value"

	// Vectorize-level reasons
	ReasonAllMethodsFailed ReasonCode = "all_methods_failed"
)

// Factors is the breakdown of scores that produced a decision
type Factors struct {
	TextQuality       float64
	Importance        float64
	QuotaAvailability float64 // overall blend used in the score
	MinuteQuota       float64 // minute-window fraction used for the rate limit
	CacheAbsent       float64 // 1 if no valid cache entry, else 0
	CostBenefitRatio  float64
	Recommendation    string // "embed" or "skip"
}

// Decision is written once by the decision engine and read-only afterwards
type Decision struct {
	ID          string
	UnitID      string
	Fingerprint string
	Outcome     Outcome
	ShouldEmbed bool
	Confidence  float64
	Score       float64
	Reason      ReasonCode
	Factors     Factors
	Query       bool // decision was made for a search query
	DecidedAt   time.Time
}
