package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dshills/commentlens/internal/cachestore"
	"github.com/dshills/commentlens/internal/embedder"
	"github.com/dshills/commentlens/internal/learning"
	"github.com/dshills/commentlens/internal/metrics"
	"github.com/dshills/commentlens/internal/quota"
	"github.com/dshills/commentlens/internal/scoring"
	"github.com/dshills/commentlens/pkg/types"
)

// Engine defaults
const (
	DefaultEmbedTimeout    = 10 * time.Second
	DefaultTierDelay       = 100 * time.Millisecond
	DefaultTierConcurrency = 4
)

var (
	// ErrGated is returned when the gate refuses to embed a query
	ErrGated = errors.New("embedding gated")
	// ErrMissingDependency is returned when a required collaborator is nil
	ErrMissingDependency = errors.New("missing dependency")
)

// Config wires an Engine to its collaborators
type Config struct {
	Policy   scoring.Policy
	Quota    *quota.Tracker
	Cache    *cachestore.Store
	Learning *learning.Store

	// Primary generates embeddings; nil selects the local provider
	Primary embedder.Embedder
	// Fallback is used when Primary fails; nil builds a local provider of the primary's dimension
	Fallback embedder.Embedder

	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time

	EmbedTimeout time.Duration
	// TierDelay pauses before the medium tier of a batch; negative disables it
	TierDelay       time.Duration
	TierConcurrency int
}

// Engine decides whether a text is worth embedding and carries out the decision
type Engine struct {
	policy     scoring.Policy
	quota      *quota.Tracker
	cache      *cachestore.Store
	learning   *learning.Store
	importance *scoring.ImportanceScorer
	primary    embedder.Embedder
	fallback   embedder.Embedder
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time

	embedTimeout    time.Duration
	tierDelay       time.Duration
	tierConcurrency int
}

// NewEngine validates cfg and builds an engine
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Quota == nil || cfg.Cache == nil || cfg.Learning == nil {
		return nil, fmt.Errorf("%w: quota, cache and learning are required", ErrMissingDependency)
	}

	primary := cfg.Primary
	if primary == nil {
		local, err := embedder.NewLocalProvider(0)
		if err != nil {
			return nil, err
		}
		primary = local
	}

	fallback := cfg.Fallback
	if fallback == nil {
		local, err := embedder.NewLocalProvider(primary.Dimension())
		if err != nil {
			return nil, fmt.Errorf("build fallback provider: %w", err)
		}
		fallback = local
	}

	e := &Engine{
		policy:          cfg.Policy,
		quota:           cfg.Quota,
		cache:           cfg.Cache,
		learning:        cfg.Learning,
		importance:      scoring.NewImportanceScorer(cfg.Policy, cfg.Learning),
		primary:         primary,
		fallback:        fallback,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		now:             cfg.Now,
		embedTimeout:    cfg.EmbedTimeout,
		tierDelay:       cfg.TierDelay,
		tierConcurrency: cfg.TierConcurrency,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.embedTimeout <= 0 {
		e.embedTimeout = DefaultEmbedTimeout
	}
	if e.tierDelay < 0 {
		e.tierDelay = 0
	} else if e.tierDelay == 0 {
		e.tierDelay = DefaultTierDelay
	}
	if e.tierConcurrency <= 0 {
		e.tierConcurrency = DefaultTierConcurrency
	}
	return e, nil
}

// Dimension returns the width of vectors produced by the engine
func (e *Engine) Dimension() int {
	return e.primary.Dimension()
}

// Provider returns the name of the primary embedding provider
func (e *Engine) Provider() string {
	return e.primary.Provider()
}

// gate holds the thresholds that differ between comments and queries
type gate struct {
	minLength int
	threshold float64
	query     bool
}

func (e *Engine) commentGate() gate {
	return gate{minLength: e.policy.MinLength, threshold: e.learning.Threshold()}
}

func (e *Engine) queryGate() gate {
	return gate{minLength: e.policy.QueryMinLength, threshold: e.policy.QueryThreshold, query: true}
}

// Decide evaluates unit and records the decision. It never fails; storage
// errors while checking the cache count as a cache miss.
func (e *Engine) Decide(ctx context.Context, unit types.TextUnit) types.Decision {
	d := e.evaluate(ctx, unit, e.commentGate())
	e.record(d)
	return d
}

// Preview evaluates unit like Decide but records nothing
func (e *Engine) Preview(ctx context.Context, unit types.TextUnit) types.Decision {
	return e.evaluate(ctx, unit, e.commentGate())
}

// evaluate runs factor collection and the decision without side effects
func (e *Engine) evaluate(ctx context.Context, unit types.TextUnit, g gate) types.Decision {
	text := strings.TrimSpace(unit.Text)
	d := types.Decision{
		ID:          uuid.NewString(),
		UnitID:      unit.ID,
		Fingerprint: cachestore.Fingerprint(text),
		Query:       g.query,
		DecidedAt:   e.now(),
	}

	if text == "" {
		d.Outcome = types.OutcomeSkip
		d.Reason = types.ReasonInvalidInput
		d.Confidence = 1
		return d
	}

	status, err := e.cache.Status(ctx, d.Fingerprint, e.policy.CacheMaxAge(), e.policy.QualityFloor)
	if err != nil {
		e.logger.Warn("cache status unavailable", "fingerprint", d.Fingerprint, "error", err)
		status = cachestore.Status{}
	}
	reusable := status.IsValid && !status.ShouldRefresh

	quality := e.policy.ScoreText(text)
	importance := e.importance.Score(text, unit.Context)
	avail := e.quota.Snapshot()
	cb := e.policy.EstimateCostBenefit(text, unit.Context, importance, reusable)

	d.Factors = types.Factors{
		TextQuality:       quality.Overall,
		Importance:        importance,
		QuotaAvailability: avail.Overall,
		MinuteQuota:       avail.Minute,
		CostBenefitRatio:  cb.Ratio,
		Recommendation:    cb.Recommendation,
	}
	if !reusable {
		d.Factors.CacheAbsent = 1
	}
	d.Score = e.score(d.Factors)

	switch {
	case reusable:
		d.Outcome, d.Reason = types.OutcomeReuseCache, types.ReasonValidCache
	case avail.Minute < e.policy.RateLimitFloor:
		d.Outcome, d.Reason = types.OutcomeSkip, types.ReasonRateLimit
	case utf8.RuneCountInString(text) < g.minLength:
		d.Outcome, d.Reason = types.OutcomeSkip, types.ReasonTooShort
	case d.Score < g.threshold:
		d.Outcome, d.Reason = types.OutcomeSkip, e.lowValueReason(d.Factors)
	case d.Score > e.policy.HighValueScore:
		d.Outcome, d.Reason = types.OutcomeCompute, types.ReasonHighValue
	default:
		d.Outcome, d.Reason = types.OutcomeCompute, types.ReasonModerateValue
	}

	d.ShouldEmbed = d.Outcome == types.OutcomeCompute
	if d.ShouldEmbed {
		d.Confidence = d.Score
	} else {
		d.Confidence = 1 - d.Score
	}
	return d
}

// score is the weighted blend of the decision factors
func (e *Engine) score(f types.Factors) float64 {
	p := e.policy
	cbTerm := 0.0
	if p.RatioCap > 0 {
		cbTerm = f.CostBenefitRatio / p.RatioCap
		if cbTerm > 1 {
			cbTerm = 1
		}
	}
	return p.QualityScoreW*f.TextQuality +
		p.ImportanceScoreW*f.Importance +
		p.QuotaScoreW*f.QuotaAvailability +
		p.CacheAbsentW*f.CacheAbsent +
		p.CostBenefitW*cbTerm
}

func (e *Engine) lowValueReason(f types.Factors) types.ReasonCode {
	switch {
	case f.TextQuality < e.policy.LowQualityCutoff:
		return types.ReasonLowQuality
	case f.Importance < e.policy.LowImportanceCut:
		return types.ReasonLowImportance
	default:
		return types.ReasonMarginalValue
	}
}

func (e *Engine) record(d types.Decision) {
	e.learning.RecordDecision(d)
	e.metrics.RecordDecision(string(d.Outcome), string(d.Reason))
	e.logger.Debug("embedding decision",
		"id", d.ID,
		"unit", d.UnitID,
		"fingerprint", d.Fingerprint,
		"outcome", d.Outcome,
		"reason", d.Reason,
		"score", d.Score,
		"quality", d.Factors.TextQuality,
		"importance", d.Factors.Importance,
		"quota", d.Factors.QuotaAvailability,
		"cb_ratio", d.Factors.CostBenefitRatio,
	)
}
