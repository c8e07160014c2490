package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dshills/commentlens/internal/kvstore"
	"github.com/dshills/commentlens/internal/scoring"
	"github.com/dshills/commentlens/pkg/types"
)

// Log bounds
const (
	DefaultMaxDecisions   = 1000
	DefaultMaxDecisionAge = 24 * time.Hour
	DefaultMaxSearches    = 500
)

// StrategyStats counts how often a strategy produced results for an intent
type StrategyStats struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
}

// SuccessRate returns Successes/Attempts, or 0 with no attempts
func (s StrategyStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// SearchRecord summarizes one executed search
type SearchRecord struct {
	ID         string                 `json:"id"`
	Query      string                 `json:"query"`
	Intent     types.Intent           `json:"intent"`
	Strategies map[types.Strategy]int `json:"strategies"` // result count per strategy
	Results    int                    `json:"results"`
	Confidence float64                `json:"confidence"`
	At         time.Time              `json:"at"`
}

// Options configures a Store
type Options struct {
	MaxDecisions   int
	MaxDecisionAge time.Duration
	MaxSearches    int
	Threshold      float64
	ThresholdMin   float64
	ThresholdMax   float64
	Now            func() time.Time
}

// DefaultOptions derives store options from a scoring policy
func DefaultOptions(p scoring.Policy) Options {
	return Options{
		MaxDecisions:   DefaultMaxDecisions,
		MaxDecisionAge: DefaultMaxDecisionAge,
		MaxSearches:    DefaultMaxSearches,
		Threshold:      p.DecisionThreshold,
		ThresholdMin:   p.ThresholdMin,
		ThresholdMax:   p.ThresholdMax,
	}
}

// Store holds the adaptive state shared by the decision engine, the search
// orchestrator and the learning loop. Losing it only degrades adaptation.
type Store struct {
	opts Options

	mu          sync.RWMutex
	threshold   float64
	queryTokens map[string]int
	strategies  map[types.Intent]map[types.Strategy]*StrategyStats
	weights     map[types.Intent]map[types.Strategy]float64
	decisions   []types.Decision
	searches    []SearchRecord
}

// NewStore creates an empty learning store
func NewStore(opts Options) *Store {
	if opts.MaxDecisions <= 0 {
		opts.MaxDecisions = DefaultMaxDecisions
	}
	if opts.MaxDecisionAge <= 0 {
		opts.MaxDecisionAge = DefaultMaxDecisionAge
	}
	if opts.MaxSearches <= 0 {
		opts.MaxSearches = DefaultMaxSearches
	}
	if opts.ThresholdMax <= 0 {
		opts.ThresholdMax = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		opts:        opts,
		queryTokens: make(map[string]int),
		strategies:  make(map[types.Intent]map[types.Strategy]*StrategyStats),
		weights:     make(map[types.Intent]map[types.Strategy]float64),
	}
	s.threshold = s.clamp(opts.Threshold)
	return s
}

func (s *Store) clamp(v float64) float64 {
	return math.Max(s.opts.ThresholdMin, math.Min(s.opts.ThresholdMax, v))
}

// Threshold returns the current adaptive decision threshold
func (s *Store) Threshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// SetThreshold stores a new threshold, clamped to the configured range
func (s *Store) SetThreshold(v float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = s.clamp(v)
	return s.threshold
}

// RecordDecision appends d to the bounded decision log
func (s *Store) RecordDecision(d types.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decisions = append(s.decisions, d)
	s.pruneDecisionsLocked()
}

func (s *Store) pruneDecisionsLocked() {
	cutoff := s.opts.Now().Add(-s.opts.MaxDecisionAge)
	start := 0
	for start < len(s.decisions) && s.decisions[start].DecidedAt.Before(cutoff) {
		start++
	}
	if over := len(s.decisions) - start - s.opts.MaxDecisions; over > 0 {
		start += over
	}
	if start > 0 {
		s.decisions = append([]types.Decision(nil), s.decisions[start:]...)
	}
}

// Decisions returns a copy of the decision log, oldest first
func (s *Store) Decisions() []types.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneDecisionsLocked()
	return append([]types.Decision(nil), s.decisions...)
}

// FindDecision returns the most recent decision whose ID or unit ID matches id
func (s *Store) FindDecision(id string) (types.Decision, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.decisions) - 1; i >= 0; i-- {
		d := s.decisions[i]
		if d.ID == id || d.UnitID == id {
			return d, true
		}
	}
	return types.Decision{}, false
}

// RecordSearch logs a completed search and learns its query tokens
func (s *Store) RecordSearch(rec SearchRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.At.IsZero() {
		rec.At = s.opts.Now()
	}
	s.searches = append(s.searches, rec)
	if over := len(s.searches) - s.opts.MaxSearches; over > 0 {
		s.searches = append([]SearchRecord(nil), s.searches[over:]...)
	}

	for _, tok := range scoring.ContentWords(rec.Query) {
		s.queryTokens[tok]++
	}
}

// Searches returns a copy of the search log, oldest first
func (s *Store) Searches() []SearchRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]SearchRecord(nil), s.searches...)
}

// RecordStrategyOutcome counts one run of strategy for intent
func (s *Store) RecordStrategyOutcome(intent types.Intent, strategy types.Strategy, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byStrategy, ok := s.strategies[intent]
	if !ok {
		byStrategy = make(map[types.Strategy]*StrategyStats)
		s.strategies[intent] = byStrategy
	}
	st, ok := byStrategy[strategy]
	if !ok {
		st = &StrategyStats{}
		byStrategy[strategy] = st
	}
	st.Attempts++
	if success {
		st.Successes++
	}
}

// StrategyStats returns the counters for strategy under intent
func (s *Store) StrategyStats(intent types.Intent, strategy types.Strategy) StrategyStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.strategies[intent][strategy]; ok {
		return *st
	}
	return StrategyStats{}
}

// StrategyWeight returns the published weight of strategy for intent, 1 when
// nothing has been learned yet
func (s *Store) StrategyWeight(intent types.Intent, strategy types.Strategy) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if w, ok := s.weights[intent][strategy]; ok {
		return w
	}
	return 1
}

// recomputeWeights publishes 0.5 + 0.5·successRate for every observed strategy
func (s *Store) recomputeWeights() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for intent, byStrategy := range s.strategies {
		w, ok := s.weights[intent]
		if !ok {
			w = make(map[types.Strategy]float64)
			s.weights[intent] = w
		}
		for strategy, st := range byStrategy {
			if st.Attempts == 0 {
				continue
			}
			w[strategy] = 0.5 + 0.5*st.SuccessRate()
			n++
		}
	}
	return n
}

// SearchRelevance reports how strongly text overlaps historical query tokens
// in [0,1]. Frequencies are log-damped against the most frequent token.
func (s *Store) SearchRelevance(text string) float64 {
	words := scoring.ContentWords(text)
	if len(words) == 0 {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	maxFreq := 0
	for _, f := range s.queryTokens {
		if f > maxFreq {
			maxFreq = f
		}
	}
	if maxFreq == 0 {
		return 0
	}

	seen := make(map[string]struct{}, len(words))
	denom := math.Log1p(float64(maxFreq))
	var sum float64
	for _, w := range words {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		sum += math.Log1p(float64(s.queryTokens[w])) / denom
	}
	return math.Min(1, sum/float64(len(seen)))
}

// persistedState is the durable subset of the store
type persistedState struct {
	Threshold   float64                                            `json:"threshold"`
	QueryTokens map[string]int                                     `json:"query_tokens"`
	Strategies  map[types.Intent]map[types.Strategy]*StrategyStats `json:"strategies"`
	Weights     map[types.Intent]map[types.Strategy]float64        `json:"weights"`
	SavedAt     time.Time                                          `json:"saved_at"`
}

// Persist writes the durable state under kvstore.KeyLearningState
func (s *Store) Persist(ctx context.Context, kv kvstore.Store) error {
	s.mu.RLock()
	data, err := json.Marshal(persistedState{
		Threshold:   s.threshold,
		QueryTokens: s.queryTokens,
		Strategies:  s.strategies,
		Weights:     s.weights,
		SavedAt:     s.opts.Now(),
	})
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode learning state: %w", err)
	}

	if err := kv.Set(ctx, kvstore.KeyLearningState, data); err != nil {
		return fmt.Errorf("persist learning state: %w", err)
	}
	return nil
}

// Load restores state written by Persist. A missing key leaves the store untouched.
func (s *Store) Load(ctx context.Context, kv kvstore.Store) error {
	data, err := kv.Get(ctx, kvstore.KeyLearningState)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load learning state: %w", err)
	}

	var st persistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decode learning state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.threshold = s.clamp(st.Threshold)
	if st.QueryTokens != nil {
		s.queryTokens = st.QueryTokens
	}
	if st.Strategies != nil {
		s.strategies = st.Strategies
	}
	if st.Weights != nil {
		s.weights = st.Weights
	}
	return nil
}
