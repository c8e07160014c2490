package searcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/commentlens/internal/intent"
	"github.com/dshills/commentlens/internal/learning"
	"github.com/dshills/commentlens/internal/metrics"
	"github.com/dshills/commentlens/internal/scoring"
	"github.com/dshills/commentlens/internal/vectorstore"
	"github.com/dshills/commentlens/pkg/types"
)

// Orchestrator defaults
const (
	DefaultStrategyTimeout = 5 * time.Second
	DefaultCandidateLimit  = 50
	DefaultExactMinOverlap = 0.5
	DefaultMaxExpansions   = 3
)

var (
	// ErrEmptyQuery is returned for blank queries
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrMissingCollection is returned when no collection id is given
	ErrMissingCollection = errors.New("collection id is required")
	// ErrUnknownStrategy is returned for an unrecognized strategy override
	ErrUnknownStrategy = errors.New("unknown strategy")
)

// QueryEmbedder turns a query into a vector through the embedding gate
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, types.Decision, error)
}

// OrchestratorConfig wires an Orchestrator
type OrchestratorConfig struct {
	Embedder QueryEmbedder
	Registry *vectorstore.Registry
	Learning *learning.Store
	Policy   scoring.Policy
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	StrategyTimeout time.Duration
	CandidateLimit  int
	ExactMinOverlap float64
	MaxExpansions   int
}

// Orchestrator runs the retrieval strategies and merges their candidates
type Orchestrator struct {
	embedder QueryEmbedder
	registry *vectorstore.Registry
	learning *learning.Store
	policy   scoring.Policy
	metrics  *metrics.Metrics
	logger   *slog.Logger

	strategyTimeout time.Duration
	candidateLimit  int
	exactMinOverlap float64
	maxExpansions   int
}

// NewOrchestrator validates cfg and builds an orchestrator
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Embedder == nil || cfg.Registry == nil || cfg.Learning == nil {
		return nil, fmt.Errorf("searcher: embedder, registry and learning store are required")
	}

	o := &Orchestrator{
		embedder:        cfg.Embedder,
		registry:        cfg.Registry,
		learning:        cfg.Learning,
		policy:          cfg.Policy,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		strategyTimeout: cfg.StrategyTimeout,
		candidateLimit:  cfg.CandidateLimit,
		exactMinOverlap: cfg.ExactMinOverlap,
		maxExpansions:   cfg.MaxExpansions,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.strategyTimeout <= 0 {
		o.strategyTimeout = DefaultStrategyTimeout
	}
	if o.candidateLimit <= 0 {
		o.candidateLimit = DefaultCandidateLimit
	}
	if o.exactMinOverlap <= 0 {
		o.exactMinOverlap = DefaultExactMinOverlap
	}
	if o.maxExpansions <= 0 {
		o.maxExpansions = DefaultMaxExpansions
	}
	return o, nil
}

// Request describes one search
type Request struct {
	Query        string
	CollectionID string

	// Strategies overrides the intent-selected strategies when non-empty
	Strategies []types.Strategy
	// Threshold overrides the semantic similarity threshold when > 0
	Threshold float64
	// Limit caps candidates per strategy when > 0
	Limit int
	// MaxResults caps ranked results when > 0
	MaxResults int
}

// StrategyRun reports what one strategy contributed
type StrategyRun struct {
	Strategy types.Strategy
	Weight   float64
	Results  int
	Duration time.Duration
	Err      error
}

// Orchestration is the merged output of the strategies
type Orchestration struct {
	Intent         types.Intent
	Candidates     []types.Candidate
	StrategiesUsed []types.Strategy
	Runs           []StrategyRun
	Confidence     float64
}

// hit is one strategy-local result before merging
type hit struct {
	entry      *vectorstore.Entry
	similarity float64
	expansion  string
	pattern    string
}

// Run classifies the query, runs the selected strategies concurrently and
// merges their candidates. Strategy failures only empty that strategy.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Orchestration, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	if req.CollectionID == "" {
		return nil, ErrMissingCollection
	}
	coll, ok := o.registry.Lookup(req.CollectionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, req.CollectionID)
	}

	classified := intent.Classify(req.Query)
	strategies := req.Strategies
	if len(strategies) == 0 {
		strategies = StrategiesFor(classified.Intent)
	}
	for _, s := range strategies {
		if !slices.Contains(types.AllStrategies, s) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
		}
	}

	threshold := req.Threshold
	if threshold <= 0 {
		threshold = o.policy.SemanticThreshold
	}
	limit := req.Limit
	if limit <= 0 {
		limit = o.candidateLimit
	}

	// The semantic and pattern strategies share one query embedding
	queryVector := sync.OnceValues(func() ([]float32, error) {
		vec, _, err := o.embedder.EmbedQuery(ctx, req.Query)
		return vec, err
	})

	runs := make([]StrategyRun, len(strategies))
	hits := make([][]hit, len(strategies))

	var g errgroup.Group
	for i, s := range strategies {
		g.Go(func() error {
			weight := o.learning.StrategyWeight(classified.Intent, s)
			start := time.Now()
			res, err := o.runStrategy(ctx, s, strategyInput{
				query:       req.Query,
				intent:      classified.Intent,
				collection:  coll,
				threshold:   threshold,
				limit:       limit,
				queryVector: queryVector,
			})
			runs[i] = StrategyRun{Strategy: s, Weight: weight, Results: len(res), Duration: time.Since(start), Err: err}
			if err == nil {
				hits[i] = res
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, run := range runs {
		o.learning.RecordStrategyOutcome(classified.Intent, run.Strategy, run.Err == nil && run.Results > 0)
		o.metrics.RecordStrategy(string(run.Strategy), strategyStatus(run))
		if run.Err != nil {
			o.logger.Warn("search strategy failed",
				"strategy", run.Strategy,
				"collection", req.CollectionID,
				"intent", classified.Intent,
				"error", run.Err,
			)
		}
	}

	candidates := merge(runs, hits)
	return &Orchestration{
		Intent:         classified.Intent,
		Candidates:     candidates,
		StrategiesUsed: slices.Clone(strategies),
		Runs:           runs,
		Confidence:     confidence(runs, candidates),
	}, nil
}

func strategyStatus(run StrategyRun) string {
	switch {
	case errors.Is(run.Err, context.DeadlineExceeded):
		return "timeout"
	case run.Err != nil:
		return "error"
	case run.Results == 0:
		return "empty"
	default:
		return "ok"
	}
}

type strategyInput struct {
	query       string
	intent      types.Intent
	collection  *vectorstore.Collection
	threshold   float64
	limit       int
	queryVector func() ([]float32, error)
}

// runStrategy executes one strategy under its own timeout
func (o *Orchestrator) runStrategy(ctx context.Context, s types.Strategy, in strategyInput) ([]hit, error) {
	ctx, cancel := context.WithTimeout(ctx, o.strategyTimeout)
	defer cancel()

	type outcome struct {
		hits []hit
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		var out outcome
		switch s {
		case types.StrategyExact:
			out.hits = o.exact(in)
		case types.StrategySemantic:
			out.hits, out.err = o.semantic(in)
		case types.StrategyContext:
			out.hits, out.err = o.contextExpanded(ctx, in)
		case types.StrategyPattern:
			out.hits, out.err = o.pattern(in)
		default:
			out.err = fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
		}
		done <- out
	}()

	select {
	case out := <-done:
		return out.hits, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) exact(in strategyInput) []hit {
	terms := queryTerms(in.query)
	var hits []hit
	for _, e := range in.collection.Entries() {
		overlap := tokenOverlap(terms, e.Text)
		if overlap >= o.exactMinOverlap {
			hits = append(hits, hit{entry: e, similarity: overlap})
		}
	}
	sortHits(hits)
	if len(hits) > in.limit {
		hits = hits[:in.limit]
	}
	return hits
}

func (o *Orchestrator) semantic(in strategyInput) ([]hit, error) {
	vec, err := in.queryVector()
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := in.collection.KNN(vec, vectorstore.SearchOptions{Threshold: in.threshold, Limit: in.limit})
	if err != nil {
		return nil, err
	}
	hits := make([]hit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, hit{entry: m.Entry, similarity: m.Similarity})
	}
	return hits, nil
}

func (o *Orchestrator) contextExpanded(ctx context.Context, in strategyInput) ([]hit, error) {
	variants := expandQuery(in.query, in.intent, o.maxExpansions)
	if len(variants) == 0 {
		return nil, nil
	}

	threshold := in.threshold * o.policy.ContextRelax
	var (
		hits    []hit
		lastErr error
		ok      int
	)
	for _, v := range variants {
		if err := ctx.Err(); err != nil {
			return hits, err
		}
		vec, _, err := o.embedder.EmbedQuery(ctx, v)
		if err != nil {
			lastErr = err
			continue
		}
		ok++
		matches, err := in.collection.KNN(vec, vectorstore.SearchOptions{Threshold: threshold, Limit: in.limit})
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			hits = append(hits, hit{entry: m.Entry, similarity: m.Similarity, expansion: v})
		}
	}
	if ok == 0 {
		return nil, fmt.Errorf("embed expansions: %w", lastErr)
	}
	sortHits(hits)
	return hits, nil
}

// pattern finds comments close to the exemplars the query itself resembles
func (o *Orchestrator) pattern(in strategyInput) ([]hit, error) {
	patterns := o.registry.Patterns()
	if len(patterns) == 0 {
		return nil, nil
	}
	vec, err := in.queryVector()
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	threshold := o.policy.PatternThreshold
	var hits []hit
	for _, p := range patterns {
		if vectorstore.CosineSimilarity(vec, p.Vector) < threshold {
			continue
		}
		matches, err := in.collection.KNN(p.Vector, vectorstore.SearchOptions{Threshold: threshold, Limit: in.limit})
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", p.Name, err)
		}
		for _, m := range matches {
			hits = append(hits, hit{entry: m.Entry, similarity: m.Similarity, pattern: p.Name})
		}
	}
	sortHits(hits)
	return hits, nil
}

func sortHits(hits []hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].similarity != hits[j].similarity {
			return hits[i].similarity > hits[j].similarity
		}
		return hits[i].entry.ID < hits[j].entry.ID
	})
}

// merge folds strategy hits into candidates keyed by entry id. Each candidate
// keeps its best raw and weighted similarity and the strategies that found it.
func merge(runs []StrategyRun, hits [][]hit) []types.Candidate {
	byID := make(map[string]*types.Candidate)
	var order []string

	for i, run := range runs {
		for _, h := range hits[i] {
			c, ok := byID[h.entry.ID]
			if !ok {
				c = &types.Candidate{
					EntryID:        h.entry.ID,
					Author:         h.entry.Author,
					Text:           h.entry.Text,
					Likes:          h.entry.Likes,
					Replies:        h.entry.Replies,
					Sentiment:      h.entry.Sentiment,
					StoredAt:       h.entry.StoredAt,
					StrategyScores: make(map[types.Strategy]float64),
				}
				byID[h.entry.ID] = c
				order = append(order, h.entry.ID)
			}

			c.Similarity = max(c.Similarity, h.similarity)
			c.Score = max(c.Score, h.similarity*run.Weight)
			c.StrategyScores[run.Strategy] = max(c.StrategyScores[run.Strategy], h.similarity)
			if !slices.Contains(c.Strategies, run.Strategy) {
				c.Strategies = append(c.Strategies, run.Strategy)
			}
			if h.expansion != "" && !slices.Contains(c.Expansions, h.expansion) {
				c.Expansions = append(c.Expansions, h.expansion)
			}
			if h.pattern != "" && !slices.Contains(c.Patterns, h.pattern) {
				c.Patterns = append(c.Patterns, h.pattern)
			}
		}
	}

	out := make([]types.Candidate, 0, len(order))
	for _, id := range order {
		c := byID[id]
		slices.SortFunc(c.Strategies, func(a, b types.Strategy) int {
			return slices.Index(types.AllStrategies, a) - slices.Index(types.AllStrategies, b)
		})
		out = append(out, *c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].EntryID < out[j].EntryID
	})
	return out
}

// confidence blends the best candidate score with the share of strategies
// that produced anything
func confidence(runs []StrategyRun, candidates []types.Candidate) float64 {
	if len(candidates) == 0 || len(runs) == 0 {
		return 0
	}
	productive := 0
	for _, r := range runs {
		if r.Err == nil && r.Results > 0 {
			productive++
		}
	}
	v := 0.6*candidates[0].Score + 0.4*float64(productive)/float64(len(runs))
	return min(1, max(0, v))
}
