package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/commentlens/internal/learning"
	"github.com/dshills/commentlens/internal/metrics"
	"github.com/dshills/commentlens/internal/ranking"
	"github.com/dshills/commentlens/internal/snapshot"
	"github.com/dshills/commentlens/internal/vectorstore"
	"github.com/dshills/commentlens/pkg/types"
)

// Config wires a Searcher
type Config struct {
	Orchestrator *Orchestrator
	Registry     *vectorstore.Registry
	Snapshots    *snapshot.Builder
	Ranker       *ranking.Engine
	Learning     *learning.Store
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Response contains ranked results and search metadata
type Response struct {
	SearchID       string
	Intent         types.Intent
	Results        []types.RankedResult
	StrategiesUsed []types.Strategy
	Runs           []StrategyRun
	Candidates     int
	Confidence     float64
	Duration       time.Duration
}

// Searcher runs the full query path: orchestrate, snapshot, rank
type Searcher struct {
	orch      *Orchestrator
	registry  *vectorstore.Registry
	snapshots *snapshot.Builder
	ranker    *ranking.Engine
	learning  *learning.Store
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Searcher; nil snapshot builder and ranker take defaults
func New(cfg Config) (*Searcher, error) {
	if cfg.Orchestrator == nil {
		return nil, fmt.Errorf("searcher: orchestrator is required")
	}
	s := &Searcher{
		orch:      cfg.Orchestrator,
		registry:  cfg.Registry,
		snapshots: cfg.Snapshots,
		ranker:    cfg.Ranker,
		learning:  cfg.Learning,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	if s.registry == nil {
		s.registry = cfg.Orchestrator.registry
	}
	if s.learning == nil {
		s.learning = cfg.Orchestrator.learning
	}
	if s.snapshots == nil {
		s.snapshots = snapshot.NewBuilder(snapshot.DefaultOptions())
	}
	if s.ranker == nil {
		s.ranker = ranking.NewEngine(ranking.Options{})
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Search answers req with ranked, diversity-filtered results
func (s *Searcher) Search(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	orch, err := s.orch.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	var results []types.RankedResult
	if len(orch.Candidates) > 0 {
		coll, ok := s.registry.Lookup(req.CollectionID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", vectorstore.ErrCollectionNotFound, req.CollectionID)
		}
		snap := s.snapshots.Build(coll)
		results = s.ranker.Rank(orch.Candidates, req.Query, orch.Intent, snap, req.MaxResults)
	}

	resp := &Response{
		SearchID:       uuid.NewString(),
		Intent:         orch.Intent,
		Results:        results,
		StrategiesUsed: orch.StrategiesUsed,
		Runs:           orch.Runs,
		Candidates:     len(orch.Candidates),
		Confidence:     orch.Confidence,
		Duration:       time.Since(startTime),
	}

	perStrategy := make(map[types.Strategy]int, len(orch.Runs))
	for _, run := range orch.Runs {
		perStrategy[run.Strategy] = run.Results
	}
	s.learning.RecordSearch(learning.SearchRecord{
		ID:         resp.SearchID,
		Query:      req.Query,
		Intent:     resp.Intent,
		Strategies: perStrategy,
		Results:    len(results),
		Confidence: resp.Confidence,
	})
	s.metrics.ObserveSearch(resp.Duration)

	s.logger.Debug("search completed",
		"id", resp.SearchID,
		"collection", req.CollectionID,
		"intent", resp.Intent,
		"candidates", resp.Candidates,
		"results", len(results),
		"duration", resp.Duration,
	)
	return resp, nil
}
