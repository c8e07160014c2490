package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/commentlens/internal/cachestore"
	"github.com/dshills/commentlens/internal/config"
	"github.com/dshills/commentlens/internal/decision"
	"github.com/dshills/commentlens/internal/embedder"
	"github.com/dshills/commentlens/internal/indexer"
	"github.com/dshills/commentlens/internal/kvstore"
	"github.com/dshills/commentlens/internal/learning"
	"github.com/dshills/commentlens/internal/metrics"
	"github.com/dshills/commentlens/internal/quota"
	"github.com/dshills/commentlens/internal/ranking"
	"github.com/dshills/commentlens/internal/searcher"
	"github.com/dshills/commentlens/internal/snapshot"
	"github.com/dshills/commentlens/internal/vectorstore"
)

const (
	// ServerName is the MCP server name
	ServerName = "commentlens"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	cfg      config.Config
	logger   *slog.Logger
	kv       kvstore.Store
	provider embedder.Embedder
	quota    *quota.Tracker
	cache    *cachestore.Store
	learning *learning.Store
	loop     *learning.Loop
	engine   *decision.Engine
	registry *vectorstore.Registry
	indexer  *indexer.Indexer
	searcher *searcher.Searcher

	closeOnce sync.Once
	closeErr  error
}

// Option customizes NewServer
type Option func(*serverOptions)

type serverOptions struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	kv         kvstore.Store
	provider   embedder.Embedder
}

// WithLogger sets the server logger
func WithLogger(l *slog.Logger) Option {
	return func(o *serverOptions) { o.logger = l }
}

// WithRegisterer enables Prometheus metrics on reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *serverOptions) { o.registerer = reg }
}

// WithStore replaces the SQLite store built from the configuration
func WithStore(kv kvstore.Store) Option {
	return func(o *serverOptions) { o.kv = kv }
}

// WithProvider replaces the embedding provider built from the configuration
func WithProvider(p embedder.Embedder) Option {
	return func(o *serverOptions) { o.provider = p }
}

// NewServer builds every engine component from cfg and registers the tools
func NewServer(cfg config.Config, opts ...Option) (*Server, error) {
	o := serverOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	m, err := metrics.New(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	kv := o.kv
	if kv == nil {
		kv, err = openStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	provider := o.provider
	if provider == nil {
		provider, err = embedder.New(cfg.EmbedderConfig())
		if err != nil {
			_ = kv.Close()
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	}

	ctx := context.Background()
	store := learning.NewStore(cfg.LearningOptions())
	if err := store.Load(ctx, kv); err != nil {
		o.logger.Warn("learning state not restored", "error", err)
	}

	tracker := quota.NewTracker(cfg.Quota)
	cache := cachestore.New(kv, cachestore.WithMetrics(m), cachestore.WithHotSize(cfg.Storage.HotCacheSize))

	engine, err := decision.NewEngine(decision.Config{
		Policy:       cfg.Policy,
		Quota:        tracker,
		Cache:        cache,
		Learning:     store,
		Primary:      provider,
		Metrics:      m,
		Logger:       o.logger.With("component", "decision"),
		EmbedTimeout: cfg.Embedding.Timeout.Duration,
	})
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("failed to create decision engine: %w", err)
	}

	registry := vectorstore.NewRegistry(kv, cfg.Storage.CollectionCap)
	if n, err := registry.LoadAll(ctx); err != nil {
		o.logger.Warn("collections not fully restored", "loaded", n, "error", err)
	}
	if _, err := registry.LoadPatterns(ctx); err != nil {
		o.logger.Warn("patterns not restored", "error", err)
	}

	policy := cfg.Policy
	if cfg.Search.Threshold > 0 {
		policy.SemanticThreshold = cfg.Search.Threshold
	}
	orch, err := searcher.NewOrchestrator(searcher.OrchestratorConfig{
		Embedder:        engine,
		Registry:        registry,
		Learning:        store,
		Policy:          policy,
		Metrics:         m,
		Logger:          o.logger.With("component", "orchestrator"),
		StrategyTimeout: cfg.Search.StrategyTimeout.Duration,
		CandidateLimit:  cfg.Search.CandidateLimit,
	})
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	srch, err := searcher.New(searcher.Config{
		Orchestrator: orch,
		Registry:     registry,
		Snapshots:    snapshot.NewBuilder(snapshot.DefaultOptions()),
		Ranker:       ranking.NewEngine(ranking.Options{MaxResults: cfg.Search.MaxResults}),
		Learning:     store,
		Metrics:      m,
		Logger:       o.logger.With("component", "searcher"),
	})
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	idx, err := indexer.New(indexer.Config{
		Processor: engine,
		Registry:  registry,
		Logger:    o.logger.With("component", "indexer"),
	})
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		cfg:      cfg,
		logger:   o.logger,
		kv:       kv,
		provider: provider,
		quota:    tracker,
		cache:    cache,
		learning: store,
		loop:     learning.NewLoop(store, kv, cfg.LoopConfig(), o.logger.With("component", "learning")),
		engine:   engine,
		registry: registry,
		indexer:  idx,
		searcher: srch,
	}
	s.registerTools()
	return s, nil
}

func openStore(cfg config.Config) (kvstore.Store, error) {
	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, err
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := kvstore.NewSQLiteStore(dbPath, cfg.Storage.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// Serve starts the learning loop, serves MCP on stdio and blocks until the
// client disconnects. Learning state is persisted on the way out.
func (s *Server) Serve(ctx context.Context) error {
	s.loop.Start(ctx)
	defer func() { _ = s.Close() }()
	return server.ServeStdio(s.mcp)
}

// Close stops the learning loop, persists learning state and releases storage
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.loop.Stop()
		var errs []error
		if err := s.learning.Persist(context.Background(), s.kv); err != nil {
			s.logger.Warn("learning state not persisted", "error", err)
		}
		if err := s.provider.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.kv.Close(); err != nil {
			errs = append(errs, err)
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(ingestCommentsTool(), s.handleIngestComments)
	s.mcp.AddTool(searchCommentsTool(), s.handleSearchComments)
	s.mcp.AddTool(explainDecisionTool(), s.handleExplainDecision)
	s.mcp.AddTool(addPatternTool(), s.handleAddPattern)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
