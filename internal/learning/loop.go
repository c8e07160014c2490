package learning

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/commentlens/internal/kvstore"
	"github.com/dshills/commentlens/pkg/types"
)

// Loop defaults
const (
	DefaultInterval   = time.Hour
	DefaultStep       = 0.02
	DefaultMinSamples = 10

	highComputeRate = 0.6
	lowComputeRate  = 0.15
	scarceQuota     = 0.3
	ampleQuota      = 0.7
)

// LoopConfig configures the adaptation loop
type LoopConfig struct {
	Interval   time.Duration
	Step       float64
	MinSamples int
}

// AdaptResult describes one adaptation pass
type AdaptResult struct {
	Samples         int
	ComputeRate     float64
	MeanQuota       float64
	ThresholdBefore float64
	ThresholdAfter  float64
	WeightsUpdated  int
}

// Loop periodically tunes the decision threshold and strategy weights from
// the store's recent logs. It only writes through the store's locks, so the
// request path never waits on it longer than a map update.
type Loop struct {
	store  *Store
	kv     kvstore.Store
	cfg    LoopConfig
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewLoop creates a loop over store; kv may be nil to skip persistence
func NewLoop(store *Store, kv kvstore.Store, cfg LoopConfig, logger *slog.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{store: store, kv: kv, cfg: cfg, logger: logger}
}

// Start launches the background ticker. Calling Start twice is a no-op.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})

	l.wg.Add(1)
	go l.run(ctx, l.stopCh)
}

// Stop signals the loop to exit and waits for it
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	l.mu.Unlock()

	l.wg.Wait()
}

func (l *Loop) run(ctx context.Context, stopCh <-chan struct{}) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			l.Adapt(ctx)
		}
	}
}

// Adapt runs one adaptation pass and persists the result best-effort
func (l *Loop) Adapt(ctx context.Context) AdaptResult {
	var decisions []types.Decision
	for _, d := range l.store.Decisions() {
		if !d.Query {
			decisions = append(decisions, d)
		}
	}
	res := AdaptResult{
		Samples:         len(decisions),
		ThresholdBefore: l.store.Threshold(),
	}
	res.ThresholdAfter = res.ThresholdBefore

	if len(decisions) >= l.cfg.MinSamples {
		computed := 0
		var quota float64
		for _, d := range decisions {
			if d.Outcome == types.OutcomeCompute {
				computed++
			}
			quota += d.Factors.QuotaAvailability
		}
		res.ComputeRate = float64(computed) / float64(len(decisions))
		res.MeanQuota = quota / float64(len(decisions))

		switch {
		case res.ComputeRate > highComputeRate || res.MeanQuota < scarceQuota:
			res.ThresholdAfter = l.store.SetThreshold(res.ThresholdBefore + l.cfg.Step)
		case res.ComputeRate < lowComputeRate && res.MeanQuota > ampleQuota:
			res.ThresholdAfter = l.store.SetThreshold(res.ThresholdBefore - l.cfg.Step)
		}
	}

	res.WeightsUpdated = l.store.recomputeWeights()

	if l.kv != nil {
		if err := l.store.Persist(ctx, l.kv); err != nil {
			l.logger.Warn("learning state not persisted", "error", err)
		}
	}

	l.logger.Info("adaptation pass",
		"samples", res.Samples,
		"compute_rate", res.ComputeRate,
		"mean_quota", res.MeanQuota,
		"threshold_before", res.ThresholdBefore,
		"threshold_after", res.ThresholdAfter,
		"weights_updated", res.WeightsUpdated,
	)
	return res
}
