// Package metrics exposes Prometheus collectors for the embedding and
// retrieval pipeline. Every method is safe on a nil *Metrics, so components
// run unchanged when metrics are disabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "commentlens"

// Metrics holds Prometheus metrics for the engine
type Metrics struct {
	decisions        *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
	strategyRuns     *prometheus.CounterVec
	searchDuration   prometheus.Histogram
	cacheOps         *prometheus.CounterVec
	quotaAvailable   *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg. A nil registerer
// returns nil metrics.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Embedding decisions by outcome and reason",
			},
			[]string{"outcome", "reason"},
		),
		providerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_failures_total",
				Help:      "Embedding provider calls that failed",
			},
			[]string{"provider"},
		),
		strategyRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "strategy_runs_total",
				Help:      "Search strategy executions by status",
			},
			[]string{"strategy", "status"},
		),
		searchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "End-to-end search latency",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_ops_total",
				Help:      "Embedding cache operations by result",
			},
			[]string{"op", "result"},
		),
		quotaAvailable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "quota_available",
				Help:      "Remaining provider quota fraction per window",
			},
			[]string{"window"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.decisions, m.providerFailures, m.strategyRuns,
		m.searchDuration, m.cacheOps, m.quotaAvailable,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// RecordDecision counts one embedding decision
func (m *Metrics) RecordDecision(outcome, reason string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome, reason).Inc()
}

// RecordProviderFailure counts a failed provider call
func (m *Metrics) RecordProviderFailure(provider string) {
	if m == nil {
		return
	}
	m.providerFailures.WithLabelValues(provider).Inc()
}

// RecordStrategy counts one strategy execution; status is "ok", "empty" or "failed"
func (m *Metrics) RecordStrategy(strategy, status string) {
	if m == nil {
		return
	}
	m.strategyRuns.WithLabelValues(strategy, status).Inc()
}

// ObserveSearch records a search latency
func (m *Metrics) ObserveSearch(d time.Duration) {
	if m == nil {
		return
	}
	m.searchDuration.Observe(d.Seconds())
}

// RecordCacheOp counts a cache operation such as ("get", "hit") or ("put", "error")
func (m *Metrics) RecordCacheOp(op, result string) {
	if m == nil {
		return
	}
	m.cacheOps.WithLabelValues(op, result).Inc()
}

// SetQuota publishes the remaining fraction for a window
func (m *Metrics) SetQuota(window string, fraction float64) {
	if m == nil {
		return
	}
	m.quotaAvailable.WithLabelValues(window).Set(fraction)
}
