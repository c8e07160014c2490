package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/commentlens/internal/kvstore"
	"github.com/dshills/commentlens/internal/metrics"
)

// Cache policy defaults
const (
	DefaultMaxAge       = 7 * 24 * time.Hour
	DefaultQualityFloor = 0.7
	DefaultHotSize      = 10000

	// pruneFraction is the share of cache keys dropped when the store is full
	pruneFraction = 0.1
)

// ErrInvalidRecord is returned when a record has no vector
var ErrInvalidRecord = errors.New("record has no vector")

// Record is an immutable embedding entry, replaced wholesale on refresh
type Record struct {
	Fingerprint string    `json:"fingerprint"`
	Vector      []float32 `json:"vector"`
	Dimension   int       `json:"dimension"`
	CreatedAt   time.Time `json:"created_at"`
	Quality     float64   `json:"quality"`
	ProviderID  string    `json:"provider_id"`
}

// Status is derived from a record, the clock and the cache policy
type Status struct {
	Exists        bool
	Age           time.Duration
	Quality       float64
	IsValid       bool
	ShouldRefresh bool
}

// Store persists embedding records in a key-value store behind an LRU hot layer
type Store struct {
	kv      kvstore.Store
	hot     *lru.Cache[string, *Record]
	now     func() time.Time
	metrics *metrics.Metrics
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the time source used for record ages
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics attaches cache operation counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithHotSize sets the number of records kept in memory
func WithHotSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.hot, _ = lru.New[string, *Record](n)
		}
	}
}

// New creates a cache store over kv
func New(kv kvstore.Store, opts ...Option) *Store {
	hot, _ := lru.New[string, *Record](DefaultHotSize)
	s := &Store{
		kv:  kv,
		hot: hot,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func key(fingerprint string) string {
	return kvstore.PrefixEmbedding + fingerprint
}

// Get returns a copy of the record for fingerprint, or nil when absent
func (s *Store) Get(ctx context.Context, fingerprint string) (*Record, error) {
	if rec, ok := s.hot.Get(fingerprint); ok {
		s.metrics.RecordCacheOp("get", "hit")
		return rec.clone(), nil
	}

	data, err := s.kv.Get(ctx, key(fingerprint))
	if errors.Is(err, kvstore.ErrNotFound) {
		s.metrics.RecordCacheOp("get", "miss")
		return nil, nil
	}
	if err != nil {
		s.metrics.RecordCacheOp("get", "error")
		return nil, fmt.Errorf("read record %s: %w", fingerprint, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.metrics.RecordCacheOp("get", "error")
		return nil, fmt.Errorf("decode record %s: %w", fingerprint, err)
	}

	s.hot.Add(fingerprint, &rec)
	s.metrics.RecordCacheOp("get", "hit")
	return rec.clone(), nil
}

// Put writes rec under fingerprint, replacing any previous record. When the
// backing store is full the oldest cache entries are pruned and the write is
// retried once.
func (s *Store) Put(ctx context.Context, fingerprint string, rec *Record) error {
	if rec == nil || len(rec.Vector) == 0 {
		return ErrInvalidRecord
	}

	stored := rec.clone()
	stored.Fingerprint = fingerprint
	if stored.Dimension == 0 {
		stored.Dimension = len(stored.Vector)
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", fingerprint, err)
	}

	if err := kvstore.SetWithPrune(ctx, s.kv, key(fingerprint), data, kvstore.PrefixEmbedding, pruneFraction); err != nil {
		s.metrics.RecordCacheOp("put", "error")
		return fmt.Errorf("write record %s: %w", fingerprint, err)
	}

	// The hot layer may outlive pruned keys until LRU eviction
	s.hot.Add(fingerprint, stored)
	s.metrics.RecordCacheOp("put", "ok")
	return nil
}

// Invalidate removes the record for fingerprint
func (s *Store) Invalidate(ctx context.Context, fingerprint string) error {
	s.hot.Remove(fingerprint)
	if err := s.kv.Remove(ctx, key(fingerprint)); err != nil {
		return fmt.Errorf("remove record %s: %w", fingerprint, err)
	}
	return nil
}

// Status reports whether the record for fingerprint can be reused
func (s *Store) Status(ctx context.Context, fingerprint string, maxAge time.Duration, qualityFloor float64) (Status, error) {
	rec, err := s.Get(ctx, fingerprint)
	if err != nil {
		return Status{}, err
	}
	return StatusOf(rec, s.now(), maxAge, qualityFloor), nil
}

// StatusOf computes the cache status of rec at now
func StatusOf(rec *Record, now time.Time, maxAge time.Duration, qualityFloor float64) Status {
	if rec == nil {
		return Status{}
	}

	age := now.Sub(rec.CreatedAt)
	if age < 0 {
		age = 0
	}

	return Status{
		Exists:        true,
		Age:           age,
		Quality:       rec.Quality,
		IsValid:       age <= maxAge && rec.Quality >= qualityFloor,
		ShouldRefresh: age > maxAge || rec.Quality < qualityFloor,
	}
}

// Len returns the number of records held in the hot layer
func (s *Store) Len() int {
	return s.hot.Len()
}

func (r *Record) clone() *Record {
	out := *r
	out.Vector = make([]float32, len(r.Vector))
	copy(out.Vector, r.Vector)
	return &out
}
