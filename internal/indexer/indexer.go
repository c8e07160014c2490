package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dshills/commentlens/internal/decision"
	"github.com/dshills/commentlens/internal/vectorstore"
	"github.com/dshills/commentlens/pkg/types"
)

var (
	// ErrIndexingInProgress is returned when the collection is already being ingested
	ErrIndexingInProgress = errors.New("indexing already in progress for this collection")
	// ErrMissingCollection is returned when no collection id is given
	ErrMissingCollection = errors.New("collection id is required")
)

// BatchProcessor decides on and vectorizes a batch of units
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, units []types.TextUnit) decision.BatchResult
}

// Config wires an Indexer
type Config struct {
	Processor BatchProcessor
	Registry  *vectorstore.Registry
	Logger    *slog.Logger
	Now       func() time.Time
}

// Indexer coordinates the ingestion pipeline: decide -> vectorize -> store
type Indexer struct {
	processor BatchProcessor
	registry  *vectorstore.Registry
	logger    *slog.Logger
	now       func() time.Time
	locks     lockSet
}

// Statistics contains statistics about one ingestion run
type Statistics struct {
	CollectionID  string
	Received      int
	Invalid       int // dropped before any decision for lacking an id
	Duplicates    int // already stored or repeated within the batch
	Decided       int
	Computed      int
	Reused        int
	Skipped       map[types.ReasonCode]int
	Failed        int
	Inserted      int
	Pruned        int
	Persisted     bool
	Tiers         map[decision.Tier]int
	Duration      time.Duration
	ErrorMessages []string
}

// New creates a new Indexer instance
func New(cfg Config) (*Indexer, error) {
	if cfg.Processor == nil || cfg.Registry == nil {
		return nil, fmt.Errorf("indexer: processor and registry are required")
	}
	idx := &Indexer{
		processor: cfg.Processor,
		registry:  cfg.Registry,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if idx.logger == nil {
		idx.logger = slog.Default()
	}
	if idx.now == nil {
		idx.now = time.Now
	}
	return idx, nil
}

// Indexing reports whether collectionID is being ingested right now
func (idx *Indexer) Indexing(collectionID string) bool {
	return idx.locks.get(collectionID).Held()
}

// IndexComments runs units through the decision engine and stores every
// vectorized unit in the collection. Per-unit failures are counted in the
// statistics; only a busy collection or a cancelled context is an error.
func (idx *Indexer) IndexComments(ctx context.Context, collectionID string, units []types.TextUnit) (*Statistics, error) {
	if collectionID == "" {
		return nil, ErrMissingCollection
	}

	lock := idx.locks.get(collectionID)
	if !lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer lock.Release()

	startTime := idx.now()
	stats := &Statistics{
		CollectionID:  collectionID,
		Received:      len(units),
		Skipped:       make(map[types.ReasonCode]int),
		ErrorMessages: make([]string, 0),
	}

	coll := idx.registry.Collection(collectionID)
	pending := idx.filter(coll, units, stats)

	batch := idx.processor.ProcessBatch(ctx, pending)
	stats.Tiers = batch.Tiers

	entries := make([]vectorstore.Entry, 0, len(batch.Results))
	for _, r := range batch.Results {
		if r.Decision.ID == "" {
			continue
		}
		stats.Decided++

		switch {
		case r.FromCache:
			stats.Reused++
		case r.Vectorized:
			stats.Computed++
		case r.Reason == types.ReasonAllMethodsFailed:
			stats.Failed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %s", r.Unit.ID, r.Reason))
		default:
			stats.Skipped[r.Reason]++
		}

		if r.Vectorized {
			entries = append(entries, idx.entryFor(r))
		}
	}

	before := coll.Len()
	inserted, err := coll.InsertBatch(entries)
	if err != nil {
		stats.ErrorMessages = append(stats.ErrorMessages, err.Error())
		idx.logger.Warn("some entries rejected", "collection", collectionID, "error", err)
	}
	stats.Inserted = inserted
	stats.Pruned = before + inserted - coll.Len()

	if inserted > 0 {
		if err := idx.registry.Save(context.WithoutCancel(ctx), collectionID); err != nil {
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("persist: %v", err))
			idx.logger.Warn("collection not persisted", "collection", collectionID, "error", err)
		} else {
			stats.Persisted = true
		}
	}

	stats.Duration = idx.now().Sub(startTime)
	idx.logger.Info("comments indexed",
		"collection", collectionID,
		"received", stats.Received,
		"computed", stats.Computed,
		"reused", stats.Reused,
		"skipped", len(pending)-stats.Computed-stats.Reused-stats.Failed,
		"failed", stats.Failed,
		"inserted", stats.Inserted,
		"pruned", stats.Pruned,
		"duration", stats.Duration,
	)

	if batch.Err != nil {
		return stats, fmt.Errorf("indexing interrupted: %w", batch.Err)
	}
	return stats, nil
}

// filter drops units without an id and units already stored, so no quota is
// spent on them. Blank text still goes to the processor, which records an
// invalid_input decision for it.
func (idx *Indexer) filter(coll *vectorstore.Collection, units []types.TextUnit, stats *Statistics) []types.TextUnit {
	seen := make(map[string]struct{}, len(units))
	pending := make([]types.TextUnit, 0, len(units))
	for _, u := range units {
		if err := u.Validate(); errors.Is(err, types.ErrMissingID) {
			stats.Invalid++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%q: %v", u.ID, err))
			continue
		}
		if _, dup := seen[u.ID]; dup {
			stats.Duplicates++
			continue
		}
		seen[u.ID] = struct{}{}
		if _, exists := coll.Get(u.ID); exists {
			stats.Duplicates++
			continue
		}
		pending = append(pending, u)
	}
	return pending
}

func (idx *Indexer) entryFor(r decision.VectorizeResult) vectorstore.Entry {
	c := r.Unit.Context
	storedAt := c.PublishedAt
	if storedAt.IsZero() {
		storedAt = idx.now()
	}
	return vectorstore.Entry{
		ID:            r.Unit.ID,
		Vector:        r.Vector,
		Author:        c.Author,
		ReplyToAuthor: c.ReplyToAuthor,
		Text:          r.Unit.Text,
		Likes:         c.Likes,
		Replies:       c.Replies,
		Sentiment:     c.Sentiment.Score(),
		StoredAt:      storedAt,
	}
}
