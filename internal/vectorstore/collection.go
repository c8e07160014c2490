package vectorstore

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// DefaultMaxSize is the per-collection entry cap
const DefaultMaxSize = 1000

var (
	ErrDuplicateEntry     = errors.New("entry already exists")
	ErrDimensionMismatch  = errors.New("vector dimension mismatch")
	ErrInvalidEntry       = errors.New("invalid entry")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrEntryPruned        = errors.New("entry older than every retained entry")
)

// Entry is one stored comment vector. The vector is never mutated after insert.
type Entry struct {
	ID            string
	Vector        []float32
	Author        string
	ReplyToAuthor string
	Text          string
	Likes         int
	Replies       int
	Sentiment     float64 // -1..1
	StoredAt      time.Time
}

// Engagement returns the combined engagement count (replies weigh double)
func (e *Entry) Engagement() int {
	return e.Likes + 2*e.Replies
}

// Match is a KNN hit
type Match struct {
	Entry      *Entry
	Similarity float64
}

// SearchOptions bounds a KNN query
type SearchOptions struct {
	Threshold float64
	Limit     int // 0 means unlimited
}

// Collection is an append-only, prunable set of vectors for one logical
// group of comments. Safe for concurrent use.
type Collection struct {
	id      string
	maxSize int

	mu        sync.RWMutex
	dimension int
	entries   []*Entry
	byID      map[string]*Entry
}

// NewCollection creates an empty collection. maxSize <= 0 selects DefaultMaxSize.
func NewCollection(id string, maxSize int) *Collection {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Collection{
		id:      id,
		maxSize: maxSize,
		byID:    make(map[string]*Entry),
	}
}

// ID returns the collection identifier
func (c *Collection) ID() string { return c.id }

// MaxSize returns the entry cap
func (c *Collection) MaxSize() int { return c.maxSize }

// Dimension returns the vector width, or 0 while the collection is empty
func (c *Collection) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dimension
}

// Len returns the number of stored entries
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Insert adds one entry and prunes the oldest entries past the cap. When the
// collection is full and e is older than everything in it, e itself is the
// entry pruned and ErrEntryPruned is returned; the collection is unchanged.
func (c *Collection) Insert(e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.insertLocked(e); err != nil {
		return err
	}
	c.pruneLocked(c.maxSize)
	if _, ok := c.byID[e.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrEntryPruned, e.ID)
	}
	return nil
}

// InsertBatch adds entries, skipping the invalid ones. It returns the number
// inserted and the joined errors of the rejected entries. The count is taken
// before pruning, so callers compare Len before and after to learn how many
// entries (new or old) the cap removed.
func (c *Collection) InsertBatch(entries []Entry) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	inserted := 0
	for _, e := range entries {
		if err := c.insertLocked(e); err != nil {
			errs = append(errs, err)
			continue
		}
		inserted++
	}
	c.pruneLocked(c.maxSize)
	return inserted, errors.Join(errs...)
}

func (c *Collection) insertLocked(e Entry) error {
	if e.ID == "" || len(e.Vector) == 0 {
		return fmt.Errorf("%w: id and vector are required", ErrInvalidEntry)
	}
	if _, exists := c.byID[e.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, e.ID)
	}
	if c.dimension != 0 && len(e.Vector) != c.dimension {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(e.Vector), c.dimension)
	}
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now()
	}

	entry := e
	entry.Vector = slices.Clone(e.Vector)
	if c.dimension == 0 {
		c.dimension = len(entry.Vector)
	}
	c.entries = append(c.entries, &entry)
	c.byID[entry.ID] = &entry
	return nil
}

// Prune removes the oldest entries by StoredAt until at most maxSize remain.
// It returns the number removed.
func (c *Collection) Prune(maxSize int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked(maxSize)
}

func (c *Collection) pruneLocked(maxSize int) int {
	if maxSize < 0 {
		maxSize = 0
	}
	excess := len(c.entries) - maxSize
	if excess <= 0 {
		return 0
	}

	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].StoredAt.Before(c.entries[j].StoredAt)
	})
	for _, e := range c.entries[:excess] {
		delete(c.byID, e.ID)
	}
	c.entries = slices.Clone(c.entries[excess:])
	if len(c.entries) == 0 {
		c.dimension = 0
	}
	return excess
}

// KNN returns entries whose cosine similarity to query is at least
// opts.Threshold, most similar first, truncated to opts.Limit. An empty
// collection yields no matches; a query of the wrong width is
// ErrDimensionMismatch.
func (c *Collection) KNN(query []float32, opts SearchOptions) ([]Match, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.dimension == 0 {
		return nil, nil
	}
	if len(query) != c.dimension {
		return nil, fmt.Errorf("%w: query has %d, collection %s has %d",
			ErrDimensionMismatch, len(query), c.id, c.dimension)
	}

	var matches []Match
	for _, e := range c.entries {
		sim := CosineSimilarity(query, e.Vector)
		if sim >= opts.Threshold {
			matches = append(matches, Match{Entry: e, Similarity: sim})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Entry.ID < matches[j].Entry.ID
	})
	if opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

// Get returns the entry with the given id
func (c *Collection) Get(id string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[id]
	return e, ok
}

// Entries returns a snapshot of the stored entries in StoredAt order
func (c *Collection) Entries() []*Entry {
	c.mu.RLock()
	out := slices.Clone(c.entries)
	c.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StoredAt.Before(out[j].StoredAt)
	})
	return out
}
