package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dshills/commentlens/internal/kvstore"
)

// pruneFraction is the share of persisted collections dropped when the
// backing store runs out of room
const pruneFraction = 0.1

// Pattern is a named exemplar vector used by the pattern search strategy
type Pattern struct {
	Name      string
	Text      string
	Vector    []float32
	CreatedAt time.Time
}

// Registry owns the collections and the global pattern set
type Registry struct {
	kv      kvstore.Store
	maxSize int

	mu          sync.RWMutex
	collections map[string]*Collection
	patterns    map[string]Pattern
}

// NewRegistry creates a registry backed by kv. maxSize <= 0 selects DefaultMaxSize.
func NewRegistry(kv kvstore.Store, maxSize int) *Registry {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Registry{
		kv:          kv,
		maxSize:     maxSize,
		collections: make(map[string]*Collection),
		patterns:    make(map[string]Pattern),
	}
}

// Collection returns the collection with id, creating it if needed
func (r *Registry) Collection(id string) *Collection {
	r.mu.RLock()
	c, ok := r.collections[id]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.collections[id]; ok {
		return c
	}
	c = NewCollection(id, r.maxSize)
	r.collections[id] = c
	return c
}

// Lookup returns an existing collection without creating one
func (r *Registry) Lookup(id string) (*Collection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[id]
	return c, ok
}

// IDs lists the registered collections in sorted order
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.collections))
	for id := range r.collections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddPattern registers or replaces a named pattern and persists it when a
// backing store is configured
func (r *Registry) AddPattern(ctx context.Context, p Pattern) error {
	if p.Name == "" || len(p.Vector) == 0 {
		return fmt.Errorf("%w: pattern name and vector are required", ErrInvalidEntry)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.Vector = slices.Clone(p.Vector)

	r.mu.Lock()
	r.patterns[p.Name] = p
	r.mu.Unlock()

	if r.kv == nil {
		return nil
	}
	data, err := json.Marshal(toPersistedPattern(p))
	if err != nil {
		return fmt.Errorf("encode pattern: %w", err)
	}
	return kvstore.SetWithPrune(ctx, r.kv, kvstore.PrefixPattern+p.Name, data, kvstore.PrefixPattern, pruneFraction)
}

// Patterns returns the registered patterns sorted by name
func (r *Registry) Patterns() []Pattern {
	r.mu.RLock()
	out := make([]Pattern, 0, len(r.patterns))
	for _, p := range r.patterns {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadPatterns reads every persisted pattern into the registry
func (r *Registry) LoadPatterns(ctx context.Context) (int, error) {
	if r.kv == nil {
		return 0, nil
	}
	keys, err := r.kv.Keys(ctx, kvstore.PrefixPattern)
	if err != nil {
		return 0, fmt.Errorf("list patterns: %w", err)
	}

	loaded := 0
	for _, key := range keys {
		data, err := r.kv.Get(ctx, key)
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return loaded, fmt.Errorf("read pattern %s: %w", key, err)
		}
		var pp persistedPattern
		if err := json.Unmarshal(data, &pp); err != nil {
			return loaded, fmt.Errorf("decode pattern %s: %w", key, err)
		}
		p, err := pp.pattern()
		if err != nil {
			return loaded, fmt.Errorf("decode pattern %s: %w", key, err)
		}
		r.mu.Lock()
		r.patterns[p.Name] = p
		r.mu.Unlock()
		loaded++
	}
	return loaded, nil
}

// Save persists the collection with id
func (r *Registry) Save(ctx context.Context, id string) error {
	c, ok := r.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, id)
	}
	if r.kv == nil {
		return nil
	}

	data, err := json.Marshal(toPersistedCollection(c))
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	return kvstore.SetWithPrune(ctx, r.kv, kvstore.PrefixCollection+id, data, kvstore.PrefixCollection, pruneFraction)
}

// Load reads the persisted collection with id, replacing any in-memory copy
func (r *Registry) Load(ctx context.Context, id string) (*Collection, error) {
	if r.kv == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, id)
	}
	data, err := r.kv.Get(ctx, kvstore.PrefixCollection+id)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read collection: %w", err)
	}

	var pc persistedCollection
	if err := json.Unmarshal(data, &pc); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	c, err := pc.collection(r.maxSize)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.collections[id] = c
	r.mu.Unlock()
	return c, nil
}

// LoadAll loads every persisted collection
func (r *Registry) LoadAll(ctx context.Context) (int, error) {
	if r.kv == nil {
		return 0, nil
	}
	keys, err := r.kv.Keys(ctx, kvstore.PrefixCollection)
	if err != nil {
		return 0, fmt.Errorf("list collections: %w", err)
	}
	loaded := 0
	for _, key := range keys {
		if _, err := r.Load(ctx, strings.TrimPrefix(key, kvstore.PrefixCollection)); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}

type persistedEntry struct {
	ID            string    `json:"id"`
	Vector        []byte    `json:"vector"`
	Author        string    `json:"author,omitempty"`
	ReplyToAuthor string    `json:"reply_to_author,omitempty"`
	Text          string    `json:"text"`
	Likes         int       `json:"likes"`
	Replies       int       `json:"replies"`
	Sentiment     float64   `json:"sentiment"`
	StoredAt      time.Time `json:"stored_at"`
}

type persistedCollection struct {
	ID        string           `json:"id"`
	Dimension int              `json:"dimension"`
	Entries   []persistedEntry `json:"entries"`
}

type persistedPattern struct {
	Name      string    `json:"name"`
	Text      string    `json:"text,omitempty"`
	Vector    []byte    `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}

func toPersistedCollection(c *Collection) persistedCollection {
	entries := c.Entries()
	pc := persistedCollection{
		ID:        c.ID(),
		Dimension: c.Dimension(),
		Entries:   make([]persistedEntry, 0, len(entries)),
	}
	for _, e := range entries {
		pc.Entries = append(pc.Entries, persistedEntry{
			ID:            e.ID,
			Vector:        SerializeVector(e.Vector),
			Author:        e.Author,
			ReplyToAuthor: e.ReplyToAuthor,
			Text:          e.Text,
			Likes:         e.Likes,
			Replies:       e.Replies,
			Sentiment:     e.Sentiment,
			StoredAt:      e.StoredAt,
		})
	}
	return pc
}

func (pc persistedCollection) collection(maxSize int) (*Collection, error) {
	c := NewCollection(pc.ID, maxSize)
	entries := make([]Entry, 0, len(pc.Entries))
	for _, pe := range pc.Entries {
		vec, err := DeserializeVector(pe.Vector)
		if err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", pe.ID, err)
		}
		entries = append(entries, Entry{
			ID:            pe.ID,
			Vector:        vec,
			Author:        pe.Author,
			ReplyToAuthor: pe.ReplyToAuthor,
			Text:          pe.Text,
			Likes:         pe.Likes,
			Replies:       pe.Replies,
			Sentiment:     pe.Sentiment,
			StoredAt:      pe.StoredAt,
		})
	}
	if _, err := c.InsertBatch(entries); err != nil {
		return nil, fmt.Errorf("restore collection %s: %w", pc.ID, err)
	}
	return c, nil
}

func toPersistedPattern(p Pattern) persistedPattern {
	return persistedPattern{
		Name:      p.Name,
		Text:      p.Text,
		Vector:    SerializeVector(p.Vector),
		CreatedAt: p.CreatedAt,
	}
}

func (pp persistedPattern) pattern() (Pattern, error) {
	vec, err := DeserializeVector(pp.Vector)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{Name: pp.Name, Text: pp.Text, Vector: vec, CreatedAt: pp.CreatedAt}, nil
}
