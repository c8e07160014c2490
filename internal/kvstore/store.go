package kvstore

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested key doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrCapacityExceeded is returned when a write would exceed the store's byte ceiling
	ErrCapacityExceeded = errors.New("storage capacity exceeded")
	// ErrEmptyKey is returned for writes with an empty key
	ErrEmptyKey = errors.New("key cannot be empty")
)

// Key namespaces shared by the engine components
const (
	PrefixEmbedding  = "emb:"
	PrefixCollection = "vec:"
	PrefixPattern    = "pat:"
	KeyLearningState = "learn:state"
)

// Store defines the persistent key-value collaborator backing the engine
type Store interface {
	// Get returns the value for key or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value under key, failing with ErrCapacityExceeded if the
	// write would push BytesInUse above the configured ceiling
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key; removing a missing key is not an error
	Remove(ctx context.Context, key string) error

	// BytesInUse reports the total size of stored keys and values
	BytesInUse(ctx context.Context) (int64, error)

	// Keys lists keys with the given prefix, oldest write first
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the store
	Close() error
}

// SetWithPrune writes value under key. When the store is full it removes the
// oldest fraction of keys under prefix (at least one, never key itself) and
// retries once.
func SetWithPrune(ctx context.Context, s Store, key string, value []byte, prefix string, fraction float64) error {
	err := s.Set(ctx, key, value)
	if err == nil || !errors.Is(err, ErrCapacityExceeded) {
		return err
	}

	pruned, pruneErr := PruneOldest(ctx, s, prefix, fraction, key)
	if pruneErr != nil {
		return fmt.Errorf("%w: prune failed: %v", err, pruneErr)
	}
	if pruned == 0 {
		return err
	}

	if err := s.Set(ctx, key, value); err != nil {
		return fmt.Errorf("retry after pruning %d keys: %w", pruned, err)
	}
	return nil
}

// PruneOldest removes the oldest fraction of keys under prefix, skipping any
// key listed in keep. It returns the number of keys removed.
func PruneOldest(ctx context.Context, s Store, prefix string, fraction float64, keep ...string) (int, error) {
	keys, err := s.Keys(ctx, prefix)
	if err != nil {
		return 0, err
	}

	skip := make(map[string]bool, len(keep))
	for _, k := range keep {
		skip[k] = true
	}

	candidates := keys[:0:0]
	for _, k := range keys {
		if !skip[k] {
			candidates = append(candidates, k)
		}
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	if fraction <= 0 || fraction > 1 {
		fraction = 0.1
	}
	n := int(float64(len(candidates)) * fraction)
	if n < 1 {
		n = 1
	}

	removed := 0
	for _, k := range candidates[:n] {
		if err := s.Remove(ctx, k); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func entrySize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}
