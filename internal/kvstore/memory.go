package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type memEntry struct {
	value []byte
	stamp int64
}

// MemoryStore is an in-process Store with the same capacity semantics as SQLiteStore
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]memEntry
	used     int64
	maxBytes int64
	seq      int64
}

// NewMemoryStore creates an empty store. maxBytes of 0 disables the ceiling.
func NewMemoryStore(maxBytes int64) *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]memEntry),
		maxBytes: maxBytes,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	size := entrySize(key, value)
	var existing int64
	if e, ok := m.entries[key]; ok {
		existing = entrySize(key, e.value)
	}
	if m.maxBytes > 0 && m.used-existing+size > m.maxBytes {
		return ErrCapacityExceeded
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.seq++
	m.entries[key] = memEntry{value: stored, stamp: m.seq}
	m.used += size - existing
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok {
		m.used -= entrySize(key, e.value)
		delete(m.entries, key)
	}
	return nil
}

func (m *MemoryStore) BytesInUse(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used, nil
}

func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type stamped struct {
		key   string
		stamp int64
	}
	var matched []stamped
	for k, e := range m.entries {
		if strings.HasPrefix(k, prefix) {
			matched = append(matched, stamped{k, e.stamp})
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].stamp < matched[j].stamp })

	keys := make([]string, len(matched))
	for i, s := range matched {
		keys[i] = s.key
	}
	return keys, nil
}

func (m *MemoryStore) Close() error { return nil }
