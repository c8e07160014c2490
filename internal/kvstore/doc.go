// Package kvstore provides the persistent key-value collaborator used by the
// embedding cache, vector collections and learning state.
//
// Two implementations share the same contract:
//
//   - SQLiteStore: a single kv_entries table with schema migrations
//   - MemoryStore: an in-process map, used in tests and ephemeral runs
//
// # Capacity
//
// Both stores accept an optional byte ceiling. A write that would exceed it
// fails with ErrCapacityExceeded and leaves the store unchanged. Callers that
// can tolerate eviction use SetWithPrune, which drops the oldest keys that
// share a prefix and retries once.
//
// # Build Modes
//
// The SQLite driver is selected at build time:
//
//	go build ./...                    # modernc.org/sqlite (pure Go)
//	go build -tags sqlite_cgo ./...   # github.com/mattn/go-sqlite3
package kvstore
