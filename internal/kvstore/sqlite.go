package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SQLiteStore implements Store using a single SQLite table
type SQLiteStore struct {
	db       *sql.DB
	maxBytes int64

	mu        sync.Mutex // serializes writes and guards lastStamp
	lastStamp int64
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStore opens (or creates) the store at dbPath. maxBytes of 0
// disables the capacity ceiling.
func NewSQLiteStore(dbPath string, maxBytes int64) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s := &SQLiteStore{db: db, maxBytes: maxBytes}

	var last sql.NullInt64
	if err := db.QueryRow("SELECT MAX(updated_at) FROM kv_entries").Scan(&last); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read last write stamp: %w", err)
	}
	s.lastStamp = last.Int64

	return s, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Get returns the value stored under key
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv_entries WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return value, nil
}

// Set writes value under key within a transaction that enforces the ceiling
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}
	if value == nil {
		value = []byte{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	size := entrySize(key, value)
	if s.maxBytes > 0 {
		ok, err := s.fits(ctx, tx, key, size)
		if err != nil {
			return err
		}
		if !ok {
			return ErrCapacityExceeded
		}
	}

	stamp := s.nextStamp()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, size_bytes, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			size_bytes = excluded.size_bytes,
			updated_at = excluded.updated_at
	`, key, value, size, stamp)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}

	return tx.Commit()
}

// fits reports whether replacing key with an entry of size stays under the ceiling
func (s *SQLiteStore) fits(ctx context.Context, q querier, key string, size int64) (bool, error) {
	var total int64
	if err := q.QueryRowContext(ctx, "SELECT COALESCE(SUM(size_bytes), 0) FROM kv_entries").Scan(&total); err != nil {
		return false, fmt.Errorf("sum sizes: %w", err)
	}

	var existing int64
	err := q.QueryRowContext(ctx, "SELECT size_bytes FROM kv_entries WHERE key = ?", key).Scan(&existing)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("read existing size: %w", err)
	}

	return total-existing+size <= s.maxBytes, nil
}

// nextStamp returns a strictly increasing write stamp; caller holds s.mu
func (s *SQLiteStore) nextStamp() int64 {
	now := time.Now().UnixNano()
	if now <= s.lastStamp {
		now = s.lastStamp + 1
	}
	s.lastStamp = now
	return now
}

// Remove deletes key
func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// BytesInUse sums the recorded entry sizes
func (s *SQLiteStore) BytesInUse(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(size_bytes), 0) FROM kv_entries").Scan(&total); err != nil {
		return 0, fmt.Errorf("bytes in use: %w", err)
	}
	return total, nil
}

// Keys lists keys under prefix ordered by write time
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM kv_entries
		WHERE substr(key, 1, length(?)) = ?
		ORDER BY updated_at ASC, key ASC
	`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
