// Package store is the SQLite persistence layer for flock. A single
// shared connection is guarded by a mutex, mirroring the write pattern
// of a busy simulation: many small transactions, no long readers.
//
// Callers that need multi-statement atomicity (the admission
// controller's check-and-consume) use WithLock, which holds the mutex
// across the whole critical section. Methods suffixed Locked assume
// the caller already holds the lock via WithLock and must never be
// called outside of it.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"flock/internal/logging"
)

// Store wraps the shared SQLite connection.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string

	loc            *time.Location
	virtualDaySecs int
}

// New opens (or creates) the database at path and initializes the
// schema. loc controls calendar day keys; virtualDaySecs > 0 switches
// period keys to compressed virtual-day buckets.
func New(path string, loc *time.Location, virtualDaySecs int) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.New")
	defer timer.Stop()

	logging.Store("Initializing store at path: %s", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable sqlite foreign_keys: %v", err)
	}

	if loc == nil {
		loc = time.UTC
	}
	s := &Store{db: db, dbPath: path, loc: loc, virtualDaySecs: virtualDaySecs}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.StoreDebug("Database schema initialized successfully")
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// WithLock runs fn while holding the store mutex. Used for
// read-then-write sequences that must be atomic with respect to other
// store users, such as quota check-and-consume.
func (s *Store) WithLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// Now returns the current time in the configured location.
func (s *Store) Now() time.Time {
	return time.Now().In(s.loc)
}

// NowISO returns the current time as an ISO-8601 string.
func (s *Store) NowISO() string {
	return s.Now().Format(time.RFC3339)
}

// DayKey derives the period key for t: a calendar date in the
// configured timezone, or a virtual-day bucket when compressed time is
// enabled. Downstream code treats the key as an opaque grouping token.
func (s *Store) DayKey(t time.Time) string {
	if s.virtualDaySecs > 0 {
		bucket := t.Unix() / int64(s.virtualDaySecs)
		return fmt.Sprintf("vday-%06d", bucket)
	}
	return t.In(s.loc).Format("2006-01-02")
}

// TodayKey is DayKey for the current instant.
func (s *Store) TodayKey() string {
	return s.DayKey(time.Now())
}

// PreviousKey is the period key immediately before the current one.
func (s *Store) PreviousKey() string {
	if s.virtualDaySecs > 0 {
		return s.DayKey(time.Now().Add(-time.Duration(s.virtualDaySecs) * time.Second))
	}
	return s.DayKey(time.Now().AddDate(0, 0, -1))
}
