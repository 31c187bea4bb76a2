/*
Package storage implements the durable layer of the learning store.

This package provides SQLite-based storage for stored examples, their
embedding vectors, the feedback log, and store metadata. Every mutation of a
single example runs in one transaction, so a crash leaves either the whole
write or none of it.

The database defaults to ~/.casebank/casebank.db and uses modernc.org/sqlite
(a pure Go, CGo-free implementation).
*/
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/khanglvm/casebank/internal/model"

	_ "modernc.org/sqlite"
)

// DatabaseFile is the database file name inside the data directory.
const DatabaseFile = "casebank.db"

// dsnPragmas enables WAL so readers never block the writer, waits on a busy
// database instead of failing, and takes the write lock at BEGIN.
const dsnPragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"

// ErrClosed is returned by operations on a storage that is not open.
var ErrClosed = errors.New("storage is closed")

// Storage defines the interface for durable learning-store operations.
type Storage interface {
	// Init opens the database and runs migrations.
	Init() error

	// InsertExample persists an example and its vector in one transaction.
	InsertExample(ctx context.Context, ex model.StoredExample, vec []float32, version string) error

	// ApplyFeedback updates the example's quality fields and appends to the
	// feedback log in one transaction.
	ApplyFeedback(ctx context.Context, ex model.StoredExample, fb model.FeedbackRecord) error

	// GetExample loads one example.
	GetExample(ctx context.Context, requestID string) (model.StoredExample, error)

	// ListExamples returns every example in insertion order.
	ListExamples(ctx context.Context) ([]model.StoredExample, error)

	// ListVectors returns every stored vector.
	ListVectors(ctx context.Context) ([]VectorRecord, error)

	// ReplaceVectors rewrites vectors after a reindex.
	ReplaceVectors(ctx context.Context, vectors []VectorRecord) error

	// ListFeedback returns feedback submitted at or after since, oldest first.
	ListFeedback(ctx context.Context, since time.Time) ([]model.FeedbackRecord, error)

	// CountExamples returns the number of stored examples.
	CountExamples(ctx context.Context) (int, error)

	// CountFeedback returns the number of feedback submissions.
	CountFeedback(ctx context.Context) (int, error)

	// GetMeta reads a metadata value.
	GetMeta(ctx context.Context, key string) (string, bool, error)

	// SetMeta writes a metadata value.
	SetMeta(ctx context.Context, key, value string) error

	// Clear removes all examples, vectors and feedback.
	Clear(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db       *sql.DB
	dbPath   string
	mu       sync.RWMutex
	initOnce sync.Once
}

// DefaultPath returns ~/.casebank/casebank.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".casebank", DatabaseFile), nil
}

// NewStorage creates a SQLite storage for the database at dbPath.
//
// The parent directory is created by Init if it doesn't exist.
func NewStorage(dbPath string) *SQLiteStorage {
	return &SQLiteStorage{dbPath: dbPath}
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// Init initializes the database and runs migrations.
//
// Unlike a cache, the learning store cannot run without its database, so
// failures are returned to the caller.
func (s *SQLiteStorage) Init() error {
	var initErr error
	s.initOnce.Do(func() {
		// Ensure directory exists
		dbDir := filepath.Dir(s.dbPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			initErr = fmt.Errorf("failed to create db directory: %w", err)
			return
		}

		// Open database
		db, err := sql.Open("sqlite", s.dbPath+dsnPragmas)
		if err != nil {
			initErr = fmt.Errorf("failed to open database: %w", err)
			return
		}

		// Test connection
		if err := db.Ping(); err != nil {
			db.Close()
			initErr = fmt.Errorf("failed to ping database: %w", err)
			return
		}

		s.mu.Lock()
		s.db = db
		s.mu.Unlock()

		// Run migrations
		if err := s.runMigrations(); err != nil {
			initErr = fmt.Errorf("failed to run migrations: %w", err)
			s.Close()
			return
		}
	})

	return initErr
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.db = nil
	return nil
}

// conn returns the open database. Callers hold s.mu for reading.
func (s *SQLiteStorage) conn() (*sql.DB, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db, nil
}

// withTx runs fn in a transaction, rolling back on error.
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Printf("Warning: rollback failed: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
