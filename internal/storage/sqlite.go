/*
Package storage provides SQLite database migrations and helper functions.

This file contains schema definitions, migration logic, and serialization
helpers for vectors, test cases and timestamps.
*/
package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/khanglvm/casebank/internal/model"
)

// timeLayout is fixed width so stored timestamps sort as text. It keeps
// nanoseconds so recency ties survive a restart.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// runMigrations executes database schema migrations.
func (s *SQLiteStorage) runMigrations() error {
	if s.db == nil {
		return ErrClosed
	}

	// Create migrations table
	if err := s.createMigrationsTable(); err != nil {
		return err
	}

	// Get current version
	version, err := s.getCurrentMigrationVersion()
	if err != nil {
		return err
	}

	// Run migrations in order
	migrations := []migration{
		{version: 1, name: "initial_schema", up: s.migration001InitialSchema},
		{version: 2, name: "feedback_log", up: s.migration002FeedbackLog},
	}

	for _, m := range migrations {
		if version < m.version {
			log.Printf("Running migration %d: %s", m.version, m.name)
			if err := m.up(); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.version, err)
			}
			if err := s.setMigrationVersion(m.version, m.name); err != nil {
				return err
			}
		}
	}

	return nil
}

// migration represents a single database migration.
type migration struct {
	version int
	name    string
	up      func() error
}

// createMigrationsTable creates the schema_migrations table.
func (s *SQLiteStorage) createMigrationsTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`
	_, err := s.db.Exec(query)
	return err
}

// getCurrentMigrationVersion returns the highest applied migration version.
func (s *SQLiteStorage) getCurrentMigrationVersion() (int, error) {
	query := "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"
	row := s.db.QueryRow(query)

	var version int
	if err := row.Scan(&version); err != nil {
		return 0, err
	}

	return version, nil
}

// setMigrationVersion records a migration as applied.
func (s *SQLiteStorage) setMigrationVersion(version int, name string) error {
	query := "INSERT INTO schema_migrations (version, name) VALUES (?, ?)"
	_, err := s.db.Exec(query, version, name)
	return err
}

// migration001InitialSchema creates the examples, vectors and meta tables.
func (s *SQLiteStorage) migration001InitialSchema() error {
	// seq gives a stable insertion order for restart recovery
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS examples (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL UNIQUE,
			request_text TEXT NOT NULL,
			output TEXT NOT NULL,
			corrected_output TEXT,
			domain TEXT NOT NULL,
			complexity TEXT NOT NULL,
			actor_roles TEXT NOT NULL,
			action_keywords TEXT NOT NULL,
			quality_score REAL NOT NULL,
			feedback_count INTEGER NOT NULL DEFAULT 0,
			source TEXT NOT NULL,
			created_at TEXT NOT NULL,
			last_updated_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create examples table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_examples_created
		ON examples(created_at DESC)
	`); err != nil {
		return fmt.Errorf("failed to create examples created index: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS example_vectors (
			request_id TEXT PRIMARY KEY REFERENCES examples(request_id) ON DELETE CASCADE,
			vector BLOB NOT NULL,
			version TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create example_vectors table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create meta table: %w", err)
	}

	return nil
}

// migration002FeedbackLog creates the append-only feedback table.
func (s *SQLiteStorage) migration002FeedbackLog() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id TEXT NOT NULL REFERENCES examples(request_id) ON DELETE CASCADE,
			rating REAL NOT NULL,
			comments TEXT,
			corrected_output TEXT,
			created_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create feedback table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_feedback_created
		ON feedback(created_at)
	`); err != nil {
		return fmt.Errorf("failed to create feedback created index: %w", err)
	}

	return nil
}

// vectorToJSON converts a float32 vector to JSON for storage.
func vectorToJSON(vector []float32) (string, error) {
	data, err := json.Marshal(vector)
	if err != nil {
		return "", fmt.Errorf("failed to marshal vector: %w", err)
	}
	return string(data), nil
}

// jsonToVector parses JSON storage back to a float32 vector.
func jsonToVector(jsonStr string) ([]float32, error) {
	var vector []float32
	if err := json.Unmarshal([]byte(jsonStr), &vector); err != nil {
		return nil, err
	}
	return vector, nil
}

// encodeJSON marshals v, storing nil slices as NULL.
func encodeJSON(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case []model.TestCase:
		if x == nil {
			return nil, nil
		}
	case []string:
		if x == nil {
			return "[]", nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeCases(raw *string) ([]model.TestCase, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var cases []model.TestCase
	if err := json.Unmarshal([]byte(*raw), &cases); err != nil {
		return nil, err
	}
	return cases, nil
}

func decodeStrings(raw string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime also reads rows written with trimmed fractional seconds.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
