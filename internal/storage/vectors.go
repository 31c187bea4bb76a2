package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// ListVectors returns every stored vector in example insertion order.
func (s *SQLiteStorage) ListVectors(ctx context.Context) ([]VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT v.request_id, v.vector, v.version, v.created_at
		FROM example_vectors v
		JOIN examples e ON e.request_id = v.request_id
		ORDER BY e.seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var records []VectorRecord
	for rows.Next() {
		var (
			rec          VectorRecord
			vectorJSON   string
			createdAtStr string
		)
		if err := rows.Scan(&rec.RequestID, &vectorJSON, &rec.Version, &createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to scan vector row: %w", err)
		}
		if rec.Vector, err = jsonToVector(vectorJSON); err != nil {
			return nil, fmt.Errorf("failed to parse vector of %s: %w", rec.RequestID, err)
		}
		if rec.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse vector timestamp of %s: %w", rec.RequestID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vectors: %w", err)
	}

	return records, nil
}

// ReplaceVectors rewrites the given vectors and records their model version
// and dimension in meta, all in one transaction.
func (s *SQLiteStorage) ReplaceVectors(ctx context.Context, vectors []VectorRecord) error {
	encoded := make([]string, len(vectors))
	for i, rec := range vectors {
		data, err := vectorToJSON(rec.Vector)
		if err != nil {
			return err
		}
		encoded[i] = data
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := formatTime(time.Now())
		for i, rec := range vectors {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO example_vectors (request_id, vector, version, created_at)
				VALUES (?, ?, ?, ?)
			`, rec.RequestID, encoded[i], rec.Version, now); err != nil {
				return fmt.Errorf("failed to replace vector of %s: %w", rec.RequestID, err)
			}
		}

		if len(vectors) > 0 {
			last := vectors[len(vectors)-1]
			if err := setMetaTx(ctx, tx, MetaEmbeddingModel, last.Version); err != nil {
				return err
			}
			if err := setMetaTx(ctx, tx, MetaDimension, strconv.Itoa(len(last.Vector))); err != nil {
				return err
			}
		}
		return nil
	})
}
