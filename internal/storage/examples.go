package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/khanglvm/casebank/internal/model"
)

const exampleColumns = `
	request_id, request_text, output, corrected_output, domain, complexity,
	actor_roles, action_keywords, quality_score, feedback_count, source,
	created_at, last_updated_at
`

// InsertExample persists an example and its vector in one transaction.
//
// Returns model.ErrAlreadyRecorded if the request id already exists.
func (s *SQLiteStorage) InsertExample(ctx context.Context, ex model.StoredExample, vec []float32, version string) error {
	output := ex.Output
	if output == nil {
		output = []model.TestCase{}
	}
	outputJSON, err := encodeJSON(output)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	correctedJSON, err := encodeJSON(ex.CorrectedOutput)
	if err != nil {
		return fmt.Errorf("failed to encode corrected output: %w", err)
	}
	rolesJSON, err := encodeJSON(ex.ActorRoles)
	if err != nil {
		return fmt.Errorf("failed to encode actor roles: %w", err)
	}
	actionsJSON, err := encodeJSON(ex.ActionKeywords)
	if err != nil {
		return fmt.Errorf("failed to encode action keywords: %w", err)
	}
	vectorJSON, err := vectorToJSON(vec)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM examples WHERE request_id = ?", ex.RequestID).Scan(&exists)
		if err == nil {
			return model.ErrAlreadyRecorded
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check example: %w", err)
		}

		query := `INSERT INTO examples (` + exampleColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, query,
			ex.RequestID,
			ex.RequestText,
			outputJSON,
			correctedJSON,
			ex.Domain,
			ex.Complexity,
			rolesJSON,
			actionsJSON,
			ex.QualityScore,
			ex.FeedbackCount,
			ex.Source,
			formatTime(ex.CreatedAt),
			formatTime(ex.LastUpdatedAt),
		); err != nil {
			return fmt.Errorf("failed to insert example: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO example_vectors (request_id, vector, version, created_at)
			VALUES (?, ?, ?, ?)
		`, ex.RequestID, vectorJSON, version, formatTime(time.Now())); err != nil {
			return fmt.Errorf("failed to insert vector: %w", err)
		}

		return nil
	})
}

// ApplyFeedback writes the example's new quality fields and appends fb to the
// feedback log in one transaction.
//
// Returns model.ErrNotFound if the example does not exist.
func (s *SQLiteStorage) ApplyFeedback(ctx context.Context, ex model.StoredExample, fb model.FeedbackRecord) error {
	correctedJSON, err := encodeJSON(ex.CorrectedOutput)
	if err != nil {
		return fmt.Errorf("failed to encode corrected output: %w", err)
	}
	fbCorrectedJSON, err := encodeJSON(fb.CorrectedOutput)
	if err != nil {
		return fmt.Errorf("failed to encode feedback correction: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE examples
			SET quality_score = ?, feedback_count = ?, corrected_output = ?, last_updated_at = ?
			WHERE request_id = ?
		`, ex.QualityScore, ex.FeedbackCount, correctedJSON, formatTime(ex.LastUpdatedAt), ex.RequestID)
		if err != nil {
			return fmt.Errorf("failed to update example: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read update result: %w", err)
		}
		if affected == 0 {
			return model.ErrNotFound
		}

		var comments interface{}
		if fb.Comments != "" {
			comments = fb.Comments
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO feedback (request_id, rating, comments, corrected_output, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, fb.RequestID, fb.Rating, comments, fbCorrectedJSON, formatTime(fb.CreatedAt)); err != nil {
			return fmt.Errorf("failed to insert feedback: %w", err)
		}

		return nil
	})
}

// GetExample loads one example. Returns model.ErrNotFound if it does not exist.
func (s *SQLiteStorage) GetExample(ctx context.Context, requestID string) (model.StoredExample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return model.StoredExample{}, err
	}

	row := db.QueryRowContext(ctx, `SELECT `+exampleColumns+` FROM examples WHERE request_id = ?`, requestID)
	ex, err := scanExample(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StoredExample{}, model.ErrNotFound
	}
	return ex, err
}

// ListExamples returns every example in insertion order.
func (s *SQLiteStorage) ListExamples(ctx context.Context) ([]model.StoredExample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT `+exampleColumns+` FROM examples ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query examples: %w", err)
	}
	defer rows.Close()

	var examples []model.StoredExample
	for rows.Next() {
		ex, err := scanExample(rows)
		if err != nil {
			return nil, err
		}
		examples = append(examples, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate examples: %w", err)
	}

	return examples, nil
}

// CountExamples returns the number of stored examples.
func (s *SQLiteStorage) CountExamples(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM examples")
}

// Clear removes all examples, vectors and feedback. Metadata is kept.
func (s *SQLiteStorage) Clear(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"feedback", "example_vectors", "examples"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStorage) count(ctx context.Context, query string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	var n int
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExample(row rowScanner) (model.StoredExample, error) {
	var (
		ex                           model.StoredExample
		outputJSON                   string
		correctedJSON                *string
		rolesJSON, actionsJSON       string
		createdAtStr, lastUpdatedStr string
	)

	if err := row.Scan(
		&ex.RequestID,
		&ex.RequestText,
		&outputJSON,
		&correctedJSON,
		&ex.Domain,
		&ex.Complexity,
		&rolesJSON,
		&actionsJSON,
		&ex.QualityScore,
		&ex.FeedbackCount,
		&ex.Source,
		&createdAtStr,
		&lastUpdatedStr,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ex, err
		}
		return ex, fmt.Errorf("failed to scan example row: %w", err)
	}

	var err error
	if ex.Output, err = decodeCases(&outputJSON); err != nil {
		return ex, fmt.Errorf("failed to decode output of %s: %w", ex.RequestID, err)
	}
	if ex.CorrectedOutput, err = decodeCases(correctedJSON); err != nil {
		return ex, fmt.Errorf("failed to decode corrected output of %s: %w", ex.RequestID, err)
	}
	if ex.ActorRoles, err = decodeStrings(rolesJSON); err != nil {
		return ex, fmt.Errorf("failed to decode actor roles of %s: %w", ex.RequestID, err)
	}
	if ex.ActionKeywords, err = decodeStrings(actionsJSON); err != nil {
		return ex, fmt.Errorf("failed to decode action keywords of %s: %w", ex.RequestID, err)
	}
	if ex.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return ex, fmt.Errorf("failed to parse created_at of %s: %w", ex.RequestID, err)
	}
	if ex.LastUpdatedAt, err = parseTime(lastUpdatedStr); err != nil {
		return ex, fmt.Errorf("failed to parse last_updated_at of %s: %w", ex.RequestID, err)
	}

	return ex, nil
}
