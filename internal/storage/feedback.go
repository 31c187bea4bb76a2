package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/khanglvm/casebank/internal/model"
)

// ListFeedback returns feedback submitted at or after since, oldest first.
// A zero since returns the whole log.
func (s *SQLiteStorage) ListFeedback(ctx context.Context, since time.Time) ([]model.FeedbackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT request_id, rating, comments, corrected_output, created_at
		FROM feedback
		WHERE created_at >= ?
		ORDER BY id
	`

	var sinceStr string
	if !since.IsZero() {
		sinceStr = formatTime(since)
	}

	rows, err := db.QueryContext(ctx, query, sinceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var records []model.FeedbackRecord
	for rows.Next() {
		var (
			rec           model.FeedbackRecord
			comments      sql.NullString
			correctedJSON *string
			createdAtStr  string
		)
		if err := rows.Scan(&rec.RequestID, &rec.Rating, &comments, &correctedJSON, &createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}
		rec.Comments = comments.String
		if rec.CorrectedOutput, err = decodeCases(correctedJSON); err != nil {
			return nil, fmt.Errorf("failed to decode feedback correction: %w", err)
		}
		if rec.CreatedAt, err = parseTime(createdAtStr); err != nil {
			return nil, fmt.Errorf("failed to parse feedback timestamp: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feedback: %w", err)
	}

	return records, nil
}

// CountFeedback returns the number of feedback submissions.
func (s *SQLiteStorage) CountFeedback(ctx context.Context) (int, error) {
	return s.count(ctx, "SELECT COUNT(*) FROM feedback")
}
