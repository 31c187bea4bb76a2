/*
Package feedback validates user ratings before they reach the learning store
and summarizes the feedback log.

Every submission is a new data point: repeated ratings for the same request
are averaged by the store, never deduplicated here.
*/
package feedback

import (
	"context"
	"math"
	"strings"

	"github.com/khanglvm/casebank/internal/model"
)

// Applier applies validated feedback to a stored example.
type Applier interface {
	ApplyFeedback(ctx context.Context, fb model.FeedbackRecord) (model.StoredExample, error)
}

// Submission is one user rating.
type Submission struct {
	RequestID       string           `json:"requestId"`
	Rating          float64          `json:"rating"`
	Comments        string           `json:"comments,omitempty"`
	CorrectedOutput []model.TestCase `json:"correctedOutput,omitempty"`
}

// Processor validates and forwards feedback.
type Processor struct {
	store Applier
}

// NewProcessor creates a processor backed by store.
func NewProcessor(store Applier) *Processor {
	return &Processor{store: store}
}

// ValidateRating rejects ratings outside [0, 5], including NaN.
func ValidateRating(rating float64) error {
	if math.IsNaN(rating) || rating < model.MinRating || rating > model.MaxRating {
		return &model.RatingError{Value: rating}
	}
	return nil
}

// Submit validates sub and applies it. Invalid ratings fail with
// model.ErrInvalidRating before anything is written; unknown ids fail with
// model.ErrNotFound.
func (p *Processor) Submit(ctx context.Context, sub Submission) (model.StoredExample, error) {
	if err := ValidateRating(sub.Rating); err != nil {
		return model.StoredExample{}, err
	}

	return p.store.ApplyFeedback(ctx, model.FeedbackRecord{
		RequestID:       sub.RequestID,
		Rating:          sub.Rating,
		Comments:        strings.TrimSpace(sub.Comments),
		CorrectedOutput: sub.CorrectedOutput,
	})
}
