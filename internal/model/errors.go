package model

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingUnavailable means the embedding backend could not produce a vector.
	// Retrieval degrades to keyword-only scoring when it sees this.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrNotFound means a request id is unknown to the learning store.
	ErrNotFound = errors.New("example not found")

	// ErrInvalidRating means a rating fell outside [0, 5].
	ErrInvalidRating = errors.New("invalid rating")

	// ErrPersistence means a durable write did not complete.
	ErrPersistence = errors.New("persistence failure")

	// ErrAlreadyRecorded means a request id was already committed.
	ErrAlreadyRecorded = errors.New("request already recorded")

	// ErrDimensionMismatch means a vector does not match the index dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrCommitterStopped means a record was submitted after shutdown began.
	ErrCommitterStopped = errors.New("committer stopped")
)

// PersistenceError describes a failed durable operation.
type PersistenceError struct {
	Op        string
	RequestID string
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("persistence failure (%s %s): %v", e.Op, e.RequestID, e.Err)
	}
	return fmt.Sprintf("persistence failure (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrPersistence) match any PersistenceError.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// RatingError reports an out-of-range rating.
type RatingError struct {
	Value float64
}

func (e *RatingError) Error() string {
	return fmt.Sprintf("invalid rating %v: must be within [%.0f, %.0f]", e.Value, MinRating, MaxRating)
}

func (e *RatingError) Is(target error) bool { return target == ErrInvalidRating }

// IsRetryable reports whether a record failure is worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistence) || errors.Is(err, ErrEmbeddingUnavailable)
}
