/*
Package model defines the data shared by the retrieval and learning engine.

A Request is ingested once and never changes. Each completed generation becomes
a StoredExample owned by the learning store; feedback only ever touches the
quality fields of an existing example.
*/
package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultQuality is the neutral quality score assigned before any feedback.
	DefaultQuality = 3.0

	// MinRating and MaxRating bound both ratings and quality scores.
	MinRating = 0.0
	MaxRating = 5.0
)

// Source values for StoredExample.Source.
const (
	SourceGenerated = "generated"
	SourceSample    = "sample"
)

// Request is an incoming feature description.
type Request struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewRequest assigns a fresh id to text.
func NewRequest(text string) Request {
	return Request{
		ID:        uuid.NewString(),
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// TestCase is one generated test case.
type TestCase struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Preconditions string `json:"preconditions,omitempty"`
	Steps         string `json:"steps,omitempty"`
	Expected      string `json:"expected,omitempty"`
	Priority      string `json:"priority,omitempty"`
}

// StoredExample is one learned unit: a past request, its output and quality metadata.
type StoredExample struct {
	RequestID   string     `json:"requestId"`
	RequestText string     `json:"requestText"`
	Output      []TestCase `json:"output"`

	// CorrectedOutput is the latest user-supplied correction, kept next to Output.
	CorrectedOutput []TestCase `json:"correctedOutput,omitempty"`

	Domain         string   `json:"domain"`
	Complexity     string   `json:"complexity"`
	ActorRoles     []string `json:"actorRoles,omitempty"`
	ActionKeywords []string `json:"actionKeywords,omitempty"`

	QualityScore  float64   `json:"qualityScore"`
	FeedbackCount int       `json:"feedbackCount"`
	Source        string    `json:"source"`
	CreatedAt     time.Time `json:"createdAt"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// Clone returns a deep copy so callers never share slices with the store.
func (e StoredExample) Clone() StoredExample {
	c := e
	c.Output = append([]TestCase(nil), e.Output...)
	if e.CorrectedOutput != nil {
		c.CorrectedOutput = append([]TestCase(nil), e.CorrectedOutput...)
	}
	c.ActorRoles = append([]string(nil), e.ActorRoles...)
	c.ActionKeywords = append([]string(nil), e.ActionKeywords...)
	return c
}

// HasCorrection reports whether a corrected output was ever supplied.
func (e StoredExample) HasCorrection() bool {
	return len(e.CorrectedOutput) > 0
}

// FeedbackRecord is one feedback submission against a stored example.
type FeedbackRecord struct {
	RequestID       string     `json:"requestId"`
	Rating          float64    `json:"rating"`
	Comments        string     `json:"comments,omitempty"`
	CorrectedOutput []TestCase `json:"correctedOutput,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Stats is a read-only aggregate over the learning store.
type Stats struct {
	TotalRecorded         int       `json:"totalRecorded"`
	TotalFeedbackReceived int       `json:"totalFeedbackReceived"`
	LastUpdatedAt         time.Time `json:"lastUpdatedAt"`
	EmbeddingModel        string    `json:"embeddingModel"`
	Dimension             int       `json:"dimension"`
}

// ClampQuality limits a quality score to [MinRating, MaxRating].
func ClampQuality(q float64) float64 {
	if q < MinRating {
		return MinRating
	}
	if q > MaxRating {
		return MaxRating
	}
	return q
}
