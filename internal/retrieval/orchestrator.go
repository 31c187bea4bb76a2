/*
Package retrieval is the public entry point of the engine.

Retrieval is two-phase. Retrieve fingerprints and embeds the request, ranks
stored examples and returns them; it never waits on a write. Record hands the
generated output to the background Committer and returns a Commit the caller
may wait on or ignore. A failed commit never touches the examples already
returned by Retrieve.
*/
package retrieval

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/khanglvm/casebank/internal/embedding"
	"github.com/khanglvm/casebank/internal/features"
	"github.com/khanglvm/casebank/internal/learning"
	"github.com/khanglvm/casebank/internal/model"
	"github.com/khanglvm/casebank/internal/ranking"
)

// DefaultLimit is the number of examples returned when none is requested.
const DefaultLimit = 5

// Retrieval is the result of phase one.
type Retrieval struct {
	RequestID   string               `json:"requestId"`
	Text        string               `json:"text"`
	Fingerprint features.Fingerprint `json:"fingerprint"`
	Examples    []ranking.Ranked     `json:"rankedExamples"`

	// Degraded is set when ranking used keyword signals only, because the
	// embedding backend was unavailable or the vector index awaits a reindex.
	Degraded bool `json:"degraded"`

	// Fallback is set when ranking failed; MergedTemplates then serves the
	// fallback cases.
	Fallback  bool      `json:"fallback,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	strongMatch float64
	vector      []float32
	limit       int
}

// Templates returns, per ranked example, the output the generator should
// imitate: the corrected output on a strong match, the original otherwise.
func (r *Retrieval) Templates() [][]model.TestCase {
	out := make([][]model.TestCase, len(r.Examples))
	for i, ex := range r.Examples {
		out[i] = ex.Template(r.strongMatch)
	}
	return out
}

// Orchestrator ties feature extraction, embedding, ranking and recording together.
type Orchestrator struct {
	embedder    embedding.Embedder
	ranker      *ranking.Ranker
	committer   *Committer
	limit       int
	strongMatch float64

	// vectorsReady reports whether vector search covers the store.
	vectorsReady func() bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLimit sets the default number of ranked examples.
func WithLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.limit = n
		}
	}
}

// WithStrongMatch sets the score at which corrected outputs are preferred.
func WithStrongMatch(score float64) Option {
	return func(o *Orchestrator) { o.strongMatch = score }
}

// WithVectorsReady routes ranking to keyword signals while ready reports false.
func WithVectorsReady(ready func() bool) Option {
	return func(o *Orchestrator) { o.vectorsReady = ready }
}

// New creates an orchestrator. The committer is owned by the orchestrator
// and stopped by Close.
func New(emb embedding.Embedder, ranker *ranking.Ranker, committer *Committer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		embedder:    emb,
		ranker:      ranker,
		committer:   committer,
		limit:       DefaultLimit,
		strongMatch: ranking.DefaultStrongMatch,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Retrieve ranks stored examples for text. A non-positive limit uses the
// configured default. An unavailable embedding backend degrades ranking to
// keyword signals instead of failing.
func (o *Orchestrator) Retrieve(ctx context.Context, text string, limit int) (*Retrieval, error) {
	if limit <= 0 {
		limit = o.limit
	}

	req := model.NewRequest(text)
	r := &Retrieval{
		RequestID:   req.ID,
		Text:        text,
		Fingerprint: features.Analyze(text),
		CreatedAt:   req.CreatedAt,
		strongMatch: o.strongMatch,
		limit:       min(limit, ranking.MaxLimit),
	}

	vec, err := o.embedder.Embed(ctx, text)
	if err != nil {
		if !errors.Is(err, model.ErrEmbeddingUnavailable) {
			return nil, err
		}
		log.Printf("Warning: %v; ranking %s on keyword signals only", err, r.RequestID)
		r.Degraded = true
		vec = nil
	}
	r.vector = vec

	query := ranking.Query{Text: text, Fingerprint: r.Fingerprint, Vector: vec}
	if vec != nil && o.vectorsReady != nil && !o.vectorsReady() {
		r.Degraded = true
		query.Vector = nil
	}

	ranked, err := o.ranker.Rank(query, limit)
	if err != nil {
		log.Printf("Warning: ranking failed for %s, serving fallback cases: %v", r.RequestID, err)
		r.Fallback = true
		ranked = nil
	}
	r.Examples = ranked
	if r.Examples == nil {
		r.Examples = []ranking.Ranked{}
	}

	return r, nil
}

// Record commits the generated output for a retrieval in the background.
// The retrieval's vector is reused when it has one.
func (o *Orchestrator) Record(r *Retrieval, output []model.TestCase) *Commit {
	return o.committer.Submit(learning.Entry{
		RequestID: r.RequestID,
		Text:      r.Text,
		Output:    output,
		Vector:    r.vector,
		CreatedAt: r.CreatedAt,
	})
}

// RecordText commits text and output under a fresh request id, for callers
// that did not retrieve first.
func (o *Orchestrator) RecordText(text string, output []model.TestCase) *Commit {
	req := model.NewRequest(text)
	return o.committer.Submit(learning.Entry{
		RequestID: req.ID,
		Text:      text,
		Output:    output,
		CreatedAt: req.CreatedAt,
	})
}

// Close waits for pending commits.
func (o *Orchestrator) Close() {
	o.committer.Stop()
}
