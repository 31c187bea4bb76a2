package ranking

import (
	"fmt"
	"sort"

	"github.com/khanglvm/casebank/internal/model"
)

// DefaultOversample is how many candidates are fetched per requested result.
const DefaultOversample = 4

// MaxLimit caps the number of examples one ranking returns.
const MaxLimit = 100

// maxCandidates caps the candidates gathered for one ranking.
const maxCandidates = 4096

// DefaultStrongMatch is the score at which a corrected output replaces the original template.
const DefaultStrongMatch = 0.75

// CandidateSource supplies candidates for ranking.
type CandidateSource interface {
	// VectorCandidates returns the nearest examples to vec with their similarity.
	VectorCandidates(vec []float32, limit int) ([]Candidate, error)

	// KeywordCandidates returns examples for the degraded path.
	KeywordCandidates(q Query, limit int) ([]Candidate, error)
}

// Ranked is a scored example.
type Ranked struct {
	Example model.StoredExample `json:"example"`
	Score   float64             `json:"score"`
	Signals Signals             `json:"signals"`
}

// Template returns the output the generation step should imitate. A corrected
// output wins once the match is at least strongMatch.
func (r Ranked) Template(strongMatch float64) []model.TestCase {
	if r.Example.HasCorrection() && r.Score >= strongMatch {
		return r.Example.CorrectedOutput
	}
	return r.Example.Output
}

// Ranker orders candidates from a CandidateSource.
type Ranker struct {
	scorer     *Scorer
	source     CandidateSource
	oversample int
}

// NewRanker creates a ranker. Non-positive oversample uses DefaultOversample.
func NewRanker(scorer *Scorer, source CandidateSource, oversample int) *Ranker {
	if oversample <= 0 {
		oversample = DefaultOversample
	}
	return &Ranker{scorer: scorer, source: source, oversample: oversample}
}

// Scorer returns the underlying scorer.
func (r *Ranker) Scorer() *Scorer { return r.scorer }

// Rank returns at most limit examples, best first. Ties go to the more recent
// example, then the smaller request id. An empty store yields an empty result.
// Limits above MaxLimit are capped.
func (r *Ranker) Rank(q Query, limit int) ([]Ranked, error) {
	if limit <= 0 {
		return nil, nil
	}
	limit = min(limit, MaxLimit)

	want := candidateCount(limit, r.oversample)
	var (
		candidates []Candidate
		err        error
	)
	if q.Degraded() {
		candidates, err = r.source.KeywordCandidates(q, want)
	} else {
		candidates, err = r.source.VectorCandidates(q.Vector, want)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to gather candidates: %w", err)
	}

	now := r.scorer.now()
	weights := r.scorer.Weights(q)
	seen := make(map[string]bool, len(candidates))
	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.Example.RequestID] {
			continue
		}
		seen[c.Example.RequestID] = true

		sig := r.scorer.Signals(q, c, now)
		ranked = append(ranked, Ranked{
			Example: c.Example,
			Score:   r.scorer.combine(weights, sig),
			Signals: sig,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Example.CreatedAt.Equal(b.Example.CreatedAt) {
			return a.Example.CreatedAt.After(b.Example.CreatedAt)
		}
		return a.Example.RequestID < b.Example.RequestID
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// candidateCount returns limit*oversample without overflowing, capped at maxCandidates.
func candidateCount(limit, oversample int) int {
	if oversample > maxCandidates/limit {
		return maxCandidates
	}
	return min(limit*oversample, maxCandidates)
}
