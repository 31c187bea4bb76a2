package ranking

import (
	"errors"
	"testing"
	"time"

	"github.com/khanglvm/casebank/internal/model"
)

type fakeSource struct {
	vector  []Candidate
	keyword []Candidate
	err     error

	vectorCalls  int
	keywordCalls int
	lastLimit    int
}

func (f *fakeSource) VectorCandidates(vec []float32, limit int) ([]Candidate, error) {
	f.vectorCalls++
	f.lastLimit = limit
	return f.vector, f.err
}

func (f *fakeSource) KeywordCandidates(q Query, limit int) ([]Candidate, error) {
	f.keywordCalls++
	f.lastLimit = limit
	return f.keyword, f.err
}

func withSim(e model.StoredExample, sim float64) Candidate {
	return Candidate{Example: e, Similarity: sim, HasSimilarity: true}
}

func TestRank_OrdersByScore(t *testing.T) {
	src := &fakeSource{vector: []Candidate{
		withSim(exampleAt("low", time.Hour, 3), 0.2),
		withSim(exampleAt("high", time.Hour, 3), 0.9),
		withSim(exampleAt("mid", time.Hour, 3), 0.5),
	}}
	r := NewRanker(newTestScorer(), src, 0)

	ranked, err := r.Rank(identityQuery([]float32{1}), 5)
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}

	want := []string{"high", "mid", "low"}
	if len(ranked) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(ranked))
	}
	for i, id := range want {
		if ranked[i].Example.RequestID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, ranked[i].Example.RequestID)
		}
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Score > ranked[i-1].Score {
			t.Errorf("scores not non-increasing at %d", i)
		}
	}
}

func TestRank_Oversamples(t *testing.T) {
	src := &fakeSource{}
	r := NewRanker(newTestScorer(), src, 0)

	if _, err := r.Rank(identityQuery([]float32{1}), 5); err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if src.lastLimit != 5*DefaultOversample {
		t.Errorf("expected candidate limit %d, got %d", 5*DefaultOversample, src.lastLimit)
	}
}

func TestRank_CapsHugeLimits(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		oversample int
		degraded   bool
	}{
		{"semantic", 1 << 62, 0, false},
		{"degraded overflow", (1 << 61) + 1, 0, true},
		{"huge oversample", 10, 1 << 62, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{
				vector:  []Candidate{withSim(exampleAt("a", time.Hour, 3), 0.9)},
				keyword: []Candidate{{Example: exampleAt("a", time.Hour, 3)}},
			}
			r := NewRanker(newTestScorer(), src, tt.oversample)

			q := identityQuery([]float32{1})
			if tt.degraded {
				q.Vector = nil
			}
			ranked, err := r.Rank(q, tt.limit)
			if err != nil {
				t.Fatalf("rank failed: %v", err)
			}
			if len(ranked) != 1 {
				t.Fatalf("expected 1 result, got %d", len(ranked))
			}
			if src.lastLimit <= 0 || src.lastLimit > maxCandidates {
				t.Errorf("candidate limit %d outside (0, %d]", src.lastLimit, maxCandidates)
			}
		})
	}
}

func TestRank_TieBreaks(t *testing.T) {
	// Same similarity, quality and domain; recency is the only difference
	// and both sit past the horizon, so scores tie exactly.
	old := exampleAt("b", 300*24*time.Hour, 3)
	older := exampleAt("a", 310*24*time.Hour, 3)
	sameAgeA := exampleAt("d", 320*24*time.Hour, 3)
	sameAgeB := exampleAt("c", 320*24*time.Hour, 3)

	src := &fakeSource{vector: []Candidate{
		withSim(older, 0.5),
		withSim(sameAgeA, 0.5),
		withSim(old, 0.5),
		withSim(sameAgeB, 0.5),
	}}
	r := NewRanker(newTestScorer(), src, 0)

	ranked, err := r.Rank(identityQuery([]float32{1}), 10)
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}

	want := []string{"b", "a", "c", "d"}
	for i, id := range want {
		if ranked[i].Example.RequestID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, ranked[i].Example.RequestID)
		}
	}
}

func TestRank_TruncatesAndDedupes(t *testing.T) {
	src := &fakeSource{vector: []Candidate{
		withSim(exampleAt("a", 0, 3), 0.9),
		withSim(exampleAt("a", 0, 3), 0.9),
		withSim(exampleAt("b", 0, 3), 0.8),
		withSim(exampleAt("c", 0, 3), 0.7),
	}}
	r := NewRanker(newTestScorer(), src, 0)

	ranked, err := r.Rank(identityQuery([]float32{1}), 2)
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 results, got %d", len(ranked))
	}
	if ranked[0].Example.RequestID != "a" || ranked[1].Example.RequestID != "b" {
		t.Errorf("expected [a b], got [%s %s]", ranked[0].Example.RequestID, ranked[1].Example.RequestID)
	}
}

func TestRank_EmptySource(t *testing.T) {
	r := NewRanker(newTestScorer(), &fakeSource{}, 0)

	ranked, err := r.Rank(identityQuery([]float32{1}), 5)
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if len(ranked) != 0 {
		t.Errorf("expected no results, got %d", len(ranked))
	}
}

func TestRank_ZeroLimit(t *testing.T) {
	src := &fakeSource{vector: []Candidate{withSim(exampleAt("a", 0, 3), 0.9)}}
	r := NewRanker(newTestScorer(), src, 0)

	ranked, _ := r.Rank(identityQuery([]float32{1}), 0)
	if len(ranked) != 0 {
		t.Errorf("expected no results for limit 0, got %d", len(ranked))
	}
	if src.vectorCalls != 0 {
		t.Errorf("expected no candidate lookup for limit 0")
	}
}

func TestRank_DegradedUsesKeywordCandidates(t *testing.T) {
	src := &fakeSource{keyword: []Candidate{{Example: exampleAt("kw", 0, 3)}}}
	r := NewRanker(newTestScorer(), src, 0)

	ranked, err := r.Rank(identityQuery(nil), 5)
	if err != nil {
		t.Fatalf("rank failed: %v", err)
	}
	if src.keywordCalls != 1 || src.vectorCalls != 0 {
		t.Errorf("expected keyword path, got vector=%d keyword=%d", src.vectorCalls, src.keywordCalls)
	}
	if len(ranked) != 1 || ranked[0].Signals.Semantic != 0 {
		t.Errorf("expected one result with zero semantic signal, got %+v", ranked)
	}
}

func TestRank_SourceError(t *testing.T) {
	boom := errors.New("boom")
	r := NewRanker(newTestScorer(), &fakeSource{err: boom}, 0)

	if _, err := r.Rank(identityQuery([]float32{1}), 5); !errors.Is(err, boom) {
		t.Errorf("expected wrapped source error, got %v", err)
	}
}

func TestRanked_Template(t *testing.T) {
	ex := exampleAt("a", 0, 3)
	ex.Output = []model.TestCase{{ID: "TC-1", Title: "original"}}

	plain := Ranked{Example: ex, Score: 0.95}
	if got := plain.Template(DefaultStrongMatch); got[0].Title != "original" {
		t.Errorf("expected original output without correction, got %s", got[0].Title)
	}

	ex.CorrectedOutput = []model.TestCase{{ID: "TC-1", Title: "corrected"}}

	strong := Ranked{Example: ex, Score: 0.80}
	if got := strong.Template(DefaultStrongMatch); got[0].Title != "corrected" {
		t.Errorf("expected corrected output for strong match, got %s", got[0].Title)
	}

	weak := Ranked{Example: ex, Score: 0.50}
	if got := weak.Template(DefaultStrongMatch); got[0].Title != "original" {
		t.Errorf("expected original output for weak match, got %s", got[0].Title)
	}
}
