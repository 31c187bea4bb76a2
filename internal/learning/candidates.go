package learning

import (
	"log"

	"github.com/khanglvm/casebank/internal/ranking"
)

// VectorCandidates returns the examples nearest to vec.
func (s *Store) VectorCandidates(vec []float32, limit int) ([]ranking.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	hits, err := s.vectors.Search(vec, limit)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ranking.Candidate, 0, len(hits))
	for _, hit := range hits {
		ex, ok := s.examples[hit.RequestID]
		if !ok {
			continue
		}
		out = append(out, ranking.Candidate{
			Example:       ex.Clone(),
			Similarity:    hit.Similarity,
			HasSimilarity: true,
		})
	}
	return out, nil
}

// KeywordCandidates returns BM25 and same-domain matches for the query,
// padded with the most recent examples so a non-empty store always yields
// candidates.
func (s *Store) KeywordCandidates(q ranking.Query, limit int) ([]ranking.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	limit = min(limit, len(s.order))
	s.mu.RUnlock()
	if limit == 0 {
		return nil, nil
	}

	hits, err := s.keywords.SearchCandidates(q.Text, q.Fingerprint.Domain.String(), limit)
	if err != nil {
		log.Printf("Warning: keyword search failed, using recent examples: %v", err)
		hits = nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool, limit)
	out := make([]ranking.Candidate, 0, limit)
	add := func(id string) {
		if seen[id] || len(out) >= limit {
			return
		}
		ex, ok := s.examples[id]
		if !ok {
			return
		}
		seen[id] = true
		out = append(out, ranking.Candidate{Example: ex.Clone()})
	}

	for _, hit := range hits {
		add(hit.RequestID)
	}
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		add(s.order[i])
	}
	return out, nil
}
