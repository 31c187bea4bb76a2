/*
Package index implements the nearest-neighbour index over stored request vectors.

The index only maps request ids to vectors; the examples themselves live in the
learning store. Searches take a read lock and may run concurrently; upserts
take the write lock and swap in a freshly copied vector, so a reader never
observes a half-written vector.
*/
package index

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/khanglvm/casebank/internal/model"
)

// Hit is one search result.
type Hit struct {
	RequestID  string
	Similarity float64
}

type entry struct {
	id  string
	vec []float32
}

// Index is an in-memory cosine-similarity index with a fixed dimension.
type Index struct {
	mu      sync.RWMutex
	dim     int
	entries []entry
	pos     map[string]int
}

// New creates an empty index. dim 0 adopts the dimension of the first upsert.
func New(dim int) *Index {
	return &Index{
		dim: dim,
		pos: make(map[string]int),
	}
}

// Upsert inserts or replaces the vector for requestID. A replaced entry keeps
// its original insertion position.
func (ix *Index) Upsert(requestID string, vector []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dim == 0 {
		ix.dim = len(vector)
	}
	if len(vector) != ix.dim {
		return fmt.Errorf("%w: got %d, index holds %d", model.ErrDimensionMismatch, len(vector), ix.dim)
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)

	if i, ok := ix.pos[requestID]; ok {
		ix.entries[i].vec = vec
		return nil
	}
	ix.pos[requestID] = len(ix.entries)
	ix.entries = append(ix.entries, entry{id: requestID, vec: vec})
	return nil
}

// Search returns up to limit hits in non-increasing similarity order. Equal
// similarities keep insertion order.
func (ix *Index) Search(query []float32, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}

	ix.mu.RLock()
	if ix.dim != 0 && len(query) != ix.dim {
		ix.mu.RUnlock()
		return nil, fmt.Errorf("%w: query has %d, index holds %d", model.ErrDimensionMismatch, len(query), ix.dim)
	}
	hits := make([]Hit, len(ix.entries))
	for i, e := range ix.entries {
		hits[i] = Hit{RequestID: e.id, Similarity: CosineSimilarity(query, e.vec)}
	}
	ix.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Vector returns a copy of the stored vector for requestID.
func (ix *Index) Vector(requestID string) ([]float32, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	i, ok := ix.pos[requestID]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(ix.entries[i].vec))
	copy(out, ix.entries[i].vec)
	return out, true
}

// Contains reports whether requestID has a vector.
func (ix *Index) Contains(requestID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.pos[requestID]
	return ok
}

// Len returns the number of indexed vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Dimension returns the index dimension (0 while empty and unconfigured).
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Reset drops every vector and sets a new dimension.
func (ix *Index) Reset(dim int) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.dim = dim
	ix.entries = nil
	ix.pos = make(map[string]int)
}

// CosineSimilarity computes cosine similarity between two vectors.
// Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct float64
	var normA float64
	var normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
