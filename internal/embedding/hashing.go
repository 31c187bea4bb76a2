package embedding

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/surgebase/porter2"
)

// DefaultDimension is the vector length used when none is configured.
const DefaultDimension = 384

var hashTokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

var hashStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "if": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "at": {}, "by": {}, "with": {},
	"as": {}, "is": {}, "are": {}, "be": {}, "it": {}, "this": {}, "that": {},
	"so": {}, "i": {}, "want": {}, "my": {}, "can": {}, "will": {}, "should": {},
}

// HashingEmbedder is a deterministic bag-of-stems embedder using feature hashing.
// Unigrams and adjacent-stem bigrams are hashed into Dimension buckets with a
// sign bit, weighted by 1+log(tf) and L2-normalized.
type HashingEmbedder struct {
	dim int
}

// NewHashingEmbedder creates a hashing embedder. Non-positive dim uses DefaultDimension.
func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &HashingEmbedder{dim: dim}
}

// Embed never fails for a live context; empty text yields the zero vector.
func (h *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stems := h.stems(text)
	counts := make(map[string]int, len(stems)*2)
	for i, s := range stems {
		counts[s]++
		if i > 0 {
			counts[stems[i-1]+" "+s]++
		}
	}

	features := make([]string, 0, len(counts))
	for f := range counts {
		features = append(features, f)
	}
	sort.Strings(features)

	vec := make([]float64, h.dim)
	for _, feature := range features {
		tf := counts[feature]
		sum := xxhash.Sum64String(feature)
		bucket := int(sum % uint64(h.dim))
		weight := 1 + math.Log(float64(tf))
		if (sum>>63)&1 == 1 {
			weight = -weight
		}
		vec[bucket] += weight
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, h.dim)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// Dimension returns the configured vector length.
func (h *HashingEmbedder) Dimension() int { return h.dim }

// Version encodes the algorithm and dimension.
func (h *HashingEmbedder) Version() string { return fmt.Sprintf("hashing-v1-%d", h.dim) }

func (h *HashingEmbedder) stems(text string) []string {
	raw := hashTokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, stop := hashStopwords[tok]; stop {
			continue
		}
		out = append(out, porter2.Stem(tok))
	}
	return out
}
