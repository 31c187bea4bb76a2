/*
Package ranking scores stored examples against a new request and orders them.

Score = 0.40*semantic + 0.25*domain + 0.15*keyword + 0.15*quality + 0.05*recency

Every signal is normalized to [0, 1] before weighting. When the embedding
backend is unavailable the semantic weight is spread proportionally over the
other four signals, so the weights still sum to 1.
*/
package ranking

import (
	"math"
	"time"

	"github.com/khanglvm/casebank/internal/features"
	"github.com/khanglvm/casebank/internal/index"
	"github.com/khanglvm/casebank/internal/model"
)

const (
	// semanticWeight is the weight for vector similarity (0.40 = 40%).
	semanticWeight = 0.40

	// domainWeight is the weight for an exact domain tag match (0.25 = 25%).
	domainWeight = 0.25

	// keywordWeight is the weight for role/action Jaccard overlap (0.15 = 15%).
	keywordWeight = 0.15

	// qualityWeight is the weight for the feedback-driven quality score (0.15 = 15%).
	qualityWeight = 0.15

	// recencyWeight is the weight for example age (0.05 = 5%).
	recencyWeight = 0.05

	// DefaultRecencyHalfLife is the half-life for exponential decay (14 days).
	DefaultRecencyHalfLife = 14 * 24 * time.Hour

	// DefaultRecencyHorizon is the age past which recency is 0 (180 days).
	DefaultRecencyHorizon = 180 * 24 * time.Hour
)

// Weights holds the per-signal weights.
type Weights struct {
	Semantic float64 `json:"semantic"`
	Domain   float64 `json:"domain"`
	Keyword  float64 `json:"keyword"`
	Quality  float64 `json:"quality"`
	Recency  float64 `json:"recency"`
}

// DefaultWeights is the fixed ranking policy.
var DefaultWeights = Weights{
	Semantic: semanticWeight,
	Domain:   domainWeight,
	Keyword:  keywordWeight,
	Quality:  qualityWeight,
	Recency:  recencyWeight,
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Semantic + w.Domain + w.Keyword + w.Quality + w.Recency
}

// WithoutSemantic redistributes the semantic weight proportionally over the
// remaining signals.
func (w Weights) WithoutSemantic() Weights {
	rest := w.Domain + w.Keyword + w.Quality + w.Recency
	if rest == 0 {
		return Weights{}
	}
	scale := w.Sum() / rest
	return Weights{
		Domain:  w.Domain * scale,
		Keyword: w.Keyword * scale,
		Quality: w.Quality * scale,
		Recency: w.Recency * scale,
	}
}

// Signals are the normalized inputs to one score.
type Signals struct {
	Semantic float64 `json:"semantic"`
	Domain   float64 `json:"domain"`
	Keyword  float64 `json:"keyword"`
	Quality  float64 `json:"quality"`
	Recency  float64 `json:"recency"`
}

// Query is the new request as seen by the scorer. A nil Vector means the
// embedding backend was unavailable.
type Query struct {
	Text        string
	Fingerprint features.Fingerprint
	Vector      []float32
}

// Degraded reports whether the query has no vector.
func (q Query) Degraded() bool { return q.Vector == nil }

// Candidate is a stored example offered for scoring.
type Candidate struct {
	Example model.StoredExample

	// Similarity is the index similarity when HasSimilarity is set.
	Similarity    float64
	HasSimilarity bool

	// Vector is used to compute similarity when HasSimilarity is unset.
	Vector []float32
}

// Scorer computes relevance scores.
type Scorer struct {
	weights  Weights
	halfLife time.Duration
	horizon  time.Duration
	now      func() time.Time
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithRecency sets the decay half-life and the horizon past which recency is 0.
func WithRecency(halfLife, horizon time.Duration) Option {
	return func(s *Scorer) {
		if halfLife > 0 {
			s.halfLife = halfLife
		}
		if horizon > 0 {
			s.horizon = horizon
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// NewScorer creates a scorer using DefaultWeights.
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{
		weights:  DefaultWeights,
		halfLife: DefaultRecencyHalfLife,
		horizon:  DefaultRecencyHorizon,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Weights returns the weights applied to q.
func (s *Scorer) Weights(q Query) Weights {
	if q.Degraded() {
		return s.weights.WithoutSemantic()
	}
	return s.weights
}

// Score returns the relevance of c to q, in [0, 1].
func (s *Scorer) Score(q Query, c Candidate) float64 {
	return s.combine(s.Weights(q), s.Signals(q, c, s.now()))
}

// Signals computes each normalized signal at time now.
func (s *Scorer) Signals(q Query, c Candidate, now time.Time) Signals {
	sig := Signals{
		Keyword: features.Jaccard(q.Fingerprint, fingerprintOf(c.Example)),
		Quality: clamp01(c.Example.QualityScore / model.MaxRating),
		Recency: s.Recency(c.Example.CreatedAt, now),
	}
	if q.Fingerprint.Domain.String() == c.Example.Domain {
		sig.Domain = 1
	}
	if !q.Degraded() {
		if c.HasSimilarity {
			sig.Semantic = clamp01(c.Similarity)
		} else if c.Vector != nil {
			sig.Semantic = clamp01(index.CosineSimilarity(q.Vector, c.Vector))
		}
	}
	return sig
}

// Recency decays exponentially with age and is 0 at or beyond the horizon.
func (s *Scorer) Recency(createdAt, now time.Time) float64 {
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1
	}
	if age >= s.horizon {
		return 0
	}
	// weight = e^(-ln(2) * t / half_life)
	return math.Exp(-math.Ln2 * age.Hours() / s.halfLife.Hours())
}

func (s *Scorer) combine(w Weights, sig Signals) float64 {
	total := w.Semantic*sig.Semantic +
		w.Domain*sig.Domain +
		w.Keyword*sig.Keyword +
		w.Quality*sig.Quality +
		w.Recency*sig.Recency
	return clamp01(total)
}

func fingerprintOf(e model.StoredExample) features.Fingerprint {
	return features.Fingerprint{
		Domain:         features.ParseDomain(e.Domain),
		Complexity:     features.ParseTier(e.Complexity),
		ActorRoles:     e.ActorRoles,
		ActionKeywords: e.ActionKeywords,
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
