/*
Package embedding converts request text into fixed-length vectors.

Two backends are provided: a local feature-hashing embedder that needs no
external service, and an Ollama client for model-backed embeddings. Both are
wrapped by Guard, which bounds every call with a timeout and reports any
backend failure as model.ErrEmbeddingUnavailable.
*/
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/khanglvm/casebank/internal/model"
)

// Embedder produces vectors for text.
type Embedder interface {
	// Embed returns the vector for text. Same text, same model => same vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension is the fixed vector length.
	Dimension() int

	// Version identifies the model; vectors from different versions must not be mixed.
	Version() string
}

// Guard enforces a timeout and the EmbeddingUnavailable contract around an Embedder.
type Guard struct {
	inner   Embedder
	timeout time.Duration
}

// NewGuard wraps inner. A non-positive timeout disables the deadline.
func NewGuard(inner Embedder, timeout time.Duration) *Guard {
	return &Guard{inner: inner, timeout: timeout}
}

// Embed calls the wrapped embedder and normalizes its failures.
func (g *Guard) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	type result struct {
		vec []float32
		err error
	}
	done := make(chan result, 1)
	go func() {
		vec, err := g.inner.Embed(ctx, text)
		done <- result{vec, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", model.ErrEmbeddingUnavailable, ctx.Err())
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, model.ErrEmbeddingUnavailable) {
				return nil, r.err
			}
			return nil, fmt.Errorf("%w: %v", model.ErrEmbeddingUnavailable, r.err)
		}
		if len(r.vec) != g.inner.Dimension() {
			return nil, fmt.Errorf("%w: got %d dimensions, want %d",
				model.ErrEmbeddingUnavailable, len(r.vec), g.inner.Dimension())
		}
		return r.vec, nil
	}
}

// Dimension returns the wrapped embedder's dimension.
func (g *Guard) Dimension() int { return g.inner.Dimension() }

// Version returns the wrapped embedder's version.
func (g *Guard) Version() string { return g.inner.Version() }
