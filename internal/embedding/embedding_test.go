package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/khanglvm/casebank/internal/model"
)

func TestHashingEmbedder_Deterministic(t *testing.T) {
	h := NewHashingEmbedder(64)
	a, err := h.Embed(context.Background(), "As a user, I want to log in")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	b, _ := h.Embed(context.Background(), "As a user, I want to log in")

	if len(a) != 64 {
		t.Fatalf("expected 64 dims, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestHashingEmbedder_UnitNorm(t *testing.T) {
	h := NewHashingEmbedder(0)
	if h.Dimension() != DefaultDimension {
		t.Errorf("expected default dimension %d, got %d", DefaultDimension, h.Dimension())
	}

	vec, _ := h.Embed(context.Background(), "checkout the shopping cart with a coupon")
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-5 {
		t.Errorf("expected unit norm, got %f", norm)
	}
}

func TestHashingEmbedder_EmptyText(t *testing.T) {
	h := NewHashingEmbedder(16)
	vec, err := h.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	for _, v := range vec {
		if v != 0 {
			t.Fatal("expected zero vector for empty text")
		}
	}
}

func TestHashingEmbedder_SimilarTextsAreCloser(t *testing.T) {
	h := NewHashingEmbedder(256)
	ctx := context.Background()
	login, _ := h.Embed(ctx, "As a user, I want to log in with my password")
	login2, _ := h.Embed(ctx, "As a user, I want to log in using my password")
	cart, _ := h.Embed(ctx, "Shopper adds discounted products to the basket")

	if dot(login, login2) <= dot(login, cart) {
		t.Errorf("expected near-identical stories to be closer: %f vs %f", dot(login, login2), dot(login, cart))
	}
}

func TestHashingEmbedder_Version(t *testing.T) {
	if NewHashingEmbedder(32).Version() == NewHashingEmbedder(64).Version() {
		t.Error("versions must differ across dimensions")
	}
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "test-model" {
			t.Errorf("unexpected model: %s", req.Model)
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "casebank/") {
			t.Errorf("unexpected user agent: %s", r.Header.Get("User-Agent"))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": []float32{0.1, 0.2, 0.3},
		})
	}))
	defer server.Close()

	o := NewOllamaEmbedder(server.URL, "test-model", 3)
	vec, err := o.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("expected 3 dims, got %d", len(vec))
	}
}

func TestOllamaEmbedder_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	g := NewGuard(NewOllamaEmbedder(server.URL, "m", 3), time.Second)
	_, err := g.Embed(context.Background(), "hello")
	if !errors.Is(err, model.ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}

type slowEmbedder struct{ delay time.Duration }

func (s slowEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-time.After(s.delay):
		return []float32{1}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
func (s slowEmbedder) Dimension() int  { return 1 }
func (s slowEmbedder) Version() string { return "slow" }

func TestGuard_Timeout(t *testing.T) {
	g := NewGuard(slowEmbedder{delay: time.Second}, 20*time.Millisecond)

	start := time.Now()
	_, err := g.Embed(context.Background(), "x")
	if !errors.Is(err, model.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("guard did not honour its timeout")
	}
}

func TestGuard_DimensionCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float32{0.1}})
	}))
	defer server.Close()

	g := NewGuard(NewOllamaEmbedder(server.URL, "m", 4), time.Second)
	if _, err := g.Embed(context.Background(), "x"); !errors.Is(err, model.ErrEmbeddingUnavailable) {
		t.Errorf("expected dimension mismatch to surface as unavailable, got %v", err)
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
