/*
Package benchmark measures retrieval quality and latency.

Each case is a query plus the request id expected to rank first. Every case
is ranked twice against the same store:
1. Semantic: the full blend with the query embedding
2. Degraded: keyword signals only, as served when the embedder is down

Quality is reported as hit@1, hit@k and mean reciprocal rank (MRR).
*/
package benchmark

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/khanglvm/casebank/internal/embedding"
	"github.com/khanglvm/casebank/internal/features"
	"github.com/khanglvm/casebank/internal/ranking"
	"github.com/khanglvm/casebank/internal/seed"
)

// DefaultK is the cutoff for hit@k.
const DefaultK = 5

// Case is one benchmark query.
type Case struct {
	Query      string `json:"query"`
	ExpectedID string `json:"expectedId"`
}

// ModeResult aggregates one ranking mode over all cases.
type ModeResult struct {
	Mode        string        `json:"mode"`
	Queries     int           `json:"queries"`
	HitAt1      float64       `json:"hitAt1"`
	HitAtK      float64       `json:"hitAtK"`
	MRR         float64       `json:"mrr"`
	MeanLatency time.Duration `json:"meanLatencyNs"`
	P95Latency  time.Duration `json:"p95LatencyNs"`
}

// BenchmarkResult contains both modes side by side.
type BenchmarkResult struct {
	Examples int        `json:"examples"`
	K        int        `json:"k"`
	Semantic ModeResult `json:"semantic"`
	Degraded ModeResult `json:"degraded"`
}

// caseFile is the on-disk shape of a case list. The expected example is
// named by its story text, which maps to a seed id.
type caseFile struct {
	Query         string `json:"query"`
	ExpectedStory string `json:"expectedStory"`
}

// LoadCases reads a JSON array of {"query", "expectedStory"}.
func LoadCases(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cases: %w", err)
	}
	var raw []caseFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse cases: %w", err)
	}

	cases := make([]Case, 0, len(raw))
	for _, c := range raw {
		if strings.TrimSpace(c.Query) == "" || strings.TrimSpace(c.ExpectedStory) == "" {
			continue
		}
		cases = append(cases, Case{Query: c.Query, ExpectedID: seed.ID(c.ExpectedStory)})
	}
	return cases, nil
}

// CasesFromSamples uses each seeded story as its own query.
func CasesFromSamples(samples []seed.Sample) []Case {
	var cases []Case
	for _, s := range samples {
		if strings.TrimSpace(s.UserStory) == "" {
			continue
		}
		cases = append(cases, Case{Query: s.UserStory, ExpectedID: seed.ID(s.UserStory)})
	}
	return cases
}

// Runner ranks cases against a populated store.
type Runner struct {
	embedder embedding.Embedder
	ranker   *ranking.Ranker
	k        int
}

// NewRunner creates a runner. A non-positive k uses DefaultK.
func NewRunner(emb embedding.Embedder, ranker *ranking.Ranker, k int) *Runner {
	if k <= 0 {
		k = DefaultK
	}
	return &Runner{embedder: emb, ranker: ranker, k: k}
}

// RunBenchmark ranks every case in both modes. examples is the store size,
// reported as-is.
func (r *Runner) RunBenchmark(ctx context.Context, cases []Case, examples int) (*BenchmarkResult, error) {
	semantic := newTally("semantic")
	degraded := newTally("degraded")

	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fp := features.Analyze(c.Query)

		start := time.Now()
		vec, err := r.embedder.Embed(ctx, c.Query)
		if err != nil {
			return nil, fmt.Errorf("failed to embed %q: %w", c.Query, err)
		}
		ranked, err := r.ranker.Rank(ranking.Query{Text: c.Query, Fingerprint: fp, Vector: vec}, r.k)
		if err != nil {
			return nil, err
		}
		semantic.add(RankOf(ranked, c.ExpectedID), time.Since(start), r.k)

		start = time.Now()
		ranked, err = r.ranker.Rank(ranking.Query{Text: c.Query, Fingerprint: fp}, r.k)
		if err != nil {
			return nil, err
		}
		degraded.add(RankOf(ranked, c.ExpectedID), time.Since(start), r.k)
	}

	return &BenchmarkResult{
		Examples: examples,
		K:        r.k,
		Semantic: semantic.result(),
		Degraded: degraded.result(),
	}, nil
}

// RankOf returns the 1-based position of id in ranked, or 0 when absent.
func RankOf(ranked []ranking.Ranked, id string) int {
	for i, r := range ranked {
		if r.Example.RequestID == id {
			return i + 1
		}
	}
	return 0
}

type tally struct {
	mode      string
	hits1     int
	hitsK     int
	rr        float64
	latencies []time.Duration
}

func newTally(mode string) *tally {
	return &tally{mode: mode}
}

func (t *tally) add(rank int, latency time.Duration, k int) {
	t.latencies = append(t.latencies, latency)
	if rank == 0 {
		return
	}
	if rank == 1 {
		t.hits1++
	}
	if rank <= k {
		t.hitsK++
	}
	t.rr += 1 / float64(rank)
}

func (t *tally) result() ModeResult {
	n := len(t.latencies)
	res := ModeResult{Mode: t.mode, Queries: n}
	if n == 0 {
		return res
	}

	res.HitAt1 = float64(t.hits1) / float64(n)
	res.HitAtK = float64(t.hitsK) / float64(n)
	res.MRR = t.rr / float64(n)

	var total time.Duration
	for _, l := range t.latencies {
		total += l
	}
	res.MeanLatency = total / time.Duration(n)
	res.P95Latency = Percentile(t.latencies, 0.95)
	return res
}

// Percentile returns the nearest-rank percentile p (0..1) of latencies.
func Percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// FormatResult formats the benchmark result for display.
func FormatResult(result *BenchmarkResult) string {
	var sb strings.Builder

	sb.WriteString("╔══════════════════════════════════════════════════════════════╗\n")
	sb.WriteString("║              RETRIEVAL QUALITY BENCHMARK RESULTS             ║\n")
	sb.WriteString("╠══════════════════════════════════════════════════════════════╣\n")
	sb.WriteString(fmt.Sprintf("║  Examples: %-6d  Queries: %-6d  k: %-3d                     ║\n",
		result.Examples, result.Semantic.Queries, result.K))
	for _, m := range []ModeResult{result.Semantic, result.Degraded} {
		sb.WriteString("╠══════════════════════════════════════════════════════════════╣\n")
		sb.WriteString(fmt.Sprintf("║  %-60s║\n", strings.ToUpper(m.Mode)))
		sb.WriteString(fmt.Sprintf("║     hit@1:  %6.1f%%                                           ║\n", m.HitAt1*100))
		sb.WriteString(fmt.Sprintf("║     hit@%-2d: %6.1f%%                                           ║\n", result.K, m.HitAtK*100))
		sb.WriteString(fmt.Sprintf("║     MRR:    %6.3f                                            ║\n", m.MRR))
		sb.WriteString(fmt.Sprintf("║     Latency: mean %-10v p95 %-10v                   ║\n",
			m.MeanLatency.Round(time.Microsecond), m.P95Latency.Round(time.Microsecond)))
	}
	sb.WriteString("╚══════════════════════════════════════════════════════════════╝\n")

	return sb.String()
}
