/*
Package engine assembles the retrieval and learning components from settings.

Open builds, in order: the embedder (wrapped in a timeout guard), the SQLite
storage under the data directory, the learning store, the scorer and ranker,
the background committer and the orchestrator, plus the feedback processor.
Close tears them down in reverse, draining pending commits first.

When the store opens with a deferred reindex, the engine retries it in the
background until it succeeds or the engine closes.
*/
package engine

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/khanglvm/casebank/internal/config"
	"github.com/khanglvm/casebank/internal/embedding"
	"github.com/khanglvm/casebank/internal/feedback"
	"github.com/khanglvm/casebank/internal/learning"
	"github.com/khanglvm/casebank/internal/model"
	"github.com/khanglvm/casebank/internal/ranking"
	"github.com/khanglvm/casebank/internal/retrieval"
	"github.com/khanglvm/casebank/internal/storage"
)

// Engine holds the wired components.
type Engine struct {
	Settings  *config.Settings
	Embedder  embedding.Embedder
	Store     *learning.Store
	Ranker    *ranking.Ranker
	Retrieval *retrieval.Orchestrator
	Feedback  *feedback.Processor

	dbPath string
	now    func() time.Time

	stopReindex context.CancelFunc
	reindexWG   sync.WaitGroup
}

// defaultReindexRetry is the delay between background reindex attempts.
const defaultReindexRetry = 30 * time.Second

// Option configures Open.
type Option func(*options)

type options struct {
	embedder     embedding.Embedder
	clock        func() time.Time
	reindexRetry time.Duration
}

// WithEmbedder replaces the embedder selected by settings.
func WithEmbedder(emb embedding.Embedder) Option {
	return func(o *options) { o.embedder = emb }
}

// WithClock sets the clock used for recency and timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithReindexRetry sets the delay between background reindex attempts.
func WithReindexRetry(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.reindexRetry = d
		}
	}
}

// NewEmbedder builds the embedder named by settings, guarded by the embed timeout.
func NewEmbedder(s *config.Settings) (embedding.Embedder, error) {
	var inner embedding.Embedder
	switch s.Embedder.Type {
	case config.EmbedderHashing:
		inner = embedding.NewHashingEmbedder(s.Embedder.Dimension)
	case config.EmbedderOllama:
		inner = embedding.NewOllamaEmbedder(s.Embedder.BaseURL, s.Embedder.Model, s.Embedder.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedder type: %s", s.Embedder.Type)
	}
	return embedding.NewGuard(inner, s.EmbedTimeout()), nil
}

// DatabasePath returns the SQLite file inside the configured data directory.
func DatabasePath(s *config.Settings) (string, error) {
	dir, err := s.ResolvedDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, storage.DatabaseFile), nil
}

// Open wires every component. The store may reindex on open when the
// embedding model changed since the last run.
func Open(ctx context.Context, s *config.Settings, opts ...Option) (*Engine, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	o := &options{clock: time.Now, reindexRetry: defaultReindexRetry}
	for _, opt := range opts {
		opt(o)
	}

	emb := o.embedder
	if emb == nil {
		var err error
		emb, err = NewEmbedder(s)
		if err != nil {
			return nil, err
		}
	}

	dbPath, err := DatabasePath(s)
	if err != nil {
		return nil, err
	}

	store, err := learning.Open(ctx, storage.NewStorage(dbPath), emb,
		learning.WithWriteTimeout(s.WriteTimeout()),
		learning.WithClock(o.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open learning store: %w", err)
	}

	scorer := ranking.NewScorer(
		ranking.WithRecency(s.RecencyHalfLife(), s.RecencyHorizon()),
		ranking.WithClock(o.clock),
	)
	ranker := ranking.NewRanker(scorer, store, s.Retrieval.Oversample)

	committer := retrieval.NewCommitter(store,
		retrieval.WithWorkers(s.Commit.Workers),
		retrieval.WithQueueSize(s.Commit.QueueSize),
		retrieval.WithRetry(s.Commit.MaxAttempts, s.CommitBackoff()),
	)

	e := &Engine{
		Settings: s,
		Embedder: emb,
		Store:    store,
		Ranker:   ranker,
		Retrieval: retrieval.New(emb, ranker, committer,
			retrieval.WithLimit(s.Retrieval.Limit),
			retrieval.WithStrongMatch(s.Retrieval.StrongMatch),
			retrieval.WithVectorsReady(store.VectorsReady),
		),
		Feedback:    feedback.NewProcessor(store),
		dbPath:      dbPath,
		now:         o.clock,
		stopReindex: func() {},
	}

	if !store.VectorsReady() {
		rctx, cancel := context.WithCancel(context.Background())
		e.stopReindex = cancel
		e.reindexWG.Add(1)
		go e.retryReindex(rctx, o.reindexRetry)
	}

	return e, nil
}

// retryReindex reattempts the deferred reindex every interval until it
// succeeds or ctx ends.
func (e *Engine) retryReindex(ctx context.Context, interval time.Duration) {
	defer e.reindexWG.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if e.Store.VectorsReady() {
			return
		}
		if err := e.Store.Reindex(ctx); err != nil {
			if ctx.Err() == nil {
				log.Printf("Warning: background reindex failed, retrying in %v: %v", interval, err)
			}
			continue
		}
		return
	}
}

// DatabasePath returns the SQLite file this engine writes to.
func (e *Engine) DatabasePath() string {
	return e.dbPath
}

// Stats returns the learning store aggregate.
func (e *Engine) Stats() model.Stats {
	return e.Store.Stats()
}

// Analyze builds a feedback report over every feedback record since since.
// A zero since covers all history.
func (e *Engine) Analyze(ctx context.Context, since time.Time) (feedback.Report, error) {
	records, err := e.Store.Feedback(ctx, since)
	if err != nil {
		return feedback.Report{}, err
	}
	return feedback.Analyze(records, e.now()), nil
}

// Close drains pending commits and closes the store.
func (e *Engine) Close() error {
	e.stopReindex()
	e.reindexWG.Wait()
	e.Retrieval.Close()
	if err := e.Store.Close(); err != nil {
		return fmt.Errorf("failed to close learning store: %w", err)
	}
	return nil
}
