/*
Package learning implements the learning store: the owner of every stored
example, its vector, and its feedback-driven quality score.

SQLite is the source of truth. On Open the store loads every example into
memory, rebuilds the vector index and the keyword index from it, and reindexes
when the configured embedding model differs from the one the vectors were
built with. If the embedding backend is unreachable during that reindex the
store still opens, with an empty vector index, and VectorsReady reports false
until a later Reindex succeeds. Writes commit to SQLite first and only then become visible to
searches, so a crash never leaves a searchable example without a durable row.
*/
package learning

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/khanglvm/casebank/internal/embedding"
	"github.com/khanglvm/casebank/internal/features"
	"github.com/khanglvm/casebank/internal/index"
	"github.com/khanglvm/casebank/internal/model"
	"github.com/khanglvm/casebank/internal/search"
	"github.com/khanglvm/casebank/internal/storage"
)

const (
	// defaultWriteTimeout bounds every durable write.
	defaultWriteTimeout = 5 * time.Second

	// defaultReindexWorkers bounds parallel embedding during reindex.
	defaultReindexWorkers = 4
)

// Store is the learning store.
type Store struct {
	storage  storage.Storage
	embedder embedding.Embedder
	vectors  *index.Index
	keywords *search.Indexer
	locks    *keyedMutex

	// reindexMu is held for reading by writers and exclusively by Reindex and Clear.
	reindexMu sync.RWMutex

	// vectorsStale is set while the vector index lags the embedder because a
	// reindex could not reach the embedding backend.
	vectorsStale atomic.Bool

	mu          sync.RWMutex
	examples    map[string]model.StoredExample
	order       []string
	feedback    int
	lastUpdated time.Time

	writeTimeout   time.Duration
	reindexWorkers int
	now            func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithWriteTimeout bounds each durable write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithReindexWorkers bounds parallel embedding during reindex.
func WithReindexWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.reindexWorkers = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Entry is one example to record.
type Entry struct {
	// RequestID is required and must be unique.
	RequestID string

	Text   string
	Output []model.TestCase

	// Vector is the request embedding. When nil the store embeds Text itself.
	Vector []float32

	// Source defaults to model.SourceGenerated.
	Source string

	// CreatedAt defaults to now.
	CreatedAt time.Time
}

// Open initializes st and loads its contents.
func Open(ctx context.Context, st storage.Storage, emb embedding.Embedder, opts ...Option) (*Store, error) {
	s := &Store{
		storage:        st,
		embedder:       emb,
		vectors:        index.New(emb.Dimension()),
		locks:          newKeyedMutex(),
		examples:       make(map[string]model.StoredExample),
		writeTimeout:   defaultWriteTimeout,
		reindexWorkers: defaultReindexWorkers,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := st.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	keywords, err := search.NewIndexer()
	if err != nil {
		return nil, err
	}
	s.keywords = keywords

	if err := s.load(ctx); err != nil {
		keywords.Close()
		return nil, err
	}

	return s, nil
}

// load rebuilds in-memory state from storage.
func (s *Store) load(ctx context.Context) error {
	examples, err := s.storage.ListExamples(ctx)
	if err != nil {
		return fmt.Errorf("failed to load examples: %w", err)
	}
	records, err := s.storage.ListVectors(ctx)
	if err != nil {
		return fmt.Errorf("failed to load vectors: %w", err)
	}
	storedModel, _, err := s.storage.GetMeta(ctx, storage.MetaEmbeddingModel)
	if err != nil {
		return fmt.Errorf("failed to load embedding model: %w", err)
	}

	docs := make([]search.Document, 0, len(examples))
	for _, ex := range examples {
		s.examples[ex.RequestID] = ex
		s.order = append(s.order, ex.RequestID)
		s.feedback += ex.FeedbackCount
		if ex.LastUpdatedAt.After(s.lastUpdated) {
			s.lastUpdated = ex.LastUpdatedAt
		}
		docs = append(docs, documentOf(ex))
	}
	if err := s.keywords.IndexBatch(docs); err != nil {
		return err
	}

	if len(examples) == 0 {
		return s.writeModelMeta(ctx)
	}

	stale := storedModel != s.embedder.Version() || len(records) != len(examples)
	if !stale {
		for _, rec := range records {
			if err := s.vectors.Upsert(rec.RequestID, rec.Vector); err != nil {
				stale = true
				break
			}
		}
	}

	if stale {
		log.Printf("Embedding model changed (%q -> %q), reindexing %d examples",
			storedModel, s.embedder.Version(), len(examples))
		err := s.Reindex(ctx)
		if errors.Is(err, model.ErrEmbeddingUnavailable) {
			log.Printf("Warning: reindex deferred, ranking on keyword signals until it succeeds: %v", err)
			s.vectors.Reset(s.embedder.Dimension())
			s.vectorsStale.Store(true)
			return nil
		}
		return err
	}

	log.Printf("Loaded %d examples (%s)", len(examples), s.embedder.Version())
	return nil
}

// VectorsReady reports whether the vector index covers every example with the
// current embedder.
func (s *Store) VectorsReady() bool {
	return !s.vectorsStale.Load()
}

// Record persists a new example and makes it searchable.
//
// Returns model.ErrAlreadyRecorded for an id already visible in the store,
// model.ErrEmbeddingUnavailable
// when no vector was given and the embedder fails, and a *model.PersistenceError
// when the durable write does not complete.
func (s *Store) Record(ctx context.Context, e Entry) (model.StoredExample, error) {
	if e.RequestID == "" {
		return model.StoredExample{}, errors.New("request id is required")
	}

	s.reindexMu.RLock()
	defer s.reindexMu.RUnlock()

	unlock := s.locks.Lock(e.RequestID)
	defer unlock()

	if _, ok := s.Get(e.RequestID); ok {
		return model.StoredExample{}, model.ErrAlreadyRecorded
	}

	vec := e.Vector
	if vec == nil {
		var err error
		vec, err = s.embedder.Embed(ctx, e.Text)
		if err != nil {
			return model.StoredExample{}, err
		}
	}
	if dim := s.vectors.Dimension(); dim != 0 && len(vec) != dim {
		return model.StoredExample{}, fmt.Errorf("%w: got %d, want %d", model.ErrDimensionMismatch, len(vec), dim)
	}

	ex := s.newExample(e)

	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := s.storage.InsertExample(writeCtx, ex, vec, s.embedder.Version()); err != nil {
		if !errors.Is(err, model.ErrAlreadyRecorded) {
			return model.StoredExample{}, &model.PersistenceError{Op: "record", RequestID: ex.RequestID, Err: err}
		}
		// The row is durable but was never published, as when an earlier
		// attempt committed and still reported an error.
		stored, gerr := s.storage.GetExample(writeCtx, ex.RequestID)
		if gerr != nil {
			return model.StoredExample{}, &model.PersistenceError{Op: "record", RequestID: ex.RequestID, Err: gerr}
		}
		ex = stored
	}

	s.mu.Lock()
	s.examples[ex.RequestID] = ex
	s.order = append(s.order, ex.RequestID)
	if ex.LastUpdatedAt.After(s.lastUpdated) {
		s.lastUpdated = ex.LastUpdatedAt
	}
	s.mu.Unlock()

	if err := s.vectors.Upsert(ex.RequestID, vec); err != nil {
		// Dimension was checked above and reindex is excluded, so this is a bug
		log.Printf("Warning: failed to index vector for %s: %v", ex.RequestID, err)
	}
	if err := s.keywords.Index(documentOf(ex)); err != nil {
		log.Printf("Warning: failed to index keywords for %s: %v", ex.RequestID, err)
	}

	return ex.Clone(), nil
}

// RecordText records text under a fresh request id and returns that id.
func (s *Store) RecordText(ctx context.Context, text string, output []model.TestCase) (string, error) {
	req := model.NewRequest(text)
	ex, err := s.Record(ctx, Entry{RequestID: req.ID, Text: text, Output: output, CreatedAt: req.CreatedAt})
	if err != nil {
		return "", err
	}
	return ex.RequestID, nil
}

func (s *Store) newExample(e Entry) model.StoredExample {
	fp := features.Analyze(e.Text)

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	createdAt = createdAt.UTC()

	source := e.Source
	if source == "" {
		source = model.SourceGenerated
	}

	ex := model.StoredExample{
		RequestID:      e.RequestID,
		RequestText:    e.Text,
		Output:         e.Output,
		Domain:         fp.Domain.String(),
		Complexity:     fp.Complexity.String(),
		ActorRoles:     fp.ActorRoles,
		ActionKeywords: fp.ActionKeywords,
		QualityScore:   model.DefaultQuality,
		Source:         source,
		CreatedAt:      createdAt,
		LastUpdatedAt:  createdAt,
	}
	return ex.Clone()
}

// ApplyFeedback folds a rating into the example's running average quality and
// stores any corrected output alongside the original.
//
// The rating must already be validated; it is clamped to [0, 5] regardless.
func (s *Store) ApplyFeedback(ctx context.Context, fb model.FeedbackRecord) (model.StoredExample, error) {
	s.reindexMu.RLock()
	defer s.reindexMu.RUnlock()

	unlock := s.locks.Lock(fb.RequestID)
	defer unlock()

	current, ok := s.Get(fb.RequestID)
	if !ok {
		return model.StoredExample{}, fmt.Errorf("%w: %s", model.ErrNotFound, fb.RequestID)
	}

	now := s.now().UTC()
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = now
	}

	updated := current.Clone()
	// The neutral default weighs as one observation until real feedback exists
	n := float64(max(updated.FeedbackCount, 1))
	updated.QualityScore = model.ClampQuality((updated.QualityScore*n + model.ClampQuality(fb.Rating)) / (n + 1))
	updated.FeedbackCount++
	if len(fb.CorrectedOutput) > 0 {
		updated.CorrectedOutput = append([]model.TestCase(nil), fb.CorrectedOutput...)
	}
	updated.LastUpdatedAt = now

	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := s.storage.ApplyFeedback(writeCtx, updated, fb); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.StoredExample{}, err
		}
		return model.StoredExample{}, &model.PersistenceError{Op: "feedback", RequestID: fb.RequestID, Err: err}
	}

	s.mu.Lock()
	s.examples[updated.RequestID] = updated
	s.feedback++
	if updated.LastUpdatedAt.After(s.lastUpdated) {
		s.lastUpdated = updated.LastUpdatedAt
	}
	s.mu.Unlock()

	return updated.Clone(), nil
}

// Get returns a copy of one example.
func (s *Store) Get(requestID string) (model.StoredExample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ex, ok := s.examples[requestID]
	if !ok {
		return model.StoredExample{}, false
	}
	return ex.Clone(), true
}

// Stats returns aggregate counters.
func (s *Store) Stats() model.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return model.Stats{
		TotalRecorded:         len(s.examples),
		TotalFeedbackReceived: s.feedback,
		LastUpdatedAt:         s.lastUpdated,
		EmbeddingModel:        s.embedder.Version(),
		Dimension:             s.embedder.Dimension(),
	}
}

// Export returns every example in insertion order.
func (s *Store) Export() []model.StoredExample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.StoredExample, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.examples[id].Clone())
	}
	return out
}

// Feedback returns the feedback log since the given time.
func (s *Store) Feedback(ctx context.Context, since time.Time) ([]model.FeedbackRecord, error) {
	return s.storage.ListFeedback(ctx, since)
}

// Embedder returns the store's embedder.
func (s *Store) Embedder() embedding.Embedder {
	return s.embedder
}

// Clear removes every example and its feedback.
func (s *Store) Clear(ctx context.Context) error {
	s.reindexMu.Lock()
	defer s.reindexMu.Unlock()

	if err := s.storage.Clear(ctx); err != nil {
		return &model.PersistenceError{Op: "clear", Err: err}
	}

	s.mu.Lock()
	s.examples = make(map[string]model.StoredExample)
	s.order = nil
	s.feedback = 0
	s.lastUpdated = time.Time{}
	s.mu.Unlock()

	s.vectors.Reset(s.embedder.Dimension())
	s.vectorsStale.Store(false)
	if err := s.writeModelMeta(ctx); err != nil {
		return &model.PersistenceError{Op: "clear", Err: err}
	}
	return s.keywords.Reset()
}

// Close releases the store's resources.
func (s *Store) Close() error {
	var errs []error
	if err := s.keywords.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.storage.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Store) writeModelMeta(ctx context.Context) error {
	if err := s.storage.SetMeta(ctx, storage.MetaEmbeddingModel, s.embedder.Version()); err != nil {
		return err
	}
	return s.storage.SetMeta(ctx, storage.MetaDimension, strconv.Itoa(s.embedder.Dimension()))
}

func documentOf(ex model.StoredExample) search.Document {
	return search.Document{RequestID: ex.RequestID, Text: ex.RequestText, Domain: ex.Domain}
}
