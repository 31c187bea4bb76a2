package learning

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/khanglvm/casebank/internal/model"
	"github.com/khanglvm/casebank/internal/storage"
)

// Reindex recomputes every vector from the stored request text with the
// current embedder, then swaps the vector index in one step. Writers wait
// for it to finish.
//
// On failure the durable vectors and the in-memory index are left untouched.
func (s *Store) Reindex(ctx context.Context) error {
	s.reindexMu.Lock()
	defer s.reindexMu.Unlock()

	start := time.Now()
	examples := s.Export()
	version := s.embedder.Version()
	records := make([]storage.VectorRecord, len(examples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.reindexWorkers)
	for i, ex := range examples {
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, ex.RequestText)
			if err != nil {
				return fmt.Errorf("failed to embed %s: %w", ex.RequestID, err)
			}
			records[i] = storage.VectorRecord{RequestID: ex.RequestID, Vector: vec, Version: version}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout+time.Duration(len(records))*time.Millisecond)
	defer cancel()
	if err := s.storage.ReplaceVectors(writeCtx, records); err != nil {
		return &model.PersistenceError{Op: "reindex", Err: err}
	}
	if len(records) == 0 {
		if err := s.writeModelMeta(writeCtx); err != nil {
			return &model.PersistenceError{Op: "reindex", Err: err}
		}
	}

	s.vectors.Reset(s.embedder.Dimension())
	for _, rec := range records {
		if err := s.vectors.Upsert(rec.RequestID, rec.Vector); err != nil {
			return fmt.Errorf("failed to index %s: %w", rec.RequestID, err)
		}
	}
	s.vectorsStale.Store(false)

	log.Printf("Reindexed %d examples with %s in %v", len(records), version, time.Since(start).Round(time.Millisecond))
	return nil
}
