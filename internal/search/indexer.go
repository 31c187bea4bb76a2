package search

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Indexer manages the keyword index over stored request texts.
type Indexer struct {
	bleveIndex bleve.Index
	mu         sync.RWMutex
}

// NewIndexer creates a new keyword indexer with an in-memory Bleve index.
// The index is rebuilt from the durable store on startup, so nothing is
// persisted here.
func NewIndexer() (*Indexer, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}

	return &Indexer{bleveIndex: index}, nil
}

// buildIndexMapping creates the Bleve index mapping.
func buildIndexMapping() mapping.IndexMapping {
	exampleMapping := bleve.NewDocumentMapping()

	// Request text: analyzed for BM25 matching
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Store = false
	exampleMapping.AddFieldMappingsAt("text", textFieldMapping)

	// Domain tag: exact term, not tokenized ("identity/auth" stays whole)
	domainFieldMapping := bleve.NewTextFieldMapping()
	domainFieldMapping.Analyzer = keyword.Name
	domainFieldMapping.Store = false
	domainFieldMapping.IncludeInAll = false
	exampleMapping.AddFieldMappingsAt("domain", domainFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", exampleMapping)

	return indexMapping
}

// Index adds or replaces one example.
func (i *Indexer) Index(doc Document) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.bleveIndex.Index(doc.RequestID, doc.fields()); err != nil {
		return fmt.Errorf("failed to index %s: %w", doc.RequestID, err)
	}
	return nil
}

// IndexBatch adds many examples in one batch.
func (i *Indexer) IndexBatch(docs []Document) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	batch := i.bleveIndex.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.RequestID, doc.fields()); err != nil {
			return fmt.Errorf("failed to batch %s: %w", doc.RequestID, err)
		}
	}

	if err := i.bleveIndex.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Reset drops every indexed example.
func (i *Indexer) Reset() error {
	fresh, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return fmt.Errorf("failed to create bleve index: %w", err)
	}

	i.mu.Lock()
	old := i.bleveIndex
	i.bleveIndex = fresh
	i.mu.Unlock()

	if old != nil {
		return old.Close()
	}
	return nil
}

// Count returns the total number of indexed examples.
func (i *Indexer) Count() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	docCount, err := i.bleveIndex.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to get doc count: %w", err)
	}

	return docCount, nil
}

// Close closes the index and releases resources.
func (i *Indexer) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.bleveIndex != nil {
		return i.bleveIndex.Close()
	}

	return nil
}
