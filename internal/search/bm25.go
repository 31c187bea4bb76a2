package search

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// SearchBM25 performs BM25 keyword search over request texts.
func (i *Indexer) SearchBM25(text string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	return i.run(i.buildMatchQuery(text), limit)
}

// SearchCandidates matches text with BM25 or domain by exact tag, whichever hits.
func (i *Indexer) SearchCandidates(text, domain string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	queries := []query.Query{i.buildMatchQuery(text)}
	if domain != "" {
		domainQuery := bleve.NewTermQuery(domain)
		domainQuery.SetField("domain")
		queries = append(queries, domainQuery)
	}

	return i.run(bleve.NewDisjunctionQuery(queries...), limit)
}

func (i *Indexer) run(q query.Query, limit int) ([]Result, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	searchRequest := bleve.NewSearchRequestOptions(q, limit, 0, false)
	// Stable order across calls for equal scores
	searchRequest.SortBy([]string{"-_score", "_id"})

	results, err := i.bleveIndex.Search(searchRequest)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	return convertBleveResults(results), nil
}

// convertBleveResults converts Bleve search results to our Result format.
func convertBleveResults(results *bleve.SearchResult) []Result {
	out := make([]Result, 0, len(results.Hits))
	for _, hit := range results.Hits {
		out = append(out, Result{RequestID: hit.ID, Score: hit.Score})
	}
	return out
}

// buildMatchQuery creates a match query for BM25 search.
func (i *Indexer) buildMatchQuery(searchText string) query.Query {
	q := bleve.NewMatchQuery(searchText)
	q.SetField("text")
	return q
}
