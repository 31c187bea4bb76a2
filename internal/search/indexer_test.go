package search

import (
	"testing"
)

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	indexer, err := NewIndexer()
	if err != nil {
		t.Fatalf("failed to create indexer: %v", err)
	}
	t.Cleanup(func() { indexer.Close() })

	docs := []Document{
		{RequestID: "login", Text: "As a user, I want to log in with my password", Domain: "identity/auth"},
		{RequestID: "reset", Text: "As a user, I want to reset a forgotten credential", Domain: "identity/auth"},
		{RequestID: "cart", Text: "As a shopper, I want to add products to my cart", Domain: "commerce"},
	}
	if err := indexer.IndexBatch(docs); err != nil {
		t.Fatalf("failed to index: %v", err)
	}
	return indexer
}

func TestIndexBatch_Count(t *testing.T) {
	indexer := newTestIndexer(t)

	count, err := indexer.Count()
	if err != nil {
		t.Fatalf("failed to get count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 indexed examples, got %d", count)
	}
}

func TestIndex_Replace(t *testing.T) {
	indexer := newTestIndexer(t)

	if err := indexer.Index(Document{RequestID: "cart", Text: "wishlist sharing", Domain: "social"}); err != nil {
		t.Fatalf("failed to reindex: %v", err)
	}
	count, _ := indexer.Count()
	if count != 3 {
		t.Errorf("expected replace to keep 3 docs, got %d", count)
	}

	results, _ := indexer.SearchBM25("wishlist", 5)
	if len(results) != 1 || results[0].RequestID != "cart" {
		t.Errorf("expected replaced text to be searchable, got %v", results)
	}
}

func TestSearchBM25(t *testing.T) {
	indexer := newTestIndexer(t)

	results, err := indexer.SearchBM25("password", 5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) == 0 || results[0].RequestID != "login" {
		t.Errorf("expected 'login' first, got %v", results)
	}
}

func TestSearchCandidates_DomainPullsInNonMatchingText(t *testing.T) {
	indexer := newTestIndexer(t)

	results, err := indexer.SearchCandidates("password", "identity/auth", 5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	found := map[string]bool{}
	for _, r := range results {
		found[r.RequestID] = true
	}
	if !found["login"] || !found["reset"] {
		t.Errorf("expected both identity examples, got %v", results)
	}
	if found["cart"] {
		t.Errorf("commerce example should not match, got %v", results)
	}
}

func TestSearchCandidates_Stable(t *testing.T) {
	indexer := newTestIndexer(t)

	first, _ := indexer.SearchCandidates("user", "identity/auth", 5)
	second, _ := indexer.SearchCandidates("user", "identity/auth", 5)
	if len(first) != len(second) {
		t.Fatalf("result sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].RequestID != second[i].RequestID {
			t.Errorf("order differs at %d: %s vs %s", i, first[i].RequestID, second[i].RequestID)
		}
	}
}

func TestReset(t *testing.T) {
	indexer := newTestIndexer(t)

	if err := indexer.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	count, _ := indexer.Count()
	if count != 0 {
		t.Errorf("expected empty index after reset, got %d", count)
	}

	results, err := indexer.SearchBM25("password", 5)
	if err != nil {
		t.Fatalf("search after reset failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no hits after reset, got %v", results)
	}
}
