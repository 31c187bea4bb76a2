/*
Package search implements BM25 keyword retrieval over stored request texts.

It is the candidate source for ranking when the embedding backend is
unavailable: the request text is matched with BM25 and examples sharing the
query's domain tag are pulled in alongside.
*/
package search

// Result is one keyword hit.
type Result struct {
	RequestID string  `json:"requestId"`
	Score     float64 `json:"score"`
}

// Document is an example as stored in the keyword index.
type Document struct {
	RequestID string
	Text      string
	Domain    string
}

func (d Document) fields() map[string]interface{} {
	return map[string]interface{}{
		"text":   d.Text,
		"domain": d.Domain,
	}
}
