package storage

import "time"

// Metadata keys.
const (
	// MetaEmbeddingModel is the embedder version the stored vectors were built with.
	MetaEmbeddingModel = "embedding_model"

	// MetaDimension is the stored vector dimensionality.
	MetaDimension = "dimension"
)

// VectorRecord is the stored embedding of one example.
type VectorRecord struct {
	// RequestID is the example the vector belongs to.
	RequestID string `json:"request_id"`

	// Vector is the embedding vector (serialized as JSON).
	Vector []float32 `json:"vector"`

	// Version is the model version used to generate the embedding.
	Version string `json:"version"`

	// CreatedAt is when the embedding was generated.
	CreatedAt time.Time `json:"created_at"`
}
