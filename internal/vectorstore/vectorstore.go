// Package vectorstore implements C3: a collection of embedding vectors
// keyed by artifact id, partitioned by embedding model, with metadata
// filters for recording-scoped queries and deletes.
package vectorstore

import (
	"context"

	"github.com/memscreen/memscreend/internal/model"
)

// Result is one hit from Query, ordered by descending cosine similarity.
type Result struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Store is the vector store contract spec §4.3 names.
type Store interface {
	// EnsureCollection creates the named collection with the given
	// dimension if it does not exist; it fails with apperr.ConstraintViolation
	// if an existing collection has a different dimension.
	EnsureCollection(ctx context.Context, name string, dim int) error

	// Upsert writes a batch of vector records atomically to a collection.
	Upsert(ctx context.Context, collection string, records []model.VectorRecord) error

	// Query runs a cosine-similarity search for the top k vectors, optionally
	// narrowed by a metadata filter (e.g. {"recording_id": "..."}).
	Query(ctx context.Context, collection string, vector []float32, k int, filter map[string]string) ([]Result, error)

	// DeleteByFilter removes every record in collection matching filter.
	DeleteByFilter(ctx context.Context, collection string, filter map[string]string) error

	Close() error
}

// CollectionName returns the collection a given embedding model's vectors
// belong to, per spec §3 ("partitioned into separate collections").
func CollectionName(embeddingModel string) string {
	return "emb:" + embeddingModel
}
