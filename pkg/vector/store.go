// Package vector provides similarity search over embedding vectors.
package vector

import "context"

// Entry is one ranked similarity search result.
type Entry struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// Store indexes embedding vectors by ID and answers nearest-neighbor
// queries ranked by cosine similarity. Implementations must be safe for
// concurrent readers; Upsert may be called concurrently with searches.
type Store interface {
	// Upsert inserts or replaces the vector stored under id.
	Upsert(ctx context.Context, id string, vec []float32, metadata map[string]string) error

	// SimilaritySearch returns up to k entries ranked by similarity to
	// vec, highest first. Ties keep insertion order.
	SimilaritySearch(ctx context.Context, vec []float32, k int) ([]Entry, error)

	// Clear removes every stored vector. Used when the source catalog
	// changes and embeddings must be rebuilt.
	Clear(ctx context.Context) error
}
