package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. It keeps insertion order so equal
// scores rank deterministically.
type MemoryStore struct {
	mu      sync.RWMutex
	ids     []string
	vectors map[string][]float32
	meta    map[string]map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vectors: make(map[string][]float32),
		meta:    make(map[string]map[string]string),
	}
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(ctx context.Context, id string, vec []float32, metadata map[string]string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if len(vec) == 0 {
		return fmt.Errorf("vector is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vectors[id]; !exists {
		s.ids = append(s.ids, id)
	}
	stored := make([]float32, len(vec))
	copy(stored, vec)
	s.vectors[id] = stored
	s.meta[id] = metadata

	return nil
}

// SimilaritySearch implements Store.
func (s *MemoryStore) SimilaritySearch(ctx context.Context, vec []float32, k int) ([]Entry, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.ids))
	for _, id := range s.ids {
		stored := s.vectors[id]
		score, err := CosineSimilarity(vec, stored)
		if err != nil {
			return nil, fmt.Errorf("compare against %q: %w", id, err)
		}
		entries = append(entries, Entry{ID: id, Score: score, Metadata: s.meta[id]})
	}

	// Stable sort keeps insertion order for equal scores.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})

	if k > 0 && len(entries) > k {
		entries = entries[:k]
	}

	return entries, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids = nil
	s.vectors = make(map[string][]float32)
	s.meta = make(map[string]map[string]string)

	return nil
}

// CosineSimilarity computes the cosine similarity of two equal-length
// vectors, in [-1, 1].
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dimension mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Ensure MemoryStore implements Store at compile time.
var _ Store = (*MemoryStore)(nil)
