package vector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// PgStore is a Store backed by PostgreSQL with the pgvector extension.
// Cosine distance queries use an index when one exists on the embedding
// column; for catalog-sized data a sequential scan is fine too.
type PgStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPgStore creates a pgvector-backed store and ensures its table
// exists. dimension fixes the vector column width.
func NewPgStore(ctx context.Context, pool *pgxpool.Pool, table string, dimension int) (*PgStore, error) {
	if table == "" {
		table = "concept_embeddings"
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			embedding VECTOR(%d) NOT NULL,
			metadata JSONB,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, table, dimension)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create embeddings table: %w", err)
	}

	return &PgStore{pool: pool, table: table}, nil
}

// Upsert implements Store.
func (s *PgStore) Upsert(ctx context.Context, id string, vec []float32, metadata map[string]string) error {
	if id == "" {
		return fmt.Errorf("id is required")
	}
	if len(vec) == 0 {
		return fmt.Errorf("vector is empty")
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, metadata, updated_at)
		VALUES ($1, $2::vector, $3, now())
		ON CONFLICT (id) DO UPDATE SET
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			updated_at = now()
	`, s.table)

	if _, err := s.pool.Exec(ctx, query, id, pgvector.NewVector(vec).String(), metaJSON); err != nil {
		return fmt.Errorf("upsert embedding %q: %w", id, err)
	}

	return nil
}

// SimilaritySearch implements Store. The <=> operator is cosine distance;
// similarity is 1 - distance.
func (s *PgStore) SimilaritySearch(ctx context.Context, vec []float32, k int) ([]Entry, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if k <= 0 {
		k = 10
	}

	query := fmt.Sprintf(`
		SELECT id, 1 - (embedding <=> $1::vector) AS score, metadata
		FROM %s
		ORDER BY embedding <=> $1::vector, updated_at
		LIMIT $2
	`, s.table)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(vec).String(), k)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.Score, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for %q: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search results: %w", err)
	}

	return entries, nil
}

// Clear implements Store.
func (s *PgStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("TRUNCATE %s", s.table)); err != nil {
		return fmt.Errorf("clear embeddings: %w", err)
	}
	return nil
}

// Ensure PgStore implements Store at compile time.
var _ Store = (*PgStore)(nil)
