package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgvectorStore searches knowledge_chunks with the pgvector cosine distance operator.
type PgvectorStore struct {
	db querier
}

var _ Searcher = (*PgvectorStore)(nil)

func NewPgvectorStore(pool *pgxpool.Pool) *PgvectorStore {
	if pool == nil {
		panic("knowledge: pgx pool required")
	}
	return &PgvectorStore{db: pool}
}

func newPgvectorStoreWithQuerier(q querier) *PgvectorStore {
	return &PgvectorStore{db: q}
}

func (s *PgvectorStore) Search(ctx context.Context, query []float32, categories []string, minSimilarity float64, limit int) ([]Chunk, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, category, content, COALESCE(source_file, ''), 1 - (embedding <=> $1) AS similarity
		FROM knowledge_chunks
		WHERE category = ANY($2) AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4`,
		pgvector.NewVector(query), categories, minSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge: search: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Category, &c.Content, &c.Source, &c.Similarity); err != nil {
			return nil, fmt.Errorf("knowledge: scan chunk: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
