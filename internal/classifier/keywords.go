package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/lead-pipeline/internal/cache"
)

// Keyword is one weighted row of classification_keywords.
type Keyword struct {
	ID       string `json:"id,omitempty" yaml:"-"`
	Category string `json:"category" yaml:"category"`
	Keyword  string `json:"keyword" yaml:"keyword"`
	Weight   int    `json:"weight" yaml:"weight"`
	IsActive bool   `json:"isActive" yaml:"active"`
}

// KeywordSource returns the active keyword table.
type KeywordSource interface {
	ActiveKeywords(ctx context.Context) ([]Keyword, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// KeywordRepository reads and maintains classification_keywords.
type KeywordRepository struct {
	db querier
}

func NewKeywordRepository(pool *pgxpool.Pool) *KeywordRepository {
	if pool == nil {
		panic("classifier: pgx pool required")
	}
	return &KeywordRepository{db: pool}
}

func newKeywordRepositoryWithQuerier(q querier) *KeywordRepository {
	return &KeywordRepository{db: q}
}

func (r *KeywordRepository) ActiveKeywords(ctx context.Context) ([]Keyword, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id::text, category, keyword, weight, is_active
		FROM classification_keywords
		WHERE is_active = true
		ORDER BY category, keyword`)
	if err != nil {
		return nil, fmt.Errorf("classifier: load keywords: %w", err)
	}
	defer rows.Close()

	var out []Keyword
	for rows.Next() {
		var kw Keyword
		if err := rows.Scan(&kw.ID, &kw.Category, &kw.Keyword, &kw.Weight, &kw.IsActive); err != nil {
			return nil, fmt.Errorf("classifier: scan keyword: %w", err)
		}
		out = append(out, kw)
	}
	return out, rows.Err()
}

// Upsert inserts or updates keywords keyed by (category, keyword) and returns how many rows
// were written.
func (r *KeywordRepository) Upsert(ctx context.Context, keywords []Keyword) (int, error) {
	written := 0
	for _, kw := range keywords {
		_, err := r.db.Exec(ctx, `
			INSERT INTO classification_keywords (category, keyword, weight, is_active)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (category, keyword)
			DO UPDATE SET weight = EXCLUDED.weight, is_active = EXCLUDED.is_active, updated_at = now()`,
			kw.Category, kw.Keyword, kw.Weight, kw.IsActive)
		if err != nil {
			return written, fmt.Errorf("classifier: upsert keyword %s/%s: %w", kw.Category, kw.Keyword, err)
		}
		written++
	}
	return written, nil
}

// CachedKeywords keeps the keyword table for a short TTL with explicit invalidation.
type CachedKeywords struct {
	inner KeywordSource
	cache *cache.TTL[[]Keyword]
}

const keywordCacheKey = "active"

func NewCachedKeywords(inner KeywordSource, ttl time.Duration) *CachedKeywords {
	return &CachedKeywords{inner: inner, cache: cache.NewTTL[[]Keyword](ttl)}
}

func (c *CachedKeywords) ActiveKeywords(ctx context.Context) ([]Keyword, error) {
	if kws, ok := c.cache.Get(keywordCacheKey); ok {
		return kws, nil
	}
	kws, err := c.inner.ActiveKeywords(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(keywordCacheKey, kws)
	return kws, nil
}

// Invalidate forces the next lookup to reload the table.
func (c *CachedKeywords) Invalidate() {
	c.cache.Invalidate()
}

// StaticKeywords serves a fixed table.
type StaticKeywords []Keyword

func (s StaticKeywords) ActiveKeywords(ctx context.Context) ([]Keyword, error) {
	out := make([]Keyword, 0, len(s))
	for _, kw := range s {
		if kw.IsActive {
			out = append(out, kw)
		}
	}
	return out, nil
}
