package templates

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/lead-pipeline/internal/cache"
)

// ErrNoTemplate is returned when no active template exists for a category.
var ErrNoTemplate = errors.New("templates: no active template")

// MaxQuickReplies is the most quick replies the channel accepts per message.
const MaxQuickReplies = 3

// Template is one active row of prompt_templates.
type Template struct {
	ID           string    `json:"id"`
	Category     string    `json:"category"`
	Body         string    `json:"body"`
	QuickReplies []string  `json:"quickReplies,omitempty"`
	Handoff      bool      `json:"handoff"`
	Version      int       `json:"version"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Source returns the active template for a category.
type Source interface {
	Active(ctx context.Context, category string) (*Template, error)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Repository struct {
	db querier
}

var _ Source = (*Repository)(nil)

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("templates: pgx pool required")
	}
	return &Repository{db: pool}
}

func newRepositoryWithQuerier(q querier) *Repository {
	return &Repository{db: q}
}

func (r *Repository) Active(ctx context.Context, category string) (*Template, error) {
	var t Template
	err := r.db.QueryRow(ctx, `
		SELECT id::text, category, body, COALESCE(quick_replies, '{}'), handoff, version, updated_at
		FROM prompt_templates
		WHERE category = $1 AND is_active = true
		ORDER BY version DESC
		LIMIT 1`, category).Scan(
		&t.ID, &t.Category, &t.Body, &t.QuickReplies, &t.Handoff, &t.Version, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoTemplate
	}
	if err != nil {
		return nil, fmt.Errorf("templates: load %s: %w", category, err)
	}
	return &t, nil
}

// CachedSource memoizes template lookups, including misses.
type CachedSource struct {
	inner Source
	cache *cache.TTL[*Template]
}

func NewCachedSource(inner Source, c *cache.TTL[*Template]) *CachedSource {
	return &CachedSource{inner: inner, cache: c}
}

func (s *CachedSource) Active(ctx context.Context, category string) (*Template, error) {
	if t, ok := s.cache.Get(category); ok {
		if t == nil {
			return nil, ErrNoTemplate
		}
		return t, nil
	}
	t, err := s.inner.Active(ctx, category)
	if errors.Is(err, ErrNoTemplate) {
		s.cache.Set(category, nil)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	s.cache.Set(category, t)
	return t, nil
}

// Invalidate drops cached templates for the given categories, or all of them.
func (s *CachedSource) Invalidate(categories ...string) {
	s.cache.Invalidate(categories...)
}

// MemorySource serves templates from memory.
type MemorySource struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewMemorySource(templates ...Template) *MemorySource {
	m := &MemorySource{templates: make(map[string]Template)}
	for _, t := range templates {
		m.templates[t.Category] = t
	}
	return m
}

func (m *MemorySource) Active(_ context.Context, category string) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[category]
	if !ok {
		return nil, ErrNoTemplate
	}
	return &t, nil
}
