package agents

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/lead-pipeline/internal/cache"
)

// CachedSource memoizes active-config lookups for a short TTL. Misses are cached too so a
// missing config does not hit the database on every buffer.
type CachedSource struct {
	inner  Source
	active *cache.TTL[*Config]
}

var _ Source = (*CachedSource)(nil)

func NewCachedSource(inner Source, c *cache.TTL[*Config]) *CachedSource {
	if inner == nil {
		panic("agents: inner source required")
	}
	return &CachedSource{inner: inner, active: c}
}

func (s *CachedSource) Active(ctx context.Context, typ Type, category string) (*Config, error) {
	key := fmt.Sprintf("%s/%s", typ, category)
	if cfg, ok := s.active.Get(key); ok {
		if cfg == nil {
			return nil, ErrNotFound
		}
		return cfg, nil
	}
	cfg, err := s.inner.Active(ctx, typ, category)
	if errors.Is(err, ErrNotFound) {
		s.active.Set(key, nil)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	s.active.Set(key, cfg)
	return cfg, nil
}

func (s *CachedSource) Get(ctx context.Context, id string) (*Config, error) {
	return s.inner.Get(ctx, id)
}

func (s *CachedSource) ListActive(ctx context.Context, typ Type) ([]Config, error) {
	return s.inner.ListActive(ctx, typ)
}

// Invalidate drops every cached lookup.
func (s *CachedSource) Invalidate() {
	s.active.Invalidate()
}
