package agents

import (
	"context"
	"sort"
	"sync"
)

// MemorySource is an in-memory Source for local runs and tests.
type MemorySource struct {
	mu      sync.RWMutex
	configs map[string]Config
}

var _ Source = (*MemorySource)(nil)

func NewMemorySource(configs ...Config) *MemorySource {
	s := &MemorySource{configs: make(map[string]Config)}
	for _, c := range configs {
		s.configs[c.ID] = c
	}
	return s
}

func (s *MemorySource) Put(c Config) {
	s.mu.Lock()
	s.configs[c.ID] = c
	s.mu.Unlock()
}

func (s *MemorySource) Active(ctx context.Context, typ Type, category string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *Config
	for _, c := range s.configs {
		if c.Type != typ || !c.IsActive {
			continue
		}
		if category != "" && c.ProductCategory != category {
			continue
		}
		if best == nil || c.UpdatedAt.After(best.UpdatedAt) {
			cp := c
			best = &cp
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (s *MemorySource) Get(ctx context.Context, id string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemorySource) ListActive(ctx context.Context, typ Type) ([]Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Config
	for _, c := range s.configs {
		if c.Type == typ && c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductCategory != out[j].ProductCategory {
			return out[i].ProductCategory < out[j].ProductCategory
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}
