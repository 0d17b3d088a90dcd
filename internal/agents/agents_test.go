package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/wolfman30/lead-pipeline/internal/cache"
)

func TestRepositoryActiveNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	repo := newRepositoryWithQuerier(mock)

	mock.ExpectQuery("FROM agent_configs").
		WithArgs("specialist", "energia_solar").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.Active(context.Background(), TypeSpecialist, "energia_solar"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryGetWrapsErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	repo := newRepositoryWithQuerier(mock)

	mock.ExpectQuery("FROM agent_configs WHERE id").
		WithArgs("a-1").
		WillReturnError(errors.New("boom"))

	_, err = repo.Get(context.Background(), "a-1")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

type countingSource struct {
	*MemorySource
	calls int
}

func (c *countingSource) Active(ctx context.Context, typ Type, category string) (*Config, error) {
	c.calls++
	return c.MemorySource.Active(ctx, typ, category)
}

func TestCachedSourceCachesHitsAndMisses(t *testing.T) {
	inner := &countingSource{MemorySource: NewMemorySource(Config{
		ID: "cls", Type: TypeClassifier, IsActive: true, Model: "m",
	})}
	src := NewCachedSource(inner, cache.NewTTL[*Config](time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cfg, err := src.Active(ctx, TypeClassifier, "")
		if err != nil || cfg.ID != "cls" {
			t.Fatalf("unexpected result %+v %v", cfg, err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := src.Active(ctx, TypeExtractor, ""); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 inner lookups, got %d", inner.calls)
	}

	src.Invalidate()
	if _, err := src.Active(ctx, TypeClassifier, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("expected lookup after invalidate, got %d calls", inner.calls)
	}
}

func TestMemorySourceActivePrefersNewestMatchingCategory(t *testing.T) {
	now := time.Now()
	src := NewMemorySource(
		Config{ID: "old", Type: TypeSpecialist, ProductCategory: "energia_solar", IsActive: true, UpdatedAt: now.Add(-time.Hour)},
		Config{ID: "new", Type: TypeSpecialist, ProductCategory: "energia_solar", IsActive: true, UpdatedAt: now},
		Config{ID: "off", Type: TypeSpecialist, ProductCategory: "energia_solar", IsActive: false, UpdatedAt: now.Add(time.Hour)},
		Config{ID: "ev", Type: TypeSpecialist, ProductCategory: "carregador_veicular", IsActive: true, UpdatedAt: now},
	)
	cfg, err := src.Active(context.Background(), TypeSpecialist, "energia_solar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ID != "new" {
		t.Fatalf("expected newest active config, got %s", cfg.ID)
	}
	list, _ := src.ListActive(context.Background(), TypeSpecialist)
	if len(list) != 3 {
		t.Fatalf("expected 3 active specialists, got %d", len(list))
	}
}

func TestConfigRequest(t *testing.T) {
	cfg := Config{SystemPrompt: "sys", Model: "model", MaxTokens: 200, Temperature: 0.2}
	req := cfg.Request("hello")
	if req.Model != "model" || req.MaxTokens != 200 || len(req.System) != 1 || req.Messages[0].Content != "hello" {
		t.Fatalf("unexpected request %+v", req)
	}
}
