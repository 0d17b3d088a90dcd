package agents

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads agent_configs from Postgres.
type Repository struct {
	db querier
}

var _ Source = (*Repository)(nil)

func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("agents: pgx pool required")
	}
	return &Repository{db: pool}
}

func newRepositoryWithQuerier(q querier) *Repository {
	if q == nil {
		panic("agents: querier required")
	}
	return &Repository{db: q}
}

const configColumns = `id::text, agent_type, COALESCE(product_category, ''), name, system_prompt,
	model, temperature, max_tokens, is_active, updated_at`

func scanConfig(row pgx.Row) (*Config, error) {
	var c Config
	var typ string
	if err := row.Scan(
		&c.ID,
		&typ,
		&c.ProductCategory,
		&c.Name,
		&c.SystemPrompt,
		&c.Model,
		&c.Temperature,
		&c.MaxTokens,
		&c.IsActive,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Type = Type(typ)
	return &c, nil
}

func (r *Repository) Active(ctx context.Context, typ Type, category string) (*Config, error) {
	query := `
		SELECT ` + configColumns + `
		FROM agent_configs
		WHERE agent_type = $1 AND is_active = true AND ($2 = '' OR product_category = $2)
		ORDER BY updated_at DESC
		LIMIT 1`
	c, err := scanConfig(r.db.QueryRow(ctx, query, string(typ), category))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("agents: active %s: %w", typ, err)
	}
	return c, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Config, error) {
	query := `SELECT ` + configColumns + ` FROM agent_configs WHERE id = $1`
	c, err := scanConfig(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("agents: get %s: %w", id, err)
	}
	return c, nil
}

func (r *Repository) ListActive(ctx context.Context, typ Type) ([]Config, error) {
	query := `
		SELECT ` + configColumns + `
		FROM agent_configs
		WHERE agent_type = $1 AND is_active = true
		ORDER BY COALESCE(product_category, ''), updated_at DESC`
	rows, err := r.db.Query(ctx, query, string(typ))
	if err != nil {
		return nil, fmt.Errorf("agents: list %s: %w", typ, err)
	}
	defer rows.Close()

	var out []Config
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("agents: scan config: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
