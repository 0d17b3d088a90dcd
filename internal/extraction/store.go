package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ContextStore keeps one free-form project context per conversation.
type ContextStore interface {
	Get(ctx context.Context, conversationID string) (map[string]any, error)
	// Merge upserts fields, last write wins per key, and returns the merged context.
	Merge(ctx context.Context, conversationID string, fields map[string]any) (map[string]any, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresContextStore stores contexts as JSONB in project_contexts.
type PostgresContextStore struct {
	db querier
}

var _ ContextStore = (*PostgresContextStore)(nil)

func NewPostgresContextStore(pool *pgxpool.Pool) *PostgresContextStore {
	if pool == nil {
		panic("extraction: pgx pool required")
	}
	return &PostgresContextStore{db: pool}
}

func newPostgresContextStoreWithQuerier(q querier) *PostgresContextStore {
	return &PostgresContextStore{db: q}
}

func (s *PostgresContextStore) Get(ctx context.Context, conversationID string) (map[string]any, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT data FROM project_contexts WHERE conversation_id = $1`, conversationID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("extraction: load context: %w", err)
	}
	return decodeContext(raw)
}

func (s *PostgresContextStore) Merge(ctx context.Context, conversationID string, fields map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("extraction: marshal context: %w", err)
	}
	var raw []byte
	err = s.db.QueryRow(ctx, `
		INSERT INTO project_contexts (conversation_id, data, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (conversation_id)
		DO UPDATE SET data = project_contexts.data || EXCLUDED.data, updated_at = now()
		RETURNING data`, conversationID, payload).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("extraction: merge context: %w", err)
	}
	return decodeContext(raw)
}

func decodeContext(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("extraction: decode context: %w", err)
	}
	return out, nil
}

// MemoryContextStore is an in-memory ContextStore.
type MemoryContextStore struct {
	mu   sync.Mutex
	data map[string]map[string]any
}

var _ ContextStore = (*MemoryContextStore)(nil)

func NewMemoryContextStore() *MemoryContextStore {
	return &MemoryContextStore{data: make(map[string]map[string]any)}
}

func (m *MemoryContextStore) Get(_ context.Context, conversationID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyFields(m.data[conversationID]), nil
}

func (m *MemoryContextStore) Merge(_ context.Context, conversationID string, fields map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.data[conversationID]
	if current == nil {
		current = map[string]any{}
		m.data[conversationID] = current
	}
	for k, v := range fields {
		current[k] = v
	}
	return copyFields(current), nil
}

func copyFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
