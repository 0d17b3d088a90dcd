package leads

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DistributionChecker reports whether a lead was already handed to a human channel.
type DistributionChecker interface {
	IsDistributed(ctx context.Context, conversationID string) (bool, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DistributionRepository reads lead_distributions.
type DistributionRepository struct {
	db querier
}

var _ DistributionChecker = (*DistributionRepository)(nil)

// NewDistributionRepository initializes a repo backed by pgxpool.
func NewDistributionRepository(pool *pgxpool.Pool) *DistributionRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &DistributionRepository{db: pool}
}

func newDistributionRepositoryWithQuerier(q querier) *DistributionRepository {
	return &DistributionRepository{db: q}
}

func (r *DistributionRepository) IsDistributed(ctx context.Context, conversationID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM lead_distributions WHERE conversation_id = $1)`
	if err := r.db.QueryRow(ctx, query, conversationID).Scan(&exists); err != nil {
		return false, fmt.Errorf("leads: distribution lookup: %w", err)
	}
	return exists, nil
}

// MemoryDistributions is an in-memory DistributionChecker.
type MemoryDistributions struct {
	mu   sync.RWMutex
	byID map[string]time.Time
}

func NewMemoryDistributions() *MemoryDistributions {
	return &MemoryDistributions{byID: make(map[string]time.Time)}
}

// Record marks a conversation as distributed.
func (m *MemoryDistributions) Record(conversationID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[conversationID] = at
}

func (m *MemoryDistributions) IsDistributed(_ context.Context, conversationID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byID[conversationID]
	return ok, nil
}
