package buffer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps buffers in message_buffers. A partial unique index guarantees at most
// one open, unclaimed buffer per conversation.
type PostgresStore struct {
	db querier
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("buffer: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithQuerier(q querier) *PostgresStore {
	if q == nil {
		panic("buffer: querier required")
	}
	return &PostgresStore{db: q}
}

const bufferColumns = `id::text, conversation_id::text, messages, should_process_at,
	processing_started_at, processed, processed_at, created_at`

func scanBuffer(row pgx.Row) (*Buffer, error) {
	var b Buffer
	if err := row.Scan(
		&b.ID,
		&b.ConversationID,
		&b.Messages,
		&b.ShouldProcessAt,
		&b.ProcessingStartedAt,
		&b.Processed,
		&b.ProcessedAt,
		&b.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

// Append adds a fragment to the open buffer or creates one, and resets the deadline.
func (s *PostgresStore) Append(ctx context.Context, conversationID, fragment string, deadline time.Time) (*Buffer, error) {
	query := `
		INSERT INTO message_buffers (id, conversation_id, messages, should_process_at)
		VALUES ($1, $2, ARRAY[$3::text], $4)
		ON CONFLICT (conversation_id) WHERE processed = false AND processing_started_at IS NULL
		DO UPDATE SET
			messages = array_cat(message_buffers.messages, EXCLUDED.messages),
			should_process_at = EXCLUDED.should_process_at,
			updated_at = now()
		RETURNING ` + bufferColumns
	b, err := scanBuffer(s.db.QueryRow(ctx, query, uuid.NewString(), conversationID, fragment, deadline))
	if err != nil {
		return nil, fmt.Errorf("buffer: append: %w", err)
	}
	return b, nil
}

// FindOpen returns the open, unclaimed buffer for a conversation.
func (s *PostgresStore) FindOpen(ctx context.Context, conversationID string) (*Buffer, error) {
	query := `SELECT ` + bufferColumns + `
		FROM message_buffers
		WHERE conversation_id = $1 AND processed = false AND processing_started_at IS NULL
		ORDER BY created_at ASC
		LIMIT 1`
	b, err := scanBuffer(s.db.QueryRow(ctx, query, conversationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBufferNotFound
		}
		return nil, fmt.Errorf("buffer: find open: %w", err)
	}
	return b, nil
}

// Claim sets processing_started_at only if it is still null and the deadline has passed.
// It returns false when another worker won or a new fragment pushed the deadline.
func (s *PostgresStore) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `
		UPDATE message_buffers
		SET processing_started_at = $2, updated_at = now()
		WHERE id = $1
			AND processing_started_at IS NULL
			AND processed = false
			AND should_process_at <= $2
	`
	ct, err := s.db.Exec(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("buffer: claim: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Buffer, error) {
	query := `SELECT ` + bufferColumns + ` FROM message_buffers WHERE id = $1`
	b, err := scanBuffer(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBufferNotFound
		}
		return nil, fmt.Errorf("buffer: get: %w", err)
	}
	return b, nil
}

// MarkProcessed sets the terminal flag. Marking an already processed buffer is a no-op.
func (s *PostgresStore) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE message_buffers
		SET processed = true, processed_at = $2, updated_at = now()
		WHERE id = $1 AND processed = false
	`
	if _, err := s.db.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("buffer: mark processed: %w", err)
	}
	return nil
}

// ListDue returns open, unclaimed buffers whose deadline is at or before the cutoff.
func (s *PostgresStore) ListDue(ctx context.Context, before time.Time, limit int) ([]Buffer, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + bufferColumns + `
		FROM message_buffers
		WHERE processed = false AND processing_started_at IS NULL AND should_process_at <= $1
		ORDER BY should_process_at ASC
		LIMIT $2`
	rows, err := s.db.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("buffer: list due: %w", err)
	}
	defer rows.Close()

	var out []Buffer
	for rows.Next() {
		b, err := scanBuffer(rows)
		if err != nil {
			return nil, fmt.Errorf("buffer: scan due: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}
