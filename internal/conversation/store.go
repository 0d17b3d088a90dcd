package conversation

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

// Querier is the subset of pgx used by the store.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversations, messages and status history in Postgres.
type Store struct {
	db  Querier
	now func() time.Time
}

func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &Store{db: pool, now: time.Now}
}

func newStoreWithQuerier(q Querier) *Store {
	if q == nil {
		panic("conversation: querier required")
	}
	return &Store{db: q, now: time.Now}
}

const conversationColumns = `
	id::text, whatsapp_number, COALESCE(customer_name, ''), COALESCE(customer_email, ''),
	COALESCE(customer_city, ''), COALESCE(category, ''), status, lead_score,
	COALESCE(lead_temperature, ''), COALESCE(assigned_agent_id::text, ''), reactivation_count,
	COALESCE(close_reason, ''), first_message_at, last_message_at, created_at, updated_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	var status string
	if err := row.Scan(
		&c.ID,
		&c.WhatsAppNumber,
		&c.CustomerName,
		&c.CustomerEmail,
		&c.CustomerCity,
		&c.Category,
		&status,
		&c.LeadScore,
		&c.LeadTemperature,
		&c.AssignedAgentID,
		&c.ReactivationCount,
		&c.CloseReason,
		&c.FirstMessageAt,
		&c.LastMessageAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Status = Status(status)
	return &c, nil
}

// Get loads a conversation by id.
func (s *Store) Get(ctx context.Context, id string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	c, err := scanConversation(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("conversation: get: %w", err)
	}
	return c, nil
}

// Ensure returns the conversation for a WhatsApp number, creating it in waiting status if needed.
func (s *Store) Ensure(ctx context.Context, whatsappNumber, customerName string) (*Conversation, error) {
	query := `
		INSERT INTO conversations (id, whatsapp_number, customer_name, status)
		VALUES ($1, $2, NULLIF($3, ''), 'waiting')
		ON CONFLICT (whatsapp_number) DO UPDATE SET
			customer_name = COALESCE(conversations.customer_name, EXCLUDED.customer_name),
			updated_at = now()
		RETURNING ` + conversationColumns
	c, err := scanConversation(s.db.QueryRow(ctx, query, uuid.NewString(), whatsappNumber, customerName))
	if err != nil {
		return nil, fmt.Errorf("conversation: ensure: %w", err)
	}
	return c, nil
}

// InsertMessage appends a transcript entry and bumps the conversation's message timestamps.
func (s *Store) InsertMessage(ctx context.Context, msg Message) (Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC()
	}
	query := `
		INSERT INTO messages (id, conversation_id, sender_type, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.db.Exec(ctx, query, msg.ID, msg.ConversationID, string(msg.SenderType), msg.Content, msg.CreatedAt); err != nil {
		return Message{}, fmt.Errorf("conversation: insert message: %w", err)
	}
	touch := `
		UPDATE conversations
		SET first_message_at = COALESCE(first_message_at, $2),
			last_message_at = $2,
			updated_at = now()
		WHERE id = $1
	`
	if _, err := s.db.Exec(ctx, touch, msg.ConversationID, msg.CreatedAt); err != nil {
		return Message{}, fmt.Errorf("conversation: touch conversation: %w", err)
	}
	return msg, nil
}

// RecentMessages returns up to limit of the latest messages in chronological order.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id::text, conversation_id::text, sender_type, content, created_at, delivered_at, read_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var sender string
		if err := rows.Scan(&m.ID, &m.ConversationID, &sender, &m.Content, &m.CreatedAt, &m.DeliveredAt, &m.ReadAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		m.SenderType = SenderType(sender)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: list messages: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// HasRecentBotMessage reports whether the bot already sent identical content since the given time.
func (s *Store) HasRecentBotMessage(ctx context.Context, conversationID, content string, since time.Time) (bool, error) {
	query := `
		SELECT 1 FROM messages
		WHERE conversation_id = $1 AND sender_type = 'bot' AND content = $2 AND created_at >= $3
		LIMIT 1
	`
	var exists int
	if err := s.db.QueryRow(ctx, query, conversationID, content, since).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("conversation: duplicate check: %w", err)
	}
	return true, nil
}

// CountMessages counts messages by sender.
func (s *Store) CountMessages(ctx context.Context, conversationID string, sender SenderType) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM messages WHERE conversation_id = $1 AND sender_type = $2`
	if err := s.db.QueryRow(ctx, query, conversationID, string(sender)).Scan(&n); err != nil {
		return 0, fmt.Errorf("conversation: count messages: %w", err)
	}
	return n, nil
}

// UpdateCategory stores a new category.
func (s *Store) UpdateCategory(ctx context.Context, id, category string) error {
	query := `UPDATE conversations SET category = NULLIF($2, ''), updated_at = now() WHERE id = $1`
	ct, err := s.db.Exec(ctx, query, id, category)
	if err != nil {
		return fmt.Errorf("conversation: update category: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCustomerFields fills customer profile values, keeping existing ones for empty inputs.
func (s *Store) UpdateCustomerFields(ctx context.Context, id string, fields CustomerFields) error {
	query := `
		UPDATE conversations SET
			customer_name = COALESCE(NULLIF($2, ''), customer_name),
			customer_email = COALESCE(NULLIF($3, ''), customer_email),
			customer_city = COALESCE(NULLIF($4, ''), customer_city),
			updated_at = now()
		WHERE id = $1
	`
	if _, err := s.db.Exec(ctx, query, id, fields.Name, fields.Email, fields.City); err != nil {
		return fmt.Errorf("conversation: update customer: %w", err)
	}
	return nil
}

// UpdateLeadScore writes the lead score and temperature.
func (s *Store) UpdateLeadScore(ctx context.Context, id string, score int, temperature string) error {
	query := `UPDATE conversations SET lead_score = $2, lead_temperature = $3, updated_at = now() WHERE id = $1`
	ct, err := s.db.Exec(ctx, query, id, score, temperature)
	if err != nil {
		return fmt.Errorf("conversation: update lead score: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AssignAgent sets or clears the assigned agent config.
func (s *Store) AssignAgent(ctx context.Context, id, agentID string) error {
	query := `UPDATE conversations SET assigned_agent_id = NULLIF($2, '')::uuid, updated_at = now() WHERE id = $1`
	ct, err := s.db.Exec(ctx, query, id, agentID)
	if err != nil {
		return fmt.Errorf("conversation: assign agent: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus moves a conversation from one status to another and appends a history row.
// The update only applies while the stored status still equals from.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to Status, action Action, reason string) error {
	query := `
		UPDATE conversations SET
			status = $3,
			close_reason = CASE WHEN $3 = 'closed' THEN NULLIF($4, '') ELSE close_reason END,
			reactivation_count = reactivation_count + CASE WHEN $2 = 'closed' AND $3 <> 'closed' THEN 1 ELSE 0 END,
			updated_at = now()
		WHERE id = $1 AND status = $2
	`
	ct, err := s.db.Exec(ctx, query, id, string(from), string(to), reason)
	if err != nil {
		return fmt.Errorf("conversation: update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrStatusConflict
	}
	history := `
		INSERT INTO conversation_status_history (id, conversation_id, from_status, to_status, action, reason)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	`
	if _, err := s.db.Exec(ctx, history, uuid.NewString(), id, string(from), string(to), string(action), reason); err != nil {
		return fmt.Errorf("conversation: append status history: %w", err)
	}
	return nil
}

// StatusHistory lists transitions oldest first.
func (s *Store) StatusHistory(ctx context.Context, id string) ([]StatusChange, error) {
	query := `
		SELECT id::text, conversation_id::text, from_status, to_status, action, COALESCE(reason, ''), created_at
		FROM conversation_status_history
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("conversation: status history: %w", err)
	}
	defer rows.Close()

	var out []StatusChange
	for rows.Next() {
		var h StatusChange
		var from, to, action string
		if err := rows.Scan(&h.ID, &h.ConversationID, &from, &to, &action, &h.Reason, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan status history: %w", err)
		}
		h.FromStatus, h.ToStatus, h.Action = Status(from), Status(to), Action(action)
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListOpenIDs returns ids of conversations that are not closed and saw activity since the cutoff.
func (s *Store) ListOpenIDs(ctx context.Context, since time.Time, limit int) ([]string, error) {
	query := `
		SELECT id::text FROM conversations
		WHERE status <> 'closed' AND last_message_at >= $1
		ORDER BY last_message_at DESC
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: list open: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("conversation: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
