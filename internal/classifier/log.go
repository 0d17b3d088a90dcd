package classifier

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// LogEntry is one immutable classification decision.
type LogEntry struct {
	ID               string
	ConversationID   string
	BufferID         string
	Category         string
	PreviousCategory string
	Confidence       float64
	Method           Method
	MatchedKeywords  []string
	Entities         map[string]any
	CreatedAt        time.Time
}

// LogWriter appends classification decisions.
type LogWriter interface {
	Append(ctx context.Context, entry LogEntry) error
}

// SQLLog writes classification_logs through database/sql.
type SQLLog struct {
	db *sql.DB
}

func NewSQLLog(db *sql.DB) *SQLLog {
	if db == nil {
		panic("classifier: sql db required")
	}
	return &SQLLog{db: db}
}

func (l *SQLLog) Append(ctx context.Context, entry LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entities := entry.Entities
	if entities == nil {
		entities = map[string]any{}
	}
	payload, err := json.Marshal(entities)
	if err != nil {
		return fmt.Errorf("classifier: marshal entities: %w", err)
	}
	matched := entry.MatchedKeywords
	if matched == nil {
		matched = []string{}
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO classification_logs
			(id, conversation_id, buffer_id, category, previous_category, confidence, method, matched_keywords, entities, created_at)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, NULLIF($5, ''), $6, $7, $8, $9, $10)`,
		entry.ID,
		entry.ConversationID,
		entry.BufferID,
		entry.Category,
		entry.PreviousCategory,
		entry.Confidence,
		string(entry.Method),
		pq.Array(matched),
		payload,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("classifier: insert log: %w", err)
	}
	return nil
}
