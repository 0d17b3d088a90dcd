package buffer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store with the same claim semantics as PostgresStore, used in tests and
// local tooling.
type MemoryStore struct {
	mu      sync.Mutex
	buffers map[string]*Buffer
	order   []string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buffers: make(map[string]*Buffer)}
}

func copyBuffer(b *Buffer) *Buffer {
	cp := *b
	cp.Messages = append([]string(nil), b.Messages...)
	return &cp
}

func (m *MemoryStore) openLocked(conversationID string) *Buffer {
	for _, id := range m.order {
		b := m.buffers[id]
		if b.ConversationID == conversationID && !b.Processed && b.ProcessingStartedAt == nil {
			return b
		}
	}
	return nil
}

func (m *MemoryStore) Append(_ context.Context, conversationID, fragment string, deadline time.Time) (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b := m.openLocked(conversationID); b != nil {
		b.Messages = append(b.Messages, fragment)
		b.ShouldProcessAt = deadline
		return copyBuffer(b), nil
	}
	b := &Buffer{
		ID:              uuid.NewString(),
		ConversationID:  conversationID,
		Messages:        []string{fragment},
		ShouldProcessAt: deadline,
		CreatedAt:       time.Now().UTC(),
	}
	m.buffers[b.ID] = b
	m.order = append(m.order, b.ID)
	return copyBuffer(b), nil
}

func (m *MemoryStore) FindOpen(_ context.Context, conversationID string) (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b := m.openLocked(conversationID); b != nil {
		return copyBuffer(b), nil
	}
	return nil, ErrBufferNotFound
}

func (m *MemoryStore) Claim(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buffers[id]
	if !ok || b.ProcessingStartedAt != nil || b.Processed || b.ShouldProcessAt.After(now) {
		return false, nil
	}
	at := now
	b.ProcessingStartedAt = &at
	return true, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buffers[id]
	if !ok {
		return nil, ErrBufferNotFound
	}
	return copyBuffer(b), nil
}

func (m *MemoryStore) MarkProcessed(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buffers[id]
	if !ok || b.Processed {
		return nil
	}
	b.Processed = true
	b.ProcessedAt = &at
	return nil
}

func (m *MemoryStore) ListDue(_ context.Context, before time.Time, limit int) ([]Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Buffer
	for _, id := range m.order {
		b := m.buffers[id]
		if b.Processed || b.ProcessingStartedAt != nil || b.ShouldProcessAt.After(before) {
			continue
		}
		out = append(out, *copyBuffer(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ShouldProcessAt.Before(out[j].ShouldProcessAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
