package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository is implemented by Store and MemoryStore.
type Repository interface {
	Get(ctx context.Context, id string) (*Conversation, error)
	Ensure(ctx context.Context, whatsappNumber, customerName string) (*Conversation, error)
	InsertMessage(ctx context.Context, msg Message) (Message, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	HasRecentBotMessage(ctx context.Context, conversationID, content string, since time.Time) (bool, error)
	CountMessages(ctx context.Context, conversationID string, sender SenderType) (int, error)
	UpdateCategory(ctx context.Context, id, category string) error
	UpdateCustomerFields(ctx context.Context, id string, fields CustomerFields) error
	UpdateLeadScore(ctx context.Context, id string, score int, temperature string) error
	AssignAgent(ctx context.Context, id, agentID string) error
	UpdateStatus(ctx context.Context, id string, from, to Status, action Action, reason string) error
	StatusHistory(ctx context.Context, id string) ([]StatusChange, error)
	ListOpenIDs(ctx context.Context, since time.Time, limit int) ([]string, error)
}

var (
	_ Repository = (*Store)(nil)
	_ Repository = (*MemoryStore)(nil)
)

// MemoryStore is an in-memory Repository for tests and local tooling.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string][]Message
	history       map[string][]StatusChange
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
		history:       make(map[string][]StatusChange),
		now:           time.Now,
	}
}

// SetClock overrides the store clock.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Put stores a copy of the conversation, replacing any existing one.
func (m *MemoryStore) Put(c Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.Status == "" {
		c.Status = StatusWaiting
	}
	m.conversations[c.ID] = &c
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) Ensure(_ context.Context, whatsappNumber, customerName string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conversations {
		if c.WhatsAppNumber == whatsappNumber {
			if c.CustomerName == "" {
				c.CustomerName = customerName
			}
			cp := *c
			return &cp, nil
		}
	}
	now := m.now().UTC()
	c := &Conversation{
		ID:             uuid.NewString(),
		WhatsAppNumber: whatsappNumber,
		CustomerName:   customerName,
		Status:         StatusWaiting,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.conversations[c.ID] = c
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) InsertMessage(_ context.Context, msg Message) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[msg.ConversationID]
	if !ok {
		return Message{}, ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now().UTC()
	}
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	at := msg.CreatedAt
	if c.FirstMessageAt == nil {
		c.FirstMessageAt = &at
	}
	c.LastMessageAt = &at
	return msg, nil
}

func (m *MemoryStore) RecentMessages(_ context.Context, conversationID string, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[conversationID]
	if limit <= 0 {
		limit = 20
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *MemoryStore) HasRecentBotMessage(_ context.Context, conversationID, content string, since time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, msg := range m.messages[conversationID] {
		if msg.SenderType == SenderBot && msg.Content == content && !msg.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) CountMessages(_ context.Context, conversationID string, sender SenderType) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, msg := range m.messages[conversationID] {
		if msg.SenderType == sender {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) mutate(id string, fn func(c *Conversation)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	fn(c)
	c.UpdatedAt = m.now().UTC()
	return nil
}

func (m *MemoryStore) UpdateCategory(_ context.Context, id, category string) error {
	return m.mutate(id, func(c *Conversation) { c.Category = category })
}

func (m *MemoryStore) UpdateCustomerFields(_ context.Context, id string, fields CustomerFields) error {
	return m.mutate(id, func(c *Conversation) {
		if fields.Name != "" {
			c.CustomerName = fields.Name
		}
		if fields.Email != "" {
			c.CustomerEmail = fields.Email
		}
		if fields.City != "" {
			c.CustomerCity = fields.City
		}
	})
}

func (m *MemoryStore) UpdateLeadScore(_ context.Context, id string, score int, temperature string) error {
	return m.mutate(id, func(c *Conversation) {
		c.LeadScore = score
		c.LeadTemperature = temperature
	})
}

func (m *MemoryStore) AssignAgent(_ context.Context, id, agentID string) error {
	return m.mutate(id, func(c *Conversation) { c.AssignedAgentID = agentID })
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, from, to Status, action Action, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status != from {
		return ErrStatusConflict
	}
	c.Status = to
	if to == StatusClosed {
		c.CloseReason = reason
	}
	if from == StatusClosed && to != StatusClosed {
		c.ReactivationCount++
	}
	now := m.now().UTC()
	c.UpdatedAt = now
	m.history[id] = append(m.history[id], StatusChange{
		ID:             uuid.NewString(),
		ConversationID: id,
		FromStatus:     from,
		ToStatus:       to,
		Action:         action,
		Reason:         reason,
		CreatedAt:      now,
	})
	return nil
}

func (m *MemoryStore) StatusHistory(_ context.Context, id string) ([]StatusChange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StatusChange, len(m.history[id]))
	copy(out, m.history[id])
	return out, nil
}

func (m *MemoryStore) ListOpenIDs(_ context.Context, since time.Time, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var open []*Conversation
	for _, c := range m.conversations {
		if c.Status == StatusClosed || c.LastMessageAt == nil || c.LastMessageAt.Before(since) {
			continue
		}
		open = append(open, c)
	}
	sort.Slice(open, func(i, j int) bool { return open[i].LastMessageAt.After(*open[j].LastMessageAt) })
	var ids []string
	for _, c := range open {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}
