package conversation

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a conversation does not exist.
	ErrNotFound = errors.New("conversation not found")
	// ErrInvalidTransition is returned when an action is not allowed from the current status.
	ErrInvalidTransition = errors.New("conversation: invalid status transition")
	// ErrStatusConflict is returned when the status changed between read and write.
	ErrStatusConflict = errors.New("conversation: status changed concurrently")
)

// Status is the conversation lifecycle state.
type Status string

const (
	StatusWaiting     Status = "waiting"
	StatusActive      Status = "active"
	StatusInBot       Status = "in_bot"
	StatusWithAgent   Status = "with_agent"
	StatusQualified   Status = "qualified"
	StatusTransferred Status = "transferred"
	StatusClosed      Status = "closed"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderBot      SenderType = "bot"
	SenderAgent    SenderType = "agent"
	SenderSystem   SenderType = "system"
)

// Conversation is a WhatsApp thread with a single customer.
type Conversation struct {
	ID                string     `json:"id"`
	WhatsAppNumber    string     `json:"whatsapp_number"`
	CustomerName      string     `json:"customer_name,omitempty"`
	CustomerEmail     string     `json:"customer_email,omitempty"`
	CustomerCity      string     `json:"customer_city,omitempty"`
	Category          string     `json:"category,omitempty"`
	Status            Status     `json:"status"`
	LeadScore         int        `json:"lead_score"`
	LeadTemperature   string     `json:"lead_temperature,omitempty"`
	AssignedAgentID   string     `json:"assigned_agent_id,omitempty"`
	ReactivationCount int        `json:"reactivation_count"`
	CloseReason       string     `json:"close_reason,omitempty"`
	FirstMessageAt    *time.Time `json:"first_message_at,omitempty"`
	LastMessageAt     *time.Time `json:"last_message_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Message is a single transcript entry. Content never changes after insert.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderType     SenderType `json:"sender_type"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

// StatusChange is one row of the append-only status history.
type StatusChange struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	FromStatus     Status    `json:"from_status"`
	ToStatus       Status    `json:"to_status"`
	Action         Action    `json:"action"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CustomerFields are profile values learned from the conversation. Empty fields are left untouched.
type CustomerFields struct {
	Name  string
	Email string
	City  string
}
