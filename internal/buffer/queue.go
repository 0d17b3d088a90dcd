package buffer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxQueueDelay is the longest delay the queue accepts per message.
const MaxQueueDelay = 15 * time.Minute

// Queue carries delayed invocations between the scheduler and the workers.
type Queue interface {
	Send(ctx context.Context, body string, delay time.Duration) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// QueueMessage is one received queue body.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// invocation asks a worker to process a conversation's buffer no earlier than NotBefore.
type invocation struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	NotBefore      time.Time `json:"not_before"`
	Attempt        int       `json:"attempt,omitempty"`
}

func encodeInvocation(inv invocation) (invocation, string, error) {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	body, err := json.Marshal(inv)
	if err != nil {
		return invocation{}, "", fmt.Errorf("buffer: failed to encode invocation: %w", err)
	}
	return inv, string(body), nil
}

func decodeInvocation(body string) (invocation, error) {
	var inv invocation
	if err := json.Unmarshal([]byte(body), &inv); err != nil {
		return invocation{}, fmt.Errorf("buffer: failed to decode invocation: %w", err)
	}
	if inv.ConversationID == "" {
		return invocation{}, fmt.Errorf("buffer: invocation missing conversation_id")
	}
	return inv, nil
}

func clampDelay(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > MaxQueueDelay {
		return MaxQueueDelay
	}
	return d
}
