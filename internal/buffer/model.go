// Package buffer coalesces bursts of inbound fragments into one processing
// turn per conversation and hands ready buffers to a Processor exactly once.
package buffer

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrBufferNotFound is returned when no matching buffer exists.
	ErrBufferNotFound = errors.New("buffer: not found")
	// ErrEmptyFragment is returned when an inbound fragment has no text.
	ErrEmptyFragment = errors.New("buffer: empty fragment")
)

// Buffer holds fragments awaiting one combined reply.
type Buffer struct {
	ID                  string     `json:"id"`
	ConversationID      string     `json:"conversation_id"`
	Messages            []string   `json:"messages"`
	ShouldProcessAt     time.Time  `json:"should_process_at"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	Processed           bool       `json:"processed"`
	ProcessedAt         *time.Time `json:"processed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Combined joins the fragments with single spaces in arrival order.
func (b *Buffer) Combined() string {
	return strings.Join(b.Messages, " ")
}

// Claimed reports whether a worker already took the buffer.
func (b *Buffer) Claimed() bool {
	return b.ProcessingStartedAt != nil
}

// Outcome is the result of one processor invocation. Only genuine failures are errors.
type Outcome string

const (
	OutcomeNothingToDo      Outcome = "nothing_to_do"
	OutcomeStillWaiting     Outcome = "still_waiting"
	OutcomeLockNotAcquired  Outcome = "lock_not_acquired"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeProcessed        Outcome = "processed"
	OutcomeAgentActive      Outcome = "agent_active"
	// OutcomeHandedOff means processing failed after the claim; the buffer was finished
	// with a handoff reply and must not be retried.
	OutcomeHandedOff Outcome = "handed_off"
)

// Contention reports whether the outcome is an expected race rather than work done.
func (o Outcome) Contention() bool {
	switch o {
	case OutcomeNothingToDo, OutcomeStillWaiting, OutcomeLockNotAcquired, OutcomeAlreadyProcessed:
		return true
	default:
		return false
	}
}

// Result describes one processor invocation.
type Result struct {
	Outcome        Outcome       `json:"outcome"`
	BufferID       string        `json:"buffer_id,omitempty"`
	Remaining      time.Duration `json:"remaining,omitempty"`
	Category       string        `json:"category,omitempty"`
	Confidence     float64       `json:"confidence,omitempty"`
	DispatchStatus string        `json:"dispatch_status,omitempty"`
	Failure        string        `json:"failure,omitempty"`
}

// Processor handles the ready buffer of one conversation.
type Processor interface {
	Process(ctx context.Context, conversationID string) (Result, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, conversationID string) (Result, error)

func (f ProcessorFunc) Process(ctx context.Context, conversationID string) (Result, error) {
	return f(ctx, conversationID)
}

// Store is the buffer persistence contract. Claim must be a single atomic conditional write.
type Store interface {
	Append(ctx context.Context, conversationID, fragment string, deadline time.Time) (*Buffer, error)
	FindOpen(ctx context.Context, conversationID string) (*Buffer, error)
	Claim(ctx context.Context, id string, now time.Time) (bool, error)
	Get(ctx context.Context, id string) (*Buffer, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	ListDue(ctx context.Context, before time.Time, limit int) ([]Buffer, error)
}
