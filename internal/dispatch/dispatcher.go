// Package dispatch persists and sends the reply for a processed buffer.
package dispatch

import (
	"context"
	"time"

	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/messaging"
	"github.com/wolfman30/lead-pipeline/internal/observability/metrics"
	"github.com/wolfman30/lead-pipeline/internal/templates"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

// DefaultDuplicateWindow is how far back identical bot replies are treated as already sent.
const DefaultDuplicateWindow = 5 * time.Minute

// Status is what happened to a reply.
type Status string

const (
	StatusSent       Status = "sent"
	StatusDuplicate  Status = "duplicate"
	StatusSendFailed Status = "send_failed"
)

// MessageStore is the transcript subset the dispatcher needs.
type MessageStore interface {
	HasRecentBotMessage(ctx context.Context, conversationID, content string, since time.Time) (bool, error)
	InsertMessage(ctx context.Context, msg conversation.Message) (conversation.Message, error)
}

// StatusUpdater moves the conversation after a reply.
type StatusUpdater interface {
	Handoff(ctx context.Context, id, reason string) error
	MarkBotReplied(ctx context.Context, id string) error
}

// BufferFinisher marks a buffer processed.
type BufferFinisher interface {
	MarkProcessed(ctx context.Context, id string, at time.Time) error
}

// HandoffNotifier tells the team a conversation needs a human.
type HandoffNotifier interface {
	NotifyHandoff(ctx context.Context, conv conversation.Conversation, reason string) error
}

// Request is one reply to dispatch.
type Request struct {
	Conversation conversation.Conversation
	BufferID     string
	Reply        templates.Reply
}

// Result reports the dispatch.
type Result struct {
	Status    Status
	MessageID string
}

type Dispatcher struct {
	messages MessageStore
	sender   messaging.Sender
	status   StatusUpdater
	buffers  BufferFinisher
	notifier HandoffNotifier
	window   time.Duration
	metrics  *metrics.PipelineMetrics
	logger   *logging.Logger
	now      func() time.Time
}

type Option func(*Dispatcher)

func WithNotifier(n HandoffNotifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

func WithDuplicateWindow(w time.Duration) Option {
	return func(d *Dispatcher) {
		if w > 0 {
			d.window = w
		}
	}
}

func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func New(messages MessageStore, sender messaging.Sender, status StatusUpdater, buffers BufferFinisher, logger *logging.Logger, opts ...Option) *Dispatcher {
	if messages == nil || sender == nil || status == nil || buffers == nil {
		panic("dispatch: messages, sender, status and buffers are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		messages: messages,
		sender:   sender,
		status:   status,
		buffers:  buffers,
		window:   DefaultDuplicateWindow,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch suppresses duplicates, persists the bot message, sends it, updates the
// conversation status and finally marks the buffer processed. Send failures are logged and
// reported in the result; the only returned error is a failure to mark the buffer.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	conv := req.Conversation
	logger := d.logger.ForConversation(conv.ID).With("buffer_id", req.BufferID)
	now := d.now().UTC()

	dup, err := d.messages.HasRecentBotMessage(ctx, conv.ID, req.Reply.Text, now.Add(-d.window))
	if err != nil {
		logger.Warn("duplicate check failed, sending anyway", "error", err)
	}
	if dup {
		logger.Info("identical reply sent recently, skipping send")
		return d.finish(ctx, logger, req.BufferID, Result{Status: StatusDuplicate})
	}

	result := Result{Status: StatusSent}
	msg, err := d.messages.InsertMessage(ctx, conversation.Message{
		ConversationID: conv.ID,
		SenderType:     conversation.SenderBot,
		Content:        req.Reply.Text,
		CreatedAt:      now,
	})
	if err != nil {
		logger.Error("failed to persist bot message", "error", err)
	} else {
		result.MessageID = msg.ID
	}

	if _, err := d.sender.Send(ctx, messaging.OutboundMessage{
		ConversationID: conv.ID,
		To:             conv.WhatsAppNumber,
		Text:           req.Reply.Text,
		QuickReplies:   req.Reply.QuickReplies,
	}); err != nil {
		logger.Warn("reply send failed", "error", err)
		result.Status = StatusSendFailed
	}

	if req.Reply.Transfer {
		d.handoff(ctx, logger, conv, req.Reply.Category)
	} else if err := d.status.MarkBotReplied(ctx, conv.ID); err != nil {
		logger.Warn("failed to mark bot reply", "error", err)
	}

	return d.finish(ctx, logger, req.BufferID, result)
}

func (d *Dispatcher) handoff(ctx context.Context, logger *logging.Logger, conv conversation.Conversation, category string) {
	reason := "transfer requested by reply template"
	if category != "" {
		reason = "transfer requested for category " + category
	}
	if err := d.status.Handoff(ctx, conv.ID, reason); err != nil {
		logger.Warn("failed to hand off conversation", "error", err)
	}
	if d.notifier == nil {
		return
	}
	if err := d.notifier.NotifyHandoff(ctx, conv, reason); err != nil {
		logger.Warn("handoff notification failed", "error", err)
	}
}

func (d *Dispatcher) finish(ctx context.Context, logger *logging.Logger, bufferID string, result Result) (Result, error) {
	d.metrics.ObserveDispatch(string(result.Status))
	if bufferID == "" {
		return result, nil
	}
	if err := d.buffers.MarkProcessed(ctx, bufferID, d.now().UTC()); err != nil {
		logger.Error("failed to mark buffer processed", "error", err)
		return result, err
	}
	logger.Debug("reply dispatched", "status", result.Status, "message_id", result.MessageID)
	return result, nil
}
