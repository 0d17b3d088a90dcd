package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/lead-pipeline/internal/messaging"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

// TranscriptArchiver stores a closed conversation's transcript.
type TranscriptArchiver interface {
	ArchiveTranscript(ctx context.Context, conv Conversation, messages []Message) (string, error)
}

// ChangeListener is told when a conversation mutates (new message, category, status).
type ChangeListener interface {
	ConversationChanged(ctx context.Context, conversationID string)
}

// Service applies conversation actions on top of a Repository.
type Service struct {
	repo     Repository
	archiver TranscriptArchiver
	listener ChangeListener
	logger   *logging.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithArchiver archives transcripts when conversations close.
func WithArchiver(a TranscriptArchiver) ServiceOption {
	return func(s *Service) { s.archiver = a }
}

// WithChangeListener registers a mutation listener.
func WithChangeListener(l ChangeListener) ServiceOption {
	return func(s *Service) { s.listener = l }
}

func NewService(repo Repository, logger *logging.Logger, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("conversation: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{repo: repo, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetChangeListener replaces the mutation listener after construction.
func (s *Service) SetChangeListener(l ChangeListener) {
	s.listener = l
}

func (s *Service) Get(ctx context.Context, id string) (*Conversation, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) History(ctx context.Context, id string) ([]StatusChange, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.StatusHistory(ctx, id)
}

// Resolve returns the conversation id for an inbound delivery, creating the conversation when
// only a WhatsApp number is known.
func (s *Service) Resolve(ctx context.Context, conversationID, whatsappNumber, customerName string) (string, error) {
	if conversationID != "" {
		if _, err := s.repo.Get(ctx, conversationID); err != nil {
			return "", err
		}
		return conversationID, nil
	}
	whatsappNumber = messaging.NormalizeWhatsAppNumber(whatsappNumber)
	if whatsappNumber == "" {
		return "", fmt.Errorf("conversation: conversation id or whatsapp number required")
	}
	c, err := s.repo.Ensure(ctx, whatsappNumber, customerName)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// RecordInbound persists a customer message and activates or reactivates the conversation.
func (s *Service) RecordInbound(ctx context.Context, conversationID, text string) (Message, error) {
	conv, err := s.repo.Get(ctx, conversationID)
	if err != nil {
		return Message{}, err
	}
	msg, err := s.repo.InsertMessage(ctx, Message{
		ConversationID: conversationID,
		SenderType:     SenderCustomer,
		Content:        text,
	})
	if err != nil {
		return Message{}, err
	}

	switch conv.Status {
	case StatusWaiting:
		if err := s.transition(ctx, conv, ActionActivate, ""); err != nil {
			s.logger.Warn("failed to activate conversation", "conversation_id", conversationID, "error", err)
		}
	case StatusClosed:
		if err := s.transition(ctx, conv, ActionReactivate, "inbound message"); err != nil {
			s.logger.Warn("failed to reactivate conversation", "conversation_id", conversationID, "error", err)
		} else {
			s.logger.Info("conversation reactivated", "conversation_id", conversationID, "previous_close_reason", conv.CloseReason)
		}
	}
	s.changed(ctx, conversationID)
	return msg, nil
}

// Apply runs an explicit action and returns the updated conversation.
func (s *Service) Apply(ctx context.Context, id string, action Action, reason string) (*Conversation, error) {
	conv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, conv, action, reason); err != nil {
		return nil, err
	}
	updated, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if action == ActionClose {
		s.archive(ctx, updated)
	}
	s.changed(ctx, id)
	return updated, nil
}

// MarkBotReplied moves an active conversation into the bot. Other statuses are left alone.
func (s *Service) MarkBotReplied(ctx context.Context, id string) error {
	conv, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if conv.Status != StatusActive {
		return nil
	}
	return s.transition(ctx, conv, ActionBotReply, "")
}

// Handoff hands a bot conversation to a human. It is a no-op when a human already owns it.
func (s *Service) Handoff(ctx context.Context, id, reason string) error {
	conv, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(conv.Status, ActionHandoff) {
		return nil
	}
	if err := s.transition(ctx, conv, ActionHandoff, reason); err != nil {
		return err
	}
	s.changed(ctx, id)
	return nil
}

// OverrideCategory sets the category directly, bypassing classifier stickiness.
func (s *Service) OverrideCategory(ctx context.Context, id, category string) (*Conversation, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, fmt.Errorf("conversation: category required")
	}
	if err := s.repo.UpdateCategory(ctx, id, category); err != nil {
		return nil, err
	}
	s.logger.Info("category overridden", "conversation_id", id, "category", category)
	s.changed(ctx, id)
	return s.repo.Get(ctx, id)
}

// AssignAgent records an explicit agent config assignment.
func (s *Service) AssignAgent(ctx context.Context, id, agentID string) (*Conversation, error) {
	if err := s.repo.AssignAgent(ctx, id, agentID); err != nil {
		return nil, err
	}
	s.logger.Info("agent assigned", "conversation_id", id, "agent_id", agentID)
	return s.repo.Get(ctx, id)
}

func (s *Service) transition(ctx context.Context, conv *Conversation, action Action, reason string) error {
	to, err := Transition(conv.Status, action)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, conv.ID, conv.Status, to, action, reason); err != nil {
		return err
	}
	s.logger.Debug("conversation status changed",
		"conversation_id", conv.ID,
		"from", conv.Status,
		"to", to,
		"action", action,
	)
	return nil
}

func (s *Service) archive(ctx context.Context, conv *Conversation) {
	if s.archiver == nil {
		return
	}
	msgs, err := s.repo.RecentMessages(ctx, conv.ID, 500)
	if err != nil {
		s.logger.Warn("failed to load transcript for archive", "conversation_id", conv.ID, "error", err)
		return
	}
	key, err := s.archiver.ArchiveTranscript(ctx, *conv, msgs)
	if err != nil {
		s.logger.Warn("failed to archive transcript", "conversation_id", conv.ID, "error", err)
		return
	}
	s.logger.Info("transcript archived", "conversation_id", conv.ID, "key", key)
}

func (s *Service) changed(ctx context.Context, id string) {
	if s.listener != nil {
		s.listener.ConversationChanged(ctx, id)
	}
}
