package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/lead-pipeline/internal/agents"
	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/dispatch"
	"github.com/wolfman30/lead-pipeline/internal/llm"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

const (
	summaryTranscriptLimit = 30
	fallbackMessages       = 5
)

// MessageReader loads the recent transcript.
type MessageReader interface {
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error)
}

// HandoffNotifier emails the team when a conversation is handed to a human.
type HandoffNotifier struct {
	sender    EmailSender
	messages  MessageReader
	recipient string
	agents    agents.Source
	llm       llm.Client
	logger    *logging.Logger
}

var _ dispatch.HandoffNotifier = (*HandoffNotifier)(nil)

type HandoffOption func(*HandoffNotifier)

// WithSummarizer summarizes the transcript with the active summarizer agent.
func WithSummarizer(source agents.Source, client llm.Client) HandoffOption {
	return func(n *HandoffNotifier) {
		n.agents = source
		n.llm = client
	}
}

func NewHandoffNotifier(sender EmailSender, messages MessageReader, recipient string, logger *logging.Logger, opts ...HandoffOption) *HandoffNotifier {
	if sender == nil || messages == nil {
		panic("notify: sender and message reader required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	n := &HandoffNotifier{sender: sender, messages: messages, recipient: recipient, logger: logger}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NotifyHandoff sends one email describing the conversation. Without a recipient it is a no-op.
func (n *HandoffNotifier) NotifyHandoff(ctx context.Context, conv conversation.Conversation, reason string) error {
	if strings.TrimSpace(n.recipient) == "" {
		return nil
	}
	logger := n.logger.ForConversation(conv.ID)
	transcript, err := n.messages.RecentMessages(ctx, conv.ID, summaryTranscriptLimit)
	if err != nil {
		logger.Warn("failed to load transcript for handoff email", "error", err)
	}
	summary := n.summarize(ctx, logger, transcript)

	msg := EmailMessage{
		To:      n.recipient,
		Subject: handoffSubject(conv),
		Body:    handoffBody(conv, reason, summary),
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: handoff email: %w", err)
	}
	return nil
}

func (n *HandoffNotifier) summarize(ctx context.Context, logger *logging.Logger, transcript []conversation.Message) string {
	if len(transcript) == 0 {
		return "(sem mensagens)"
	}
	if n.llm != nil && n.agents != nil {
		cfg, err := n.agents.Active(ctx, agents.TypeSummarizer, "")
		switch {
		case err == nil:
			resp, err := n.llm.Complete(ctx, cfg.Request("Resuma a conversa abaixo para o vendedor que vai assumir o atendimento.\n\n"+formatTranscript(transcript)))
			if err == nil && strings.TrimSpace(resp.Text) != "" {
				return strings.TrimSpace(resp.Text)
			}
			if err != nil {
				logger.Warn("handoff summary failed, using last messages", "error", err)
			}
		case !errors.Is(err, agents.ErrNotFound):
			logger.Warn("failed to load summarizer agent", "error", err)
		}
	}
	if len(transcript) > fallbackMessages {
		transcript = transcript[len(transcript)-fallbackMessages:]
	}
	return formatTranscript(transcript)
}

func formatTranscript(msgs []conversation.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n", m.SenderType, m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func handoffSubject(conv conversation.Conversation) string {
	name := conv.CustomerName
	if name == "" {
		name = conv.WhatsAppNumber
	}
	return fmt.Sprintf("Atendimento humano: %s (%s)", name, conversation.CategoryLabel(conv.Category))
}

func handoffBody(conv conversation.Conversation, reason, summary string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cliente: %s\n", conv.CustomerName)
	fmt.Fprintf(&b, "WhatsApp: %s\n", conv.WhatsAppNumber)
	if conv.CustomerEmail != "" {
		fmt.Fprintf(&b, "Email: %s\n", conv.CustomerEmail)
	}
	if conv.CustomerCity != "" {
		fmt.Fprintf(&b, "Cidade: %s\n", conv.CustomerCity)
	}
	fmt.Fprintf(&b, "Categoria: %s\n", conversation.CategoryLabel(conv.Category))
	if label := conversation.TemperatureLabel(conv.LeadTemperature); label != "" {
		fmt.Fprintf(&b, "Lead: %d (%s)\n", conv.LeadScore, label)
	}
	if reason != "" {
		fmt.Fprintf(&b, "Motivo: %s\n", reason)
	}
	b.WriteString("\nResumo:\n")
	b.WriteString(summary)
	b.WriteString("\n")
	return b.String()
}
