package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/wolfman30/lead-pipeline/internal/agents"
	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/llm"
)

type recordingEmail struct {
	sent []EmailMessage
	err  error
}

func (r *recordingEmail) Send(ctx context.Context, msg EmailMessage) error {
	r.sent = append(r.sent, msg)
	return r.err
}

type stubLLM struct {
	text string
	err  error
}

func (s stubLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return llm.Response{Text: s.text}, s.err
}

func seed(t *testing.T, n int) (*conversation.MemoryStore, conversation.Conversation) {
	t.Helper()
	store := conversation.NewMemoryStore()
	conv := conversation.Conversation{
		ID:              "conv-1",
		WhatsAppNumber:  "5511999990000",
		CustomerName:    "Marina",
		Category:        "energia_solar",
		LeadScore:       72,
		LeadTemperature: "hot",
	}
	store.Put(conv)
	for i := 1; i <= n; i++ {
		if _, err := store.InsertMessage(context.Background(), conversation.Message{
			ConversationID: "conv-1",
			SenderType:     conversation.SenderCustomer,
			Content:        fmt.Sprintf("mensagem %d", i),
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	return store, conv
}

func TestNotifyHandoffFallsBackToLastMessages(t *testing.T) {
	store, conv := seed(t, 7)
	email := &recordingEmail{}
	n := NewHandoffNotifier(email, store, "vendas@example.com", nil)

	if err := n.NotifyHandoff(context.Background(), conv, "template_handoff"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(email.sent))
	}
	msg := email.sent[0]
	if msg.Subject != "Atendimento humano: Marina (Energia Solar)" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if strings.Contains(msg.Body, "mensagem 2\n") || !strings.Contains(msg.Body, "mensagem 3") || !strings.Contains(msg.Body, "mensagem 7") {
		t.Fatalf("expected only the last five messages, got %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "Lead: 72 (Quente)") || !strings.Contains(msg.Body, "Motivo: template_handoff") {
		t.Fatalf("missing lead details: %q", msg.Body)
	}
}

func TestNotifyHandoffUsesSummarizer(t *testing.T) {
	store, conv := seed(t, 3)
	email := &recordingEmail{}
	source := agents.NewMemorySource(agents.Config{ID: "sum", Type: agents.TypeSummarizer, IsActive: true})
	n := NewHandoffNotifier(email, store, "vendas@example.com", nil,
		WithSummarizer(source, stubLLM{text: "Cliente quer orçamento para 8 painéis."}))

	if err := n.NotifyHandoff(context.Background(), conv, ""); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(email.sent[0].Body, "Cliente quer orçamento para 8 painéis.") {
		t.Fatalf("summary missing: %q", email.sent[0].Body)
	}
	if strings.Contains(email.sent[0].Body, "mensagem 1") {
		t.Fatalf("raw transcript should be replaced by summary")
	}
}

func TestNotifyHandoffSummarizerFailure(t *testing.T) {
	store, conv := seed(t, 2)
	email := &recordingEmail{}
	source := agents.NewMemorySource(agents.Config{ID: "sum", Type: agents.TypeSummarizer, IsActive: true})
	n := NewHandoffNotifier(email, store, "vendas@example.com", nil,
		WithSummarizer(source, stubLLM{err: errors.New("timeout")}))

	if err := n.NotifyHandoff(context.Background(), conv, ""); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(email.sent[0].Body, "mensagem 2") {
		t.Fatalf("expected transcript fallback, got %q", email.sent[0].Body)
	}
}

func TestNotifyHandoffWithoutRecipient(t *testing.T) {
	store, conv := seed(t, 1)
	email := &recordingEmail{}
	n := NewHandoffNotifier(email, store, "", nil)
	if err := n.NotifyHandoff(context.Background(), conv, ""); err != nil || len(email.sent) != 0 {
		t.Fatalf("expected silent no-op, got %v %d", err, len(email.sent))
	}
}

func TestNotifyHandoffSendError(t *testing.T) {
	store, conv := seed(t, 1)
	n := NewHandoffNotifier(&recordingEmail{err: errors.New("down")}, store, "vendas@example.com", nil)
	if err := n.NotifyHandoff(context.Background(), conv, ""); err == nil {
		t.Fatalf("expected error")
	}
}
