package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

type recordingListener struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingListener) ConversationChanged(_ context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

type stubArchiver struct {
	calls    int
	messages int
	reason   string
	err      error
}

func (s *stubArchiver) ArchiveTranscript(_ context.Context, conv Conversation, messages []Message) (string, error) {
	s.calls++
	s.messages = len(messages)
	s.reason = conv.CloseReason
	return "transcripts/" + conv.ID + ".json", s.err
}

func TestRecordInboundActivatesWaitingConversation(t *testing.T) {
	store := NewMemoryStore()
	store.Put(Conversation{ID: "c1", WhatsAppNumber: "5511999990000", Status: StatusWaiting})
	listener := &recordingListener{}
	svc := NewService(store, logging.Default(), WithChangeListener(listener))

	if _, err := svc.RecordInbound(context.Background(), "c1", "oi"); err != nil {
		t.Fatalf("record inbound: %v", err)
	}
	conv, _ := store.Get(context.Background(), "c1")
	if conv.Status != StatusActive {
		t.Fatalf("expected active, got %s", conv.Status)
	}
	if conv.FirstMessageAt == nil || conv.LastMessageAt == nil {
		t.Fatalf("expected message timestamps to be set")
	}
	if len(listener.ids) != 1 {
		t.Fatalf("expected one change notification, got %d", len(listener.ids))
	}
}

func TestRecordInboundReactivatesClosedConversation(t *testing.T) {
	store := NewMemoryStore()
	store.Put(Conversation{ID: "c1", Status: StatusClosed, CloseReason: "sem resposta"})
	svc := NewService(store, nil)

	if _, err := svc.RecordInbound(context.Background(), "c1", "voltei"); err != nil {
		t.Fatalf("record inbound: %v", err)
	}
	conv, _ := store.Get(context.Background(), "c1")
	if conv.Status != StatusInBot {
		t.Fatalf("expected in_bot after reactivation, got %s", conv.Status)
	}
	if conv.ReactivationCount != 1 {
		t.Fatalf("expected reactivation count 1, got %d", conv.ReactivationCount)
	}
	history, _ := svc.History(context.Background(), "c1")
	if len(history) != 1 || history[0].Action != ActionReactivate || history[0].FromStatus != StatusClosed {
		t.Fatalf("unexpected history %#v", history)
	}
}

func TestApplyCloseArchivesTranscript(t *testing.T) {
	store := NewMemoryStore()
	store.Put(Conversation{ID: "c1", Status: StatusActive})
	_, _ = store.InsertMessage(context.Background(), Message{ConversationID: "c1", SenderType: SenderCustomer, Content: "oi"})
	archiver := &stubArchiver{}
	svc := NewService(store, nil, WithArchiver(archiver))

	conv, err := svc.Apply(context.Background(), "c1", ActionClose, "resolvido")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if conv.Status != StatusClosed || conv.CloseReason != "resolvido" {
		t.Fatalf("unexpected conversation after close: %#v", conv)
	}
	if archiver.calls != 1 || archiver.messages != 1 || archiver.reason != "resolvido" {
		t.Fatalf("expected archive with close reason, got %#v", archiver)
	}
}

func TestApplyArchiveFailureDoesNotFailClose(t *testing.T) {
	store := NewMemoryStore()
	store.Put(Conversation{ID: "c1", Status: StatusInBot})
	svc := NewService(store, nil, WithArchiver(&stubArchiver{err: errors.New("s3 down")}))

	if _, err := svc.Apply(context.Background(), "c1", ActionClose, "spam"); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
}

func TestApplyRejectsInvalidTransition(t *testing.T) {
	store := NewMemoryStore()
	store.Put(Conversation{ID: "c1", Status: StatusWaiting})
	svc := NewService(store, nil)

	_, err := svc.Apply(context.Background(), "c1", ActionQualify, "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestHandoffIsNoopWhenAgentOwnsConversation(t *testing.T) {
	store := NewMemoryStore()
	store.Put(Conversation{ID: "c1", Status: StatusWithAgent})
	svc := NewService(store, nil)

	if err := svc.Handoff(context.Background(), "c1", "sem template"); err != nil {
		t.Fatalf("handoff: %v", err)
	}
	history, _ := store.StatusHistory(context.Background(), "c1")
	if len(history) != 0 {
		t.Fatalf("expected no transition, got %#v", history)
	}
}

func TestMarkBotRepliedOnlyFromActive(t *testing.T) {
	store := NewMemoryStore()
	store.Put(Conversation{ID: "a", Status: StatusActive})
	store.Put(Conversation{ID: "b", Status: StatusWithAgent})
	svc := NewService(store, nil)

	if err := svc.MarkBotReplied(context.Background(), "a"); err != nil {
		t.Fatalf("mark a: %v", err)
	}
	if err := svc.MarkBotReplied(context.Background(), "b"); err != nil {
		t.Fatalf("mark b: %v", err)
	}
	a, _ := store.Get(context.Background(), "a")
	b, _ := store.Get(context.Background(), "b")
	if a.Status != StatusInBot || b.Status != StatusWithAgent {
		t.Fatalf("unexpected statuses a=%s b=%s", a.Status, b.Status)
	}
}

func TestResolveCreatesConversationByNumber(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, nil)

	id, err := svc.Resolve(context.Background(), "", "5511988887777", "Maria")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	again, err := svc.Resolve(context.Background(), "", "5511988887777", "")
	if err != nil || again != id {
		t.Fatalf("expected same conversation, got %s (%v)", again, err)
	}
	if _, err := svc.Resolve(context.Background(), "missing", "", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Resolve(context.Background(), "", " ", ""); err == nil {
		t.Fatalf("expected error without id or number")
	}
}

func TestOverrideCategory(t *testing.T) {
	store := NewMemoryStore()
	store.Put(Conversation{ID: "c1", Status: StatusInBot, Category: "energia_solar"})
	svc := NewService(store, nil)

	conv, err := svc.OverrideCategory(context.Background(), "c1", "carregador_veicular")
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if conv.Category != "carregador_veicular" {
		t.Fatalf("expected override to apply, got %s", conv.Category)
	}
}
