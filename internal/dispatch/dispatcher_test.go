package dispatch

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/messaging"
	"github.com/wolfman30/lead-pipeline/internal/templates"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

type stubSender struct {
	sent []messaging.OutboundMessage
	err  error
}

func (s *stubSender) Send(ctx context.Context, msg messaging.OutboundMessage) (messaging.Delivery, error) {
	s.sent = append(s.sent, msg)
	return messaging.Delivery{}, s.err
}

type stubFinisher struct {
	processed []string
	err       error
}

func (s *stubFinisher) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	s.processed = append(s.processed, id)
	return s.err
}

type stubNotifier struct {
	calls int
}

func (s *stubNotifier) NotifyHandoff(ctx context.Context, conv conversation.Conversation, reason string) error {
	s.calls++
	return nil
}

type fixture struct {
	repo     *conversation.MemoryStore
	service  *conversation.Service
	sender   *stubSender
	finisher *stubFinisher
	notifier *stubNotifier
	d        *Dispatcher
}

func newFixture(t *testing.T, status conversation.Status) *fixture {
	t.Helper()
	logger := logging.NewWithWriter(io.Discard, "error")
	repo := conversation.NewMemoryStore()
	repo.Put(conversation.Conversation{ID: "conv-1", WhatsAppNumber: "5511999990000", Status: status})
	f := &fixture{
		repo:     repo,
		service:  conversation.NewService(repo, logger),
		sender:   &stubSender{},
		finisher: &stubFinisher{},
		notifier: &stubNotifier{},
	}
	f.d = New(repo, f.sender, f.service, f.finisher, logger, WithNotifier(f.notifier))
	return f
}

func (f *fixture) conv(t *testing.T) conversation.Conversation {
	t.Helper()
	c, err := f.repo.Get(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	return *c
}

func TestDispatchSendsAndMarksProcessed(t *testing.T) {
	f := newFixture(t, conversation.StatusActive)
	res, err := f.d.Dispatch(context.Background(), Request{
		Conversation: f.conv(t),
		BufferID:     "buf-1",
		Reply:        templates.Reply{Text: "Olá!", QuickReplies: []string{"Sim"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusSent || res.MessageID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0].To != "5511999990000" || len(f.sender.sent[0].QuickReplies) != 1 {
		t.Fatalf("unexpected sends %+v", f.sender.sent)
	}
	if len(f.finisher.processed) != 1 || f.finisher.processed[0] != "buf-1" {
		t.Fatalf("buffer must be marked processed, got %v", f.finisher.processed)
	}
	if got := f.conv(t).Status; got != conversation.StatusInBot {
		t.Fatalf("expected in_bot after first reply, got %s", got)
	}
	if n, _ := f.repo.CountMessages(context.Background(), "conv-1", conversation.SenderBot); n != 1 {
		t.Fatalf("expected one persisted bot message, got %d", n)
	}
}

func TestDispatchSuppressesDuplicateWithinWindow(t *testing.T) {
	f := newFixture(t, conversation.StatusInBot)
	req := Request{Conversation: f.conv(t), BufferID: "buf-1", Reply: templates.Reply{Text: "Olá!"}}
	if _, err := f.d.Dispatch(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req.BufferID = "buf-2"
	res, err := f.d.Dispatch(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusDuplicate {
		t.Fatalf("expected duplicate, got %s", res.Status)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("expected a single send, got %d", len(f.sender.sent))
	}
	if n, _ := f.repo.CountMessages(context.Background(), "conv-1", conversation.SenderBot); n != 1 {
		t.Fatalf("expected a single persisted message, got %d", n)
	}
	if len(f.finisher.processed) != 2 {
		t.Fatalf("duplicate must still mark its buffer processed")
	}
}

func TestDispatchResendsAfterWindow(t *testing.T) {
	f := newFixture(t, conversation.StatusInBot)
	base := time.Now()
	f.d.now = func() time.Time { return base }
	req := Request{Conversation: f.conv(t), BufferID: "buf-1", Reply: templates.Reply{Text: "Olá!"}}
	f.d.Dispatch(context.Background(), req)

	f.d.now = func() time.Time { return base.Add(6 * time.Minute) }
	res, _ := f.d.Dispatch(context.Background(), req)
	if res.Status != StatusSent || len(f.sender.sent) != 2 {
		t.Fatalf("expected resend after window, got %s with %d sends", res.Status, len(f.sender.sent))
	}
}

func TestDispatchSendFailureStillMarksProcessed(t *testing.T) {
	f := newFixture(t, conversation.StatusInBot)
	f.sender.err = errors.New("gateway down")
	res, err := f.d.Dispatch(context.Background(), Request{Conversation: f.conv(t), BufferID: "buf-1", Reply: templates.Reply{Text: "Olá!"}})
	if err != nil {
		t.Fatalf("send failures are not returned: %v", err)
	}
	if res.Status != StatusSendFailed || len(f.finisher.processed) != 1 {
		t.Fatalf("unexpected result %+v processed=%v", res, f.finisher.processed)
	}
}

func TestDispatchTransferHandsOff(t *testing.T) {
	f := newFixture(t, conversation.StatusInBot)
	_, err := f.d.Dispatch(context.Background(), Request{
		Conversation: f.conv(t),
		BufferID:     "buf-1",
		Reply:        templates.HandoffReply("energia_solar"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.conv(t).Status; got != conversation.StatusWithAgent {
		t.Fatalf("expected with_agent, got %s", got)
	}
	if f.notifier.calls != 1 {
		t.Fatalf("expected handoff notification")
	}
}

func TestDispatchReturnsMarkProcessedError(t *testing.T) {
	f := newFixture(t, conversation.StatusInBot)
	f.finisher.err = errors.New("db down")
	if _, err := f.d.Dispatch(context.Background(), Request{Conversation: f.conv(t), BufferID: "buf-1", Reply: templates.Reply{Text: "x"}}); err == nil {
		t.Fatalf("expected error")
	}
}
