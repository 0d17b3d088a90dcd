package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/lead-pipeline/internal/buffer"
	"github.com/wolfman30/lead-pipeline/internal/classifier"
	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/dispatch"
	"github.com/wolfman30/lead-pipeline/internal/extraction"
	"github.com/wolfman30/lead-pipeline/internal/knowledge"
	"github.com/wolfman30/lead-pipeline/internal/messaging"
	"github.com/wolfman30/lead-pipeline/internal/templates"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []messaging.OutboundMessage
}

func (s *recordingSender) Send(ctx context.Context, msg messaging.OutboundMessage) (messaging.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return messaging.Delivery{ProviderMessageID: "wamid"}, nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type recordingListener struct {
	mu    sync.Mutex
	calls []string
}

func (l *recordingListener) ConversationChanged(ctx context.Context, id string) {
	l.mu.Lock()
	l.calls = append(l.calls, id)
	l.mu.Unlock()
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}
func (stubEmbedder) ModelID() string { return "stub" }

type harness struct {
	buffers  *buffer.MemoryStore
	convs    *conversation.MemoryStore
	sender   *recordingSender
	listener *recordingListener
	proc     *Processor
	now      time.Time
}

var keywords = classifier.StaticKeywords{
	{Category: "energia_solar", Keyword: "energia solar", Weight: 8, IsActive: true},
	{Category: "energia_solar", Keyword: "conta", Weight: 3, IsActive: true},
	{Category: conversation.CategoryGreeting, Keyword: "oi", Weight: 3, IsActive: true},
}

func newHarness(t *testing.T, status conversation.Status, category string) *harness {
	t.Helper()
	logger := logging.NewWithWriter(io.Discard, "error")
	h := &harness{
		buffers:  buffer.NewMemoryStore(),
		convs:    conversation.NewMemoryStore(),
		sender:   &recordingSender{},
		listener: &recordingListener{},
		now:      time.Date(2025, 5, 1, 15, 0, 0, 0, time.UTC),
	}
	h.convs.Put(conversation.Conversation{ID: "conv-1", WhatsAppNumber: "5511999990000", Status: status, Category: category})
	service := conversation.NewService(h.convs, logger)

	chunks := knowledge.NewMemoryStore()
	chunks.Add(knowledge.Chunk{Category: "energia_solar", Content: "Garantia de 25 anos", Source: "garantia.pdf"}, []float32{1, 0})

	tpls := templates.NewMemorySource(
		templates.Template{ID: "solar", Category: "energia_solar",
			Body: "Ótimo! Com uma conta de {{conta_luz_valor}} você economiza {{economia_mensal}}.{{#if conhecimento}} {{conhecimento}}{{/if}}"},
		templates.Template{ID: "undef", Category: conversation.CategoryUndefined, Body: "Como posso ajudar?"},
	)

	h.proc = NewProcessor(Deps{
		Buffers:       h.buffers,
		Conversations: h.convs,
		Classifier:    classifier.New(keywords, logger, classifier.WithUpdater(h.convs)),
		Extractor:     extraction.New(extraction.NewMemoryContextStore(), logger, extraction.WithCustomerUpdater(h.convs)),
		Retriever:     knowledge.NewRetriever(stubEmbedder{}, chunks, logger),
		Composer:      templates.NewComposer(tpls, logger),
		Dispatcher:    dispatch.New(h.convs, h.sender, service, h.buffers, logger),
		Listener:      h.listener,
	}, logger)
	h.proc.now = func() time.Time { return h.now }
	return h
}

func (h *harness) append(t *testing.T, text string, at time.Time) {
	t.Helper()
	if _, err := h.buffers.Append(context.Background(), "conv-1", text, at.Add(60*time.Second)); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestProcessCombinesFragmentsIntoOneReply(t *testing.T) {
	h := newHarness(t, conversation.StatusActive, "")
	start := h.now
	h.append(t, "oi", start)
	h.append(t, "quero saber sobre energia solar", start.Add(5*time.Second))
	h.append(t, "minha conta é 350", start.Add(10*time.Second))

	h.now = start.Add(30 * time.Second)
	res, err := h.proc.Process(context.Background(), "conv-1")
	if err != nil || res.Outcome != buffer.OutcomeStillWaiting {
		t.Fatalf("expected still_waiting, got %+v %v", res, err)
	}
	if res.Remaining != 40*time.Second {
		t.Fatalf("expected 40s remaining, got %v", res.Remaining)
	}

	h.now = start.Add(71 * time.Second)
	res, err = h.proc.Process(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != buffer.OutcomeProcessed || res.Category != "energia_solar" {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.sender.count() != 1 {
		t.Fatalf("expected exactly one reply, got %d", h.sender.count())
	}
	text := h.sender.sent[0].Text
	for _, want := range []string{"R$ 350,00", "R$ 315,00", "Garantia de 25 anos"} {
		if !strings.Contains(text, want) {
			t.Fatalf("reply %q missing %q", text, want)
		}
	}

	conv, _ := h.convs.Get(context.Background(), "conv-1")
	if conv.Category != "energia_solar" || conv.Status != conversation.StatusInBot {
		t.Fatalf("unexpected conversation %+v", conv)
	}
	if len(h.listener.calls) != 1 {
		t.Fatalf("expected change notification")
	}

	res, _ = h.proc.Process(context.Background(), "conv-1")
	if res.Outcome != buffer.OutcomeNothingToDo {
		t.Fatalf("expected nothing_to_do after processing, got %s", res.Outcome)
	}
}

func TestProcessConcurrentInvocationsClaimOnce(t *testing.T) {
	h := newHarness(t, conversation.StatusInBot, "")
	h.append(t, "energia solar", h.now.Add(-2*time.Minute))

	const workers = 8
	var wg sync.WaitGroup
	outcomes := make(chan buffer.Outcome, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.proc.Process(context.Background(), "conv-1")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			outcomes <- res.Outcome
		}()
	}
	wg.Wait()
	close(outcomes)

	processed := 0
	for o := range outcomes {
		switch o {
		case buffer.OutcomeProcessed:
			processed++
		case buffer.OutcomeLockNotAcquired, buffer.OutcomeNothingToDo:
		default:
			t.Fatalf("unexpected outcome %s", o)
		}
	}
	if processed != 1 || h.sender.count() != 1 {
		t.Fatalf("expected exactly one processed run and one reply, got %d runs and %d sends", processed, h.sender.count())
	}
}

func TestProcessSuppressesReplyWhenAgentActive(t *testing.T) {
	h := newHarness(t, conversation.StatusWithAgent, "energia_solar")
	h.append(t, "qual o prazo?", h.now.Add(-2*time.Minute))

	res, err := h.proc.Process(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != buffer.OutcomeAgentActive {
		t.Fatalf("expected agent_active, got %s", res.Outcome)
	}
	if h.sender.count() != 0 {
		t.Fatalf("no reply may be sent while an agent is active")
	}
	if _, err := h.buffers.FindOpen(context.Background(), "conv-1"); !errors.Is(err, buffer.ErrBufferNotFound) {
		t.Fatalf("buffer should be closed")
	}
	b, _ := h.buffers.ListDue(context.Background(), h.now.Add(time.Hour), 10)
	if len(b) != 0 {
		t.Fatalf("no due buffers expected, got %d", len(b))
	}
}

type panickingTranscript struct {
	*conversation.MemoryStore
}

func (panickingTranscript) RecentMessages(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error) {
	panic("boom")
}

func TestProcessFailureSendsHandoffAndMarksProcessed(t *testing.T) {
	h := newHarness(t, conversation.StatusInBot, "")
	h.proc.deps.Conversations = panickingTranscript{h.convs}
	h.append(t, "oi", h.now.Add(-2*time.Minute))

	res, err := h.proc.Process(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("a finished buffer must not be reported as retryable: %v", err)
	}
	if res.Outcome != buffer.OutcomeHandedOff || !strings.Contains(res.Failure, "panic") {
		t.Fatalf("expected handed_off outcome with failure, got %+v", res)
	}
	if h.sender.count() != 1 || h.sender.sent[0].Text != templates.HandoffMessage {
		t.Fatalf("expected handoff reply, got %+v", h.sender.sent)
	}
	conv, _ := h.convs.Get(context.Background(), "conv-1")
	if conv.Status != conversation.StatusWithAgent {
		t.Fatalf("expected with_agent after failure handoff, got %s", conv.Status)
	}
	again, _ := h.proc.Process(context.Background(), "conv-1")
	if again.Outcome != buffer.OutcomeNothingToDo {
		t.Fatalf("failed buffers are never reprocessed, got %s", again.Outcome)
	}
}

type missingConversation struct {
	*conversation.MemoryStore
}

func (missingConversation) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	return nil, errors.New("connection reset")
}

func TestProcessConversationLoadFailureFinishesBuffer(t *testing.T) {
	h := newHarness(t, conversation.StatusInBot, "")
	h.proc.deps.Conversations = missingConversation{h.convs}
	h.append(t, "oi", h.now.Add(-2*time.Minute))

	res, err := h.proc.Process(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("expected no retryable error once the buffer is finished, got %v", err)
	}
	if res.Outcome != buffer.OutcomeHandedOff || !strings.Contains(res.Failure, "connection reset") {
		t.Fatalf("unexpected result %+v", res)
	}
	if h.sender.count() != 0 {
		t.Fatalf("no reply can be sent without the conversation")
	}
	b, err := h.buffers.Get(context.Background(), res.BufferID)
	if err != nil {
		t.Fatalf("get buffer: %v", err)
	}
	if !b.Processed {
		t.Fatalf("expected buffer to be marked processed")
	}
}
