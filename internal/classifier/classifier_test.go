package classifier

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/wolfman30/lead-pipeline/internal/agents"
	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/llm"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

type recordingLog struct {
	entries []LogEntry
	err     error
}

func (r *recordingLog) Append(ctx context.Context, e LogEntry) error {
	r.entries = append(r.entries, e)
	return r.err
}

type recordingUpdater struct {
	updates map[string]string
}

func (r *recordingUpdater) UpdateCategory(ctx context.Context, id, category string) error {
	if r.updates == nil {
		r.updates = map[string]string{}
	}
	r.updates[id] = category
	return nil
}

type stubLLM struct {
	text   string
	err    error
	prompt string
}

func (s *stubLLM) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if len(req.Messages) > 0 {
		s.prompt = req.Messages[0].Content
	}
	return llm.Response{Text: s.text}, s.err
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, "error")
}

func classifierAgents() *agents.MemorySource {
	return agents.NewMemorySource(agents.Config{ID: "c", Type: agents.TypeClassifier, IsActive: true, Model: "m"})
}

func TestClassifySetsCategoryAndLogs(t *testing.T) {
	log := &recordingLog{}
	upd := &recordingUpdater{}
	c := New(StaticKeywords(solarKeywords), testLogger(), WithLog(log), WithUpdater(upd))

	d, err := c.Classify(context.Background(), Input{
		ConversationID: "conv-1",
		BufferID:       "buf-1",
		Text:           "oi quero saber sobre energia solar minha conta é 350",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Category != "energia_solar" || !d.Changed || d.Method != MethodKeyword {
		t.Fatalf("unexpected decision %+v", d)
	}
	if upd.updates["conv-1"] != "energia_solar" {
		t.Fatalf("expected conversation category update, got %v", upd.updates)
	}
	if len(log.entries) != 1 || log.entries[0].BufferID != "buf-1" {
		t.Fatalf("expected one log entry, got %+v", log.entries)
	}
}

func TestClassifyStickinessKeepsSpecificCategory(t *testing.T) {
	log := &recordingLog{}
	upd := &recordingUpdater{}
	c := New(StaticKeywords(solarKeywords), testLogger(), WithLog(log), WithUpdater(upd))

	d, err := c.Classify(context.Background(), Input{
		ConversationID:  "conv-1",
		Text:            "e a bateria?",
		CurrentCategory: "energia_solar",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Category != "energia_solar" || d.Confidence != 0.95 || d.Method != MethodSticky {
		t.Fatalf("expected sticky decision, got %+v", d)
	}
	if d.Changed || len(upd.updates) != 0 {
		t.Fatalf("sticky decision must not update the conversation")
	}
	if len(log.entries) != 1 {
		t.Fatalf("sticky decisions are still logged")
	}
}

func TestClassifyStrongSignalSwitchesSpecificCategory(t *testing.T) {
	kws := append([]Keyword{}, solarKeywords...)
	kws = append(kws, Keyword{Category: "carregador_veicular", Keyword: "wallbox", Weight: 10, IsActive: true})
	upd := &recordingUpdater{}
	c := New(StaticKeywords(kws), testLogger(), WithUpdater(upd))

	d, err := c.Classify(context.Background(), Input{
		ConversationID:  "conv-1",
		Text:            "quero um wallbox para meu carro elétrico",
		CurrentCategory: "energia_solar",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Category != "carregador_veicular" || d.Confidence != 1 {
		t.Fatalf("expected switch to carregador_veicular, got %+v", d)
	}
	if upd.updates["conv-1"] != "carregador_veicular" {
		t.Fatalf("expected update")
	}
}

func TestClassifyGenericCategoryIsNotSticky(t *testing.T) {
	c := New(StaticKeywords(solarKeywords), testLogger())
	d, _ := c.Classify(context.Background(), Input{
		ConversationID:  "conv-1",
		Text:            "tenho interesse em painel",
		CurrentCategory: conversation.CategoryGreeting,
	})
	if d.Category != "energia_solar" {
		t.Fatalf("generic category should not stick, got %+v", d)
	}
}

func TestClassifyEscalatesLowConfidence(t *testing.T) {
	model := &stubLLM{text: "```json\n{\"category\":\"bateria_armazenamento\",\"confidence\":0.9,\"entities\":{\"produto\":\"bateria\"}}\n```"}
	c := New(StaticKeywords(solarKeywords), testLogger(), WithModel(classifierAgents(), model))

	d, err := c.Classify(context.Background(), Input{ConversationID: "conv-1", Text: "quero guardar energia pra noite"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Category != "bateria_armazenamento" || d.Method != MethodModel || d.Confidence != 0.9 {
		t.Fatalf("expected model decision, got %+v", d)
	}
	if d.Entities["produto"] != "bateria" {
		t.Fatalf("expected entities from model, got %v", d.Entities)
	}
	if !strings.Contains(model.prompt, "energia_solar") {
		t.Fatalf("prompt should list known categories: %s", model.prompt)
	}
}

func TestClassifyEscalationFailuresKeepKeywordResult(t *testing.T) {
	cases := []*stubLLM{
		{err: errors.New("timeout")},
		{text: "não sei"},
		{text: `{"category":"geladeira","confidence":1}`},
	}
	for _, model := range cases {
		c := New(StaticKeywords(solarKeywords), testLogger(), WithModel(classifierAgents(), model))
		d, err := c.Classify(context.Background(), Input{ConversationID: "conv-1", Text: "bom dia"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.Category != conversation.CategoryGreeting || d.Method != MethodKeyword {
			t.Fatalf("expected keyword fallback, got %+v", d)
		}
	}
}

func TestClassifyModelConfidenceIsClamped(t *testing.T) {
	model := &stubLLM{text: `{"category":"energia_solar","confidence":7}`}
	c := New(StaticKeywords(solarKeywords), testLogger(), WithModel(classifierAgents(), model))
	d, _ := c.Classify(context.Background(), Input{ConversationID: "conv-1", Text: "xyz"})
	if d.Confidence != 1 {
		t.Fatalf("expected clamped confidence, got %v", d.Confidence)
	}
}

type failingKeywords struct{}

func (failingKeywords) ActiveKeywords(ctx context.Context) ([]Keyword, error) {
	return nil, errors.New("db down")
}

func TestClassifyDegradesWhenKeywordsUnavailable(t *testing.T) {
	c := New(failingKeywords{}, testLogger())
	d, err := c.Classify(context.Background(), Input{ConversationID: "conv-1", Text: "energia solar"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Category != conversation.CategoryUndefined {
		t.Fatalf("expected undefined, got %s", d.Category)
	}
}

func TestClassifyGenericSignalNeverDisplacesSpecificCategory(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		model *stubLLM
	}{
		{name: "keyword greeting", text: "bom dia"},
		{name: "model undefined", text: "ok obrigado", model: &stubLLM{text: `{"category":"indefinido","confidence":0.9}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upd := &recordingUpdater{}
			opts := []Option{WithUpdater(upd)}
			if tt.model != nil {
				opts = append(opts, WithModel(classifierAgents(), tt.model))
			}
			c := New(StaticKeywords(solarKeywords), testLogger(), opts...)

			d, err := c.Classify(context.Background(), Input{
				ConversationID:  "conv-1",
				Text:            tt.text,
				CurrentCategory: "energia_solar",
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Category != "energia_solar" || d.Confidence != 0.95 || d.Method != MethodSticky {
				t.Fatalf("expected sticky energia_solar, got %+v", d)
			}
			if d.Changed || len(upd.updates) != 0 {
				t.Fatalf("specific category must not be replaced, updates=%v", upd.updates)
			}
		})
	}
}
