// Package extraction pulls structured project fields out of customer messages.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/lead-pipeline/internal/agents"
	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/llm"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

const (
	MethodModel     = "llm"
	MethodRaw       = "raw"
	MethodHeuristic = "heuristic"
)

// CustomerUpdater stores profile values on the conversation row.
type CustomerUpdater interface {
	UpdateCustomerFields(ctx context.Context, id string, fields conversation.CustomerFields) error
}

type Input struct {
	ConversationID string
	Text           string
	Transcript     []conversation.Message
}

// Result is what one extraction produced. Context is the merged project context after the
// upsert and is usable even when the upsert failed.
type Result struct {
	Fields  map[string]any
	Context map[string]any
	Method  string
}

type Extractor struct {
	store     ContextStore
	agents    agents.Source
	llm       llm.Client
	customers CustomerUpdater
	logger    *logging.Logger
}

type Option func(*Extractor)

func WithModel(source agents.Source, client llm.Client) Option {
	return func(e *Extractor) {
		e.agents = source
		e.llm = client
	}
}

func WithCustomerUpdater(u CustomerUpdater) Option {
	return func(e *Extractor) { e.customers = u }
}

func New(store ContextStore, logger *logging.Logger, opts ...Option) *Extractor {
	if store == nil {
		panic("extraction: context store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	e := &Extractor{store: store, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs the extractor agent, fills gaps with heuristics and merges the result into the
// project context. Model failures degrade to heuristics; only store failures are returned.
func (e *Extractor) Extract(ctx context.Context, in Input) (Result, error) {
	logger := e.logger.ForConversation(in.ConversationID)
	fields, method := e.fromModel(ctx, logger, in)
	if fields == nil {
		fields = map[string]any{}
		method = MethodHeuristic
	}
	for k, v := range Heuristic(in.Text) {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}

	result := Result{Fields: fields, Method: method}
	if len(fields) == 0 {
		current, err := e.store.Get(ctx, in.ConversationID)
		if err != nil {
			return result, err
		}
		result.Context = current
		return result, nil
	}

	merged, err := e.store.Merge(ctx, in.ConversationID, fields)
	if err != nil {
		result.Context = fields
		return result, err
	}
	result.Context = merged
	logger.Debug("project context updated", "fields", len(fields), "method", method)

	e.updateCustomer(ctx, logger, in.ConversationID, fields)
	return result, nil
}

func (e *Extractor) fromModel(ctx context.Context, logger *logging.Logger, in Input) (map[string]any, string) {
	if e.llm == nil || e.agents == nil {
		return nil, ""
	}
	cfg, err := e.agents.Active(ctx, agents.TypeExtractor, "")
	if err != nil {
		if !errors.Is(err, agents.ErrNotFound) {
			logger.Warn("failed to load extractor agent", "error", err)
		}
		return nil, ""
	}
	resp, err := e.llm.Complete(ctx, cfg.Request(extractionPrompt(in)))
	if err != nil {
		logger.Warn("context extraction failed", "error", err)
		return nil, ""
	}

	var parsed map[string]any
	if err := llm.DecodeObject(resp.Text, &parsed); err != nil {
		logger.Warn("extractor returned non-JSON output, keeping raw text", "error", err)
		return map[string]any{FieldRaw: resp.Text}, MethodRaw
	}
	return compact(parsed), MethodModel
}

func (e *Extractor) updateCustomer(ctx context.Context, logger *logging.Logger, id string, fields map[string]any) {
	if e.customers == nil {
		return
	}
	cf := conversation.CustomerFields{
		Name:  stringField(fields, FieldName),
		Email: stringField(fields, FieldEmail),
		City:  stringField(fields, FieldCity),
	}
	if cf == (conversation.CustomerFields{}) {
		return
	}
	if err := e.customers.UpdateCustomerFields(ctx, id, cf); err != nil {
		logger.Warn("failed to update customer fields", "error", err)
	}
}

func extractionPrompt(in Input) string {
	var b strings.Builder
	if len(in.Transcript) > 0 {
		b.WriteString("Histórico da conversa:\n")
		for _, m := range in.Transcript {
			fmt.Fprintf(&b, "%s: %s\n", m.SenderType, m.Content)
		}
		b.WriteString("\n")
	}
	b.WriteString("Mensagem atual do cliente:\n")
	b.WriteString(in.Text)
	b.WriteString("\n\nExtraia os dados do cliente e do projeto e responda somente com um objeto JSON.")
	return b.String()
}

// compact drops null and empty values so they never erase stored fields.
func compact(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(val) == "" {
				continue
			}
		}
		out[k] = v
	}
	return out
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}
