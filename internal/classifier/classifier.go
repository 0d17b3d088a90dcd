// Package classifier resolves the product category of a combined customer message.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/wolfman30/lead-pipeline/internal/agents"
	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/llm"
	"github.com/wolfman30/lead-pipeline/internal/observability/metrics"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

// Method records how a category was decided.
type Method string

const (
	MethodKeyword Method = "keyword"
	MethodModel   Method = "llm"
	MethodSticky  Method = "sticky"
)

const (
	DefaultSwitchThreshold     = 0.8
	DefaultEscalationThreshold = 0.5
	stickyConfidence           = 0.95
)

// CategoryUpdater persists a conversation's category.
type CategoryUpdater interface {
	UpdateCategory(ctx context.Context, conversationID, category string) error
}

// Input is what the processor knows about the turn being classified.
type Input struct {
	ConversationID  string
	BufferID        string
	Text            string
	CurrentCategory string
}

// Decision is the resolved category for a turn.
type Decision struct {
	Category         string         `json:"category"`
	PreviousCategory string         `json:"previousCategory,omitempty"`
	Confidence       float64        `json:"confidence"`
	Method           Method         `json:"method"`
	Matched          []string       `json:"matchedKeywords,omitempty"`
	Entities         map[string]any `json:"entities,omitempty"`
	Changed          bool           `json:"changed"`
}

// Classifier scores text against the keyword table, escalates weak results to a model and
// keeps specific categories sticky.
type Classifier struct {
	keywords            KeywordSource
	agents              agents.Source
	llm                 llm.Client
	log                 LogWriter
	updater             CategoryUpdater
	metrics             *metrics.PipelineMetrics
	logger              *logging.Logger
	switchThreshold     float64
	escalationThreshold float64
}

type Option func(*Classifier)

// WithModel enables escalation through the active classifier agent.
func WithModel(source agents.Source, client llm.Client) Option {
	return func(c *Classifier) {
		c.agents = source
		c.llm = client
	}
}

func WithLog(w LogWriter) Option {
	return func(c *Classifier) { c.log = w }
}

func WithUpdater(u CategoryUpdater) Option {
	return func(c *Classifier) { c.updater = u }
}

func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(c *Classifier) { c.metrics = m }
}

// WithThresholds overrides the stickiness switch threshold and the escalation cutoff.
func WithThresholds(switchAt, escalateBelow float64) Option {
	return func(c *Classifier) {
		if switchAt > 0 {
			c.switchThreshold = switchAt
		}
		if escalateBelow > 0 {
			c.escalationThreshold = escalateBelow
		}
	}
}

func New(keywords KeywordSource, logger *logging.Logger, opts ...Option) *Classifier {
	if keywords == nil {
		panic("classifier: keyword source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Classifier{
		keywords:            keywords,
		logger:              logger,
		switchThreshold:     DefaultSwitchThreshold,
		escalationThreshold: DefaultEscalationThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify resolves the category for in, writes the audit log entry and updates the
// conversation when the category changed. Keyword and model failures degrade to the best
// available answer; only a failed category update is returned as an error.
func (c *Classifier) Classify(ctx context.Context, in Input) (Decision, error) {
	logger := c.logger.ForConversation(in.ConversationID)

	kws, err := c.keywords.ActiveKeywords(ctx)
	if err != nil {
		logger.Warn("keyword table unavailable, classifying without keywords", "error", err)
		kws = nil
	}

	score := ScoreText(in.Text, kws)
	decision := Decision{
		Category:         score.Category,
		PreviousCategory: in.CurrentCategory,
		Confidence:       score.Confidence,
		Method:           MethodKeyword,
		Matched:          score.Matched,
	}

	if decision.Confidence < c.escalationThreshold {
		if escalated, ok := c.escalate(ctx, logger, in.Text, knownCategories(kws)); ok {
			decision.Category = escalated.Category
			decision.Confidence = escalated.Confidence
			decision.Entities = escalated.Entities
			decision.Method = MethodModel
		}
	}

	// A specific category only moves to another specific category on a strong signal.
	// Generic categories never displace it; operators use the override action for that.
	if conversation.IsSpecificCategory(in.CurrentCategory) &&
		(decision.Confidence < c.switchThreshold || !conversation.IsSpecificCategory(decision.Category)) {
		decision.Category = in.CurrentCategory
		decision.Confidence = stickyConfidence
		decision.Method = MethodSticky
	}
	decision.Changed = decision.Category != in.CurrentCategory

	if c.log != nil {
		if err := c.log.Append(ctx, LogEntry{
			ConversationID:   in.ConversationID,
			BufferID:         in.BufferID,
			Category:         decision.Category,
			PreviousCategory: in.CurrentCategory,
			Confidence:       decision.Confidence,
			Method:           decision.Method,
			MatchedKeywords:  decision.Matched,
			Entities:         decision.Entities,
		}); err != nil {
			logger.Warn("failed to write classification log", "error", err)
		}
	}
	c.metrics.ObserveClassification(decision.Category, string(decision.Method))

	logger.Info("message classified",
		"buffer_id", in.BufferID,
		"category", decision.Category,
		"previous_category", in.CurrentCategory,
		"confidence", decision.Confidence,
		"method", decision.Method,
	)

	if decision.Changed && c.updater != nil {
		if err := c.updater.UpdateCategory(ctx, in.ConversationID, decision.Category); err != nil {
			return decision, fmt.Errorf("classifier: update category: %w", err)
		}
	}
	return decision, nil
}

type modelVerdict struct {
	Category   string         `json:"category"`
	Confidence float64        `json:"confidence"`
	Entities   map[string]any `json:"entities"`
}

func (c *Classifier) escalate(ctx context.Context, logger *logging.Logger, text string, allowed []string) (modelVerdict, bool) {
	if c.llm == nil || c.agents == nil {
		return modelVerdict{}, false
	}
	cfg, err := c.agents.Active(ctx, agents.TypeClassifier, "")
	if err != nil {
		if !errors.Is(err, agents.ErrNotFound) {
			logger.Warn("failed to load classifier agent", "error", err)
		}
		return modelVerdict{}, false
	}

	resp, err := c.llm.Complete(ctx, cfg.Request(escalationPrompt(text, allowed)))
	if err != nil {
		logger.Warn("classifier escalation failed", "error", err)
		return modelVerdict{}, false
	}

	var verdict modelVerdict
	if err := llm.DecodeObject(resp.Text, &verdict); err != nil {
		logger.Warn("classifier escalation returned malformed output", "error", err)
		return modelVerdict{}, false
	}
	verdict.Category = strings.TrimSpace(strings.ToLower(verdict.Category))
	if !contains(allowed, verdict.Category) {
		logger.Warn("classifier escalation returned unknown category", "category", verdict.Category)
		return modelVerdict{}, false
	}
	if math.IsNaN(verdict.Confidence) {
		verdict.Confidence = 0
	}
	verdict.Confidence = math.Max(0, math.Min(1, verdict.Confidence))
	return verdict, true
}

func escalationPrompt(text string, allowed []string) string {
	var b strings.Builder
	b.WriteString("Classifique a mensagem do cliente em uma das categorias: ")
	b.WriteString(strings.Join(allowed, ", "))
	b.WriteString(".\nResponda apenas com JSON no formato ")
	b.WriteString(`{"category": "...", "confidence": 0.0, "entities": {}}`)
	b.WriteString(".\n\nMensagem:\n")
	b.WriteString(text)
	return b.String()
}

func knownCategories(kws []Keyword) []string {
	set := make(map[string]struct{})
	for _, c := range conversation.GenericCategories() {
		set[c] = struct{}{}
	}
	for _, kw := range kws {
		set[kw.Category] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
