package leads

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/wolfman30/lead-pipeline/internal/agents"
	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/llm"
	"github.com/wolfman30/lead-pipeline/internal/observability/metrics"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

const transcriptLimit = 30

// Conversations is the conversation access the scorer needs.
type Conversations interface {
	Get(ctx context.Context, id string) (*conversation.Conversation, error)
	CountMessages(ctx context.Context, conversationID string, sender conversation.SenderType) (int, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]conversation.Message, error)
	UpdateLeadScore(ctx context.Context, id string, score int, temperature string) error
}

// ContextReader loads the extracted project context.
type ContextReader interface {
	Get(ctx context.Context, conversationID string) (map[string]any, error)
}

// Scorer computes and stores lead scores.
type Scorer struct {
	conversations Conversations
	contexts      ContextReader
	distributions DistributionChecker
	agents        agents.Source
	llm           llm.Client
	metrics       *metrics.PipelineMetrics
	logger        *logging.Logger
	now           func() time.Time
}

type Option func(*Scorer)

// WithModel scores with the active lead_scorer agent, falling back to the heuristic.
func WithModel(source agents.Source, client llm.Client) Option {
	return func(s *Scorer) {
		s.agents = source
		s.llm = client
	}
}

// WithDistributions skips leads that were already distributed.
func WithDistributions(d DistributionChecker) Option {
	return func(s *Scorer) { s.distributions = d }
}

func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(s *Scorer) { s.metrics = m }
}

func NewScorer(conversations Conversations, contexts ContextReader, logger *logging.Logger, opts ...Option) *Scorer {
	if conversations == nil {
		panic("leads: conversations required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Scorer{
		conversations: conversations,
		contexts:      contexts,
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score rescores a conversation and writes the result back.
func (s *Scorer) Score(ctx context.Context, conversationID string) (Score, error) {
	if strings.TrimSpace(conversationID) == "" {
		return Score{}, ErrConversationRequired
	}
	logger := s.logger.ForConversation(conversationID)
	now := s.now().UTC()

	if s.distributions != nil {
		distributed, err := s.distributions.IsDistributed(ctx, conversationID)
		if err != nil {
			return Score{}, err
		}
		if distributed {
			logger.Debug("lead already distributed, score left untouched")
			return Score{ConversationID: conversationID, Skipped: true, ScoredAt: now}, nil
		}
	}

	conv, err := s.conversations.Get(ctx, conversationID)
	if err != nil {
		return Score{}, err
	}
	signals, err := s.signals(ctx, logger, conv, now)
	if err != nil {
		return Score{}, err
	}

	result, err := s.fromModel(ctx, logger, conv, signals)
	if err != nil {
		if !errors.Is(err, ErrModelUnavailable) {
			logger.Warn("model lead scoring failed, using heuristic", "error", err)
		}
		score, breakdown := Heuristic(signals)
		result = Score{
			Score:       score,
			Temperature: TemperatureFor(score),
			Method:      MethodHeuristic,
			Breakdown:   &breakdown,
		}
	}
	result.ConversationID = conversationID
	result.ScoredAt = now

	if err := s.conversations.UpdateLeadScore(ctx, conversationID, result.Score, string(result.Temperature)); err != nil {
		return result, fmt.Errorf("leads: store score: %w", err)
	}
	s.metrics.ObserveLeadScore(string(result.Method), result.Score)
	if conv.LeadScore != result.Score || conv.LeadTemperature != string(result.Temperature) {
		logger.Info("lead scored",
			"score", result.Score,
			"temperature", result.Temperature,
			"method", result.Method,
			"previous_score", conv.LeadScore,
		)
	}
	return result, nil
}

func (s *Scorer) signals(ctx context.Context, logger *logging.Logger, conv *conversation.Conversation, now time.Time) (Signals, error) {
	count, err := s.conversations.CountMessages(ctx, conv.ID, conversation.SenderCustomer)
	if err != nil {
		return Signals{}, err
	}
	project := map[string]any{}
	if s.contexts != nil {
		if c, err := s.contexts.Get(ctx, conv.ID); err != nil {
			logger.Warn("failed to load project context for scoring", "error", err)
		} else if c != nil {
			project = c
		}
	}
	var last time.Time
	if conv.LastMessageAt != nil {
		last = *conv.LastMessageAt
	}
	return Signals{
		MessageCount:  count,
		Conversation:  *conv,
		Context:       project,
		LastMessageAt: last,
		Now:           now,
	}, nil
}

type modelScore struct {
	Score       float64 `json:"score"`
	Temperature string  `json:"temperature"`
	Reasoning   string  `json:"reasoning"`
}

func (s *Scorer) fromModel(ctx context.Context, logger *logging.Logger, conv *conversation.Conversation, signals Signals) (Score, error) {
	if s.llm == nil || s.agents == nil {
		return Score{}, ErrModelUnavailable
	}
	cfg, err := s.agents.Active(ctx, agents.TypeLeadScorer, "")
	if err != nil {
		if errors.Is(err, agents.ErrNotFound) {
			return Score{}, ErrModelUnavailable
		}
		return Score{}, err
	}
	transcript, err := s.conversations.RecentMessages(ctx, conv.ID, transcriptLimit)
	if err != nil {
		logger.Warn("failed to load transcript for scoring", "error", err)
	}
	resp, err := s.llm.Complete(ctx, cfg.Request(scoringPrompt(conv, signals, transcript)))
	if err != nil {
		return Score{}, err
	}
	var out modelScore
	if err := llm.DecodeObject(resp.Text, &out); err != nil {
		return Score{}, err
	}
	if math.IsNaN(out.Score) || math.IsInf(out.Score, 0) {
		return Score{}, fmt.Errorf("leads: model returned invalid score")
	}
	score := ClampScore(int(math.Round(out.Score)))
	temp := Temperature(strings.ToLower(strings.TrimSpace(out.Temperature)))
	if !temp.Valid() {
		temp = TemperatureFor(score)
	}
	return Score{
		Score:       score,
		Temperature: temp,
		Method:      MethodModel,
		Reasoning:   strings.TrimSpace(out.Reasoning),
	}, nil
}

func scoringPrompt(conv *conversation.Conversation, signals Signals, transcript []conversation.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Categoria: %s\n", conversation.CategoryLabel(conv.Category))
	fmt.Fprintf(&b, "Mensagens do cliente: %d\n", signals.MessageCount)
	if len(signals.Context) > 0 {
		b.WriteString("Dados coletados:\n")
		for _, key := range completenessFields {
			if v, ok := signals.Context[key]; ok && present(v) {
				fmt.Fprintf(&b, "- %s: %v\n", key, v)
			}
		}
	}
	if len(transcript) > 0 {
		b.WriteString("\nConversa:\n")
		for _, m := range transcript {
			fmt.Fprintf(&b, "%s: %s\n", m.SenderType, m.Content)
		}
	}
	b.WriteString("\nAvalie o potencial deste lead de 0 a 100 e responda somente com JSON no formato ")
	b.WriteString(`{"score": 0, "temperature": "cold|warm|hot", "reasoning": "..."}`)
	return b.String()
}
