// Package agents loads the per-role model configurations used across the pipeline.
package agents

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/lead-pipeline/internal/llm"
)

// ErrNotFound is returned when no active config matches a lookup.
var ErrNotFound = errors.New("agents: config not found")

// Type is the role an agent config plays.
type Type string

const (
	TypeGeneral        Type = "general"
	TypeSpecialist     Type = "specialist"
	TypeClassifier     Type = "classifier"
	TypeExtractor      Type = "extractor"
	TypeLeadScorer     Type = "lead_scorer"
	TypeSummarizer     Type = "summarizer"
	TypeQualityMonitor Type = "quality_monitor"
)

// Valid reports whether t is a known agent type.
func (t Type) Valid() bool {
	switch t {
	case TypeGeneral, TypeSpecialist, TypeClassifier, TypeExtractor,
		TypeLeadScorer, TypeSummarizer, TypeQualityMonitor:
		return true
	}
	return false
}

// Config is one row of agent_configs.
type Config struct {
	ID              string    `json:"id"`
	Type            Type      `json:"agentType"`
	ProductCategory string    `json:"productCategory,omitempty"`
	Name            string    `json:"name"`
	SystemPrompt    string    `json:"systemPrompt"`
	Model           string    `json:"model"`
	Temperature     float32   `json:"temperature"`
	MaxTokens       int32     `json:"maxTokens"`
	IsActive        bool      `json:"isActive"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Request builds a single-turn completion request using this config's prompt and limits.
func (c *Config) Request(userPrompt string) llm.Request {
	return llm.UserPrompt(c.Model, c.SystemPrompt, userPrompt, c.MaxTokens, c.Temperature)
}

// Source looks up agent configs.
type Source interface {
	// Active returns the newest active config of the type. A non-empty category restricts the
	// lookup to configs whose product_category matches.
	Active(ctx context.Context, typ Type, category string) (*Config, error)
	Get(ctx context.Context, id string) (*Config, error)
	ListActive(ctx context.Context, typ Type) ([]Config, error)
}
