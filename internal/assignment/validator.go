// Package assignment checks that a conversation is assigned the agent config its category calls for.
package assignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/lead-pipeline/internal/agents"
	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

// IssueCode identifies one assignment problem.
type IssueCode string

const (
	IssueMissingAssignment IssueCode = "missing_assignment"
	IssueAgentNotFound     IssueCode = "agent_not_found"
	IssueInactiveAgent     IssueCode = "inactive_agent"
	IssueTypeMismatch      IssueCode = "type_mismatch"
	IssueCategoryMismatch  IssueCode = "category_mismatch"
	IssueNoCandidate       IssueCode = "no_candidate"
)

type Issue struct {
	Code    IssueCode `json:"code"`
	Message string    `json:"message"`
}

// Expectation is the agent shape a category calls for.
type Expectation struct {
	Type     agents.Type `json:"type"`
	Category string      `json:"category,omitempty"`
}

// Report is the result of validating one conversation. It never changes the assignment.
type Report struct {
	ConversationID     string      `json:"conversation_id"`
	Category           string      `json:"category"`
	Expected           Expectation `json:"expected"`
	AssignedAgentID    string      `json:"assigned_agent_id,omitempty"`
	Valid              bool        `json:"valid"`
	Issues             []Issue     `json:"issues"`
	RecommendedAgentID string      `json:"recommended_agent_id,omitempty"`
}

// HasIssue reports whether the report carries the code.
func (r Report) HasIssue(code IssueCode) bool {
	for _, i := range r.Issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

// ConversationReader loads conversations.
type ConversationReader interface {
	Get(ctx context.Context, id string) (*conversation.Conversation, error)
}

type Validator struct {
	conversations ConversationReader
	agents        agents.Source
	logger        *logging.Logger
}

func NewValidator(conversations ConversationReader, source agents.Source, logger *logging.Logger) *Validator {
	if conversations == nil || source == nil {
		panic("assignment: conversations and agent source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Validator{conversations: conversations, agents: source, logger: logger}
}

// Expect returns the agent shape for a category. Generic and unset categories expect a
// general agent; every other category expects a specialist for that category.
func Expect(category string) Expectation {
	if !conversation.IsSpecificCategory(category) {
		return Expectation{Type: agents.TypeGeneral}
	}
	return Expectation{Type: agents.TypeSpecialist, Category: category}
}

// Validate loads the conversation and validates its assignment.
func (v *Validator) Validate(ctx context.Context, conversationID string) (Report, error) {
	conv, err := v.conversations.Get(ctx, conversationID)
	if err != nil {
		return Report{}, err
	}
	return v.ValidateConversation(ctx, conv)
}

// ValidateConversation compares the assigned agent with the expected shape and recommends a
// replacement when they differ.
func (v *Validator) ValidateConversation(ctx context.Context, conv *conversation.Conversation) (Report, error) {
	category := conv.Category
	if category == "" {
		category = conversation.CategoryUndefined
	}
	expected := Expect(category)
	report := Report{
		ConversationID:  conv.ID,
		Category:        category,
		Expected:        expected,
		AssignedAgentID: conv.AssignedAgentID,
		Issues:          []Issue{},
	}

	if conv.AssignedAgentID == "" {
		report.add(IssueMissingAssignment, "no agent assigned")
	} else {
		assigned, err := v.agents.Get(ctx, conv.AssignedAgentID)
		switch {
		case errors.Is(err, agents.ErrNotFound):
			report.add(IssueAgentNotFound, fmt.Sprintf("agent %s does not exist", conv.AssignedAgentID))
		case err != nil:
			return Report{}, fmt.Errorf("assignment: load assigned agent: %w", err)
		default:
			report.compare(assigned, expected)
		}
	}

	if len(report.Issues) == 0 {
		report.Valid = true
		report.RecommendedAgentID = conv.AssignedAgentID
		return report, nil
	}

	candidate, err := v.agents.Active(ctx, expected.Type, expected.Category)
	switch {
	case errors.Is(err, agents.ErrNotFound):
		report.add(IssueNoCandidate, fmt.Sprintf("no active %s agent for %s", expected.Type, category))
	case err != nil:
		return Report{}, fmt.Errorf("assignment: find candidate: %w", err)
	default:
		report.RecommendedAgentID = candidate.ID
	}

	v.logger.Info("agent assignment issues found",
		"conversation_id", conv.ID,
		"category", category,
		"issues", len(report.Issues),
		"recommended_agent_id", report.RecommendedAgentID,
	)
	return report, nil
}

func (r *Report) compare(assigned *agents.Config, expected Expectation) {
	if !assigned.IsActive {
		r.add(IssueInactiveAgent, fmt.Sprintf("agent %s is inactive", assigned.ID))
	}
	if assigned.Type != expected.Type {
		r.add(IssueTypeMismatch, fmt.Sprintf("expected %s agent, assigned %s", expected.Type, assigned.Type))
		return
	}
	if expected.Type == agents.TypeSpecialist && assigned.ProductCategory != expected.Category {
		r.add(IssueCategoryMismatch, fmt.Sprintf("specialist covers %q, conversation is %q", assigned.ProductCategory, expected.Category))
	}
}

func (r *Report) add(code IssueCode, message string) {
	r.Issues = append(r.Issues, Issue{Code: code, Message: message})
}

// Job adapts the validator to a follow-up job signature.
func (v *Validator) Job(ctx context.Context, conversationID string) error {
	_, err := v.Validate(ctx, conversationID)
	return err
}
