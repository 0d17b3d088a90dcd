package leads

import (
	"strings"
	"time"

	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/extraction"
)

// Signals is everything the heuristic looks at.
type Signals struct {
	MessageCount  int
	Conversation  conversation.Conversation
	Context       map[string]any
	LastMessageAt time.Time
	Now           time.Time
}

const (
	pointsPerField  = 5
	maxCompleteness = 25
	specificPoints  = 15
	genericPoints   = 5
	urgencyPoints   = 25
)

// completenessFields are the data points a qualified lead usually has.
var completenessFields = []string{
	extraction.FieldName,
	extraction.FieldEmail,
	extraction.FieldCity,
	extraction.FieldBill,
	extraction.FieldUrgency,
}

// Heuristic scores a lead from five independent bands. The band maxima add up to 100.
func Heuristic(s Signals) (int, Breakdown) {
	b := Breakdown{
		Messages:     messageBand(s.MessageCount),
		Completeness: completenessBand(s.Conversation, s.Context),
		Category:     categoryBand(s.Conversation.Category),
		Urgency:      urgencyBand(s.Context),
		Recency:      recencyBand(s.LastMessageAt, s.Now),
	}
	return ClampScore(b.Total()), b
}

func messageBand(n int) int {
	switch {
	case n >= 10:
		return 20
	case n >= 5:
		return 15
	case n >= 3:
		return 10
	case n >= 1:
		return 5
	default:
		return 0
	}
}

func completenessBand(conv conversation.Conversation, ctx map[string]any) int {
	profile := map[string]string{
		extraction.FieldName:  conv.CustomerName,
		extraction.FieldEmail: conv.CustomerEmail,
		extraction.FieldCity:  conv.CustomerCity,
	}
	points := 0
	for _, field := range completenessFields {
		if strings.TrimSpace(profile[field]) != "" || present(ctx[field]) {
			points += pointsPerField
		}
	}
	if points > maxCompleteness {
		points = maxCompleteness
	}
	return points
}

func categoryBand(category string) int {
	switch {
	case conversation.IsSpecificCategory(category):
		return specificPoints
	case category != "" && category != conversation.CategoryUndefined:
		return genericPoints
	default:
		return 0
	}
}

func urgencyBand(ctx map[string]any) int {
	if v, ok := ctx[extraction.FieldUrgency].(string); ok {
		if strings.EqualFold(v, extraction.UrgencyHigh) || extraction.HasUrgency(v) {
			return urgencyPoints
		}
	}
	if raw, ok := ctx[extraction.FieldRaw].(string); ok && extraction.HasUrgency(raw) {
		return urgencyPoints
	}
	return 0
}

func recencyBand(last, now time.Time) int {
	if last.IsZero() {
		return 0
	}
	age := now.Sub(last)
	switch {
	case age <= time.Hour:
		return 15
	case age <= 24*time.Hour:
		return 10
	case age <= 72*time.Hour:
		return 5
	default:
		return 0
	}
}

func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	default:
		return true
	}
}
