package classifier

import (
	"math"
	"sort"
	"strings"

	"github.com/wolfman30/lead-pipeline/internal/conversation"
)

const (
	// fullConfidenceScore is the accumulated weight that maps to confidence 1.
	fullConfidenceScore = 20.0
	minSignalConfidence = 0.3
)

// Score is the keyword-only classification of a message.
type Score struct {
	Category   string
	Confidence float64
	Totals     map[string]int
	Matched    []string
}

// ScoreText sums the weights of every active keyword contained in the normalized text.
func ScoreText(text string, keywords []Keyword) Score {
	normalized := " " + Normalize(text) + " "
	totals := make(map[string]int)
	var matched []string
	for _, kw := range keywords {
		if !kw.IsActive || kw.Weight <= 0 {
			continue
		}
		needle := Normalize(kw.Keyword)
		if needle == "" || !strings.Contains(normalized, needle) {
			continue
		}
		totals[kw.Category] += kw.Weight
		matched = append(matched, kw.Keyword)
	}

	if len(totals) == 0 {
		return Score{Category: conversation.CategoryUndefined, Totals: totals}
	}

	categories := make([]string, 0, len(totals))
	for c := range totals {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		a, b := categories[i], categories[j]
		if totals[a] != totals[b] {
			return totals[a] > totals[b]
		}
		sa, sb := conversation.IsSpecificCategory(a), conversation.IsSpecificCategory(b)
		if sa != sb {
			return sa
		}
		return a < b
	})

	top := categories[0]
	confidence := math.Min(float64(totals[top])/fullConfidenceScore, 1)
	if confidence < minSignalConfidence {
		confidence = minSignalConfidence
	}
	sort.Strings(matched)
	return Score{Category: top, Confidence: confidence, Totals: totals, Matched: matched}
}
