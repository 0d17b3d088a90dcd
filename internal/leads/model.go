package leads

import "time"

// Temperature bands a lead score.
type Temperature string

const (
	TemperatureCold Temperature = "cold"
	TemperatureWarm Temperature = "warm"
	TemperatureHot  Temperature = "hot"
)

// Valid reports whether t is one of the known bands.
func (t Temperature) Valid() bool {
	switch t {
	case TemperatureCold, TemperatureWarm, TemperatureHot:
		return true
	}
	return false
}

// Method records how a score was produced.
type Method string

const (
	MethodHeuristic Method = "heuristic"
	MethodModel     Method = "model"
)

const (
	maxScore = 100
	hotAt    = 70
	warmAt   = 40
)

// TemperatureFor bands a score: 70 and above is hot, 40 and above is warm.
func TemperatureFor(score int) Temperature {
	switch {
	case score >= hotAt:
		return TemperatureHot
	case score >= warmAt:
		return TemperatureWarm
	default:
		return TemperatureCold
	}
}

// ClampScore bounds a score to [0,100].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}

// Breakdown is the per band contribution of a heuristic score.
type Breakdown struct {
	Messages     int `json:"messages"`
	Completeness int `json:"completeness"`
	Category     int `json:"category"`
	Urgency      int `json:"urgency"`
	Recency      int `json:"recency"`
}

// Total sums the bands.
func (b Breakdown) Total() int {
	return b.Messages + b.Completeness + b.Category + b.Urgency + b.Recency
}

// Score is the outcome of scoring one conversation.
type Score struct {
	ConversationID string      `json:"conversation_id"`
	Score          int         `json:"score"`
	Temperature    Temperature `json:"temperature"`
	Method         Method      `json:"method"`
	Reasoning      string      `json:"reasoning,omitempty"`
	Breakdown      *Breakdown  `json:"breakdown,omitempty"`
	ScoredAt       time.Time   `json:"scored_at"`
	// Skipped is set when the lead was already distributed and left untouched.
	Skipped bool `json:"skipped,omitempty"`
}
