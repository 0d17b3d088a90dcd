package leads

import "errors"

var (
	// ErrConversationRequired is returned when no conversation id is given.
	ErrConversationRequired = errors.New("leads: conversation id required")

	// ErrModelUnavailable is returned when no lead_scorer model is configured.
	ErrModelUnavailable = errors.New("leads: lead scorer model unavailable")
)
