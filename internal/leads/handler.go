package leads

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

// Handler exposes lead scoring over HTTP.
type Handler struct {
	scorer *Scorer
	logger *logging.Logger
}

func NewHandler(scorer *Scorer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{scorer: scorer, logger: logger}
}

// Score handles POST /conversations/{id}/score.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing conversation id", http.StatusBadRequest)
		return
	}

	score, err := h.scorer.Score(r.Context(), id)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to score lead", "conversation_id", id, "error", err)
		http.Error(w, "failed to score lead", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(score)
}
