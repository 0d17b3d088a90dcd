package assignment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

type Handler struct {
	validator *Validator
	logger    *logging.Logger
}

func NewHandler(validator *Validator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{validator: validator, logger: logger}
}

// Validate handles GET /conversations/{id}/assignment.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "missing conversation id", http.StatusBadRequest)
		return
	}
	report, err := h.validator.Validate(r.Context(), id)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to validate assignment", "conversation_id", id, "error", err)
		http.Error(w, "failed to validate assignment", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
