package conversation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

// Handler exposes conversation actions over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Routes mounts the handler on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/conversations/{id}", h.Get)
	r.Get("/conversations/{id}/history", h.History)
	r.Post("/conversations/{id}/assume", h.action(ActionAssume))
	r.Post("/conversations/{id}/return-to-bot", h.action(ActionReturnBot))
	r.Post("/conversations/{id}/transfer", h.action(ActionTransfer))
	r.Post("/conversations/{id}/qualify", h.action(ActionQualify))
	r.Post("/conversations/{id}/close", h.action(ActionClose))
	r.Put("/conversations/{id}/category", h.OverrideCategory)
	r.Put("/conversations/{id}/agent", h.AssignAgent)
}

type actionRequest struct {
	Reason string `json:"reason"`
}

type categoryRequest struct {
	Category string `json:"category"`
}

type agentRequest struct {
	AgentID string `json:"agent_id"`
}

// Get handles GET /conversations/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	conv, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

// History handles GET /conversations/{id}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if history == nil {
		history = []StatusChange{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (h *Handler) action(action Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req actionRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "Invalid request body", http.StatusBadRequest)
				return
			}
		}
		if action == ActionClose && req.Reason == "" {
			http.Error(w, "close reason required", http.StatusBadRequest)
			return
		}
		conv, err := h.service.Apply(r.Context(), chi.URLParam(r, "id"), action, req.Reason)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, conv)
	}
}

// OverrideCategory handles PUT /conversations/{id}/category.
func (h *Handler) OverrideCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Category == "" {
		http.Error(w, "category required", http.StatusBadRequest)
		return
	}
	conv, err := h.service.OverrideCategory(r.Context(), chi.URLParam(r, "id"), req.Category)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

// AssignAgent handles PUT /conversations/{id}/agent.
func (h *Handler) AssignAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	conv, err := h.service.AssignAgent(r.Context(), chi.URLParam(r, "id"), req.AgentID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrStatusConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("conversation request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
