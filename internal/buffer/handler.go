package buffer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/internal/observability/metrics"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

// ConversationResolver maps an inbound delivery to a conversation id.
type ConversationResolver interface {
	Resolve(ctx context.Context, conversationID, whatsappNumber, customerName string) (string, error)
}

// RunLookup fetches recorded runs.
type RunLookup interface {
	Get(ctx context.Context, runID string) (*Run, error)
}

// InboundRequest is the webhook payload delivered by the messaging channel.
type InboundRequest struct {
	ConversationID string `json:"conversationId"`
	WhatsAppNumber string `json:"whatsappNumber"`
	Message        string `json:"message"`
	CustomerName   string `json:"customerName,omitempty"`
}

// Handler accepts inbound webhooks and defers all work to the Scheduler.
type Handler struct {
	scheduler *Scheduler
	resolver  ConversationResolver
	runs      RunLookup
	metrics   *metrics.PipelineMetrics
	logger    *logging.Logger
}

// NewHandler creates a webhook handler. runs may be nil.
func NewHandler(scheduler *Scheduler, resolver ConversationResolver, runs RunLookup, m *metrics.PipelineMetrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		scheduler: scheduler,
		resolver:  resolver,
		runs:      runs,
		metrics:   m,
		logger:    logger,
	}
}

// Inbound handles POST /webhooks/whatsapp.
func (h *Handler) Inbound(w http.ResponseWriter, r *http.Request) {
	var req InboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.ObserveInbound("invalid")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	conversationID, err := h.resolver.Resolve(r.Context(), req.ConversationID, req.WhatsAppNumber, req.CustomerName)
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			h.metrics.ObserveInbound("unknown_conversation")
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		h.metrics.ObserveInbound("invalid")
		h.logger.Warn("failed to resolve inbound conversation", "error", err)
		http.Error(w, "conversation id or whatsapp number required", http.StatusBadRequest)
		return
	}

	res, err := h.scheduler.Append(r.Context(), conversationID, req.Message)
	if err != nil {
		if errors.Is(err, ErrEmptyFragment) {
			h.metrics.ObserveInbound("empty")
			http.Error(w, "message required", http.StatusBadRequest)
			return
		}
		h.metrics.ObserveInbound("error")
		h.logger.Error("failed to buffer inbound message", "conversation_id", conversationID, "error", err)
		http.Error(w, "failed to buffer message", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveInbound("accepted")
	h.writeJSON(w, http.StatusAccepted, res)
}

// GetRun handles GET /buffers/runs/{runID}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		http.Error(w, "run ledger disabled", http.StatusNotFound)
		return
	}
	run, err := h.runs.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load run", "error", err)
		http.Error(w, "failed to load run", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
