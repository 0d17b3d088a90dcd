package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/lead-pipeline/internal/assignment"
	"github.com/wolfman30/lead-pipeline/internal/buffer"
	"github.com/wolfman30/lead-pipeline/internal/conversation"
	httpmiddleware "github.com/wolfman30/lead-pipeline/internal/http/middleware"
	"github.com/wolfman30/lead-pipeline/internal/leads"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes unmounted.
type Config struct {
	Logger         *logging.Logger
	Buffers        *buffer.Handler
	Conversations  *conversation.Handler
	Leads          *leads.Handler
	Assignment     *assignment.Handler
	MetricsHandler http.Handler

	OperatorSecret   string
	WebhookToken     string
	WebhookRateLimit float64
	WebhookBurst     int

	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error
}

// New creates the chi router with every route configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", readyHandler(cfg.Ready))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Buffers != nil {
		r.Group(func(webhooks chi.Router) {
			webhooks.Use(requireWebhookToken(cfg.WebhookToken))
			if cfg.WebhookRateLimit > 0 {
				webhooks.Use(httpmiddleware.RateLimit(cfg.WebhookRateLimit, cfg.WebhookBurst))
			}
			webhooks.Post("/webhooks/whatsapp", cfg.Buffers.Inbound)
		})
	}

	r.Group(func(operator chi.Router) {
		operator.Use(httpmiddleware.OperatorJWT(cfg.OperatorSecret))
		if cfg.Buffers != nil {
			operator.Get("/buffers/runs/{runID}", cfg.Buffers.GetRun)
		}
		if cfg.Conversations != nil {
			cfg.Conversations.Routes(operator)
		}
		if cfg.Leads != nil {
			operator.Post("/conversations/{id}/score", cfg.Leads.Score)
		}
		if cfg.Assignment != nil {
			operator.Get("/conversations/{id}/assignment", cfg.Assignment.Validate)
		}
	})

	return r
}

func readyHandler(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
