// Package messaging delivers outbound replies to the WhatsApp channel.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

var whatsappTracer = otel.Tracer("lead-pipeline/messaging/whatsapp")

// MaxQuickReplies is the channel's button limit.
const MaxQuickReplies = 3

// OutboundMessage is one reply to a customer.
type OutboundMessage struct {
	ConversationID string
	To             string
	Text           string
	QuickReplies   []string
}

// Delivery is the channel acknowledgement.
type Delivery struct {
	ProviderMessageID string
	Status            string
}

// Sender delivers outbound messages.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) (Delivery, error)
}

// WhatsAppSender posts messages to a WhatsApp HTTP gateway instance.
type WhatsAppSender struct {
	baseURL    string
	apiKey     string
	instance   string
	httpClient *http.Client
	attempts   int
	backoff    func(attempt int) time.Duration
	logger     *logging.Logger
}

var _ Sender = (*WhatsAppSender)(nil)

func NewWhatsAppSender(baseURL, apiKey, instance string, logger *logging.Logger) *WhatsAppSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppSender{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		instance:   instance,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		attempts:   3,
		backoff: func(int) time.Duration {
			return time.Duration(200+rand.Intn(300)) * time.Millisecond
		},
		logger: logger,
	}
}

type textPayload struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type buttonPayload struct {
	Number      string   `json:"number"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Buttons     []button `json:"buttons"`
}

type button struct {
	Type        string `json:"type"`
	DisplayText string `json:"displayText"`
	ID          string `json:"id"`
}

// Send dispatches a message, retrying transport errors and 5xx responses.
func (s *WhatsAppSender) Send(ctx context.Context, msg OutboundMessage) (Delivery, error) {
	if s.baseURL == "" || s.instance == "" {
		return Delivery{}, errors.New("messaging: whatsapp gateway not configured")
	}
	msg.To = NormalizeWhatsAppNumber(msg.To)
	if msg.To == "" {
		return Delivery{}, errors.New("messaging: to required")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return Delivery{}, errors.New("messaging: text required")
	}

	ctx, span := whatsappTracer.Start(ctx, "messaging.whatsapp.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", msg.ConversationID),
		attribute.Int("messaging.quick_replies", len(msg.QuickReplies)),
	)

	endpoint, payload := s.request(msg)
	body, err := json.Marshal(payload)
	if err != nil {
		return Delivery{}, fmt.Errorf("messaging: marshal payload: %w", err)
	}

	var lastErr error
retry:
	for attempt := 1; attempt <= s.attempts; attempt++ {
		delivery, retryable, err := s.post(ctx, endpoint, body)
		if err == nil {
			s.logger.Info("whatsapp message sent",
				"conversation_id", msg.ConversationID,
				"provider_message_id", delivery.ProviderMessageID,
			)
			return delivery, nil
		}
		lastErr = err
		if !retryable || attempt == s.attempts {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			break retry
		case <-time.After(s.backoff(attempt)):
		}
	}

	span.RecordError(lastErr)
	s.logger.Error("failed to send whatsapp message", "conversation_id", msg.ConversationID, "error", lastErr)
	return Delivery{}, lastErr
}

func (s *WhatsAppSender) request(msg OutboundMessage) (string, any) {
	if len(msg.QuickReplies) == 0 {
		return fmt.Sprintf("%s/message/sendText/%s", s.baseURL, s.instance), textPayload{Number: msg.To, Text: msg.Text}
	}
	replies := msg.QuickReplies
	if len(replies) > MaxQuickReplies {
		replies = replies[:MaxQuickReplies]
	}
	buttons := make([]button, 0, len(replies))
	for i, r := range replies {
		buttons = append(buttons, button{Type: "reply", DisplayText: r, ID: fmt.Sprintf("qr_%d", i+1)})
	}
	return fmt.Sprintf("%s/message/sendButtons/%s", s.baseURL, s.instance), buttonPayload{
		Number:      msg.To,
		Title:       "",
		Description: msg.Text,
		Buttons:     buttons,
	}
}

func (s *WhatsAppSender) post(ctx context.Context, endpoint string, body []byte) (Delivery, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Delivery{}, false, fmt.Errorf("messaging: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Delivery{}, true, fmt.Errorf("messaging: whatsapp request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("messaging: whatsapp send failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		return Delivery{}, resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests, err
	}

	var parsed struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
		Status string `json:"status"`
	}
	_ = json.Unmarshal(raw, &parsed)
	return Delivery{ProviderMessageID: parsed.Key.ID, Status: parsed.Status}, false, nil
}

// LogSender only logs messages. It is used when no gateway is configured.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg OutboundMessage) (Delivery, error) {
	s.logger.Info("whatsapp gateway disabled, message not sent",
		"conversation_id", msg.ConversationID,
		"to", msg.To,
		"quick_replies", len(msg.QuickReplies),
	)
	return Delivery{Status: "logged"}, nil
}
