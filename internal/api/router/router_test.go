package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/lead-pipeline/internal/buffer"
	"github.com/wolfman30/lead-pipeline/internal/conversation"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

const testSecret = "operator-secret"

func newTestRouter(t *testing.T, ready func(context.Context) error) http.Handler {
	t.Helper()
	logger := logging.NewWithWriter(io.Discard, "error")
	convs := conversation.NewMemoryStore()
	convs.Put(conversation.Conversation{ID: "conv-1", WhatsAppNumber: "5511999990000", Status: conversation.StatusActive})
	service := conversation.NewService(convs, logger)
	scheduler := buffer.NewScheduler(buffer.NewMemoryStore(), buffer.NewMemoryQueue(10), logger)

	return New(&Config{
		Logger:         logger,
		Buffers:        buffer.NewHandler(scheduler, service, nil, nil, logger),
		Conversations:  conversation.NewHandler(service, logger),
		OperatorSecret: testSecret,
		WebhookToken:   "hook",
		Ready:          ready,
	})
}

func operatorToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "op-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestRouterHealthEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(t, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil || resp["status"] != "ok" {
		t.Fatalf("unexpected health body %v %v", resp, err)
	}
}

func TestRouterReadyReportsStoreFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter(t, func(context.Context) error { return errors.New("db down") }).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestRouterWebhookRequiresToken(t *testing.T) {
	router := newTestRouter(t, nil)
	body := `{"conversationId":"conv-1","message":"oi"}`

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body)))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	req.Header.Set("apikey", "hook")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRouterOperatorRoutesRequireJWT(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/conversations/conv-1", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/conversations/conv-1", nil)
	req.Header.Set("Authorization", "Bearer "+operatorToken(t))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"id":"conv-1"`) {
		t.Fatalf("expected conversation, got %d %s", rr.Code, rr.Body.String())
	}
}
