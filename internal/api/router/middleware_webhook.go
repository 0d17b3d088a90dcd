package router

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const webhookTokenHeader = "apikey"

// requireWebhookToken checks the shared token the WhatsApp gateway sends with every webhook.
// When expected is empty, the middleware is a no-op.
func requireWebhookToken(expected string) func(http.Handler) http.Handler {
	expected = strings.TrimSpace(expected)
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(r.Header.Get(webhookTokenHeader))
			if token == "" {
				token = strings.TrimSpace(r.URL.Query().Get("token"))
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				http.Error(w, "invalid webhook token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
