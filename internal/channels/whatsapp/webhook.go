package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wolfman30/dental-whatsapp-bot/internal/observability/metrics"
	"github.com/wolfman30/dental-whatsapp-bot/pkg/logging"
)

const maxWebhookBody = 1 << 20

// WebhookHandler handles Cloud API webhook verification and inbound messages.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	onMessage   func(msg InboundMessage)
	logger      *logging.Logger
	metrics     *metrics.MessagingMetrics
}

// NewWebhookHandler creates a webhook handler. onMessage receives the first
// message of each delivery and must not block. The signature header is
// enforced only when appSecret is set.
func NewWebhookHandler(verifyToken, appSecret string, onMessage func(InboundMessage), logger *logging.Logger, m *metrics.MessagingMetrics) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		onMessage:   onMessage,
		logger:      logger,
		metrics:     m,
	}
}

// HandleVerification answers the GET subscription challenge from Meta.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	h.logger.Warn("webhook verification rejected", "mode", mode)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleInbound acknowledges the delivery at once, then forwards the first
// message to onMessage.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if h.appSecret != "" && !VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.metrics.ObserveInbound("unknown", "bad_signature")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.metrics.ObserveInbound("unknown", "bad_payload")
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// Meta retries any delivery that is not acknowledged quickly.
	w.WriteHeader(http.StatusOK)

	messages := ParseWebhookPayload(payload)
	if len(messages) == 0 {
		h.metrics.ObserveInbound("status", "ignored")
		return
	}
	kind := "text"
	if messages[0].IsReply() {
		kind = "reply"
	}
	h.metrics.ObserveInbound(kind, "received")
	h.metrics.ObserveWebhookLatency(kind, time.Since(started).Seconds())
	if h.onMessage != nil {
		h.onMessage(messages[0])
	}
}

// VerifySignature verifies the X-Hub-Signature-256 header.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	const prefix = "sha256="
	if len(signature) <= len(prefix) || signature[:len(prefix)] != prefix {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHex))
}
