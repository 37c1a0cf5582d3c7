package whatsapp

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "526640000000", "phone_number_id": "PHONE"},
        "contacts": [{"wa_id": "5216641234567", "profile": {"name": "Ana Lopez"}}],
        "messages": [
          {"from": "5216641234567", "id": "wamid.A", "timestamp": "1791990000", "type": "interactive",
           "context": {"from": "526640000000", "id": "wamid.PROMPT"},
           "interactive": {"type": "list_reply", "list_reply": {"id": "day:eyJkIjoiMjAyNi0xMC0xNSJ9", "title": "Jueves 15"}}},
          {"from": "5216641234567", "id": "wamid.B", "timestamp": "1791990001", "type": "text", "text": {"body": "hola"}}
        ]
      }
    }]
  }]
}`

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(samplePayload)
	valid := sign("secret", body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", "secret", body, valid, true},
		{"empty signature", "secret", body, "", false},
		{"empty secret", "", body, valid, false},
		{"missing prefix", "secret", body, valid[len("sha256="):], false},
		{"tampered body", "secret", []byte(`{}`), valid, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.secret, tt.body, tt.signature); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleVerification(t *testing.T) {
	h := NewWebhookHandler("verify-me", "", nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=CHALLENGE_123", nil)
	w := httptest.NewRecorder()
	h.HandleVerification(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CHALLENGE_123", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=X", nil)
	w = httptest.NewRecorder()
	h.HandleVerification(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandleInboundForwardsFirstMessage(t *testing.T) {
	var got []InboundMessage
	h := NewWebhookHandler("verify-me", "secret", func(m InboundMessage) { got = append(got, m) }, nil, nil)

	body := []byte(samplePayload)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sign("secret", body))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, got, 1)
	msg := got[0]
	assert.Equal(t, "wamid.A", msg.ID)
	assert.Equal(t, "5216641234567", msg.From)
	assert.Equal(t, "Ana Lopez", msg.ProfileName)
	assert.True(t, msg.IsReply())
	assert.Equal(t, "wamid.PROMPT", msg.ContextID)
	assert.Equal(t, "Jueves 15", msg.ReplyTitle)
}

func TestHandleInboundRejectsBadSignature(t *testing.T) {
	called := false
	h := NewWebhookHandler("verify-me", "secret", func(InboundMessage) { called = true }, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(samplePayload)))
	req.Header.Set("X-Hub-Signature-256", "sha256=00")
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, called)
}

func TestHandleInboundIgnoresStatusOnlyDeliveries(t *testing.T) {
	called := false
	h := NewWebhookHandler("verify-me", "", func(InboundMessage) { called = true }, nil, nil)

	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.X","status":"read"}]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, called)
}
