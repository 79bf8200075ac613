package channels

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tanzania-AI-Community/twiga/pkg/bus"
	"github.com/Tanzania-AI-Community/twiga/pkg/config"
)

const sampleEvent = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "entry-1",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"contacts": [{"wa_id": "255700000001", "profile": {"name": "Asha"}}],
				"messages": [{
					"id": "wamid.1",
					"from": "255700000001",
					"type": "text",
					"text": {"body": "Hello Twiga"}
				}]
			}
		}]
	}]
}`

func newTestChannel(t *testing.T, cfg config.WhatsAppConfig) (*WhatsAppChannel, *bus.MessageBus) {
	t.Helper()
	if cfg.PhoneNumberID == "" {
		cfg.PhoneNumberID = "12345"
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = "token"
	}
	messageBus := bus.NewMessageBus()
	ch, err := NewWhatsAppChannel(cfg, messageBus)
	if err != nil {
		t.Fatalf("NewWhatsAppChannel failed: %v", err)
	}
	return ch, messageBus
}

func signBody(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func receiveInbound(t *testing.T, messageBus *bus.MessageBus) (bus.InboundMessage, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return messageBus.ConsumeInbound(ctx)
}

func TestWebhookVerificationHandshake(t *testing.T) {
	ch, _ := newTestChannel(t, config.WhatsAppConfig{VerifyToken: "secret-token"})

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	ch.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "12345" {
		t.Errorf("body = %q, want the challenge echoed back", body)
	}
}

func TestWebhookVerificationRejectsBadToken(t *testing.T) {
	ch, _ := newTestChannel(t, config.WhatsAppConfig{VerifyToken: "secret-token"})

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	rec := httptest.NewRecorder()
	ch.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestWebhookEventPublishesInbound(t *testing.T) {
	ch, messageBus := newTestChannel(t, config.WhatsAppConfig{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(sampleEvent))
	rec := httptest.NewRecorder()
	ch.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	msg, ok := receiveInbound(t, messageBus)
	if !ok {
		t.Fatal("no inbound message published")
	}
	if msg.Channel != "whatsapp" {
		t.Errorf("channel = %q", msg.Channel)
	}
	if msg.SenderID != "255700000001" || msg.SenderName != "Asha" {
		t.Errorf("sender = %q/%q", msg.SenderID, msg.SenderName)
	}
	if msg.Content != "Hello Twiga" {
		t.Errorf("content = %q", msg.Content)
	}
}

func TestWebhookSignatureEnforced(t *testing.T) {
	ch, messageBus := newTestChannel(t, config.WhatsAppConfig{AppSecret: "app-secret"})

	// Bad signature is rejected.
	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(sampleEvent))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	ch.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("bad signature status = %d, want 403", rec.Code)
	}
	if _, ok := receiveInbound(t, messageBus); ok {
		t.Fatal("rejected event still published a message")
	}

	// Correct signature is accepted.
	req = httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(sampleEvent))
	req.Header.Set("X-Hub-Signature-256", signBody("app-secret", sampleEvent))
	rec = httptest.NewRecorder()
	ch.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("good signature status = %d, want 200", rec.Code)
	}
	if _, ok := receiveInbound(t, messageBus); !ok {
		t.Fatal("accepted event did not publish a message")
	}
}

func TestWebhookIgnoresNonTextMessages(t *testing.T) {
	ch, messageBus := newTestChannel(t, config.WhatsAppConfig{})

	event := strings.Replace(sampleEvent, `"type": "text",`, `"type": "image",`, 1)
	event = strings.Replace(event, `"text": {"body": "Hello Twiga"}`, `"text": null`, 1)
	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(event))
	rec := httptest.NewRecorder()
	ch.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (acknowledged but ignored)", rec.Code)
	}
	if _, ok := receiveInbound(t, messageBus); ok {
		t.Error("non-text message was published")
	}
}

func TestAllowlistFiltersSenders(t *testing.T) {
	ch, messageBus := newTestChannel(t, config.WhatsAppConfig{
		AllowFrom: []string{"255799999999"},
	})

	req := httptest.NewRequest(http.MethodPost, "/webhooks", strings.NewReader(sampleEvent))
	rec := httptest.NewRecorder()
	ch.Handler().ServeHTTP(rec, req)

	if _, ok := receiveInbound(t, messageBus); ok {
		t.Error("message from non-allowlisted sender was published")
	}
}

func TestSendPostsToGraphAPI(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"messages":[{"id":"wamid.out"}]}`)
	}))
	defer server.Close()

	ch, _ := newTestChannel(t, config.WhatsAppConfig{
		APIVersion:    "v22.0",
		PhoneNumberID: "12345",
		AccessToken:   "token",
	})
	ch.httpClient = server.Client()
	ch.apiBase = server.URL

	err := ch.Send(context.Background(), bus.OutboundMessage{
		Channel: "whatsapp",
		ChatID:  "255700000001",
		Content: "Habari!",
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gotPath != "/v22.0/12345/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer token" {
		t.Errorf("auth = %q", gotAuth)
	}
	if !strings.Contains(gotBody, `"to":"255700000001"`) || !strings.Contains(gotBody, "Habari!") {
		t.Errorf("body = %q", gotBody)
	}
}
