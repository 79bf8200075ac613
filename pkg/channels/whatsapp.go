package channels

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Tanzania-AI-Community/twiga/pkg/bus"
	"github.com/Tanzania-AI-Community/twiga/pkg/config"
	"github.com/Tanzania-AI-Community/twiga/pkg/logger"
	"github.com/Tanzania-AI-Community/twiga/pkg/utils"
)

const graphAPIBase = "https://graph.facebook.com"

// WhatsAppChannel serves the Meta Cloud API webhook and sends replies
// through the Graph API. Inbound flow is push: Meta POSTs message
// events to the webhook path.
type WhatsAppChannel struct {
	*BaseChannel
	cfg        config.WhatsAppConfig
	apiBase    string
	httpClient *http.Client
	mux        *http.ServeMux
	running    bool
}

func NewWhatsAppChannel(cfg config.WhatsAppConfig, messageBus *bus.MessageBus) (*WhatsAppChannel, error) {
	if cfg.PhoneNumberID == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("whatsapp channel requires phone_number_id and access_token")
	}
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhooks"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v22.0"
	}

	c := &WhatsAppChannel{
		BaseChannel: NewBaseChannel("whatsapp", messageBus, cfg.AllowFrom),
		cfg:         cfg,
		apiBase:     graphAPIBase,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		mux:         http.NewServeMux(),
	}
	c.mux.HandleFunc(cfg.WebhookPath, c.handleWebhook)
	return c, nil
}

// Handler returns the webhook handler for mounting on the gateway's
// HTTP server.
func (c *WhatsAppChannel) Handler() http.Handler {
	return c.mux
}

func (c *WhatsAppChannel) Start(_ context.Context) error {
	c.running = true
	logger.InfoCF("whatsapp", "WhatsApp channel started", map[string]interface{}{
		"webhook_path": c.cfg.WebhookPath,
		"api_version":  c.cfg.APIVersion,
	})
	return nil
}

func (c *WhatsAppChannel) Stop(_ context.Context) error {
	c.running = false
	return nil
}

func (c *WhatsAppChannel) IsRunning() bool {
	return c.running
}

func (c *WhatsAppChannel) handleWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		c.handleVerification(w, r)
	case http.MethodPost:
		c.handleEvent(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleVerification answers Meta's webhook subscription handshake.
func (c *WhatsAppChannel) handleVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == c.cfg.VerifyToken {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, q.Get("hub.challenge"))
		return
	}
	logger.WarnC("whatsapp", "Webhook verification failed")
	w.WriteHeader(http.StatusForbidden)
}

func (c *WhatsAppChannel) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !c.verifySignature(r.Header.Get("X-Hub-Signature-256"), body) {
		logger.WarnC("whatsapp", "Invalid webhook signature, rejecting event")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	// Always 200 past this point: Meta retries non-2xx responses and
	// a poison event would be re-delivered forever.
	w.WriteHeader(http.StatusOK)

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		logger.WarnCF("whatsapp", "Unparseable webhook payload", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	c.dispatchEvent(event)
}

// verifySignature checks the X-Hub-Signature-256 HMAC when an app
// secret is configured.
func (c *WhatsAppChannel) verifySignature(header string, body []byte) bool {
	if c.cfg.AppSecret == "" {
		return true
	}
	signature, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.cfg.AppSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func (c *WhatsAppChannel) dispatchEvent(event webhookEvent) {
	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			names := make(map[string]string, len(change.Value.Contacts))
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" || msg.Text == nil {
					logger.DebugCF("whatsapp", "Ignoring non-text message", map[string]interface{}{
						"type": msg.Type,
					})
					continue
				}
				preview := utils.Truncate(msg.Text.Body, 80)
				logger.InfoCF("whatsapp", fmt.Sprintf("Inbound message: %s", preview), map[string]interface{}{
					"from": msg.From,
				})
				c.HandleMessage(msg.From, msg.From, names[msg.From], msg.Text.Body, msg.ID)
			}
		}
	}
}

// Send delivers a text message through the Graph API.
func (c *WhatsAppChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                msg.ChatID,
		"type":              "text",
		"text":              map[string]string{"body": msg.Content},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode send payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.apiBase, c.cfg.APIVersion, c.cfg.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("send message: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Webhook payload shapes, trimmed to the fields in use.
type webhookEvent struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID      string          `json:"id"`
	Changes []webhookChange `json:"changes"`
}

type webhookChange struct {
	Field string       `json:"field"`
	Value webhookValue `json:"value"`
}

type webhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Contacts         []webhookContact `json:"contacts"`
	Messages         []webhookMessage `json:"messages"`
}

type webhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type webhookMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
}
