package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "255712345678" and 255712345678.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Channels  ChannelsConfig  `json:"channels"`
	Providers ProvidersConfig `json:"providers"`
	Gateway   GatewayConfig   `json:"gateway"`
	Store     StoreConfig     `json:"store"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Cron      CronConfig      `json:"cron"`
	mu        sync.RWMutex
}

type AgentConfig struct {
	Model              string  `json:"model" env:"TWIGA_AGENT_MODEL"`
	MaxTokens          int     `json:"max_tokens" env:"TWIGA_AGENT_MAX_TOKENS"`
	Temperature        float64 `json:"temperature" env:"TWIGA_AGENT_TEMPERATURE"`
	MaxAgentIterations int     `json:"max_agent_iterations" env:"TWIGA_AGENT_MAX_AGENT_ITERATIONS"`
	MaxMessageChars    int     `json:"max_message_chars" env:"TWIGA_AGENT_MAX_MESSAGE_CHARS"`
	HistoryLimit       int     `json:"history_limit" env:"TWIGA_AGENT_HISTORY_LIMIT"`
}

type ChannelsConfig struct {
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

type WhatsAppConfig struct {
	Enabled       bool                `json:"enabled" env:"TWIGA_CHANNELS_WHATSAPP_ENABLED"`
	APIVersion    string              `json:"api_version" env:"TWIGA_CHANNELS_WHATSAPP_API_VERSION"`
	PhoneNumberID string              `json:"phone_number_id" env:"TWIGA_CHANNELS_WHATSAPP_PHONE_NUMBER_ID"`
	AccessToken   string              `json:"access_token" env:"TWIGA_CHANNELS_WHATSAPP_ACCESS_TOKEN"`
	VerifyToken   string              `json:"verify_token" env:"TWIGA_CHANNELS_WHATSAPP_VERIFY_TOKEN"`
	AppSecret     string              `json:"app_secret" env:"TWIGA_CHANNELS_WHATSAPP_APP_SECRET"`
	WebhookPath   string              `json:"webhook_path" env:"TWIGA_CHANNELS_WHATSAPP_WEBHOOK_PATH"`
	AllowFrom     FlexibleStringSlice `json:"allow_from" env:"TWIGA_CHANNELS_WHATSAPP_ALLOW_FROM"`
}

type ProvidersConfig struct {
	OpenAI    OpenAIProviderConfig    `json:"openai"`
	Anthropic AnthropicProviderConfig `json:"anthropic"`
}

type OpenAIProviderConfig struct {
	APIKey  string `json:"api_key" env:"TWIGA_PROVIDERS_OPENAI_API_KEY"`
	APIBase string `json:"api_base" env:"TWIGA_PROVIDERS_OPENAI_API_BASE"`
}

type AnthropicProviderConfig struct {
	APIKey        string `json:"api_key" env:"TWIGA_PROVIDERS_ANTHROPIC_API_KEY"`
	FallbackModel string `json:"fallback_model,omitempty" env:"TWIGA_PROVIDERS_ANTHROPIC_FALLBACK_MODEL"`
}

type GatewayConfig struct {
	Host string `json:"host" env:"TWIGA_GATEWAY_HOST"`
	Port int    `json:"port" env:"TWIGA_GATEWAY_PORT"`
}

type StoreConfig struct {
	Path string `json:"path" env:"TWIGA_STORE_PATH"`
}

type KnowledgeConfig struct {
	Path           string `json:"path" env:"TWIGA_KNOWLEDGE_PATH"`
	EmbeddingModel string `json:"embedding_model" env:"TWIGA_KNOWLEDGE_EMBEDDING_MODEL"`
}

type RateLimitConfig struct {
	Enabled           bool `json:"enabled" env:"TWIGA_RATE_LIMIT_ENABLED"`
	DailyMessageLimit int  `json:"daily_message_limit" env:"TWIGA_RATE_LIMIT_DAILY_MESSAGE_LIMIT"`
}

type CronConfig struct {
	Enabled         bool   `json:"enabled" env:"TWIGA_CRON_ENABLED"`
	MaintenanceExpr string `json:"maintenance_expr" env:"TWIGA_CRON_MAINTENANCE_EXPR"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Model:              "meta-llama/Llama-4-Scout-17B-16E-Instruct",
			MaxTokens:          2048,
			Temperature:        0.7,
			MaxAgentIterations: 5,
			MaxMessageChars:    4000,
			HistoryLimit:       10,
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				Enabled:     false,
				APIVersion:  "v21.0",
				WebhookPath: "/webhooks/whatsapp",
				AllowFrom:   FlexibleStringSlice{},
			},
		},
		Providers: ProvidersConfig{
			OpenAI:    OpenAIProviderConfig{APIBase: "https://api.together.xyz/v1"},
			Anthropic: AnthropicProviderConfig{},
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Store: StoreConfig{
			Path: "~/.twiga/twiga.db",
		},
		Knowledge: KnowledgeConfig{
			Path:           "~/.twiga/knowledge",
			EmbeddingModel: "text-embedding-3-small",
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			DailyMessageLimit: 100,
		},
		Cron: CronConfig{
			Enabled:         true,
			MaintenanceExpr: "0 0 * * *",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) StorePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Store.Path)
}

func (c *Config) KnowledgePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Knowledge.Path)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
