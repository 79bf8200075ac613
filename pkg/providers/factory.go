package providers

import (
	"fmt"

	"github.com/Tanzania-AI-Community/twiga/pkg/config"
	"github.com/Tanzania-AI-Community/twiga/pkg/logger"
)

// CreateProvider builds the provider stack from configuration. The
// OpenAI-compatible endpoint is always the primary; when an Anthropic
// key is configured, it becomes a fallback tier.
func CreateProvider(cfg *config.Config) (LLMProvider, error) {
	openaiCfg := cfg.Providers.OpenAI
	anthropicCfg := cfg.Providers.Anthropic

	if openaiCfg.APIKey == "" && anthropicCfg.APIKey == "" {
		return nil, fmt.Errorf("no provider API key configured (set TWIGA_PROVIDERS_OPENAI_API_KEY or TWIGA_PROVIDERS_ANTHROPIC_API_KEY)")
	}

	if openaiCfg.APIKey == "" {
		logger.InfoC("provider", "Using Anthropic as sole provider")
		return NewClaudeProvider(anthropicCfg.APIKey, cfg.Agent.Model), nil
	}

	primary := NewOpenAIProvider(openaiCfg.APIKey, openaiCfg.APIBase, cfg.Agent.Model)
	if anthropicCfg.APIKey == "" {
		return primary, nil
	}

	fallback := NewClaudeProvider(anthropicCfg.APIKey, anthropicCfg.FallbackModel)
	logger.InfoCF("provider", "Provider fallback enabled", map[string]interface{}{
		"primary":  cfg.Agent.Model,
		"fallback": fallback.DefaultModel(),
	})
	return NewFallbackProvider(primary, fallback, cfg.Agent.Model, fallback.DefaultModel()), nil
}
