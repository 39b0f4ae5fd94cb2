package ai

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/chatdigest/internal/profile"
)

// Supported LLM providers. All of them are reached through an OpenAI-compatible API.
const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderOllama   = "ollama"
)

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Provider    string // deepseek, openai, ollama
	Model       string // gpt-4o-mini
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.6
}

// NewLLMConfigFromProfile creates the LLM config for the profile's provider.
func NewLLMConfigFromProfile(p *profile.Profile) *LLMConfig {
	cfg := &LLMConfig{
		Provider:    p.AILLMProvider,
		Model:       p.AILLMModel,
		MaxTokens:   p.AIMaxTokens,
		Temperature: p.AITemperature,
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}

	switch p.AILLMProvider {
	case ProviderDeepSeek:
		cfg.APIKey = p.AIDeepSeekAPIKey
		cfg.BaseURL = p.AIDeepSeekBaseURL
	case ProviderOpenAI:
		cfg.APIKey = p.AIOpenAIAPIKey
		cfg.BaseURL = p.AIOpenAIBaseURL
	case ProviderOllama:
		cfg.BaseURL = ollamaOpenAIBaseURL(p.AIOllamaBaseURL)
	}
	return cfg
}

// Validate validates the configuration.
func (c *LLMConfig) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderDeepSeek:
		if c.APIKey == "" {
			return errors.Errorf("%s API key is required", c.Provider)
		}
	case ProviderOllama:
		if c.BaseURL == "" {
			return errors.New("ollama base URL is required")
		}
	case "":
		return errors.New("LLM provider is required")
	default:
		return errors.Errorf("unsupported LLM provider: %s", c.Provider)
	}
	if c.Model == "" {
		return errors.New("LLM model is required")
	}
	return nil
}

// ollamaOpenAIBaseURL points at Ollama's OpenAI-compatible endpoint.
func ollamaOpenAIBaseURL(host string) string {
	host = strings.TrimSuffix(host, "/")
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return host + "/v1"
}
