package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/chatdigest/internal/profile"
)

func TestNewLLMConfigFromProfile(t *testing.T) {
	tests := []struct {
		name     string
		profile  *profile.Profile
		expected LLMConfig
	}{
		{
			name: "openai",
			profile: &profile.Profile{
				AILLMProvider:   "openai",
				AILLMModel:      "gpt-4o-mini",
				AIOpenAIAPIKey:  "sk-openai",
				AIOpenAIBaseURL: "https://api.openai.com/v1",
				AIMaxTokens:     1024,
				AITemperature:   0.2,
			},
			expected: LLMConfig{Provider: "openai", Model: "gpt-4o-mini", APIKey: "sk-openai", BaseURL: "https://api.openai.com/v1", MaxTokens: 1024, Temperature: 0.2},
		},
		{
			name: "deepseek",
			profile: &profile.Profile{
				AILLMProvider:     "deepseek",
				AILLMModel:        "deepseek-chat",
				AIOpenAIAPIKey:    "sk-openai",
				AIDeepSeekAPIKey:  "sk-deepseek",
				AIDeepSeekBaseURL: "https://api.deepseek.com",
			},
			expected: LLMConfig{Provider: "deepseek", Model: "deepseek-chat", APIKey: "sk-deepseek", BaseURL: "https://api.deepseek.com", MaxTokens: 2048},
		},
		{
			name: "ollama",
			profile: &profile.Profile{
				AILLMProvider:   "ollama",
				AILLMModel:      "llama3",
				AIOllamaBaseURL: "http://localhost:11434/",
			},
			expected: LLMConfig{Provider: "ollama", Model: "llama3", BaseURL: "http://localhost:11434/v1", MaxTokens: 2048},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, *NewLLMConfigFromProfile(tt.profile))
		})
	}
}

func TestLLMConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LLMConfig
		wantErr bool
	}{
		{"openai ok", LLMConfig{Provider: "openai", Model: "m", APIKey: "k"}, false},
		{"openai without key", LLMConfig{Provider: "openai", Model: "m"}, true},
		{"deepseek without key", LLMConfig{Provider: "deepseek", Model: "m"}, true},
		{"ollama ok", LLMConfig{Provider: "ollama", Model: "m", BaseURL: "http://localhost:11434/v1"}, false},
		{"ollama without url", LLMConfig{Provider: "ollama", Model: "m"}, true},
		{"missing model", LLMConfig{Provider: "openai", APIKey: "k"}, true},
		{"missing provider", LLMConfig{}, true},
		{"unsupported provider", LLMConfig{Provider: "bard", Model: "m", APIKey: "k"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOllamaOpenAIBaseURL(t *testing.T) {
	assert.Equal(t, "http://host:11434/v1", ollamaOpenAIBaseURL("http://host:11434"))
	assert.Equal(t, "http://host:11434/v1", ollamaOpenAIBaseURL("http://host:11434/v1/"))
	assert.Equal(t, "", ollamaOpenAIBaseURL(""))
}
