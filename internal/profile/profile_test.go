package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProfileDefaults checks the values FromEnv falls back to.
func TestProfileDefaults(t *testing.T) {
	clearEnvVars(t)

	profile := &Profile{}
	profile.FromEnv()

	tests := []struct {
		name     string
		expected string
		actual   string
	}{
		{"LineAPIBaseURL default", DefaultLineAPIBaseURL, profile.LineAPIBaseURL},
		{"SystemInstruction default", DefaultSystemInstruction, profile.SystemInstruction},
		{"UnknownUserName default", DefaultUnknownUserName, profile.UnknownUserName},
		{"InsufficientHistoryReply default", DefaultInsufficientHistory, profile.InsufficientHistoryReply},
		{"FailureReply default", DefaultFailureReply, profile.FailureReply},
		{"GreetingTemplate default", DefaultGreetingTemplate, profile.GreetingTemplate},
		{"AILLMProvider default", "openai", profile.AILLMProvider},
		{"AIOpenAIBaseURL default", "https://api.openai.com/v1", profile.AIOpenAIBaseURL},
		{"AIDeepSeekBaseURL default", "https://api.deepseek.com", profile.AIDeepSeekBaseURL},
		{"AIOllamaBaseURL default", "http://localhost:11434", profile.AIOllamaBaseURL},
		{"AILLMModel default", "gpt-4o-mini", profile.AILLMModel},
		{"ChannelSecret empty", "", profile.ChannelSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.actual)
		})
	}
	assert.Equal(t, 2048, profile.AIMaxTokens)
	assert.InDelta(t, 0.6, profile.AITemperature, 0.0001)
	assert.InDelta(t, float64(DefaultRateLimitPerSecond), profile.RateLimitPerSecond, 0.0001)
	assert.Equal(t, DefaultRateLimitBurst, profile.RateLimitBurst)
}

// TestProfileFromEnv checks new and legacy variable names.
func TestProfileFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		field    func(*Profile) string
	}{
		{"CHATDIGEST_CHANNEL_SECRET", "CHATDIGEST_CHANNEL_SECRET", "secret-1", func(p *Profile) string { return p.ChannelSecret }},
		{"LINE_CHANNEL_SECRET legacy", "LINE_CHANNEL_SECRET", "secret-2", func(p *Profile) string { return p.ChannelSecret }},
		{"LINE_CHANNEL_ACCESS_TOKEN legacy", "LINE_CHANNEL_ACCESS_TOKEN", "token", func(p *Profile) string { return p.ChannelAccessToken }},
		{"OPENAI_API_KEY legacy", "OPENAI_API_KEY", "sk-test", func(p *Profile) string { return p.AIOpenAIAPIKey }},
		{"CHATDIGEST_AI_LLM_PROVIDER", "CHATDIGEST_AI_LLM_PROVIDER", "ollama", func(p *Profile) string { return p.AILLMProvider }},
		{"CHATDIGEST_AI_LLM_MODEL", "CHATDIGEST_AI_LLM_MODEL", "llama3", func(p *Profile) string { return p.AILLMModel }},
		{"CHATDIGEST_FAILURE_REPLY", "CHATDIGEST_FAILURE_REPLY", "oops", func(p *Profile) string { return p.FailureReply }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars(t)
			t.Setenv(tt.envVar, tt.envValue)

			profile := &Profile{}
			profile.FromEnv()

			assert.Equal(t, tt.envValue, tt.field(profile))
		})
	}
}

func TestProfileFromEnvInvalidNumbers(t *testing.T) {
	clearEnvVars(t)
	t.Setenv("CHATDIGEST_AI_MAX_TOKENS", "many")
	t.Setenv("CHATDIGEST_RATE_LIMIT_PER_SECOND", "fast")

	profile := &Profile{}
	profile.FromEnv()

	assert.Equal(t, 2048, profile.AIMaxTokens)
	assert.InDelta(t, float64(DefaultRateLimitPerSecond), profile.RateLimitPerSecond, 0.0001)
}

func TestIsAIEnabled(t *testing.T) {
	tests := []struct {
		name     string
		profile  Profile
		expected bool
	}{
		{"openai without key", Profile{AILLMProvider: "openai"}, false},
		{"openai with key", Profile{AILLMProvider: "openai", AIOpenAIAPIKey: "k"}, true},
		{"deepseek with openai key only", Profile{AILLMProvider: "deepseek", AIOpenAIAPIKey: "k"}, false},
		{"deepseek with key", Profile{AILLMProvider: "deepseek", AIDeepSeekAPIKey: "k"}, true},
		{"ollama with base url", Profile{AILLMProvider: "ollama", AIOllamaBaseURL: "http://localhost:11434"}, true},
		{"unknown provider", Profile{AILLMProvider: "bard", AIOpenAIAPIKey: "k"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.profile.IsAIEnabled())
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Profile {
		return &Profile{
			Mode:               "dev",
			Driver:             "sqlite",
			Data:               t.TempDir(),
			ChannelSecret:      "secret",
			ChannelAccessToken: "token",
			AILLMProvider:      "openai",
			AIOpenAIAPIKey:     "sk",
			TriggerTokens:      []string{DefaultTriggerToken},
			MinBacklog:         DefaultMinBacklog,
			SummarizeTimeout:   time.Second,
			GreetingTemplate:   DefaultGreetingTemplate,
		}
	}

	t.Run("fills defaults", func(t *testing.T) {
		p := valid(t)
		p.Mode = "staging"
		require.NoError(t, p.Validate())
		assert.Equal(t, "dev", p.Mode)
		assert.Equal(t, filepath.Join(p.Data, "chatdigest_dev.db"), p.DSN)
		assert.Equal(t, DefaultWebhookPath, p.WebhookPath)
		assert.Equal(t, DrainModeDeleteFirst, p.DrainMode)
		assert.Equal(t, DefaultTimezone, p.Timezone)
		assert.Equal(t, DefaultMaxConcurrentSummaries, p.MaxConcurrentSummaries)
	})

	t.Run("webhook path gets leading slash", func(t *testing.T) {
		p := valid(t)
		p.WebhookPath = "callback"
		require.NoError(t, p.Validate())
		assert.Equal(t, "/callback", p.WebhookPath)
	})

	t.Run("bad greeting template falls back", func(t *testing.T) {
		p := valid(t)
		p.GreetingTemplate = "hello %s"
		require.NoError(t, p.Validate())
		assert.Equal(t, DefaultGreetingTemplate, p.GreetingTemplate)
	})

	failures := []struct {
		name   string
		mutate func(*Profile)
	}{
		{"unknown driver", func(p *Profile) { p.Driver = "mysql" }},
		{"postgres without dsn", func(p *Profile) { p.Driver = "postgres" }},
		{"missing data dir", func(p *Profile) { p.Data = filepath.Join(p.Data, "missing") }},
		{"missing secret", func(p *Profile) { p.ChannelSecret = "" }},
		{"missing access token", func(p *Profile) { p.ChannelAccessToken = "" }},
		{"llm not configured", func(p *Profile) { p.AIOpenAIAPIKey = "" }},
		{"no trigger tokens", func(p *Profile) { p.TriggerTokens = nil }},
		{"negative backlog", func(p *Profile) { p.MinBacklog = -1 }},
		{"zero timeout", func(p *Profile) { p.SummarizeTimeout = 0 }},
		{"bad timezone", func(p *Profile) { p.Timezone = "Mars/Olympus" }},
		{"bad drain mode", func(p *Profile) { p.DrainMode = "sometimes" }},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			p := valid(t)
			tt.mutate(p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestParseTriggerTokens(t *testing.T) {
	assert.Equal(t, []string{"/summary", "懶趴包"}, ParseTriggerTokens(" /summary, ,懶趴包,"))
	assert.Empty(t, ParseTriggerTokens(""))
}

// Helper functions

func clearEnvVars(t *testing.T) {
	t.Helper()
	envVars := []string{
		"CHATDIGEST_CHANNEL_SECRET",
		"LINE_CHANNEL_SECRET",
		"CHATDIGEST_CHANNEL_ACCESS_TOKEN",
		"LINE_CHANNEL_ACCESS_TOKEN",
		"CHATDIGEST_LINE_API_BASE_URL",
		"CHATDIGEST_SYSTEM_INSTRUCTION",
		"CHATDIGEST_UNKNOWN_USER_NAME",
		"CHATDIGEST_INSUFFICIENT_HISTORY_REPLY",
		"CHATDIGEST_FAILURE_REPLY",
		"CHATDIGEST_GREETING_TEMPLATE",
		"CHATDIGEST_AI_LLM_PROVIDER",
		"CHATDIGEST_AI_OPENAI_API_KEY",
		"OPENAI_API_KEY",
		"CHATDIGEST_AI_OPENAI_BASE_URL",
		"CHATDIGEST_AI_DEEPSEEK_API_KEY",
		"DEEPSEEK_API_KEY",
		"CHATDIGEST_AI_DEEPSEEK_BASE_URL",
		"CHATDIGEST_AI_OLLAMA_BASE_URL",
		"OLLAMA_HOST",
		"CHATDIGEST_AI_LLM_MODEL",
		"CHATDIGEST_AI_MAX_TOKENS",
		"CHATDIGEST_AI_TEMPERATURE",
		"CHATDIGEST_RATE_LIMIT_PER_SECOND",
		"CHATDIGEST_RATE_LIMIT_BURST",
	}
	for _, envVar := range envVars {
		// t.Setenv registers the restore; unsetting afterwards leaves the variable absent for the test.
		t.Setenv(envVar, "")
		os.Unsetenv(envVar)
	}
}
