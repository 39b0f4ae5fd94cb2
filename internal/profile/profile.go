package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// DrainModeDeleteFirst deletes the drained backlog before the engine is called.
	DrainModeDeleteFirst = "delete-first"
	// DrainModeDeleteOnSuccess claims the backlog during the engine call and deletes it only after a summary is produced.
	DrainModeDeleteOnSuccess = "delete-on-success"
)

// Defaults for the digest pipeline.
const (
	DefaultWebhookPath            = "/webhook"
	DefaultLineAPIBaseURL         = "https://api.line.me"
	DefaultTriggerToken           = "/summary"
	DefaultMinBacklog             = 3
	DefaultTimezone               = "UTC"
	DefaultSummarizeTimeout       = 60 * time.Second
	DefaultMaxConcurrentSummaries = 2
	DefaultUnknownUserName        = "Unknown"
	DefaultInsufficientHistory    = "There is not much chat history yet, nothing to summarize."
	DefaultFailureReply           = "Sorry, something went wrong while handling your message. Please try again later."
	DefaultGreetingTemplate       = "Hi, %s! At %s you said: %s"
	DefaultRateLimitPerSecond     = 10
	DefaultRateLimitBurst         = 20

	DefaultSystemInstruction = "Summarize the chat history by following these steps:\n" +
		"1. Analyze the chat records one by one in their original order.\n" +
		"2. Group the records by date and make sure every group holds the right conversations.\n" +
		"3. Within each date, organize the conversations by theme (for example transportation or food).\n" +
		"4. Finally give a short summary for each theme.\n" +
		"Reason step by step (chain of thought) while consolidating each conversation."
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory
	Data string
	// DSN points to where chatdigest stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of server
	Version string
	// LogLevel is one of debug, info, warn, error
	LogLevel string
	// LogFile enables rotated file logging when set
	LogFile string
	// WebhookPath is the route receiving platform events
	WebhookPath string

	// Messaging channel
	ChannelSecret      string // CHATDIGEST_CHANNEL_SECRET (legacy: LINE_CHANNEL_SECRET)
	ChannelAccessToken string // CHATDIGEST_CHANNEL_ACCESS_TOKEN (legacy: LINE_CHANNEL_ACCESS_TOKEN)
	LineAPIBaseURL     string // CHATDIGEST_LINE_API_BASE_URL (default: https://api.line.me)

	// Digest pipeline
	TriggerTokens          []string
	MinBacklog             int
	SystemInstruction      string // CHATDIGEST_SYSTEM_INSTRUCTION
	Timezone               string
	SummarizeTimeout       time.Duration
	MaxConcurrentSummaries int
	DrainMode              string

	// Reply texts
	UnknownUserName          string // CHATDIGEST_UNKNOWN_USER_NAME
	InsufficientHistoryReply string // CHATDIGEST_INSUFFICIENT_HISTORY_REPLY
	FailureReply             string // CHATDIGEST_FAILURE_REPLY
	GreetingTemplate         string // CHATDIGEST_GREETING_TEMPLATE, three %s verbs: name, time, text

	// AI Configuration
	AILLMProvider     string  // CHATDIGEST_AI_LLM_PROVIDER (default: openai)
	AIOpenAIAPIKey    string  // CHATDIGEST_AI_OPENAI_API_KEY (legacy: OPENAI_API_KEY)
	AIOpenAIBaseURL   string  // CHATDIGEST_AI_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	AIDeepSeekAPIKey  string  // CHATDIGEST_AI_DEEPSEEK_API_KEY (legacy: DEEPSEEK_API_KEY)
	AIDeepSeekBaseURL string  // CHATDIGEST_AI_DEEPSEEK_BASE_URL (default: https://api.deepseek.com)
	AIOllamaBaseURL   string  // CHATDIGEST_AI_OLLAMA_BASE_URL (default: http://localhost:11434)
	AILLMModel        string  // CHATDIGEST_AI_LLM_MODEL (default: gpt-4o-mini)
	AIMaxTokens       int     // CHATDIGEST_AI_MAX_TOKENS (default: 2048)
	AITemperature     float32 // CHATDIGEST_AI_TEMPERATURE (default: 0.6)

	// Webhook rate limiting
	RateLimitPerSecond float64 // CHATDIGEST_RATE_LIMIT_PER_SECOND (default: 10)
	RateLimitBurst     int     // CHATDIGEST_RATE_LIMIT_BURST (default: 20)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if the configured LLM provider has the credentials it needs.
func (p *Profile) IsAIEnabled() bool {
	switch p.AILLMProvider {
	case "openai":
		return p.AIOpenAIAPIKey != ""
	case "deepseek":
		return p.AIDeepSeekAPIKey != ""
	case "ollama":
		return p.AIOllamaBaseURL != ""
	default:
		return false
	}
}

// LogValue keeps secrets out of structured logs.
func (p *Profile) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("mode", p.Mode),
		slog.String("addr", p.Addr),
		slog.Int("port", p.Port),
		slog.String("driver", p.Driver),
		slog.String("version", p.Version),
		slog.String("webhook_path", p.WebhookPath),
		slog.Any("trigger_tokens", p.TriggerTokens),
		slog.Int("min_backlog", p.MinBacklog),
		slog.String("drain_mode", p.DrainMode),
		slog.Duration("summarize_timeout", p.SummarizeTimeout),
		slog.String("llm_provider", p.AILLMProvider),
		slog.String("llm_model", p.AILLMModel),
	)
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads secrets, AI settings and reply texts from environment variables.
// Supports both CHATDIGEST_* (new) and provider-native (legacy) names.
func (p *Profile) FromEnv() {
	getEnvWithFallback := func(newKey, legacyKey string) string {
		if val := os.Getenv(newKey); val != "" {
			return val
		}
		return os.Getenv(legacyKey)
	}

	getEnvWithDefault := func(newKey, legacyKey, defaultValue string) string {
		if val := getEnvWithFallback(newKey, legacyKey); val != "" {
			return val
		}
		return defaultValue
	}

	p.ChannelSecret = getEnvWithFallback("CHATDIGEST_CHANNEL_SECRET", "LINE_CHANNEL_SECRET")
	p.ChannelAccessToken = getEnvWithFallback("CHATDIGEST_CHANNEL_ACCESS_TOKEN", "LINE_CHANNEL_ACCESS_TOKEN")
	p.LineAPIBaseURL = getEnvOrDefault("CHATDIGEST_LINE_API_BASE_URL", DefaultLineAPIBaseURL)

	p.SystemInstruction = getEnvOrDefault("CHATDIGEST_SYSTEM_INSTRUCTION", DefaultSystemInstruction)
	p.UnknownUserName = getEnvOrDefault("CHATDIGEST_UNKNOWN_USER_NAME", DefaultUnknownUserName)
	p.InsufficientHistoryReply = getEnvOrDefault("CHATDIGEST_INSUFFICIENT_HISTORY_REPLY", DefaultInsufficientHistory)
	p.FailureReply = getEnvOrDefault("CHATDIGEST_FAILURE_REPLY", DefaultFailureReply)
	p.GreetingTemplate = getEnvOrDefault("CHATDIGEST_GREETING_TEMPLATE", DefaultGreetingTemplate)

	p.AILLMProvider = getEnvOrDefault("CHATDIGEST_AI_LLM_PROVIDER", "openai")
	p.AIOpenAIAPIKey = getEnvWithFallback("CHATDIGEST_AI_OPENAI_API_KEY", "OPENAI_API_KEY")
	p.AIOpenAIBaseURL = getEnvOrDefault("CHATDIGEST_AI_OPENAI_BASE_URL", "https://api.openai.com/v1")
	p.AIDeepSeekAPIKey = getEnvWithFallback("CHATDIGEST_AI_DEEPSEEK_API_KEY", "DEEPSEEK_API_KEY")
	p.AIDeepSeekBaseURL = getEnvOrDefault("CHATDIGEST_AI_DEEPSEEK_BASE_URL", "https://api.deepseek.com")
	p.AIOllamaBaseURL = getEnvWithDefault("CHATDIGEST_AI_OLLAMA_BASE_URL", "OLLAMA_HOST", "http://localhost:11434")
	p.AILLMModel = getEnvOrDefault("CHATDIGEST_AI_LLM_MODEL", "gpt-4o-mini")
	p.AIMaxTokens = getIntEnv("CHATDIGEST_AI_MAX_TOKENS", 2048)
	p.AITemperature = float32(getFloatEnv("CHATDIGEST_AI_TEMPERATURE", 0.6))

	p.RateLimitPerSecond = getFloatEnv("CHATDIGEST_RATE_LIMIT_PER_SECOND", DefaultRateLimitPerSecond)
	p.RateLimitBurst = getIntEnv("CHATDIGEST_RATE_LIMIT_BURST", DefaultRateLimitBurst)
}

func getIntEnv(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("ignoring invalid integer env", slog.String("key", key), slog.String("value", raw))
		return defaultValue
	}
	return v
}

func getFloatEnv(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("ignoring invalid float env", slog.String("key", key), slog.String("value", raw))
		return defaultValue
	}
	return v
}

// ParseTriggerTokens splits a comma separated token list, dropping blanks.
func ParseTriggerTokens(raw string) []string {
	tokens := []string{}
	for _, token := range strings.Split(raw, ",") {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "chatdigest")
			if _, err := os.Stat(p.Data); os.IsNotExist(err) {
				if err := os.MkdirAll(p.Data, 0770); err != nil {
					slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
					return err
				}
			}
		} else {
			p.Data = "/var/opt/chatdigest"
		}
	}

	switch p.Driver {
	case "sqlite":
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			slog.Error("failed to check dsn", slog.String("data", dataDir), slog.String("error", err.Error()))
			return err
		}
		p.Data = dataDir
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("chatdigest_%s.db", p.Mode))
		}
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn is required for the postgres driver")
		}
	default:
		return errors.Errorf("unknown db driver %q: only 'postgres' and 'sqlite' are supported", p.Driver)
	}

	if p.ChannelSecret == "" {
		return errors.New("channel secret is required")
	}
	if p.ChannelAccessToken == "" {
		return errors.New("channel access token is required")
	}
	if !p.IsAIEnabled() {
		return errors.Errorf("LLM provider %q is not configured", p.AILLMProvider)
	}

	if p.WebhookPath == "" {
		p.WebhookPath = DefaultWebhookPath
	}
	if !strings.HasPrefix(p.WebhookPath, "/") {
		p.WebhookPath = "/" + p.WebhookPath
	}
	if len(p.TriggerTokens) == 0 {
		return errors.New("at least one trigger token is required")
	}
	if p.MinBacklog < 0 {
		return errors.Errorf("min backlog must not be negative, got %d", p.MinBacklog)
	}
	if p.SummarizeTimeout <= 0 {
		return errors.Errorf("summarize timeout must be positive, got %s", p.SummarizeTimeout)
	}
	if p.MaxConcurrentSummaries <= 0 {
		p.MaxConcurrentSummaries = DefaultMaxConcurrentSummaries
	}
	if p.Timezone == "" {
		p.Timezone = DefaultTimezone
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return errors.Wrapf(err, "invalid timezone %q", p.Timezone)
	}

	switch p.DrainMode {
	case "":
		p.DrainMode = DrainModeDeleteFirst
	case DrainModeDeleteFirst, DrainModeDeleteOnSuccess:
	default:
		return errors.Errorf("unknown drain mode %q", p.DrainMode)
	}

	if strings.Count(p.GreetingTemplate, "%s") != 3 {
		slog.Warn("greeting template must contain three %s verbs, using default", slog.String("template", p.GreetingTemplate))
		p.GreetingTemplate = DefaultGreetingTemplate
	}
	return nil
}
