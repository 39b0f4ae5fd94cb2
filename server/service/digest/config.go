package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/chatdigest/internal/profile"
	"github.com/hrygo/chatdigest/server/timezone"
)

// Config holds the behavior knobs of the service. All values come from the profile.
type Config struct {
	TriggerTokens          []string
	MinBacklog             int
	SystemInstruction      string
	Location               *time.Location
	SummarizeTimeout       time.Duration
	MaxConcurrentSummaries int
	DrainMode              string

	UnknownUserName          string
	InsufficientHistoryReply string
	FailureReply             string
	// GreetingTemplate takes the display name, the event time and the message text.
	GreetingTemplate string
}

// NewConfigFromProfile expects a validated profile.
func NewConfigFromProfile(p *profile.Profile) (*Config, error) {
	loc, err := timezone.ParseTimezone(p.Timezone)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		TriggerTokens:            p.TriggerTokens,
		MinBacklog:               p.MinBacklog,
		SystemInstruction:        p.SystemInstruction,
		Location:                 loc,
		SummarizeTimeout:         p.SummarizeTimeout,
		MaxConcurrentSummaries:   p.MaxConcurrentSummaries,
		DrainMode:                p.DrainMode,
		UnknownUserName:          p.UnknownUserName,
		InsufficientHistoryReply: p.InsufficientHistoryReply,
		FailureReply:             p.FailureReply,
		GreetingTemplate:         p.GreetingTemplate,
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if len(NewTriggerMatcher(c.TriggerTokens).tokens) == 0 {
		return errors.New("at least one trigger token is required")
	}
	if c.MinBacklog < 0 {
		return errors.Errorf("min backlog must not be negative, got %d", c.MinBacklog)
	}
	if c.SummarizeTimeout <= 0 {
		return errors.Errorf("summarize timeout must be positive, got %s", c.SummarizeTimeout)
	}
	switch c.DrainMode {
	case profile.DrainModeDeleteFirst, profile.DrainModeDeleteOnSuccess:
	default:
		return errors.Errorf("unknown drain mode %q", c.DrainMode)
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.MaxConcurrentSummaries <= 0 {
		c.MaxConcurrentSummaries = profile.DefaultMaxConcurrentSummaries
	}
	if c.UnknownUserName == "" {
		c.UnknownUserName = profile.DefaultUnknownUserName
	}
	if c.InsufficientHistoryReply == "" {
		c.InsufficientHistoryReply = profile.DefaultInsufficientHistory
	}
	if c.FailureReply == "" {
		c.FailureReply = profile.DefaultFailureReply
	}
	if c.GreetingTemplate == "" {
		c.GreetingTemplate = profile.DefaultGreetingTemplate
	}
	return checkGreetingTemplate(c.GreetingTemplate)
}

// checkGreetingTemplate rejects templates that do not consume exactly three string operands.
func checkGreetingTemplate(template string) error {
	if rendered := fmt.Sprintf(template, "name", "time", "text"); strings.Contains(rendered, "%!") {
		return errors.Errorf("greeting template %q must take exactly three %%s verbs", template)
	}
	return nil
}
