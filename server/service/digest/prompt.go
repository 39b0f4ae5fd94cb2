package digest

import (
	"fmt"
	"time"

	"github.com/hrygo/chatdigest/plugin/ai"
	"github.com/hrygo/chatdigest/server/timezone"
	"github.com/hrygo/chatdigest/store"
)

// Prompt is one system instruction followed by one user entry per conversation line.
type Prompt []ai.Message

// AssemblePrompt keeps lines in the order given. Nothing is dropped, merged or reordered.
func AssemblePrompt(instruction string, lines []*store.ConversationLine, loc *time.Location) Prompt {
	prompt := make(Prompt, 0, len(lines)+1)
	prompt = append(prompt, ai.SystemPrompt(instruction))
	for _, line := range lines {
		prompt = append(prompt, ai.UserMessage(FormatLine(line, loc)))
	}
	return prompt
}

// FormatLine renders "{user} at {time} said: {content}".
func FormatLine(line *store.ConversationLine, loc *time.Location) string {
	return fmt.Sprintf("%s at %s said: %s", line.User, timezone.FormatTimestamp(line.CreatedTs, loc), line.Content)
}
