package digest

import (
	"context"

	"github.com/hrygo/chatdigest/plugin/ai"
)

// LLMEngine summarizes through a chat-completion model.
type LLMEngine struct {
	llm ai.LLMService
}

func NewLLMEngine(llm ai.LLMService) *LLMEngine {
	return &LLMEngine{llm: llm}
}

func (e *LLMEngine) Summarize(ctx context.Context, prompt Prompt) (string, error) {
	return e.llm.Chat(ctx, []ai.Message(prompt))
}
