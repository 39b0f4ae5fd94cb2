package digest

import (
	"context"

	"github.com/hrygo/chatdigest/plugin/line"
	"github.com/hrygo/chatdigest/store"
)

// Store is the subset of the message store the service needs.
type Store interface {
	CreateConversationLine(ctx context.Context, create *store.ConversationLine) (*store.ConversationLine, error)
	DrainConversationLines(ctx context.Context, visit store.DrainFunc) error
	ClaimConversationLines(ctx context.Context, claim *store.ClaimConversationLines, visit store.DrainFunc) error
	ReleaseConversationLines(ctx context.Context, claimID string) error
	DeleteConversationLines(ctx context.Context, delete *store.DeleteConversationLine) error
}

// Engine turns an assembled prompt into summary text.
type Engine interface {
	Summarize(ctx context.Context, prompt Prompt) (string, error)
}

// Dispatcher delivers a reply to the event identified by token.
type Dispatcher interface {
	Reply(ctx context.Context, token, text string) error
}

// ProfileLookup resolves a sender's display name.
type ProfileLookup interface {
	GetDisplayName(ctx context.Context, source line.Source) (string, error)
}

// InboundMessage is one text message delivered by the webhook.
type InboundMessage struct {
	ReplyToken string
	Source     line.Source
	Text       string
	// Timestamp is the platform event time in unix milliseconds. Zero lets the store stamp it.
	Timestamp int64
}
