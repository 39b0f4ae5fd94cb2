package line

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Event types handled by the webhook.
const (
	EventTypeMessage = "message"

	MessageTypeText = "text"

	SourceTypeUser  = "user"
	SourceTypeGroup = "group"
	SourceTypeRoom  = "room"
)

// WebhookRequest is the envelope POSTed by the platform.
type WebhookRequest struct {
	Destination string   `json:"destination"`
	Events      []*Event `json:"events"`
}

type Event struct {
	Type            string          `json:"type"`
	Mode            string          `json:"mode"`
	Timestamp       int64           `json:"timestamp"` // unix milliseconds
	ReplyToken      string          `json:"replyToken"`
	WebhookEventID  string          `json:"webhookEventId"`
	Source          Source          `json:"source"`
	Message         *Message        `json:"message,omitempty"`
	DeliveryContext DeliveryContext `json:"deliveryContext"`
}

// IsText reports whether e is a text message event.
func (e *Event) IsText() bool {
	return e.Type == EventTypeMessage && e.Message != nil && e.Message.Type == MessageTypeText
}

type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// Key identifies the sender within its chat, for caching display names.
func (s Source) Key() string {
	switch s.Type {
	case SourceTypeGroup:
		return "group:" + s.GroupID + ":" + s.UserID
	case SourceTypeRoom:
		return "room:" + s.RoomID + ":" + s.UserID
	default:
		return "user:" + s.UserID
	}
}

type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type DeliveryContext struct {
	IsRedelivery bool `json:"isRedelivery"`
}

// ParseWebhook decodes a webhook body. Call it only after ValidateSignature succeeded.
func ParseWebhook(body []byte) (*WebhookRequest, error) {
	request := &WebhookRequest{}
	if err := json.Unmarshal(body, request); err != nil {
		return nil, errors.Wrap(err, "failed to parse webhook body")
	}
	return request, nil
}
