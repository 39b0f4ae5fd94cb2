package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/hrygo/chatdigest/internal/cache"
	"github.com/hrygo/chatdigest/plugin/ai/timeout"
)

const (
	// MaxTextLength is the platform limit for one text message, in characters.
	MaxTextLength = 5000

	defaultProfileCacheSize = 1000
	defaultProfileCacheTTL  = 30 * time.Minute
)

// APIError is a non-2xx answer from the messaging API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("line api error: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the messaging API with a long-lived channel access token.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	names       *cache.LRUCache[string]
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithProfileCache sizes the display-name cache.
func WithProfileCache(size int, ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.names = cache.NewLRUCache[string](size, ttl)
	}
}

func NewClient(baseURL, accessToken string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout.PlatformAPITimeout},
		names:       cache.NewLRUCache[string](defaultProfileCacheSize, defaultProfileCacheTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

// Reply answers the event identified by replyToken with one text message.
// Reply tokens are single-use; there are no retries.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	if replyToken == "" {
		return errors.New("reply token is required")
	}
	body, err := json.Marshal(&replyRequest{
		ReplyToken: replyToken,
		Messages:   []textMessage{{Type: MessageTypeText, Text: truncateText(text, MaxTextLength)}},
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal reply")
	}
	_, err = c.do(ctx, http.MethodPost, "/v2/bot/message/reply", body)
	return err
}

// GetDisplayName resolves the sender's display name. Results are cached per chat.
func (c *Client) GetDisplayName(ctx context.Context, source Source) (string, error) {
	if source.UserID == "" {
		return "", errors.New("source has no user id")
	}
	key := source.Key()
	if name, ok := c.names.Get(key); ok {
		return name, nil
	}

	respBody, err := c.do(ctx, http.MethodGet, profilePath(source), nil)
	if err != nil {
		return "", err
	}
	name := gjson.GetBytes(respBody, "displayName").String()
	if name == "" {
		return "", errors.New("profile has no display name")
	}
	c.names.Set(key, name, 0)
	return name, nil
}

func profilePath(source Source) string {
	userID := url.PathEscape(source.UserID)
	switch source.Type {
	case SourceTypeGroup:
		return "/v2/bot/group/" + url.PathEscape(source.GroupID) + "/member/" + userID
	case SourceTypeRoom:
		return "/v2/bot/room/" + url.PathEscape(source.RoomID) + "/member/" + userID
	default:
		return "/v2/bot/profile/" + userID
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	if resp.StatusCode/100 != 2 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: apiErrorMessage(respBody)}
	}
	return respBody, nil
}

// apiErrorMessage joins the top-level message with any detail messages.
func apiErrorMessage(body []byte) string {
	parsed := gjson.ParseBytes(body)
	message := parsed.Get("message").String()
	if message == "" {
		return strings.TrimSpace(string(body))
	}
	var details []string
	for _, detail := range parsed.Get("details.#.message").Array() {
		details = append(details, detail.String())
	}
	if len(details) > 0 {
		message += " (" + strings.Join(details, "; ") + ")"
	}
	return message
}

func truncateText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
