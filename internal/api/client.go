package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/youruser/chatc/internal/logging"
)

var (
	ErrRequestFailed  = errors.New("API request failed")
	ErrNotFound       = errors.New("not found")
	ErrStreamError    = errors.New("stream error")
	ErrMalformedFrame = errors.New("malformed stream frame")
	ErrStreamClosed   = errors.New("stream closed before done marker")
	ErrNoChat         = errors.New("no active chat selected")
	ErrUnknownMode    = errors.New("unknown transport mode")
	log               = logging.Get()
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxErrorBody          = 512
)

// StatusError reports a non-2xx response. It matches ErrRequestFailed, and
// ErrNotFound when the status is 404.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v: %s: %d", ErrRequestFailed, e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%v: %s: %d - %s", ErrRequestFailed, e.Op, e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRequestFailed:
		return true
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// Client talks to the chat backend.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
}

// NewClient creates a client for baseURL. requestTimeout bounds the
// metadata calls; replies (Ask and the streams) are bounded only by their
// context.
func NewClient(baseURL string, requestTimeout time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		httpClient:     &http.Client{},
		requestTimeout: requestTimeout,
	}
}

// BaseURL returns the backend root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) chatPath(chatID string, rest ...string) string {
	p := "/chats/" + url.PathEscape(chatID)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// ListChats fetches every conversation known to the backend.
func (c *Client) ListChats(ctx context.Context) ([]Conversation, error) {
	var chats []Conversation
	if err := c.doJSON(ctx, "list chats", http.MethodGet, "/chats", nil, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// GetChat fetches metadata for one conversation. A 404 matches ErrNotFound.
func (c *Client) GetChat(ctx context.Context, chatID string) (*Conversation, error) {
	if chatID == "" {
		return nil, ErrNoChat
	}
	var chat Conversation
	if err := c.doJSON(ctx, "get chat", http.MethodGet, c.chatPath(chatID), nil, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// CreateChat creates a conversation with the given title.
func (c *Client) CreateChat(ctx context.Context, title string) (*Conversation, error) {
	var chat Conversation
	if err := c.doJSON(ctx, "create chat", http.MethodPost, "/chats", createChatRequest{Title: title}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListMessages fetches the history of a conversation.
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	if chatID == "" {
		return nil, ErrNoChat
	}
	var msgs []Message
	if err := c.doJSON(ctx, "load messages", http.MethodGet, c.chatPath(chatID, "messages"), nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Ask sends a message and waits for the complete AI reply. model is
// optional. Like the streaming routes, Ask is bounded only by ctx, not by
// the request timeout: generating a whole reply can take longer.
func (c *Client) Ask(ctx context.Context, chatID, message, model string) (*Message, error) {
	if chatID == "" {
		return nil, ErrNoChat
	}
	var msg Message
	req := askRequest{Message: message, Model: model}
	if err := c.decodeJSON(ctx, "send message", http.MethodPost, c.chatPath(chatID, "ask"), req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// doJSON is decodeJSON bounded by the request timeout.
func (c *Client) doJSON(ctx context.Context, op, method, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	return c.decodeJSON(ctx, op, method, path, body, out)
}

// decodeJSON performs a request with an optional JSON body and decodes the
// JSON response into out.
func (c *Client) decodeJSON(ctx context.Context, op, method, path string, body any, out any) error {
	resp, err := c.send(ctx, op, method, path, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// send issues the request and returns the response only when the status is
// 2xx. On any other status the body is drained, closed, and reported in a
// *StatusError.
func (c *Client) send(ctx context.Context, op, method, path string, body any, accept string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	log.Request(method, req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("HTTP %s %s failed: %v", method, path, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Debug("HTTP response status: %d (%s)", resp.StatusCode, op)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		log.Warn("API error %d on %s: %s", resp.StatusCode, op, string(data))
		return nil, &StatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	return resp, nil
}
