package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
)

// Mode selects how AI replies are delivered. It is fixed by configuration.
type Mode string

const (
	ModeBuffered    Mode = "buffered" // POST /ask, whole reply at once
	ModeEventStream Mode = "sse"      // GET /ask/stream, JSON frames
	ModeRawGet      Mode = "raw-get"  // GET /ask/stream-raw, unframed text
	ModeRawPost     Mode = "raw-post" // POST /ask/stream-raw-post, unframed text
)

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeBuffered, ModeEventStream, ModeRawGet, ModeRawPost:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Source yields the increments of one AI reply in delivery order.
//
// Next blocks until the next increment is available. Once a terminal
// increment (KindDone or KindFailure) has been returned, every later call
// returns it again. Close releases the underlying connection; it is safe to
// call more than once and must be called on every exit path.
type Source interface {
	Next() Increment
	Close() error
}

// Transport opens a Source for one user message.
type Transport interface {
	Mode() Mode
	Open(ctx context.Context, chatID, message string) (Source, error)
}

// NewTransport returns the Transport for mode. model is sent with buffered
// asks only; the streaming endpoints take no model parameter.
func NewTransport(c *Client, mode Mode, model string) (Transport, error) {
	switch mode {
	case ModeBuffered:
		return &bufferedTransport{client: c, model: model}, nil
	case ModeEventStream:
		return &eventStreamTransport{client: c}, nil
	case ModeRawGet, ModeRawPost:
		return &rawTransport{client: c, mode: mode}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// Buffered mode

type bufferedTransport struct {
	client *Client
	model  string
}

func (t *bufferedTransport) Mode() Mode { return ModeBuffered }

func (t *bufferedTransport) Open(ctx context.Context, chatID, message string) (Source, error) {
	msg, err := t.client.Ask(ctx, chatID, message, t.model)
	if err != nil {
		return nil, err
	}
	return &bufferedSource{reply: *msg}, nil
}

// bufferedSource replays a complete reply as one content increment followed
// by the terminal marker.
type bufferedSource struct {
	reply     Message
	delivered bool
}

func (s *bufferedSource) Next() Increment {
	if s.delivered {
		return done()
	}
	s.delivered = true
	return content(s.reply.Content)
}

func (s *bufferedSource) Close() error { return nil }

// Reply returns the message as the server produced it.
func (s *bufferedSource) Reply() Message { return s.reply }

// Event-stream mode

type eventStreamTransport struct {
	client *Client
}

func (t *eventStreamTransport) Mode() Mode { return ModeEventStream }

func (t *eventStreamTransport) Open(ctx context.Context, chatID, message string) (Source, error) {
	if chatID == "" {
		return nil, ErrNoChat
	}
	path := t.client.chatPath(chatID, "ask", "stream") + "?message=" + url.QueryEscape(message)
	resp, err := t.client.send(ctx, "open event stream", http.MethodGet, path, nil, "text/event-stream")
	if err != nil {
		return nil, err
	}
	return newEventSource(ctx, resp.Body), nil
}

// Raw-stream mode

type rawTransport struct {
	client *Client
	mode   Mode
}

func (t *rawTransport) Mode() Mode { return t.mode }

func (t *rawTransport) Open(ctx context.Context, chatID, message string) (Source, error) {
	if chatID == "" {
		return nil, ErrNoChat
	}

	var (
		resp *http.Response
		err  error
	)
	if t.mode == ModeRawGet {
		path := t.client.chatPath(chatID, "ask", "stream-raw") + "?message=" + url.QueryEscape(message)
		resp, err = t.client.send(ctx, "open raw stream", http.MethodGet, path, nil, "text/plain")
	} else {
		path := t.client.chatPath(chatID, "ask", "stream-raw-post")
		resp, err = t.client.send(ctx, "open raw stream", http.MethodPost, path, askRequest{Message: message}, "text/plain")
	}
	if err != nil {
		return nil, err
	}
	return newRawSource(ctx, resp.Body), nil
}

// closer makes Close idempotent for sources that own a response body.
type closer struct {
	once sync.Once
	fn   func() error
	err  error
}

func (c *closer) Close() error {
	c.once.Do(func() { c.err = c.fn() })
	return c.err
}
