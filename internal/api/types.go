package api

import (
	"bytes"
	"encoding/json"
	"time"
)

// Wire types for the chat backend.

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Conversation is a titled thread of messages. The title is inferred by the
// backend after the first exchange.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt Timestamp `json:"created_at"`
}

// Timestamp accepts RFC 3339 times with or without a zone offset, since
// backends disagree on the format. Null and "" decode to the zero time.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

// Message is one turn in a conversation.
type Message struct {
	ID      string `json:"id"`
	Sender  Sender `json:"sender"`
	Content string `json:"content"`
}

type createChatRequest struct {
	Title string `json:"title"`
}

type askRequest struct {
	Message string `json:"message"`
	Model   string `json:"model,omitempty"`
}

// streamFrame is the JSON envelope carried by each event-stream frame.
type streamFrame struct {
	Text *string `json:"text,omitempty"`
	Done bool    `json:"done,omitempty"`
}

// streamErrorFrame is the payload of an in-band "error" event.
type streamErrorFrame struct {
	Message string `json:"message"`
}

// IncrementKind classifies an Increment.
type IncrementKind int

const (
	KindContent IncrementKind = iota // a fragment of AI text
	KindDone                         // no further increments will arrive
	KindFailure                      // the stream broke; Err holds the reason
)

func (k IncrementKind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindDone:
		return "done"
	case KindFailure:
		return "failure"
	}
	return "unknown"
}

// Increment is one unit delivered by a Source.
type Increment struct {
	Kind IncrementKind
	Text string // For KindContent
	Err  error  // For KindFailure
}

// Terminal reports whether no further increments follow this one.
func (i Increment) Terminal() bool {
	return i.Kind != KindContent
}

func content(text string) Increment { return Increment{Kind: KindContent, Text: text} }
func done() Increment               { return Increment{Kind: KindDone} }
func failure(err error) Increment   { return Increment{Kind: KindFailure, Err: err} }
