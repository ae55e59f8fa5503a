// Package chat drives one user turn: it records the user's message, opens a
// reply stream and folds the increments into an AI placeholder message.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/youruser/chatc/internal/api"
	"github.com/youruser/chatc/internal/logging"
	"github.com/youruser/chatc/internal/transcript"
)

var (
	ErrNoActiveChat  = errors.New("no active chat")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrSessionActive = errors.New("a response is already streaming")
	ErrNotReady      = errors.New("conversation is still loading")
	log              = logging.Get()
)

// ErrorPrefix starts the content of a reply that failed.
const ErrorPrefix = "Error: Could not get response."

// ActiveConversation reports the conversation new messages belong to.
type ActiveConversation interface {
	ActiveID() string
}

// Refresher is told when a conversation received a complete reply.
type Refresher interface {
	Schedule(conversationID string) bool
}

// Session is one in-flight reply. It ends on the first terminal increment.
type Session struct {
	ConversationID  string
	TargetMessageID string
	UserMessageID   string
	Started         time.Time

	content  string
	terminal bool
	source   api.Source
}

// Content returns the text accumulated so far.
func (s Session) Content() string { return s.content }

// Terminal reports whether the session has ended.
func (s Session) Terminal() bool { return s.terminal }

// Result describes a completed reply.
type Result struct {
	ConversationID string
	MessageID      string
	Content        string
	Duration       time.Duration
	Tokens         int
}

// Controller sends user messages and streams replies into the transcript.
// At most one session is in flight at a time.
type Controller struct {
	transport api.Transport
	store     *transcript.Store
	active    ActiveConversation
	refresher Refresher

	mu       sync.Mutex
	session  *Session
	cancel   context.CancelFunc
	canceled bool
}

// NewController wires a controller. refresher may be nil.
func NewController(transport api.Transport, store *transcript.Store, active ActiveConversation, refresher Refresher) *Controller {
	return &Controller{
		transport: transport,
		store:     store,
		active:    active,
		refresher: refresher,
	}
}

// Mode returns the transport mode replies are delivered with.
func (c *Controller) Mode() api.Mode {
	return c.transport.Mode()
}

func (c *Controller) reserve(s *Session, cancel context.CancelFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return false
	}
	c.session = s
	c.cancel = cancel
	c.canceled = false
	return true
}

func (c *Controller) release(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s {
		return
	}
	c.session = nil
	c.cancel = nil
}

// Cancel aborts the in-flight session, if any. The reply ends as a failure.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return false
	}
	cancel := c.cancel
	c.canceled = true
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return true
}

// Busy reports whether a session is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Session returns a snapshot of the in-flight session.
func (c *Controller) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// Send appends text as a user message followed by an empty AI message and
// streams the reply into the AI message until the stream ends. Failures are
// written into the AI message as well as returned. While the transcript is
// still bound to a previous conversation Send returns ErrNotReady.
func (c *Controller) Send(ctx context.Context, text string) (*Result, error) {
	convID := c.active.ActiveID()
	if convID == "" {
		return nil, ErrNoActiveChat
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	ctx, cancel := context.WithCancel(ctx)
	sess := &Session{
		ConversationID:  convID,
		TargetMessageID: "ai-" + uuid.NewString(),
		UserMessageID:   "user-" + uuid.NewString(),
		Started:         time.Now(),
	}
	if !c.reserve(sess, cancel) {
		cancel()
		return nil, ErrSessionActive
	}
	defer func() {
		cancel()
		c.release(sess)
	}()

	err := c.store.AppendFor(convID,
		api.Message{ID: sess.UserMessageID, Sender: api.SenderUser, Content: text},
		api.Message{ID: sess.TargetMessageID, Sender: api.SenderAI},
	)
	if errors.Is(err, transcript.ErrOtherConversation) {
		// The selection moved but the transcript has not been cleared for it yet.
		return nil, ErrNotReady
	}
	if err != nil {
		return nil, fmt.Errorf("append messages: %w", err)
	}
	log.Info("Sending message to %s (%s, %d chars)", convID, c.transport.Mode(), len(text))

	src, err := c.transport.Open(ctx, convID, text)
	if err != nil {
		err = fmt.Errorf("open %s stream: %w", c.transport.Mode(), c.reason(err))
		c.fail(sess, err)
		return nil, err
	}
	defer src.Close()
	c.mu.Lock()
	sess.source = src
	c.mu.Unlock()

	for {
		inc := src.Next()
		switch inc.Kind {
		case api.KindContent:
			c.apply(sess, inc.Text)
		case api.KindDone:
			log.Stream("done", "")
			c.mu.Lock()
			sess.terminal = true
			content := sess.content
			c.mu.Unlock()
			if err := src.Close(); err != nil {
				log.Debug("Closing stream for %s: %v", convID, err)
			}
			if c.refresher != nil {
				c.refresher.Schedule(convID)
			}
			elapsed := time.Since(sess.Started)
			tokens := api.ReplyTokens(content)
			log.Info("Reply for %s complete: %d chars, ~%d tokens in %s", convID, len(content), tokens, elapsed)
			return &Result{
				ConversationID: convID,
				MessageID:      sess.TargetMessageID,
				Content:        content,
				Duration:       elapsed,
				Tokens:         tokens,
			}, nil
		default:
			err := c.reason(inc.Err)
			c.fail(sess, err)
			return nil, err
		}
	}
}

// apply folds one content increment into the target message. The target may
// be gone if the user switched conversations; the text is then dropped from
// the transcript but still counted in the session.
func (c *Controller) apply(sess *Session, text string) {
	log.Stream("content", text)
	c.mu.Lock()
	sess.content += text
	c.mu.Unlock()

	if _, err := c.store.AppendContent(sess.TargetMessageID, text); err != nil {
		if errors.Is(err, transcript.ErrMessageNotFound) {
			log.Debug("Skipping increment for %s: message not in transcript", sess.TargetMessageID)
			return
		}
		log.Warn("Failed to apply increment to %s: %v", sess.TargetMessageID, err)
	}
}

func (c *Controller) fail(sess *Session, err error) {
	log.Error("Reply for %s failed: %v", sess.ConversationID, err)
	c.mu.Lock()
	sess.terminal = true
	c.mu.Unlock()

	if err := c.store.UpdateContent(sess.TargetMessageID, ErrorAnnotation(err)); err != nil {
		log.Debug("Skipping error annotation for %s: %v", sess.TargetMessageID, err)
	}
}

// reason replaces a context cancellation caused by Cancel with a clearer error.
func (c *Controller) reason(err error) error {
	if err == nil {
		err = api.ErrStreamError
	}
	c.mu.Lock()
	canceled := c.canceled
	c.mu.Unlock()
	if canceled && errors.Is(err, context.Canceled) {
		return fmt.Errorf("canceled by user: %w", err)
	}
	return err
}

// ErrorAnnotation renders err as the content of a failed reply.
func ErrorAnnotation(err error) string {
	if err == nil {
		return ErrorPrefix
	}
	return ErrorPrefix + " " + err.Error()
}
