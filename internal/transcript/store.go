// Package transcript holds the ordered message list of the active
// conversation. Messages are appended and the content of a message can be
// replaced or extended by id; nothing is ever reordered or removed while a
// conversation stays loaded.
package transcript

import (
	"context"
	"errors"
	"sync"

	"github.com/youruser/chatc/internal/api"
	"github.com/youruser/chatc/internal/logging"
)

var (
	ErrDuplicateID       = errors.New("message id already in transcript")
	ErrMessageNotFound   = errors.New("message not found in transcript")
	ErrOtherConversation = errors.New("transcript belongs to another conversation")
	log                  = logging.Get()
)

// HistoryLoader fetches the stored messages of a conversation.
type HistoryLoader interface {
	ListMessages(ctx context.Context, chatID string) ([]api.Message, error)
}

// Store is the transcript of one conversation at a time. It is safe for
// concurrent use; all mutations are serialized.
type Store struct {
	mu             sync.Mutex
	loader         HistoryLoader
	conversationID string
	generation     uint64 // bumped on every Load/Reset
	messages       []api.Message
	index          map[string]int // message id -> position in messages
	changes        chan struct{}
}

// New returns an empty store that loads history through loader.
func New(loader HistoryLoader) *Store {
	return &Store{
		loader:  loader,
		index:   make(map[string]int),
		changes: make(chan struct{}, 1),
	}
}

// Changes delivers a signal after mutations. Signals coalesce: one pending
// signal stands for any number of changes.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// ConversationID returns the conversation the transcript belongs to.
func (s *Store) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Reset empties the transcript and binds it to conversationID.
func (s *Store) Reset(conversationID string) {
	s.mu.Lock()
	s.resetLocked(conversationID)
	s.mu.Unlock()
	s.notify()
}

func (s *Store) resetLocked(conversationID string) {
	s.conversationID = conversationID
	s.generation++
	s.messages = nil
	s.index = make(map[string]int)
}

// Load replaces the transcript with the history of conversationID. An empty
// id yields an empty transcript without a fetch. The transcript is cleared
// before the fetch starts; if another Load or Reset happens while the fetch
// is in flight, its result is dropped. Messages appended while the fetch is
// in flight stay in the transcript, after the history.
func (s *Store) Load(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	s.resetLocked(conversationID)
	gen := s.generation
	s.mu.Unlock()
	s.notify()

	if conversationID == "" {
		return nil
	}

	msgs, err := s.loader.ListMessages(ctx, conversationID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		log.Debug("Dropping stale history for %s", conversationID)
		return nil
	}
	pending := s.messages
	s.messages = nil
	s.index = make(map[string]int)
	for _, m := range msgs {
		if _, dup := s.index[m.ID]; dup && m.ID != "" {
			log.Warn("Duplicate message id %q in history of %s", m.ID, conversationID)
			continue
		}
		s.appendLocked(m)
	}
	for _, m := range pending {
		if i, dup := s.index[m.ID]; dup && m.ID != "" {
			// The local copy may be streaming; it wins over the fetched one.
			s.messages[i] = m
			continue
		}
		s.appendLocked(m)
	}
	s.mu.Unlock()
	s.notify()

	log.Debug("Loaded %d messages for %s", len(msgs), conversationID)
	return nil
}

func (s *Store) appendLocked(m api.Message) {
	s.messages = append(s.messages, m)
	if m.ID != "" {
		s.index[m.ID] = len(s.messages) - 1
	}
}

// Append adds m at the end of the transcript.
func (s *Store) Append(m api.Message) error {
	s.mu.Lock()
	if _, dup := s.index[m.ID]; dup {
		s.mu.Unlock()
		return ErrDuplicateID
	}
	s.appendLocked(m)
	s.mu.Unlock()
	s.notify()
	return nil
}

// AppendFor adds msgs at the end of the transcript in one step, provided the
// transcript is bound to conversationID. Nothing is added on error.
func (s *Store) AppendFor(conversationID string, msgs ...api.Message) error {
	s.mu.Lock()
	if s.conversationID != conversationID {
		s.mu.Unlock()
		return ErrOtherConversation
	}
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if _, dup := s.index[m.ID]; dup || seen[m.ID] {
			s.mu.Unlock()
			return ErrDuplicateID
		}
		seen[m.ID] = true
	}
	for _, m := range msgs {
		s.appendLocked(m)
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// UpdateContent replaces the content of the message with id.
func (s *Store) UpdateContent(id, content string) error {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return ErrMessageNotFound
	}
	s.messages[i].Content = content
	s.mu.Unlock()
	s.notify()
	return nil
}

// AppendContent extends the content of the message with id by text and
// returns the new content.
func (s *Store) AppendContent(id, text string) (string, error) {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return "", ErrMessageNotFound
	}
	s.messages[i].Content += text
	updated := s.messages[i].Content
	s.mu.Unlock()
	s.notify()
	return updated, nil
}

// Get returns the message with id.
func (s *Store) Get(id string) (api.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return api.Message{}, false
	}
	return s.messages[i], true
}

// Messages returns a copy of the transcript in order.
func (s *Store) Messages() []api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}
