package devserver

import (
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/youruser/chatc/internal/api"
)

// DefaultTitle marks a conversation whose title has not been inferred yet.
const DefaultTitle = "New Chat"

const maxTitleRunes = 40

var ErrChatNotFound = errors.New("chat not found")

type chatRecord struct {
	meta     api.Conversation
	messages []api.Message
}

// Store keeps conversations in memory for the lifetime of the process.
type Store struct {
	mu    sync.Mutex
	order []string
	chats map[string]*chatRecord
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		chats: make(map[string]*chatRecord),
		now:   time.Now,
	}
}

// Create adds a conversation. An empty title becomes DefaultTitle.
func (s *Store) Create(title string) api.Conversation {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	conv := api.Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: api.Timestamp{Time: s.now().UTC()},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[conv.ID] = &chatRecord{meta: conv}
	s.order = append(s.order, conv.ID)
	return conv
}

// List returns every conversation in creation order.
func (s *Store) List() []api.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Conversation, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.chats[id].meta)
	}
	return out
}

func (s *Store) Get(id string) (api.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.chats[id]
	if !ok {
		return api.Conversation{}, ErrChatNotFound
	}
	return rec.meta, nil
}

func (s *Store) Messages(id string) ([]api.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.chats[id]
	if !ok {
		return nil, ErrChatNotFound
	}
	out := make([]api.Message, len(rec.messages))
	copy(out, rec.messages)
	return out, nil
}

// AddMessage appends a message with a fresh id. The first user message of a
// conversation that still carries DefaultTitle names it.
func (s *Store) AddMessage(chatID string, sender api.Sender, content string) (api.Message, error) {
	msg := api.Message{ID: uuid.NewString(), Sender: sender, Content: content}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.chats[chatID]
	if !ok {
		return api.Message{}, ErrChatNotFound
	}
	rec.messages = append(rec.messages, msg)
	if sender == api.SenderUser && rec.meta.Title == DefaultTitle {
		if title := InferTitle(content); title != "" {
			rec.meta.Title = title
		}
	}
	return msg, nil
}

// InferTitle derives a short title from the first line of a message.
func InferTitle(message string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	line = strings.Join(strings.Fields(line), " ")
	if utf8.RuneCountInString(line) <= maxTitleRunes {
		return line
	}

	runes := []rune(line)[:maxTitleRunes]
	cut := string(runes)
	if i := strings.LastIndexByte(cut, ' '); i > maxTitleRunes/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " .,;:") + "..."
}
