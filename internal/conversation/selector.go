// Package conversation tracks which conversation is active and keeps the
// sidebar list of known conversations.
package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/youruser/chatc/internal/api"
	"github.com/youruser/chatc/internal/logging"
	"github.com/youruser/chatc/internal/transcript"
)

// DefaultTitle is shown while no conversation is active and is the title
// new conversations are created with.
const DefaultTitle = "New Chat"

var log = logging.Get()

// State is the selector's position in its lifecycle.
type State int

const (
	NoConversation State = iota
	LoadingTranscript
	Ready
)

func (s State) String() string {
	switch s {
	case NoConversation:
		return "no-conversation"
	case LoadingTranscript:
		return "loading"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Backend is the part of the chat API the selector needs.
type Backend interface {
	ListChats(ctx context.Context) ([]api.Conversation, error)
	CreateChat(ctx context.Context, title string) (*api.Conversation, error)
}

// Selector owns the active conversation. Switching reloads the transcript.
type Selector struct {
	backend Backend
	store   *transcript.Store

	mu     sync.Mutex
	state  State
	active *api.Conversation
	title  string
	list   []api.Conversation

	changes chan struct{}
}

// NewSelector returns a selector with no active conversation.
func NewSelector(backend Backend, store *transcript.Store) *Selector {
	return &Selector{
		backend: backend,
		store:   store,
		title:   DefaultTitle,
		changes: make(chan struct{}, 1),
	}
}

// Changes signals title, list and state updates. Signals coalesce.
func (s *Selector) Changes() <-chan struct{} {
	return s.changes
}

func (s *Selector) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Select makes conv the active conversation and loads its history. A failed
// load is logged and leaves the transcript empty; the selection stands.
func (s *Selector) Select(ctx context.Context, conv api.Conversation) {
	s.mu.Lock()
	selected := conv
	s.active = &selected
	s.title = conv.Title
	s.state = LoadingTranscript
	s.mu.Unlock()
	s.notify()

	if err := s.store.Load(ctx, conv.ID); err != nil {
		log.Error("Failed to load messages for %s: %v", conv.ID, err)
	}

	s.mu.Lock()
	// A later Select or New owns the state now.
	if s.active != nil && s.active.ID == conv.ID && s.state == LoadingTranscript {
		s.state = Ready
	}
	s.mu.Unlock()
	s.notify()
}

// New creates a conversation on the backend and activates it with an empty
// transcript. The new conversation only shows up in the list once a later
// RefreshList or ApplyMetadata reports it. On failure nothing changes.
func (s *Selector) New(ctx context.Context) (*api.Conversation, error) {
	conv, err := s.backend.CreateChat(ctx, DefaultTitle)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	log.Info("Created chat %s", conv.ID)

	s.mu.Lock()
	created := *conv
	s.active = &created
	s.title = DefaultTitle
	s.state = Ready
	s.mu.Unlock()

	s.store.Reset(conv.ID)
	s.notify()
	return conv, nil
}

// RefreshList replaces the list with the backend's, leaving out chats whose
// title has not been inferred yet. On failure the previous list is kept and
// the error is returned for display.
func (s *Selector) RefreshList(ctx context.Context) error {
	chats, err := s.backend.ListChats(ctx)
	if err != nil {
		log.Error("Failed to fetch chats: %v", err)
		return err
	}

	visible := make([]api.Conversation, 0, len(chats))
	for _, c := range chats {
		if c.Title != DefaultTitle {
			visible = append(visible, c)
		}
	}

	s.mu.Lock()
	s.list = visible
	s.mu.Unlock()
	s.notify()
	return nil
}

// ApplyMetadata merges fresh metadata for one conversation. An entry with
// the same id is replaced in place, otherwise conv is prepended unless it
// still has the placeholder title. The header title follows if conv is the
// active conversation.
func (s *Selector) ApplyMetadata(conv api.Conversation) {
	s.mu.Lock()
	replaced := false
	for i := range s.list {
		if s.list[i].ID == conv.ID {
			s.list[i] = conv
			replaced = true
			break
		}
	}
	if !replaced && conv.Title != DefaultTitle {
		s.list = append([]api.Conversation{conv}, s.list...)
	}
	if s.active != nil && s.active.ID == conv.ID {
		updated := conv
		s.active = &updated
		s.title = conv.Title
	}
	s.mu.Unlock()
	s.notify()
}

// Deselect returns to the no-conversation state.
func (s *Selector) Deselect() {
	s.mu.Lock()
	s.active = nil
	s.title = DefaultTitle
	s.state = NoConversation
	s.mu.Unlock()

	s.store.Reset("")
	s.notify()
}

func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active returns a copy of the active conversation, or nil.
func (s *Selector) Active() *api.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	c := *s.active
	return &c
}

// ActiveID returns the active conversation id, or "".
func (s *Selector) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return ""
	}
	return s.active.ID
}

func (s *Selector) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// List returns a copy of the known conversations in display order.
func (s *Selector) List() []api.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Conversation, len(s.list))
	copy(out, s.list)
	return out
}
